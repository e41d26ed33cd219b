package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dshills/depurador/internal/debug"
	"github.com/dshills/depurador/internal/logging"
)

// Protocol command names.
const (
	CmdAddBreakpoint    = "adicionar-ponto-parada"
	CmdRemoveBreakpoint = "remover-ponto-parada"
	CmdListBreakpoints  = "pontos-parada"
	CmdStackTrace       = "pilha-execucao"
	CmdVariables        = "variaveis"
	CmdEvaluate         = "avaliar"
	CmdEvaluateVariable = "avaliar-variavel"
	CmdStepIn           = "adentrar-escopo"
	CmdStepOver         = "proximo"
	CmdStepOut          = "sair-escopo"
	CmdContinue         = "continuar"
	CmdGoodbye          = "tchau"
)

// UnknownCommandPolicy selects how unrecognized commands are answered.
type UnknownCommandPolicy int32

const (
	// PolicyReport answers with an error frame.
	PolicyReport UnknownCommandPolicy = iota
	// PolicyIgnore skips the command without a response.
	PolicyIgnore
)

// String returns the configuration name of the policy.
func (p UnknownCommandPolicy) String() string {
	switch p {
	case PolicyReport:
		return "report"
	case PolicyIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// ParseUnknownCommandPolicy parses "report" or "ignore".
func ParseUnknownCommandPolicy(s string) (UnknownCommandPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "report", "":
		return PolicyReport, nil
	case "ignore":
		return PolicyIgnore, nil
	default:
		return PolicyReport, fmt.Errorf("unknown command policy %q", s)
	}
}

// Reply accumulates the response to one command.
type Reply struct {
	b     strings.Builder
	flush func(string)

	// Close asks the connection to hang up after sending the reply.
	Close bool
}

// Line appends one formatted line.
func (r *Reply) Line(format string, args ...any) {
	if len(args) > 0 {
		format = fmt.Sprintf(format, args...)
	}
	r.b.WriteString(format)
	r.b.WriteByte('\n')
}

// Ack appends the standard receipt line.
func (r *Reply) Ack(name string) {
	r.Line("Recebido comando '%s'", name)
}

// Error appends an explicit error frame.
func (r *Reply) Error(msg string) {
	r.Line("--- erro ---")
	r.Line("%s", msg)
	r.Line("--- fim-erro ---")
}

// Begin opens a delimited response block.
func (r *Reply) Begin(name string) {
	r.Line("--- %s-resposta ---", name)
}

// End closes a delimited response block.
func (r *Reply) End(name string) {
	r.Line("--- fim-%s-resposta ---", name)
}

// Flush hands the text accumulated so far to the connection, so the
// receipt of a long-running command reaches the client before it completes.
// Without a flush target the text stays in the reply.
func (r *Reply) Flush() {
	if r.flush == nil || r.b.Len() == 0 {
		return
	}
	r.flush(r.b.String())
	r.b.Reset()
}

// String returns the accumulated text.
func (r *Reply) String() string {
	return r.b.String()
}

// commandFunc handles one command.
type commandFunc func(ctx context.Context, cmd Command, r *Reply)

// Dispatcher maps command names to handlers.
// It keeps no per-connection state.
type Dispatcher struct {
	engine   Engine
	logger   *logging.Logger
	commands map[string]commandFunc
	policy   atomic.Int32
}

// NewDispatcher creates a dispatcher over engine.
func NewDispatcher(engine Engine, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	d := &Dispatcher{
		engine: engine,
		logger: logger.WithComponent("dispatcher"),
	}
	d.commands = map[string]commandFunc{
		CmdAddBreakpoint:    d.addBreakpoint,
		CmdRemoveBreakpoint: d.removeBreakpoint,
		CmdListBreakpoints:  d.listBreakpoints,
		CmdStackTrace:       d.stackTrace,
		CmdVariables:        d.variables,
		CmdEvaluate:         d.evaluate,
		CmdEvaluateVariable: d.evaluateVariable,
		CmdStepIn:           d.step(engine.StepIn),
		CmdStepOver:         d.step(engine.StepOver),
		CmdStepOut:          d.step(engine.StepOut),
		CmdContinue:         d.step(engine.Continue),
		CmdGoodbye:          d.goodbye,
	}
	return d
}

// SetUnknownCommandPolicy changes how unrecognized commands are answered.
func (d *Dispatcher) SetUnknownCommandPolicy(p UnknownCommandPolicy) {
	d.policy.Store(int32(p))
}

// UnknownCommandPolicy returns the current policy.
func (d *Dispatcher) UnknownCommandPolicy() UnknownCommandPolicy {
	return UnknownCommandPolicy(d.policy.Load())
}

// Commands returns the names of the registered commands.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	return names
}

// Dispatch runs cmd and returns its reply. An empty reply sends nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) *Reply {
	return d.DispatchTo(ctx, cmd, nil)
}

// DispatchTo is Dispatch with a flush target for partial replies.
func (d *Dispatcher) DispatchTo(ctx context.Context, cmd Command, flush func(string)) *Reply {
	r := &Reply{flush: flush}

	fn, ok := d.commands[cmd.Name]
	if !ok {
		err := &ProtocolError{Command: cmd.Name, Reason: ErrUnknownCommand.Error(), Err: ErrUnknownCommand}
		if d.UnknownCommandPolicy() == PolicyIgnore {
			d.logger.Debug("ignoring %v", err)
			return r
		}
		d.logger.Warn("%v", err)
		r.Error(err.Error())
		return r
	}

	d.logger.Debug("command %s %v", cmd.Name, cmd.Args)
	fn(ctx, cmd, r)
	return r
}

func (d *Dispatcher) addBreakpoint(_ context.Context, cmd Command, r *Reply) {
	r.Ack(cmd.Name)
	bp, ok := d.breakpointArg(cmd, r)
	if !ok {
		return
	}
	if !d.engine.Breakpoints().Add(bp) {
		d.logger.Debug("breakpoint %s already registered", bp)
	}
}

func (d *Dispatcher) removeBreakpoint(_ context.Context, cmd Command, r *Reply) {
	r.Ack(cmd.Name)
	bp, ok := d.breakpointArg(cmd, r)
	if !ok {
		return
	}
	if !d.engine.Breakpoints().Remove(bp) {
		d.logger.Debug("breakpoint %s not registered", bp)
	}
}

// breakpointArg parses and validates "<path> <line>", writing any problem
// to r.
func (d *Dispatcher) breakpointArg(cmd Command, r *Reply) (debug.Breakpoint, bool) {
	if len(cmd.Args) < 2 {
		r.Line("[%s]: Formato: %s /caminho/do/arquivo.egua 1", cmd.Name, cmd.Name)
		return debug.Breakpoint{}, false
	}

	path := cmd.Args[0]
	line, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		perr := &ProtocolError{Command: cmd.Name, Reason: fmt.Sprintf("Linha '%s' inválida", cmd.Args[1]), Err: err}
		d.logger.Debug("%v", perr)
		r.Line("%s", perr.Error())
		return debug.Breakpoint{}, false
	}

	bp, err := d.engine.Breakpoints().Validate(d.engine, path, line)
	switch {
	case err == nil:
		return bp, true
	case errors.Is(err, debug.ErrFileNotOpen):
		r.Line("[%s]: Arquivo '%s' não encontrado", cmd.Name, path)
	case errors.Is(err, debug.ErrLineOutOfRange):
		r.Line("[%s]: Linha %d não existente em arquivo '%s'", cmd.Name, line, path)
	default:
		r.Line("[%s]: %v", cmd.Name, err)
	}
	return debug.Breakpoint{}, false
}

func (d *Dispatcher) listBreakpoints(_ context.Context, cmd Command, r *Reply) {
	r.Ack(cmd.Name)
	for _, bp := range d.engine.Breakpoints().List() {
		r.Line("%s: %d", d.displayPath(bp.File), bp.Line)
	}
}

func (d *Dispatcher) displayPath(hash debug.FileHash) string {
	if f, ok := d.engine.OpenFile(hash); ok {
		return f.Path
	}
	return hash.String()
}

func (d *Dispatcher) stackTrace(ctx context.Context, cmd Command, r *Reply) {
	r.Ack(cmd.Name)

	frames, err := d.engine.ScopeStack(ctx)
	if err != nil {
		d.fail(cmd, err, r)
		return
	}

	var lines []string
	for _, frame := range debug.Visible(frames) {
		st, ok := frame.CurrentStatement()
		if !ok {
			continue
		}
		f, ok := d.engine.OpenFile(st.File)
		if !ok {
			d.fail(cmd, fmt.Errorf("%w: %s", debug.ErrFileNotOpen, st.File), r)
			return
		}
		src, ok := f.Line(st.Line)
		if !ok {
			d.fail(cmd, fmt.Errorf("%w: %s:%d", debug.ErrLineOutOfRange, f.Path, st.Line), r)
			return
		}
		lines = append(lines, fmt.Sprintf("%s --- %s::%s::%d", strings.TrimSpace(src), f.Path, frame.Signature, st.Line))
	}

	r.Begin(cmd.Name)
	for _, l := range lines {
		r.Line("%s", l)
	}
	r.End(cmd.Name)
}

func (d *Dispatcher) variables(ctx context.Context, cmd Command, r *Reply) {
	r.Line("Recebido comando '%s'. Enviando variáveis do escopo atual", cmd.Name)

	vars, err := d.engine.Variables(ctx)
	if err != nil {
		d.fail(cmd, err, r)
		return
	}

	r.Begin(cmd.Name)
	for _, v := range vars {
		r.Line("%s :: %s :: %s", v.Name, v.Type, v.Value)
	}
	r.End(cmd.Name)
}

func (d *Dispatcher) evaluate(ctx context.Context, cmd Command, r *Reply) {
	r.Ack(cmd.Name)

	var result any
	results, err := d.engine.ExecuteLine(ctx, cmd.Rest())
	switch {
	case err != nil:
		d.logger.Debug("evaluation failed: %v", err)
		result = err.Error()
	case len(results) > 0:
		result = results[0]
	}

	r.Begin(cmd.Name)
	r.Line("%s", encodeJSON(result))
	r.End(cmd.Name)
}

func (d *Dispatcher) evaluateVariable(ctx context.Context, cmd Command, r *Reply) {
	r.Ack(cmd.Name)
	r.Begin(cmd.Name)

	value, err := d.engine.ReadVariable(ctx, cmd.Rest())
	if err != nil {
		r.Line("%s", err.Error())
	} else {
		r.Line("%s", encodeJSON(value))
	}

	r.End(cmd.Name)
}

// step wraps an engine execution command. The response header is written
// once the engine has stopped again.
func (d *Dispatcher) step(run func(context.Context) error) commandFunc {
	return func(ctx context.Context, cmd Command, r *Reply) {
		r.Ack(cmd.Name)
		r.Flush()
		err := run(ctx)
		r.Begin(cmd.Name)
		if err != nil {
			d.fail(cmd, err, r)
		}
	}
}

func (d *Dispatcher) goodbye(_ context.Context, cmd Command, r *Reply) {
	r.Line("Recebido comando '%s'. Conexão será encerrada", cmd.Name)
	r.Close = true
}

// fail logs an engine error and reports it in an error frame.
func (d *Dispatcher) fail(cmd Command, err error, r *Reply) {
	opErr := &OperationError{Command: cmd.Name, Err: err}
	d.logger.Warn("%v", opErr)
	r.Error(err.Error())
}

// encodeJSON renders v as compact JSON. HTML characters are left as is
// so Lua error locations like "<string>:1:" reach the client unchanged.
func encodeJSON(v any) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimSuffix(b.String(), "\n")
}
