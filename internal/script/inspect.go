package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/depurador/internal/debug"
	lua "github.com/yuin/gopher-lua"
)

// Frame signatures for frames without a function name.
const (
	globalSignature    = "<global>"
	mainSignature      = "<principal>"
	anonymousSignature = "<anônima>"
)

// inspect runs fn on the interpreter unless the program is executing.
func (e *Engine) inspect(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.ctx == nil {
		return ErrNotStarted
	}
	if e.session.State().Executing() {
		return ErrRunning
	}
	return e.exec.Execute(ctx, fn)
}

// ExecuteLine evaluates src in the paused frame. Expressions yield their
// values; statements yield none. Locals of the paused frame are visible and
// assignable.
func (e *Engine) ExecuteLine(ctx context.Context, src string) ([]any, error) {
	var results []any
	err := e.inspect(ctx, func(L *lua.LState) error {
		fn, err := L.LoadString("return " + src)
		if err != nil {
			if fn, err = L.LoadString(src); err != nil {
				return errors.New(errorMessage(err))
			}
		}
		if env := e.frameEnv(L); env != nil {
			L.SetFEnv(fn, env)
		}

		base := L.GetTop()
		L.Push(fn)
		if err := L.PCall(0, lua.MultRet, nil); err != nil {
			return errors.New(errorMessage(err))
		}
		n := L.GetTop() - base
		results = make([]any, 0, n)
		for i := 1; i <= n; i++ {
			results = append(results, e.bridge.ToGoValue(L.Get(base+i)))
		}
		L.Pop(n)
		return nil
	})
	return results, err
}

// ReadVariable resolves name in the paused frame, then among globals.
func (e *Engine) ReadVariable(ctx context.Context, name string) (any, error) {
	var value any
	err := e.inspect(ctx, func(L *lua.LState) error {
		if dbg, ok := e.topFrame(L); ok {
			if v, ok := lookupLocal(L, dbg, name); ok {
				value = e.bridge.ToGoValue(v)
				return nil
			}
		}
		v := L.G.Global.RawGetString(name)
		if v == lua.LNil {
			return fmt.Errorf("%w: %s", ErrUndefinedVariable, name)
		}
		value = e.bridge.ToGoValue(v)
		return nil
	})
	return value, err
}

// Variables lists the locals of the paused frame followed by the globals
// the program defined.
func (e *Engine) Variables(ctx context.Context) ([]debug.Variable, error) {
	var vars []debug.Variable
	err := e.inspect(ctx, func(L *lua.LState) error {
		seen := make(map[string]bool)
		if dbg, ok := e.topFrame(L); ok {
			for _, l := range frameLocals(L, dbg) {
				seen[l.name] = true
				vars = append(vars, e.variable(l.name, l.value))
			}
		}

		var names []string
		L.G.Global.ForEach(func(k, _ lua.LValue) {
			s, ok := k.(lua.LString)
			if !ok || e.builtins[string(s)] || seen[string(s)] {
				return
			}
			names = append(names, string(s))
		})
		sort.Strings(names)
		for _, name := range names {
			vars = append(vars, e.variable(name, L.G.Global.RawGetString(name)))
		}
		return nil
	})
	return vars, err
}

func (e *Engine) variable(name string, v lua.LValue) debug.Variable {
	return debug.Variable{
		Name:  name,
		Type:  e.bridge.TypeName(v),
		Value: e.bridge.Format(v),
	}
}

// ScopeStack returns the global frame followed by the active program frames,
// outermost first.
func (e *Engine) ScopeStack(ctx context.Context) ([]debug.Frame, error) {
	var frames []debug.Frame
	err := e.inspect(ctx, func(L *lua.LState) error {
		frames = e.scopeStack(L)
		return nil
	})
	return frames, err
}

func (e *Engine) scopeStack(L *lua.LState) []debug.Frame {
	var top []debug.Frame
	for level := 0; level < maxDepth; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			break
		}
		p, ok := e.frameProgram(L, dbg)
		if !ok {
			continue
		}
		top = append(top, e.frame(p, dbg))
		if dbg.What == "main" {
			break
		}
	}

	frames := make([]debug.Frame, 0, len(top)+1)
	frames = append(frames, debug.Frame{Signature: globalSignature})
	for i := len(top) - 1; i >= 0; i-- {
		frames = append(frames, top[i])
	}
	return frames
}

func (e *Engine) frame(p *Program, dbg *lua.Debug) debug.Frame {
	first, last := dbg.LineDefined, dbg.LastLineDefined
	sig := dbg.Name
	switch {
	case dbg.What == "main":
		first = 0
		sig = mainSignature
	case sig == "" || strings.HasPrefix(sig, "<"):
		sig = anonymousSignature
	}

	stmts := p.StatementsIn(first, last)
	current := sort.Search(len(stmts), func(i int) bool {
		return stmts[i].Line >= dbg.CurrentLine
	})
	return debug.Frame{
		Statements: stmts,
		Current:    current,
		Signature:  sig,
	}
}

// frameProgram fills dbg and returns the program it executes, if any.
func (e *Engine) frameProgram(L *lua.LState, dbg *lua.Debug) (*Program, bool) {
	if _, err := L.GetInfo("nSl", dbg, lua.LNil); err != nil {
		return nil, false
	}
	if dbg.What == "G" {
		return nil, false
	}
	p := e.programBySource(dbg.Source)
	return p, p != nil
}

// topFrame returns the innermost program frame.
func (e *Engine) topFrame(L *lua.LState) (*lua.Debug, bool) {
	for level := 0; level < maxDepth; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			return nil, false
		}
		if _, ok := e.frameProgram(L, dbg); ok {
			return dbg, true
		}
	}
	return nil, false
}

// frameEnv builds an environment that resolves names against the paused
// frame before the globals. It returns nil when no program frame is active.
func (e *Engine) frameEnv(L *lua.LState) *lua.LTable {
	dbg, ok := e.topFrame(L)
	if !ok {
		return nil
	}
	globals := L.G.Global

	mt := L.NewTable()
	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		name, ok := L.Get(2).(lua.LString)
		if ok {
			if v, found := lookupLocal(L, dbg, string(name)); found {
				L.Push(v)
				return 1
			}
		}
		L.Push(globals.RawGet(L.Get(2)))
		return 1
	}))
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		key, value := L.Get(2), L.Get(3)
		if name, ok := key.(lua.LString); ok && assignLocal(L, dbg, string(name), value) {
			return 0
		}
		globals.RawSet(key, value)
		return 0
	}))

	env := L.NewTable()
	L.SetMetatable(env, mt)
	return env
}

type local struct {
	name  string
	slot  int
	value lua.LValue
}

// frameLocals returns the active locals of a frame in declaration order.
// A redeclared name keeps its first position and its latest value.
func frameLocals(L *lua.LState, dbg *lua.Debug) []local {
	var out []local
	index := make(map[string]int)
	for n := 1; n < maxDepth; n++ {
		name, v := L.GetLocal(dbg, n)
		if name == "" {
			break
		}
		if strings.HasPrefix(name, "(") {
			continue
		}
		if i, ok := index[name]; ok {
			out[i] = local{name: name, slot: n, value: v}
			continue
		}
		index[name] = len(out)
		out = append(out, local{name: name, slot: n, value: v})
	}
	return out
}

// lookupLocal resolves name among the frame's locals, then its upvalues.
func lookupLocal(L *lua.LState, dbg *lua.Debug, name string) (lua.LValue, bool) {
	for _, l := range frameLocals(L, dbg) {
		if l.name == name {
			return l.value, true
		}
	}
	if fn, ok := frameFunction(L, dbg); ok {
		for n := 1; n <= len(fn.Upvalues); n++ {
			if upName, v := L.GetUpvalue(fn, n); upName == name {
				return v, true
			}
		}
	}
	return nil, false
}

func assignLocal(L *lua.LState, dbg *lua.Debug, name string, value lua.LValue) bool {
	for _, l := range frameLocals(L, dbg) {
		if l.name == name {
			L.SetLocal(dbg, l.slot, value)
			return true
		}
	}
	if fn, ok := frameFunction(L, dbg); ok {
		for n := 1; n <= len(fn.Upvalues); n++ {
			if upName, _ := L.GetUpvalue(fn, n); upName == name {
				L.SetUpvalue(fn, n, value)
				return true
			}
		}
	}
	return false
}

func frameFunction(L *lua.LState, dbg *lua.Debug) (*lua.LFunction, bool) {
	lv, err := L.GetInfo("f", dbg, lua.LNil)
	if err != nil {
		return nil, false
	}
	fn, ok := lv.(*lua.LFunction)
	return fn, ok && !fn.IsG
}
