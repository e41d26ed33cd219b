package script

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/depurador/internal/debug"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

// stepFunc is the global the instrumented source calls before each line.
const stepFunc = "__depurador_passo"

// Program is a parsed and instrumented source file.
type Program struct {
	// Index identifies the program in step calls.
	Index int
	// Path is the absolute path, also used as the chunk name.
	Path string
	Hash debug.FileHash
	// Lines are the original source lines without terminators.
	Lines []string
	// Source is the instrumented chunk.
	Source string
	// Statements are the instrumented line numbers in ascending order.
	Statements []int

	// scopes maps a function's defined lines to the statement lines of
	// its own body. The main chunk is mainScope.
	scopes map[scope][]int
}

// scope identifies a function body by the lines the compiler records as
// LineDefined and LastLineDefined.
type scope struct {
	first, last int
}

var mainScope = scope{}

// OpenFile returns the open file table entry for the program.
func (p *Program) OpenFile() debug.OpenFile {
	return debug.OpenFile{Hash: p.Hash, Path: p.Path, Lines: p.Lines}
}

// StatementsIn returns the statements of the function defined on lines
// [first, last], excluding those of nested functions. A first line of zero
// selects the main chunk.
func (p *Program) StatementsIn(first, last int) []debug.Statement {
	key := scope{first: first, last: last}
	if first == 0 {
		key = mainScope
	}
	lines := p.scopes[key]
	out := make([]debug.Statement, 0, len(lines))
	for _, line := range lines {
		out = append(out, debug.Statement{File: p.Hash, Line: line})
	}
	return out
}

// Instrument parses src and inserts a step call at the start of every line
// that begins a statement.
func Instrument(index int, path string, src []byte) (*Program, error) {
	chunk, err := parse.Parse(bytes.NewReader(src), path)
	if err != nil {
		return nil, &SyntaxError{Path: path, Err: err}
	}

	raw := strings.Split(string(src), "\n")

	c := &collector{
		leads: make(map[int][]string),
		lines: make(map[scope][]int),
	}
	c.block(chunk)

	var stmts []int
	for line, leads := range c.leads {
		if line < 1 || line > len(raw) {
			continue
		}
		if startsStatement(raw[line-1], leads) {
			stmts = append(stmts, line)
		}
	}
	sort.Ints(stmts)

	instrumented := make(map[int]bool, len(stmts))
	for _, line := range stmts {
		instrumented[line] = true
	}
	scopes := make(map[scope][]int, len(c.lines))
	for key, lines := range c.lines {
		sort.Ints(lines)
		var own []int
		for _, line := range lines {
			if instrumented[line] && (len(own) == 0 || own[len(own)-1] != line) {
				own = append(own, line)
			}
		}
		scopes[key] = own
	}

	out := make([]string, len(raw))
	copy(out, raw)
	for _, line := range stmts {
		text := out[line-1]
		indent := len(text) - len(strings.TrimLeft(text, " \t"))
		out[line-1] = fmt.Sprintf("%s%s(%d,%d); %s", text[:indent], stepFunc, index, line, text[indent:])
	}

	lines := raw
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	display := make([]string, len(lines))
	for i, l := range lines {
		display[i] = strings.TrimSuffix(l, "\r")
	}

	return &Program{
		Index:      index,
		Path:       path,
		Hash:       debug.HashPath(path),
		Lines:      display,
		Source:     strings.Join(out, "\n"),
		Statements: stmts,
		scopes:     scopes,
	}, nil
}

// startsStatement reports whether the first token of text is the first token
// of one of the statements beginning on that line. This keeps step calls out
// of continuation lines such as multi-line argument lists.
func startsStatement(text string, leads []string) bool {
	tok := leadingToken(text)
	if tok == "" {
		return false
	}
	for _, lead := range leads {
		if lead == tok {
			return true
		}
		// Parenthesized prefixes are not kept in the tree.
		if tok == "(" && lead != "" && isName(lead) && !keywords[lead] {
			return true
		}
	}
	return false
}

func leadingToken(text string) string {
	s := strings.TrimLeft(text, " \t")
	if s == "" {
		return ""
	}
	if s[0] == '(' {
		return "("
	}
	end := 0
	for end < len(s) && isNameByte(s[end], end == 0) {
		end++
	}
	return s[:end]
}

func isName(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i], i == 0) {
			return false
		}
	}
	return s != ""
}

func isNameByte(b byte, first bool) bool {
	switch {
	case b == '_', b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return !first
	}
	return false
}

var keywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "goto": true,
	"if": true, "in": true, "local": true, "nil": true, "not": true,
	"or": true, "repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

// collector records, per line, the leading token of each statement that
// starts there, and the statement lines of each function body.
type collector struct {
	leads map[int][]string
	lines map[scope][]int
	cur   scope
}

func (c *collector) add(line int, lead string) {
	c.leads[line] = append(c.leads[line], lead)
	c.lines[c.cur] = append(c.lines[c.cur], line)
}

// function collects a function body under its own scope.
func (c *collector) function(fn *ast.FunctionExpr) {
	last := fn.LastLine()
	if last == 0 {
		last = fn.Line()
	}
	outer := c.cur
	c.cur = scope{first: fn.Line(), last: last}
	if _, ok := c.lines[c.cur]; !ok {
		c.lines[c.cur] = nil
	}
	c.block(fn.Stmts)
	c.cur = outer
}

func (c *collector) block(stmts []ast.Stmt) {
	for _, s := range stmts {
		c.stmt(s)
	}
}

func (c *collector) stmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.AssignStmt:
		if len(st.Lhs) > 0 {
			c.add(st.Line(), rootName(st.Lhs[0]))
		}
		c.exprs(st.Lhs)
		c.exprs(st.Rhs)
	case *ast.LocalAssignStmt:
		c.add(st.Line(), "local")
		c.exprs(st.Exprs)
	case *ast.FuncCallStmt:
		c.add(st.Line(), rootName(st.Expr))
		c.expr(st.Expr)
	case *ast.DoBlockStmt:
		c.add(st.Line(), "do")
		c.block(st.Stmts)
	case *ast.WhileStmt:
		c.add(st.Line(), "while")
		c.expr(st.Condition)
		c.block(st.Stmts)
	case *ast.RepeatStmt:
		c.add(st.Line(), "repeat")
		c.block(st.Stmts)
		c.expr(st.Condition)
	case *ast.IfStmt:
		// elseif branches are nested IfStmts whose line starts with elseif,
		// which never matches.
		c.add(st.Line(), "if")
		c.expr(st.Condition)
		c.block(st.Then)
		c.block(st.Else)
	case *ast.NumberForStmt:
		c.add(st.Line(), "for")
		c.expr(st.Init)
		c.expr(st.Limit)
		c.expr(st.Step)
		c.block(st.Stmts)
	case *ast.GenericForStmt:
		c.add(st.Line(), "for")
		c.exprs(st.Exprs)
		c.block(st.Stmts)
	case *ast.FuncDefStmt:
		c.add(st.Line(), "function")
		if st.Func != nil {
			c.function(st.Func)
		}
	case *ast.ReturnStmt:
		c.add(st.Line(), "return")
		c.exprs(st.Exprs)
	case *ast.BreakStmt:
		c.add(st.Line(), "break")
	}
}

func (c *collector) exprs(es []ast.Expr) {
	for _, e := range es {
		c.expr(e)
	}
}

// expr descends into expressions looking for function bodies.
func (c *collector) expr(e ast.Expr) {
	switch ex := e.(type) {
	case *ast.FunctionExpr:
		c.function(ex)
	case *ast.FuncCallExpr:
		c.expr(ex.Func)
		c.expr(ex.Receiver)
		c.exprs(ex.Args)
	case *ast.AttrGetExpr:
		c.expr(ex.Object)
		c.expr(ex.Key)
	case *ast.TableExpr:
		for _, f := range ex.Fields {
			c.expr(f.Key)
			c.expr(f.Value)
		}
	case *ast.LogicalOpExpr:
		c.expr(ex.Lhs)
		c.expr(ex.Rhs)
	case *ast.RelationalOpExpr:
		c.expr(ex.Lhs)
		c.expr(ex.Rhs)
	case *ast.StringConcatOpExpr:
		c.expr(ex.Lhs)
		c.expr(ex.Rhs)
	case *ast.ArithmeticOpExpr:
		c.expr(ex.Lhs)
		c.expr(ex.Rhs)
	case *ast.UnaryMinusOpExpr:
		c.expr(ex.Expr)
	case *ast.UnaryNotOpExpr:
		c.expr(ex.Expr)
	case *ast.UnaryLenOpExpr:
		c.expr(ex.Expr)
	}
}

// rootName returns the identifier a prefix expression starts with.
func rootName(e ast.Expr) string {
	switch ex := e.(type) {
	case *ast.IdentExpr:
		return ex.Value
	case *ast.AttrGetExpr:
		return rootName(ex.Object)
	case *ast.FuncCallExpr:
		if ex.Receiver != nil {
			return rootName(ex.Receiver)
		}
		return rootName(ex.Func)
	}
	return ""
}
