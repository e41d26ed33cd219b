package debug

// Statement locates one executable statement.
type Statement struct {
	File FileHash
	Line int
}

// Frame is one entry of the engine's scope stack.
type Frame struct {
	// Statements is the statement list of the scope.
	Statements []Statement

	// Current is the index of the executing statement.
	Current int

	// Signature labels the scope, usually the function name.
	Signature string
}

// CurrentStatement returns the executing statement. An index past the end
// refers to the last statement; a frame without statements has none.
func (f Frame) CurrentStatement() (Statement, bool) {
	if len(f.Statements) == 0 {
		return Statement{}, false
	}
	i := f.Current
	if i >= len(f.Statements) {
		i = len(f.Statements) - 1
	}
	if i < 0 {
		i = 0
	}
	return f.Statements[i], true
}

// Visible returns the frames a client sees, most recent first. Frame 0 is the
// global scope and is never included.
func Visible(stack []Frame) []Frame {
	if len(stack) <= 1 {
		return nil
	}
	result := make([]Frame, 0, len(stack)-1)
	for i := len(stack) - 1; i > 0; i-- {
		result = append(result, stack[i])
	}
	return result
}
