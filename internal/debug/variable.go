package debug

// Variable is a named value visible in the current scope.
type Variable struct {
	// Name is the variable name.
	Name string

	// Type is the interpreter's type name for the value.
	Type string

	// Value is the value rendered as text.
	Value string
}
