// Package script runs debuggee programs on an embedded Lua interpreter and
// exposes the stepping and inspection operations the debugger protocol needs.
//
// gopher-lua has no line hook, so each program is instrumented before it is
// loaded: a call to a private step function is prepended to every line that
// begins a statement. Line numbers are preserved, which keeps breakpoints,
// error messages and stack frames aligned with the file on disk.
//
// All LState access happens on the goroutine owned by an Executor. While the
// program is paused the step function keeps serving the executor queue, so
// evaluation and variable reads run against the live, suspended frames.
package script
