// Package debug holds the debugger's shared state: file identity, the
// breakpoint registry, the stepping state machine and the value types used to
// describe stack frames and variables.
//
// # File identity
//
// Files are identified by a FileHash computed over the lowercased absolute
// path, so lookups never depend on how a client spelled the path:
//
//	h := debug.HashPath("/src/Main.lua") // same as HashPath("/src/main.lua")
//
// # Session states
//
// A Session moves through the following states:
//
//   - Idle: no program has been launched
//   - Running: executing until the next breakpoint
//   - SteppingIn, SteppingOver, SteppingOut: executing a single step
//   - Paused: stopped after a step
//   - PausedAtBreakpoint: stopped on a registered breakpoint
//   - Terminated: the program finished or failed
//
// Stepping commands are only accepted while paused. A second client issuing a
// step while another step is in flight gets ErrBusy instead of racing.
package debug
