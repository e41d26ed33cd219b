package script

import (
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// State wraps a gopher-lua LState configured for running debuggee programs.
//
// gopher-lua's LState is not goroutine-safe. After construction every
// operation on L must go through an Executor.
type State struct {
	L *lua.LState

	mu     sync.Mutex
	closed bool

	systemLibraries bool
	print           func(string)
}

// StateOption configures a State.
type StateOption func(*State)

// WithOSLibraries opens the io and os libraries.
func WithOSLibraries(enabled bool) StateOption {
	return func(s *State) {
		s.systemLibraries = enabled
	}
}

// WithPrint routes the Lua print function to fn.
func WithPrint(fn func(string)) StateOption {
	return func(s *State) {
		s.print = fn
	}
}

// NewState creates a Lua state with the program libraries installed.
func NewState(opts ...StateOption) (*State, error) {
	state := &State{}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	state.L = L

	openLibraries(L, state.systemLibraries)
	if state.print != nil {
		L.SetGlobal("print", L.NewFunction(state.luaPrint))
	}

	return state, nil
}

// openLibraries opens the standard libraries a program may use.
func openLibraries(L *lua.LState, system bool) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	lua.OpenCoroutine(L)

	if system {
		lua.OpenIo(L)
		lua.OpenOs(L)
	}

	// Loading other chunks would bypass instrumentation.
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
}

// luaPrint joins its arguments with tabs, like the builtin print.
func (s *State) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	s.print(strings.Join(parts, "\t"))
	return 0
}

// Close releases the Lua state.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	s.closed = true
	s.L.Close()
	return nil
}

// IsClosed reports whether Close has been called.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
