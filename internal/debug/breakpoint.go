package debug

import (
	"fmt"
	"sync"
)

// Breakpoint is a registered (file, line) pair where execution pauses.
type Breakpoint struct {
	// File is the identity of the source file.
	File FileHash

	// Line is the 1-based line number.
	Line int
}

// String returns a compact representation for logs.
func (b Breakpoint) String() string {
	return fmt.Sprintf("%s:%d", b.File, b.Line)
}

// Registry is the ordered set of breakpoints of a debug session.
// Entries are unique on (File, Line) and kept in insertion order.
type Registry struct {
	mu sync.RWMutex

	ordered []Breakpoint
	index   map[Breakpoint]struct{}
}

// NewRegistry creates an empty breakpoint registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[Breakpoint]struct{}),
	}
}

// Validate checks that path is open in files and that line exists in it.
// It does not modify the registry.
func (r *Registry) Validate(files FileLookup, path string, line int) (Breakpoint, error) {
	hash := HashPath(path)
	file, ok := files.OpenFile(hash)
	if !ok {
		return Breakpoint{}, &ValidationError{Path: path, Line: line, Err: ErrFileNotOpen}
	}

	if line < 1 || line > file.LineCount() {
		return Breakpoint{}, &ValidationError{Path: path, Line: line, Err: ErrLineOutOfRange}
	}

	return Breakpoint{File: hash, Line: line}, nil
}

// Add registers bp. It returns false if an identical breakpoint already exists.
func (r *Registry) Add(bp Breakpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[bp]; exists {
		return false
	}

	r.index[bp] = struct{}{}
	r.ordered = append(r.ordered, bp)
	return true
}

// Remove deletes the breakpoint equal to bp on both file and line.
// It returns false if no such breakpoint exists.
func (r *Registry) Remove(bp Breakpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[bp]; !exists {
		return false
	}

	delete(r.index, bp)
	for i, existing := range r.ordered {
		if existing == bp {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether a breakpoint is registered at file:line.
func (r *Registry) Has(file FileHash, line int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.index[Breakpoint{File: file, Line: line}]
	return ok
}

// List returns all breakpoints in insertion order.
func (r *Registry) List() []Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Breakpoint, len(r.ordered))
	copy(result, r.ordered)
	return result
}

// Len returns the number of registered breakpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// Clear removes all breakpoints.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ordered = nil
	r.index = make(map[Breakpoint]struct{})
}
