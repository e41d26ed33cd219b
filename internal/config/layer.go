package config

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Source indicates where a configuration layer came from.
type Source uint8

const (
	// SourceBuiltin represents built-in default configuration.
	SourceBuiltin Source = iota
	// SourceFile represents the TOML or YAML config file.
	SourceFile
	// SourceEnv represents DEPURADOR_* environment variables.
	SourceEnv
	// SourceArgs represents command-line flags.
	SourceArgs
)

// String returns a human-readable name for the source.
func (s Source) String() string {
	switch s {
	case SourceBuiltin:
		return "builtin"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "environment"
	case SourceArgs:
		return "arguments"
	default:
		return "unknown"
	}
}

// Priority returns the merge priority for the source.
// Higher values override lower values.
func (s Source) Priority() int {
	switch s {
	case SourceFile:
		return 100
	case SourceEnv:
		return 500
	case SourceArgs:
		return 600
	default:
		return 0
	}
}

// Layer represents a single configuration layer.
type Layer struct {
	// Source indicates where this layer was loaded from.
	Source Source

	// Path is the file path (if loaded from file).
	Path string

	// Data holds the configuration values as a nested map.
	Data map[string]any

	// ModTime is when the layer was last replaced.
	ModTime time.Time
}

// layerSet keeps layers sorted by priority and caches their merge.
type layerSet struct {
	mu     sync.Mutex
	layers []*Layer
	merged map[string]any
	dirty  bool
}

func newLayerSet() *layerSet {
	return &layerSet{dirty: true}
}

// put adds the layer, replacing any layer with the same source.
func (s *layerSet) put(l *Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ModTime.IsZero() {
		l.ModTime = time.Now()
	}
	for i, existing := range s.layers {
		if existing.Source == l.Source {
			s.layers[i] = l
			s.dirty = true
			return
		}
	}
	s.layers = append(s.layers, l)
	sort.SliceStable(s.layers, func(i, j int) bool {
		return s.layers[i].Source.Priority() < s.layers[j].Source.Priority()
	})
	s.dirty = true
}

// remove drops the layer for source. Returns true if one was present.
func (s *layerSet) remove(source Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.layers {
		if l.Source == source {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			s.dirty = true
			return true
		}
	}
	return false
}

// get returns the layer for source, or nil.
func (s *layerSet) get(source Source) *Layer {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.layers {
		if l.Source == source {
			return l
		}
	}
	return nil
}

// sources lists the loaded layer sources, lowest priority first.
func (s *layerSet) sources() []Source {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Source, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.Source
	}
	return out
}

// merge combines all layers. The result is a copy the caller may keep.
func (s *layerSet) merge() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty && s.merged != nil {
		return cloneMap(s.merged)
	}

	result := make(map[string]any)
	for _, l := range s.layers {
		result = deepMerge(result, l.Data)
	}
	s.merged = result
	s.dirty = false
	return cloneMap(result)
}

// deepMerge recursively merges src into dst.
// Maps are merged recursively; other values in src replace those in dst.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = deepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = cloneValue(srcVal)
	}
	return dst
}

func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

// splitPath splits a dot-separated path, rejecting empty segments.
func splitPath(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}
	return parts, true
}

// getPath retrieves a value from a nested map using a dot-separated path.
func getPath(m map[string]any, path string) (any, bool) {
	parts, ok := splitPath(path)
	if !ok {
		return nil, false
	}

	current := any(m)
	for _, part := range parts {
		cm, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = cm[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setPath sets a value in a nested map, creating intermediate maps.
func setPath(m map[string]any, path string, value any) error {
	parts, ok := splitPath(path)
	if !ok {
		return ErrInvalidPath
	}

	current := m
	for _, part := range parts[:len(parts)-1] {
		next, exists := current[part]
		if !exists {
			next = make(map[string]any)
			current[part] = next
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			return ErrInvalidPath
		}
		current = nextMap
	}
	current[parts[len(parts)-1]] = value
	return nil
}

// flatten turns a nested map into dot-separated keys.
func flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if nested, ok := v.(map[string]any); ok {
				walk(key, nested)
				continue
			}
			out[key] = v
		}
	}
	walk("", m)
	return out
}
