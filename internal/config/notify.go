package config

import (
	"reflect"
	"sort"
	"strings"
	"sync"
)

// ChangeType represents the type of configuration change.
type ChangeType int

const (
	// ChangeSet indicates a value was set or updated.
	ChangeSet ChangeType = iota
	// ChangeDelete indicates a value no longer exists in any layer.
	ChangeDelete
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change represents a change to one effective setting.
type Change struct {
	// Path is the dot-separated path to the changed setting.
	Path string
	Type ChangeType
	// OldValue and NewValue are merged values, before and after.
	OldValue any
	NewValue any
	// Source names the layer whose update caused the change.
	Source Source
}

// Observer is called when configuration changes occur.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	notifier *notifier
}

// Unsubscribe removes this subscription.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

type subscriber struct {
	path     string
	observer Observer
}

// notifier delivers changes synchronously to path subscribers.
// An empty path subscribes to everything; "server" receives "server.port".
type notifier struct {
	mu     sync.RWMutex
	subs   map[uint64]subscriber
	nextID uint64
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[uint64]subscriber)}
}

func (n *notifier) subscribe(path string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.subs[id] = subscriber{path: path, observer: observer}
	return &Subscription{id: id, notifier: n}
}

func (n *notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, id)
}

// deliver calls matching observers outside the lock.
func (n *notifier) deliver(changes []Change) {
	for _, change := range changes {
		n.mu.RLock()
		var observers []Observer
		for _, s := range n.subs {
			if matchesPath(s.path, change.Path) {
				observers = append(observers, s.observer)
			}
		}
		n.mu.RUnlock()

		for _, obs := range observers {
			obs(change)
		}
	}
}

func matchesPath(sub, path string) bool {
	if sub == "" || sub == path {
		return true
	}
	return strings.HasPrefix(path, sub+".")
}

// diff lists the changes between two merged configurations, sorted by path.
func diff(old, updated map[string]any, source Source) []Change {
	oldFlat := flatten(old)
	newFlat := flatten(updated)

	var changes []Change
	for path, nv := range newFlat {
		ov, exists := oldFlat[path]
		if exists && reflect.DeepEqual(ov, nv) {
			continue
		}
		changes = append(changes, Change{Path: path, Type: ChangeSet, OldValue: ov, NewValue: nv, Source: source})
	}
	for path, ov := range oldFlat {
		if _, exists := newFlat[path]; !exists {
			changes = append(changes, Change{Path: path, Type: ChangeDelete, OldValue: ov, Source: source})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}
