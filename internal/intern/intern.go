// Package intern implements the label and relationship-type interners:
// dense string↔u32 mappings that are snapshot-publishable, per spec §4.4.
// Both labels and relationship types use the same structure; callers
// instantiate one Interner per concern.
package intern

import (
	"sync"
)

// Interner maps names to dense, monotonically assigned u32 ids. It is
// serialized by its own mutex, per spec §5 ("Label and rel-type interners
// are serialized by their own mutexes").
type Interner struct {
	mu     sync.Mutex
	byName map[string]uint32
	names  []string // index == id
}

// New returns an empty interner.
func New() *Interner {
	return &Interner{
		byName: make(map[string]uint32),
	}
}

// Intern returns the id for name, creating a new dense id if name is
// unseen. The returned bool is true when a new id was created — callers
// in the write path use this to know whether a create-label/create-rel-type
// WAL record is required (spec §4.2).
func (in *Interner) Intern(name string) (uint32, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.byName[name]; ok {
		return id, false
	}
	id := uint32(len(in.names))
	in.names = append(in.names, name)
	in.byName[name] = id
	return id, true
}

// Replay installs a (name, id) pair recovered from a WAL create-label or
// create-rel-type record. The id is authoritative from the log, not
// reassigned — replay must reproduce the exact same ids the original
// commit assigned (spec §4.2 replay, invariant I4).
func (in *Interner) Replay(name string, id uint32) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for uint32(len(in.names)) <= id {
		in.names = append(in.names, "")
	}
	in.names[id] = name
	in.byName[name] = id
}

// ID returns the id for name, if interned.
func (in *Interner) ID(name string) (uint32, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	id, ok := in.byName[name]
	return id, ok
}

// Name returns the name for id, if valid.
func (in *Interner) Name(id uint32) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if int(id) >= len(in.names) {
		return "", false
	}
	return in.names[id], true
}

// Snapshot is an immutable, shared-ownership clone of the interner's
// name table, safe to read without the interner's mutex after cloning
// (spec §4.7: "a label-interner snapshot").
type Snapshot struct {
	names  []string
	byName map[string]uint32
}

// Snapshot clones the current name table. The clone is cheap (one slice
// copy, one map copy) and shares no further mutable state with the live
// interner.
func (in *Interner) Snapshot() *Snapshot {
	in.mu.Lock()
	defer in.mu.Unlock()
	names := make([]string, len(in.names))
	copy(names, in.names)
	byName := make(map[string]uint32, len(in.byName))
	for k, v := range in.byName {
		byName[k] = v
	}
	return &Snapshot{names: names, byName: byName}
}

// Len returns how many distinct names are interned in this snapshot.
func (s *Snapshot) Len() uint32 { return uint32(len(s.names)) }

// ID resolves a name to an id within this snapshot.
func (s *Snapshot) ID(name string) (uint32, bool) {
	id, ok := s.byName[name]
	return id, ok
}

// Name resolves an id to a name within this snapshot.
func (s *Snapshot) Name(id uint32) (string, bool) {
	if int(id) >= len(s.names) {
		return "", false
	}
	return s.names[id], true
}
