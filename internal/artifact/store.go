// Package artifact provides the run-scoped artifact store: named, versioned,
// immutable blobs that jobs pass to their dependents.
package artifact

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a ref or name does not resolve to a stored
// artifact.
var ErrNotFound = errors.New("artifact not found")

// Ref identifies one immutable version of a named artifact.
type Ref struct {
	// Name is the artifact's name.
	Name string
	// Version is the 1-based version number within this run.
	Version int
}

// String renders the ref in the name@vN form used in logs and results.
func (r Ref) String() string {
	return fmt.Sprintf("%s@v%d", r.Name, r.Version)
}

// version is one stored artifact payload.
type version struct {
	data      []byte
	producer  string
	createdAt time.Time
}

// Store is the in-memory artifact store for a single run. Writes append new
// versions; existing versions are never modified, so a ref fetched at any
// point returns the same bytes for the rest of the run. All methods are safe
// for concurrent use.
type Store struct {
	mu       sync.RWMutex
	versions map[string][]version
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{versions: make(map[string][]version)}
}

// Put stores data under the given name and returns the ref of the new
// version. Writing an existing name creates the next version; concurrent
// writers are serialized and each gets a distinct version. The data is
// copied, so the caller may reuse its buffer.
func (s *Store) Put(name string, data []byte, producer string) Ref {
	owned := make([]byte, len(data))
	copy(owned, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[name] = append(s.versions[name], version{
		data:      owned,
		producer:  producer,
		createdAt: time.Now(),
	})
	return Ref{Name: name, Version: len(s.versions[name])}
}

// Get returns the bytes of the exact version the ref names. The returned
// slice is a copy; mutating it cannot corrupt the store.
func (s *Store) Get(ref Ref) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs, ok := s.versions[ref.Name]
	if !ok || ref.Version < 1 || ref.Version > len(vs) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	data := vs[ref.Version-1].data
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Latest returns the ref of the newest version of the named artifact.
func (s *Store) Latest(name string) (Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs, ok := s.versions[name]
	if !ok {
		return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return Ref{Name: name, Version: len(vs)}, nil
}

// Producer returns the id of the job that stored the given version.
func (s *Store) Producer(ref Ref) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs, ok := s.versions[ref.Name]
	if !ok || ref.Version < 1 || ref.Version > len(vs) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return vs[ref.Version-1].producer, nil
}

// Names returns the sorted names of all stored artifacts.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.versions))
	for name := range s.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refs returns the refs of every stored version, ordered by name and
// version. The filesystem sink iterates this to flush a run's artifacts.
func (s *Store) Refs() []Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.versions))
	for name := range s.versions {
		names = append(names, name)
	}
	sort.Strings(names)

	var refs []Ref
	for _, name := range names {
		for v := 1; v <= len(s.versions[name]); v++ {
			refs = append(refs, Ref{Name: name, Version: v})
		}
	}
	return refs
}
