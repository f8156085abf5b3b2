// Package directory holds the read-only registered-identity snapshot
// the matcher runs against, and the periodic refresh machinery that
// swaps it atomically.
package directory

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/example/facegate/internal/descriptor"
)

// Identity is one registered resident or staff member with its enrolled
// descriptors. Enrollment may be multi-sample.
type Identity struct {
	Key         string
	Descriptors []descriptor.Descriptor
}

// Snapshot is an immutable view of the identity directory. A snapshot
// is never mutated after construction; refresh replaces the whole
// snapshot.
type Snapshot struct {
	Identities []Identity
	LoadedAt   time.Time
}

// Empty reports whether no identities are enrolled.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Identities) == 0
}

// BuildSnapshot assembles a snapshot from descriptors grouped by
// identity key. Keys are sorted so snapshot iteration order is stable.
func BuildSnapshot(byIdentity map[string][]descriptor.Descriptor, loadedAt time.Time) *Snapshot {
	keys := make([]string, 0, len(byIdentity))
	for key := range byIdentity {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	identities := make([]Identity, 0, len(keys))
	for _, key := range keys {
		if len(byIdentity[key]) == 0 {
			continue
		}
		identities = append(identities, Identity{Key: key, Descriptors: byIdentity[key]})
	}
	return &Snapshot{Identities: identities, LoadedAt: loadedAt}
}

// Store publishes the current snapshot to concurrent verification
// requests. Swap is atomic; readers never observe a partial update.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a store holding an empty snapshot.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{LoadedAt: time.Now().UTC()})
	return s
}

// Current returns the latest published snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Swap publishes a new snapshot.
func (s *Store) Swap(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.current.Store(snap)
}
