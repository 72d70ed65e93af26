// Package profiles implements the process-wide, read-optimized registry of
// device_type -> Profile that every device of the same type shares, so N
// devices of one type cost one tree's memory, not N (spec.md §3, §4.3,
// §8.1 invariant 10). Grounded in the teacher's internal/store.DatasetStore
// multi-path registry, generalized from "dataset file path" keys to
// first-class device-type names.
package profiles

import (
	"fmt"
	"sync"

	"github.com/devicesim/snmpsim/internal/oidtree"
)

// Profile is an immutable-after-load device-type MIB tree plus the
// behaviors bound to its dynamic OIDs.
type Profile struct {
	DeviceType string
	Tree       *oidtree.Tree
	// Behaviors maps an OID to a behavior name (spec.md §3). It is stored
	// with the profile only; device creation does not read it, so no
	// behavior is attached to a device from it.
	Behaviors map[string]string
}

// ErrDeviceTypeNotFound is returned when no profile has been loaded for a
// requested device_type, per spec.md §4.3's {error, device_type_not_found}.
var ErrDeviceTypeNotFound = fmt.Errorf("profiles: device type not found")

// Store is the shared registry. Writes (Load) happen at boot; reads
// (GetOIDValue/GetNextOID/GetAllOIDs) happen continuously from many
// concurrent device actors, so it is guarded by a plain RWMutex — readers
// never block each other, writers are rare enough that a reader-preferred
// policy isn't worth the complexity (spec.md §5).
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// New returns an empty profile store.
func New() *Store {
	return &Store{profiles: make(map[string]*Profile)}
}

// Load registers (or replaces) the profile for deviceType.
func (s *Store) Load(deviceType string, tree *oidtree.Tree, behaviors map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[deviceType] = &Profile{DeviceType: deviceType, Tree: tree, Behaviors: behaviors}
}

// Get returns the profile for deviceType, or ok=false if none is loaded.
func (s *Store) Get(deviceType string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[deviceType]
	return p, ok
}

// GetOIDValue resolves a single OID against a device type's shared tree.
func (s *Store) GetOIDValue(deviceType, oid string) (oidtree.Value, error) {
	p, ok := s.Get(deviceType)
	if !ok {
		return oidtree.Value{}, ErrDeviceTypeNotFound
	}
	v, ok := p.Tree.Get(oid)
	if !ok {
		return oidtree.Value{}, errNotFound
	}
	return v, nil
}

// GetNextOID returns the successor OID (and its value) for deviceType.
func (s *Store) GetNextOID(deviceType, oid string) (oidtree.Entry, error) {
	p, ok := s.Get(deviceType)
	if !ok {
		return oidtree.Entry{}, ErrDeviceTypeNotFound
	}
	e, ok := p.Tree.GetNext(oid)
	if !ok {
		return oidtree.Entry{}, errEndOfMib
	}
	return e, nil
}

// BulkWalk returns up to n successors for deviceType.
func (s *Store) BulkWalk(deviceType, start string, n int) ([]oidtree.Entry, error) {
	p, ok := s.Get(deviceType)
	if !ok {
		return nil, ErrDeviceTypeNotFound
	}
	return p.Tree.BulkWalk(start, n), nil
}

// GetAllOIDs returns the sorted OID list for deviceType.
func (s *Store) GetAllOIDs(deviceType string) ([]string, error) {
	p, ok := s.Get(deviceType)
	if !ok {
		return nil, ErrDeviceTypeNotFound
	}
	return p.Tree.ListOIDs(), nil
}

var (
	errNotFound = fmt.Errorf("profiles: oid not found")
	errEndOfMib = fmt.Errorf("profiles: end of mib")
)

// IsNotFound reports whether err denotes an absent OID (as opposed to an
// unknown device type).
func IsNotFound(err error) bool { return err == errNotFound }

// IsEndOfMib reports whether err denotes end-of-MIB on GetNextOID.
func IsEndOfMib(err error) bool { return err == errEndOfMib }
