package oidtree

import (
	"sort"
	"sync"

	radix "github.com/armon/go-radix"
)

// Type is the SNMP ASN.1 type tag carried alongside a value. It mirrors
// the wire type tags of pdu.Type but is kept independent so this package
// has no dependency on the codec layer.
type Type int

const (
	TypeInteger Type = iota
	TypeCounter32
	TypeCounter64
	TypeGauge32
	TypeTimeTicks
	TypeOctetString
	TypeObjectIdentifier
	TypeIPAddress
	TypeOpaque
	TypeNull
	TypeNoSuchObject
	TypeNoSuchInstance
	TypeEndOfMibView
)

// Value is a (type, value) pair stored at an OID.
type Value struct {
	Type  Type
	Value interface{}
	// Behavior names an optional dynamic-value generator key; the store
	// itself never evaluates it (see internal/behavior), it only carries
	// the tag through so a Profile loader can attach one.
	Behavior string
}

// Entry is an (OID, Value) pair, the unit bulk_walk and list_oids work in.
type Entry struct {
	OID   OID
	Value Value
}

// Tree is a read-optimized, insert-rare OID store: a radix tree for exact
// get() and a lazily rebuilt sorted index for get_next()/bulk_walk(). Reads
// dominate (>=99% of traffic against a loaded profile), so the rebuild cost
// of the sorted index is amortized across many reads between mutations.
type Tree struct {
	mu     sync.RWMutex
	radix  *radix.Tree
	sorted []OID // valid iff dirty == false
	dirty  bool
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{radix: radix.New(), dirty: false}
}

// Insert adds oid with the given value, replacing any existing entry for
// the same OID. Idempotent on an equal re-insert.
func (t *Tree) Insert(oid OID, v Value) {
	oid = Normalize(oid)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.radix.Insert(oid, v)
	t.dirty = true
}

// Get returns the value at oid, or ok=false if absent.
func (t *Tree) Get(oid OID) (Value, bool) {
	oid = Normalize(oid)
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.radix.Get(oid)
	if !ok {
		return Value{}, false
	}
	return v.(Value), true
}

// GetNext returns the smallest OID strictly greater than oid, or
// ok=false at end-of-MIB. oid need not itself be present in the tree.
func (t *Tree) GetNext(oid OID) (Entry, bool) {
	oid = Normalize(oid)
	t.ensureSorted()

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := sort.Search(len(t.sorted), func(i int) bool {
		return Less(oid, t.sorted[i])
	})
	if idx >= len(t.sorted) {
		return Entry{}, false
	}
	next := t.sorted[idx]
	v, _ := t.radix.Get(next)
	return Entry{OID: next, Value: v.(Value)}, true
}

// BulkWalk returns up to n entries strictly greater than start, in
// ascending order. It may return fewer than n at end-of-MIB.
func (t *Tree) BulkWalk(start OID, n int) []Entry {
	if n <= 0 {
		return nil
	}
	start = Normalize(start)
	t.ensureSorted()

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := sort.Search(len(t.sorted), func(i int) bool {
		return Less(start, t.sorted[i])
	})

	out := make([]Entry, 0, n)
	for i := idx; i < len(t.sorted) && len(out) < n; i++ {
		v, _ := t.radix.Get(t.sorted[i])
		out = append(out, Entry{OID: t.sorted[i], Value: v.(Value)})
	}
	return out
}

// Size returns the number of OIDs in the tree.
func (t *Tree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.radix.Len()
}

// Empty reports whether the tree has no entries.
func (t *Tree) Empty() bool {
	return t.Size() == 0
}

// ListOIDs returns all OIDs in sorted order.
func (t *Tree) ListOIDs() []OID {
	t.ensureSorted()
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]OID, len(t.sorted))
	copy(out, t.sorted)
	return out
}

// ensureSorted rebuilds the sorted index if the tree has been mutated
// since the last rebuild. Mutation is rare (profile load time); reads are
// frequent, so the common case only takes the read lock below to check
// the dirty flag's snapshot before upgrading.
func (t *Tree) ensureSorted() {
	t.mu.RLock()
	dirty := t.dirty
	t.mu.RUnlock()
	if !dirty {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return // another goroutine rebuilt it first
	}
	oids := make([]OID, 0, t.radix.Len())
	t.radix.Walk(func(k string, _ interface{}) bool {
		oids = append(oids, k)
		return false
	})
	sort.Slice(oids, func(i, j int) bool { return Less(oids[i], oids[j]) })
	t.sorted = oids
	t.dirty = false
}
