package profiles

import (
	"fmt"
	"os"

	"github.com/devicesim/snmpsim/internal/oidtree"
	"github.com/devicesim/snmpsim/internal/walkparser"
)

// LoadFromFile reads a walk file and registers its tree as deviceType's
// shared profile. It returns the parser's aggregate report so the caller
// can log how many lines were skipped (spec.md §7).
func (s *Store) LoadFromFile(deviceType, path string) (walkparser.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return walkparser.Report{}, fmt.Errorf("open walk file %q: %w", path, err)
	}
	defer f.Close()

	tree := oidtree.New()
	report, err := walkparser.Parse(f, tree)
	if err != nil {
		return report, fmt.Errorf("parse walk file %q: %w", path, err)
	}

	s.Load(deviceType, tree, nil)
	return report, nil
}

// LoadManual builds a Profile for deviceType from a programmatic device
// spec (spec.md §6.3): a mapping from OID string to an explicit (type,
// value) pair. No type is inferred; each entry's Type is used as given.
// The Profile is returned, not registered in any Store.
func LoadManual(deviceType string, entries map[string]oidtree.Value) *Profile {
	tree := oidtree.New()
	for oid, v := range entries {
		tree.Insert(oid, v)
	}
	return &Profile{DeviceType: deviceType, Tree: tree}
}
