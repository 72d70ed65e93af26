// Package oidtree implements the radix-indexed OID tree shared by devices
// of the same type: exact lookup, lexicographic get_next and bulk_walk.
package oidtree

import (
	"strconv"
	"strings"
)

// OID is the canonical dotted-decimal form, e.g. "1.3.6.1.2.1.1.1.0".
type OID = string

// Compare orders two OIDs component-wise as non-negative integers. A
// shorter OID that is a prefix of a longer one sorts first, per the
// standard SNMP lexicographic rule.
func Compare(a, b OID) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")

	n := len(pa)
	if len(pb) < n {
		n = len(pb)
	}

	for i := 0; i < n; i++ {
		na, erra := strconv.ParseUint(pa[i], 10, 64)
		nb, errb := strconv.ParseUint(pb[i], 10, 64)
		if erra != nil || errb != nil {
			// Not purely numeric (shouldn't happen for valid OIDs); fall
			// back to lexical string comparison of this component.
			if pa[i] != pb[i] {
				if pa[i] < pb[i] {
					return -1
				}
				return 1
			}
			continue
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func Less(a, b OID) bool {
	return Compare(a, b) < 0
}

// Normalize strips a leading dot, the conventional way walk files and wire
// requests spell an absolute OID.
func Normalize(oid string) string {
	return strings.TrimPrefix(oid, ".")
}
