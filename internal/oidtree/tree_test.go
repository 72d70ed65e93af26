package oidtree

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetNextNumericOrdering(t *testing.T) {
	tr := New()
	tr.Insert("1.3.6.1.2.1.1.2.0", Value{Type: TypeInteger, Value: 2})
	tr.Insert("1.3.6.1.2.1.1.10.0", Value{Type: TypeInteger, Value: 10})
	tr.Insert("1.3.6.1.2.1.1.20.0", Value{Type: TypeInteger, Value: 20})

	next, ok := tr.GetNext("1.3.6.1.2.1.1.2.0")
	require.True(t, ok)
	require.Equal(t, "1.3.6.1.2.1.1.10.0", next.OID)
}

func TestGetNextEndOfMib(t *testing.T) {
	tr := New()
	tr.Insert("1.3.6.1.2.1.1.1.0", Value{Type: TypeOctetString, Value: "x"})

	_, ok := tr.GetNext("1.3.6.1.2.1.1.1.0")
	require.False(t, ok, "expected end-of-MIB past the last OID")
}

func TestGetNextMonotonic(t *testing.T) {
	tr := New()
	oids := []string{
		"1.3.6.1.2.1.2.2.1.1.1", "1.3.6.1.2.1.2.2.1.1.2", "1.3.6.1.2.1.2.2.1.1.10",
	}
	for _, o := range oids {
		tr.Insert(o, Value{Type: TypeInteger, Value: 1})
	}

	cur := ""
	seen := map[string]bool{}
	for i := 0; i < len(oids); i++ {
		entry, ok := tr.GetNext(cur)
		require.True(t, ok)
		require.False(t, seen[entry.OID], "revisited %s", entry.OID)
		seen[entry.OID] = true
		require.True(t, Less(cur, entry.OID))
		cur = entry.OID
	}
	_, ok := tr.GetNext(cur)
	require.False(t, ok)
}

func TestInsertReplacesDuplicate(t *testing.T) {
	tr := New()
	tr.Insert("1.3.6.1.2.1.1.1.0", Value{Type: TypeOctetString, Value: "a"})
	tr.Insert("1.3.6.1.2.1.1.1.0", Value{Type: TypeOctetString, Value: "b"})

	require.Equal(t, 1, tr.Size())
	v, ok := tr.Get("1.3.6.1.2.1.1.1.0")
	require.True(t, ok)
	require.Equal(t, "b", v.Value)
}

func TestBulkWalkBound(t *testing.T) {
	tr := New()
	for i := 1; i <= 100; i++ {
		tr.Insert(oidAt(i), Value{Type: TypeCounter32, Value: uint32(i)})
	}

	entries := tr.BulkWalk("1.3.6.1.2.1.2.2.1.1", 50)
	require.Len(t, entries, 50)
	for i := 1; i < len(entries); i++ {
		require.True(t, Less(entries[i-1].OID, entries[i].OID))
	}

	tail := tr.BulkWalk(entries[len(entries)-1].OID, 1000)
	require.Len(t, tail, 50)
}

func TestCompareShorterPrefixIsLess(t *testing.T) {
	require.True(t, Less("1.3.6.1.2.1.1", "1.3.6.1.2.1.1.1"))
	require.True(t, Less("1.3.6.1.2.1.1.9", "1.3.6.1.2.1.1.10"))
}

func oidAt(i int) string {
	return "1.3.6.1.2.1.2.2.1.1." + strconv.Itoa(i)
}
