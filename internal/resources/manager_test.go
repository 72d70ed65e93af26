package resources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	last time.Time
	stopped bool
}

func (f *fakeDevice) LastActivity() time.Time { return f.last }
func (f *fakeDevice) Stop()                   { f.stopped = true }

// S7 — Resource cap reached.
func TestScenarioS7_ResourceCapReached(t *testing.T) {
	m := New(Config{MaxDevices: 2, MaxMemoryMB: 1 << 20, CleanupInterval: time.Hour, IdleThreshold: time.Hour}, nil)
	defer m.Stop()

	require.True(t, m.CanAllocate())
	m.Register("dev-1", "router", &fakeDevice{last: time.Now()})

	require.True(t, m.CanAllocate())
	m.Register("dev-2", "router", &fakeDevice{last: time.Now()})

	require.False(t, m.CanAllocate())

	stats := m.Stats()
	require.Equal(t, 2, stats.ActiveDevices)
}

func TestRegisterIsIdempotent(t *testing.T) {
	m := New(DefaultConfig(), nil)
	defer m.Stop()

	d1 := &fakeDevice{last: time.Now()}
	m.Register("dev-1", "router", d1)
	m.Register("dev-1", "router", &fakeDevice{last: time.Now()})

	require.Equal(t, 1, m.Stats().ActiveDevices)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	m := New(DefaultConfig(), nil)
	defer m.Stop()

	m.Unregister("never-registered")
	m.Register("dev-1", "router", &fakeDevice{last: time.Now()})
	m.Unregister("dev-1")
	m.Unregister("dev-1")

	require.Equal(t, 0, m.Stats().ActiveDevices)
}

// S8 — Idle reaping.
func TestScenarioS8_IdleReaping(t *testing.T) {
	m := New(Config{
		MaxDevices:      100,
		MaxMemoryMB:     1 << 20,
		CleanupInterval: 30 * time.Millisecond,
		IdleThreshold:   20 * time.Millisecond,
	}, nil)
	defer m.Stop()

	dev := &fakeDevice{last: time.Now()}
	m.Register("dev-1", "router", dev)
	require.Equal(t, 1, m.Stats().ActiveDevices)

	require.Eventually(t, func() bool {
		return m.Stats().ActiveDevices == 0
	}, time.Second, 10*time.Millisecond)
	require.True(t, dev.stopped)
}

func TestIdempotentIdleReapNoFalsePositives(t *testing.T) {
	m := New(Config{
		MaxDevices:      100,
		MaxMemoryMB:     1 << 20,
		CleanupInterval: 15 * time.Millisecond,
		IdleThreshold:   time.Hour,
	}, nil)
	defer m.Stop()

	dev := &fakeDevice{last: time.Now()}
	m.Register("dev-1", "router", dev)

	time.Sleep(60 * time.Millisecond) // several sweeps elapse
	require.Equal(t, 1, m.Stats().ActiveDevices)
	require.False(t, dev.stopped)
}

func TestStatsPerTypeCounts(t *testing.T) {
	m := New(DefaultConfig(), nil)
	defer m.Stop()

	m.Register("dev-1", "router", &fakeDevice{last: time.Now()})
	m.Register("dev-2", "router", &fakeDevice{last: time.Now()})
	m.Register("dev-3", "cable_modem", &fakeDevice{last: time.Now()})

	stats := m.Stats()
	require.Equal(t, 2, stats.PerType["router"])
	require.Equal(t, 1, stats.PerType["cable_modem"])
	require.Equal(t, 3, stats.PeakDevices)
}
