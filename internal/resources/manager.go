// Package resources implements spec.md §4.7, the Resource Manager:
// admission control, the active-device registry, idle reaping and the
// memory watchdog. The teacher has no equivalent — createVirtualAgents
// simply builds numDevices agents up front with no cap — so this package
// is new code, grounded in the single-goroutine-plus-RPC-channel shape of
// the teacher's traps.Manager (itself a queue + stop channel + WaitGroup
// loop) generalized from "send traps" to "own the device registry."
package resources

import (
	"runtime"
	"sort"
	"sync"
	"time"
)

// Device is the subset of device.Actor the Resource Manager needs: the
// two packages otherwise have no reason to depend on each other, so the
// dependency runs through this small interface rather than an import.
type Device interface {
	LastActivity() time.Time
	Stop()
}

// Telemetry is the minimal event sink the Resource Manager emits
// resource/device lifecycle events to (spec.md §4.10). A nil Telemetry
// is a valid no-op sink.
type Telemetry interface {
	Emit(name string, fields map[string]interface{})
}

type noopTelemetry struct{}

func (noopTelemetry) Emit(string, map[string]interface{}) {}

// Config holds the admission/reap thresholds (spec.md §6.4).
type Config struct {
	MaxDevices      int
	MaxMemoryMB     int
	CleanupInterval time.Duration
	IdleThreshold   time.Duration
}

// memWatchdogInterval is fixed per spec.md §4.7 ("periodic memory sweep
// every 30s"), unlike CleanupInterval which is configurable.
const memWatchdogInterval = 30 * time.Second

// DefaultConfig returns spec.md §6.4's defaults.
func DefaultConfig() Config {
	return Config{
		MaxDevices:      10000,
		MaxMemoryMB:     1024,
		CleanupInterval: 60 * time.Second,
		IdleThreshold:   10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxDevices <= 0 {
		c.MaxDevices = d.MaxDevices
	}
	if c.MaxMemoryMB <= 0 {
		c.MaxMemoryMB = d.MaxMemoryMB
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = d.IdleThreshold
	}
	return c
}

// Stats is a point-in-time snapshot of the Resource Manager's counters
// (spec.md §4.7 "active device set, per-type counts, peak stats"),
// delivered to callers over an RPC reply channel (spec.md §5: "readers
// see snapshots via RPC").
type Stats struct {
	ActiveDevices int
	PeakDevices   int
	PerType       map[string]int
	MemoryUsedMB  uint64
	MemoryCapMB   int
}

type entry struct {
	deviceType string
	dev        Device
	createdAt  time.Time
}

type canAllocateReq struct{ reply chan bool }
type registerReq struct {
	id, deviceType string
	dev            Device
	reply          chan struct{}
}
type unregisterReq struct {
	id    string
	reply chan struct{}
}
type statsReq struct{ reply chan Stats }

// Manager is the process-wide admission controller and device registry.
// Its mutable state (the devices map, peak counter) is touched only from
// the single goroutine started by New — every exported method is a
// blocking RPC over a channel, matching spec.md §5's "single-writer,
// readers see snapshots via RPC" rule.
type Manager struct {
	cfg Config
	tel Telemetry

	reqCh  chan interface{}
	stopCh chan struct{}
	stopOnce sync.Once
	wg     sync.WaitGroup
}

// New starts the Resource Manager's goroutine and returns immediately.
func New(cfg Config, tel Telemetry) *Manager {
	if tel == nil {
		tel = noopTelemetry{}
	}
	m := &Manager{
		cfg:    cfg.withDefaults(),
		tel:    tel,
		reqCh:  make(chan interface{}, 256),
		stopCh: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// CanAllocate reports whether a new device may be created right now
// (spec.md §4.7: device_count < max_devices AND memory <= max_memory_mb).
func (m *Manager) CanAllocate() bool {
	reply := make(chan bool, 1)
	select {
	case m.reqCh <- canAllocateReq{reply}:
	case <-m.stopCh:
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-m.stopCh:
		return false
	}
}

// Register adds dev to the active set under id/deviceType. Idempotent:
// registering an id already present leaves the existing entry untouched
// (spec.md §8.2 "register(d) twice results in count = 1").
func (m *Manager) Register(id, deviceType string, dev Device) {
	reply := make(chan struct{})
	select {
	case m.reqCh <- registerReq{id: id, deviceType: deviceType, dev: dev, reply: reply}:
	case <-m.stopCh:
		return
	}
	select {
	case <-reply:
	case <-m.stopCh:
	}
}

// Unregister removes id from the active set. Idempotent: unregistering
// an absent id is a no-op.
func (m *Manager) Unregister(id string) {
	reply := make(chan struct{})
	select {
	case m.reqCh <- unregisterReq{id: id, reply: reply}:
	case <-m.stopCh:
		return
	}
	select {
	case <-reply:
	case <-m.stopCh:
	}
}

// Stats returns a snapshot of the current registry state.
func (m *Manager) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case m.reqCh <- statsReq{reply}:
	case <-m.stopCh:
		return Stats{MemoryCapMB: m.cfg.MaxMemoryMB}
	}
	select {
	case s := <-reply:
		return s
	case <-m.stopCh:
		return Stats{MemoryCapMB: m.cfg.MaxMemoryMB}
	}
}

// ActiveDevices returns the current device count. It exists alongside
// Stats so Manager satisfies telemetry.StatsProvider directly, without
// a wrapper type, for wiring into the periodic performance report.
func (m *Manager) ActiveDevices() int {
	return m.Stats().ActiveDevices
}

// MemoryUsedMB returns the most recently measured heap usage. See
// ActiveDevices.
func (m *Manager) MemoryUsedMB() uint64 {
	return m.Stats().MemoryUsedMB
}

// Stop halts the Resource Manager's goroutine. It does not stop any
// registered device; callers that want a full shutdown stop devices
// themselves first (spec.md §5: "idle reaping cancels the device itself;
// in-flight requests are allowed to finish before shutdown" describes
// per-device shutdown, not the manager's own lifecycle).
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()

	devices := make(map[string]*entry)
	peak := 0

	sweepTicker := time.NewTicker(m.cfg.CleanupInterval)
	defer sweepTicker.Stop()
	memTicker := time.NewTicker(memWatchdogInterval)
	defer memTicker.Stop()

	for {
		select {
		case <-m.stopCh:
			return

		case req := <-m.reqCh:
			switch v := req.(type) {
			case canAllocateReq:
				v.reply <- len(devices) < m.cfg.MaxDevices && currentMemMB() <= uint64(m.cfg.MaxMemoryMB)

			case registerReq:
				if _, exists := devices[v.id]; !exists {
					devices[v.id] = &entry{deviceType: v.deviceType, dev: v.dev, createdAt: time.Now()}
					if len(devices) > peak {
						peak = len(devices)
					}
					m.tel.Emit("device.created", map[string]interface{}{"device_id": v.id, "device_type": v.deviceType})
				}
				close(v.reply)

			case unregisterReq:
				if e, ok := devices[v.id]; ok {
					delete(devices, v.id)
					m.tel.Emit("device.destroyed", map[string]interface{}{"device_id": v.id, "device_type": e.deviceType})
				}
				close(v.reply)

			case statsReq:
				v.reply <- m.snapshot(devices, peak)
			}

		case <-sweepTicker.C:
			m.idleSweep(devices)

		case <-memTicker.C:
			m.memoryWatchdog(devices)
		}
	}
}

// idleSweep implements spec.md §8.1 invariant 9: any device with
// last_activity older than idle_threshold is stopped and removed within
// 2*cleanup_interval (guaranteed since this runs every cleanup_interval).
func (m *Manager) idleSweep(devices map[string]*entry) {
	now := time.Now()
	for id, e := range devices {
		if now.Sub(e.dev.LastActivity()) > m.cfg.IdleThreshold {
			delete(devices, id)
			e.dev.Stop()
			m.tel.Emit("device.destroyed", map[string]interface{}{"device_id": id, "device_type": e.deviceType, "reason": "idle"})
		}
	}
}

// memoryWatchdog implements spec.md §4.7's 30s memory sweep: a warning
// above 90% of the cap, an emergency sweep of the idlest devices above
// 100%.
func (m *Manager) memoryWatchdog(devices map[string]*entry) {
	used := currentMemMB()
	capMB := uint64(m.cfg.MaxMemoryMB)

	m.tel.Emit("resource.usage", map[string]interface{}{"memory_used_mb": used, "memory_cap_mb": capMB, "device_count": len(devices)})

	switch {
	case used > capMB:
		m.emergencySweep(devices, used, capMB)
	case float64(used) > 0.9*float64(capMB):
		m.tel.Emit("resource.limit_exceeded", map[string]interface{}{"memory_used_mb": used, "memory_cap_mb": capMB, "warning": true})
	}
}

// emergencySweep stops one batch of the idlest devices: the least
// recently active 5% (at least one). It does not re-measure heap usage
// after each stop, since runtime.ReadMemStats is comparatively expensive
// to call once per device; if usage is still over the cap, the next
// watchdog tick stops another batch.
func (m *Manager) emergencySweep(devices map[string]*entry, used, capMB uint64) {
	m.tel.Emit("resource.limit_exceeded", map[string]interface{}{"memory_used_mb": used, "memory_cap_mb": capMB, "warning": false})

	type idled struct {
		id string
		e  *entry
	}
	ordered := make([]idled, 0, len(devices))
	for id, e := range devices {
		ordered = append(ordered, idled{id, e})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].e.dev.LastActivity().Before(ordered[j].e.dev.LastActivity())
	})

	batch := len(ordered) / 20
	if batch < 1 {
		batch = 1
	}
	if batch > len(ordered) {
		batch = len(ordered)
	}

	for _, v := range ordered[:batch] {
		delete(devices, v.id)
		v.e.dev.Stop()
		m.tel.Emit("device.destroyed", map[string]interface{}{"device_id": v.id, "device_type": v.e.deviceType, "reason": "memory_pressure"})
	}
}

func (m *Manager) snapshot(devices map[string]*entry, peak int) Stats {
	perType := make(map[string]int)
	for _, e := range devices {
		perType[e.deviceType]++
	}
	return Stats{
		ActiveDevices: len(devices),
		PeakDevices:   peak,
		PerType:       perType,
		MemoryUsedMB:  currentMemMB(),
		MemoryCapMB:   m.cfg.MaxMemoryMB,
	}
}

func currentMemMB() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc / (1024 * 1024)
}
