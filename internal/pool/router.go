// Package pool implements spec.md §4.9, the Device Pool / Router: a
// udp_port -> device.Actor map with lazy, admission-checked creation,
// generalizing the teacher's static createVirtualAgents port loop into
// on-demand creation driven by a configurable port-range-to-device-type
// resolver.
package pool

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/devicesim/snmpsim/internal/device"
	"github.com/devicesim/snmpsim/internal/devstate"
	"github.com/devicesim/snmpsim/internal/processor"
	"github.com/devicesim/snmpsim/internal/resources"
)

// ErrResourceLimitExceeded is returned by Get when the Resource Manager
// refuses to admit a new device for a previously-unseen port (spec.md
// §4.9 "{error, resource_limit_exceeded}").
var ErrResourceLimitExceeded = errors.New("pool: resource limit exceeded")

// TypeResolver maps a UDP port to the device_type that should simulate
// it, per spec.md §6.4's device_types port-range configuration. ok=false
// means no device_type is configured for that port.
type TypeResolver func(port int) (deviceType string, ok bool)

// UpgradeConfigProvider returns the DOCSIS upgrade policy for a
// device_type (spec.md §6.4 upgrade_enabled, invalid_server_regex, phase
// delays). Router calls this once per device, at creation time, rather
// than importing internal/config directly — the same small-interface
// decoupling internal/resources uses for its Device/Telemetry
// dependencies.
type UpgradeConfigProvider func(deviceType string) devstate.UpgradeConfig

// Router is the udp_port -> device.Actor map. Reads (Get on an existing
// port) vastly outnumber writes (first Get on a new port, or Remove), so
// the live map is a sync.Map rather than a mutex-guarded plain map
// (spec.md §5 doesn't mandate this data structure, but the read/write
// ratio here is exactly sync.Map's documented sweet spot).
type Router struct {
	mu            sync.Mutex // guards lazy-creation so two racing Gets on one new port create only one actor
	actors        sync.Map   // port(int) -> *device.Actor
	resolver      TypeResolver
	upgradeConfig UpgradeConfigProvider
	proc          *processor.Processor
	manager       *resources.Manager
	community     string
}

// New returns a Router creating devices via resolver, processed by proc,
// admitted by manager. upgradeConfig may be nil, in which case every
// device gets the zero-value UpgradeConfig (upgrades disabled).
func New(resolver TypeResolver, upgradeConfig UpgradeConfigProvider, proc *processor.Processor, manager *resources.Manager, community string) *Router {
	if upgradeConfig == nil {
		upgradeConfig = func(string) devstate.UpgradeConfig { return devstate.UpgradeConfig{} }
	}
	return &Router{resolver: resolver, upgradeConfig: upgradeConfig, proc: proc, manager: manager, community: community}
}

// Get returns the actor for port, creating and registering one on first
// access if resolver maps the port to a device_type and the Resource
// Manager admits it.
func (r *Router) Get(port int) (*device.Actor, error) {
	if v, ok := r.actors.Load(port); ok {
		return v.(*device.Actor), nil
	}

	deviceType, ok := r.resolver(port)
	if !ok {
		return nil, ErrResourceLimitExceeded
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.actors.Load(port); ok {
		return v.(*device.Actor), nil
	}

	if !r.manager.CanAllocate() {
		return nil, ErrResourceLimitExceeded
	}

	deviceID := deviceIDFor(port)
	state := devstate.New(deviceID, deviceType, port, r.community, time.Now())
	state.UpgradeConfig = r.upgradeConfig(deviceType)
	var actor *device.Actor
	actor = device.New(state, r.proc, func() {
		r.actors.Delete(port)
		r.manager.Unregister(deviceID)
	})

	r.actors.Store(port, actor)
	r.manager.Register(deviceID, deviceType, actor)
	return actor, nil
}

// Put installs actor for port directly, bypassing admission control —
// used to seed devices from a programmatic device spec at startup
// (spec.md §6.3) rather than lazily from first traffic.
func (r *Router) Put(port int, actor *device.Actor) {
	r.actors.Store(port, actor)
}

// Remove stops and evicts the actor for port, if any.
func (r *Router) Remove(port int) {
	if v, ok := r.actors.LoadAndDelete(port); ok {
		v.(*device.Actor).Stop()
	}
}

func deviceIDFor(port int) string {
	return "device-" + strconv.Itoa(port)
}
