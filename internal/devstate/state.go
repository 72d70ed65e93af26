// Package devstate defines the per-device mutable state owned exclusively
// by one device actor (spec.md §3 DeviceState). It is a leaf package with
// no dependency on the actor or the processor so both can import it
// without a cycle: the actor owns and mutates a *DeviceState serially; the
// processor is a pure function of (*DeviceState, pdu.PDU, time.Time).
package devstate

import (
	"time"

	"github.com/devicesim/snmpsim/internal/behavior"
	"github.com/devicesim/snmpsim/internal/oidtree"
)

// SysUpTimeOID is the well-known sysUpTime.0 instance (spec.md §4.5.1
// step 3), always resolved against the device's own creation time.
const SysUpTimeOID = "1.3.6.1.2.1.1.3.0"

// DOCSIS firmware-upgrade OIDs (spec.md §4.5.5).
const (
	DocsDevSwAdminStatusOID = "1.3.6.1.2.1.69.1.3.1.0"
	DocsDevSwOperStatusOID  = "1.3.6.1.2.1.69.1.3.2.0"
	DocsDevSwServerOID      = "1.3.6.1.2.1.69.1.3.3.0"
	DocsDevSwFilenameOID    = "1.3.6.1.2.1.69.1.3.4.0"
)

// AdminStatus values (docsDevSwAdminStatus).
const (
	AdminUpgradeFromMgt           = 1
	AdminAllowProvisioningUpgrade = 2
	AdminIgnoreProvisioningUpgrade = 3
)

// OperStatus values (docsDevSwOperStatus).
const (
	OperInProgress             = 1
	OperCompleteFromProvisioning = 2
	OperCompleteFromMgt        = 3
	OperFailed                 = 4
)

// UpgradeConfig is the per-device DOCSIS upgrade policy, set at device
// creation from §6.4's per-cable_modem `upgrade_enabled` and an optional
// operator-supplied rejection pattern.
type UpgradeConfig struct {
	Enabled           bool
	InvalidServerRegex string // empty disables the check
	// PhaseDelays, when non-empty, makes the upgrade asynchronous: the
	// device actor schedules a deferred completion instead of finishing
	// synchronously inside the SET response (spec.md §4.6, §9).
	PhaseDelays []time.Duration
}

// UpgradeState is the DOCSIS firmware-upgrade substate (spec.md §4.5.5).
type UpgradeState struct {
	AdminStatus int
	OperStatus  int
	Server      string
	Filename    string
	StartedAt   time.Time
	InProgress  bool
}

// NewUpgradeState returns the power-on-default substate: AdminStatus
// allowProvisioningUpgrade(2), OperStatus completeFromProvisioning(2),
// server 0.0.0.0, filename "(unknown)" — the last two fail the SET
// precondition checks until an operator configures them (spec.md §4.5.5).
func NewUpgradeState() UpgradeState {
	return UpgradeState{
		AdminStatus: AdminAllowProvisioningUpgrade,
		OperStatus:  OperCompleteFromProvisioning,
		Server:      "0.0.0.0",
		Filename:    "(unknown)",
	}
}

// DeviceState is the per-device mutable record, owned exclusively by one
// device actor (spec.md §3). All fields are read and written only from
// that actor's goroutine.
type DeviceState struct {
	DeviceID    string
	DeviceType  string
	UDPPort     int
	Community   string
	UptimeStart time.Time

	// CounterBehaviors/GaugeBehaviors back spec.md §4.5.1 steps 1-2's
	// `counters`/`gauges` maps: the only thing that ever updates those
	// values out-of-band is a behavior (arbitrary SET against them is out
	// of scope, spec.md §1), so each OID maps directly to the Behavior
	// that computes its current value on read, rather than to a stored
	// value a behavior would separately have to keep in sync.
	CounterBehaviors map[string]behavior.Behavior
	GaugeBehaviors   map[string]behavior.Behavior

	// Overlay is the per-device manual profile (spec.md §6.3); when
	// non-nil and non-empty it takes precedence over the shared profile
	// for both Get and GetNext.
	Overlay *oidtree.Tree

	Upgrade       UpgradeState
	UpgradeConfig UpgradeConfig

	LastActivity time.Time
}

// New returns a fresh DeviceState for deviceID/deviceType on udpPort.
func New(deviceID, deviceType string, udpPort int, community string, now time.Time) *DeviceState {
	return &DeviceState{
		DeviceID:         deviceID,
		DeviceType:       deviceType,
		UDPPort:          udpPort,
		Community:        community,
		UptimeStart:      now,
		CounterBehaviors: make(map[string]behavior.Behavior),
		GaugeBehaviors:   make(map[string]behavior.Behavior),
		Upgrade:          NewUpgradeState(),
		LastActivity:     now,
	}
}

// Uptime returns sysUpTime.0's value at now: hundredths of a second since
// device creation (spec.md §4.5.1 step 3).
func (d *DeviceState) Uptime(now time.Time) uint32 {
	return uint32(now.Sub(d.UptimeStart) / (10 * time.Millisecond))
}
