package processor

import (
	"time"

	"github.com/devicesim/snmpsim/internal/devstate"
	"github.com/devicesim/snmpsim/internal/oidtree"
)

// resolveValue resolves a single OID against state's own dynamic/overlay
// data first, falling back to the device type's shared profile, per
// spec.md §4.5.1's priority order:
//  1. an attached counter behavior
//  2. an attached gauge behavior
//  3. sysUpTime.0, relative to the device's own creation time
//  4. the per-device overlay tree, if loaded
//  5. the shared profile tree for state.DeviceType
func (p *Processor) resolveValue(state *devstate.DeviceState, oid string, now time.Time) (oidtree.Value, bool) {
	oid = oidtree.Normalize(oid)

	if b, ok := state.CounterBehaviors[oid]; ok {
		return oidtree.Value{Type: oidtree.TypeCounter32, Value: b.Value(now)}, true
	}
	if b, ok := state.GaugeBehaviors[oid]; ok {
		return oidtree.Value{Type: oidtree.TypeGauge32, Value: b.Value(now)}, true
	}
	if oid == devstate.SysUpTimeOID {
		return oidtree.Value{Type: oidtree.TypeTimeTicks, Value: state.Uptime(now)}, true
	}
	if state.DeviceType == CableModemDeviceType {
		if v, ok := docsisValue(state, oid); ok {
			return v, true
		}
	}
	if state.Overlay != nil && !state.Overlay.Empty() {
		if v, ok := state.Overlay.Get(oid); ok {
			return v, true
		}
	}
	v, err := p.Profiles.GetOIDValue(state.DeviceType, oid)
	if err != nil {
		return oidtree.Value{}, false
	}
	return v, true
}

// resolveNext returns the successor entry strictly after oid, scanning the
// same precedence chain as resolveValue but merging rather than
// shadowing: the overlay's own keys still need to interleave numerically
// with the shared profile's, so GetNext is computed against whichever
// source the caller is allowed to treat as authoritative for the range —
// an overlay, when loaded, fully replaces the shared profile for GetNext
// traversal (spec.md §6.3: "an overlay tree replaces, not merges with,
// the shared profile for walk ordering").
func (p *Processor) resolveNext(state *devstate.DeviceState, oid string, now time.Time) (oidtree.Entry, bool) {
	oid = oidtree.Normalize(oid)
	if state.Overlay != nil && !state.Overlay.Empty() {
		return state.Overlay.GetNext(oid)
	}
	e, err := p.Profiles.GetNextOID(state.DeviceType, oid)
	if err != nil {
		return oidtree.Entry{}, false
	}
	return e, true
}

// docsisValue resolves the four DOCSIS firmware-upgrade scalars (spec.md
// §4.5.5) directly from live upgrade substate, so GET always reflects the
// most recent SET even when the shared profile also defines a (now stale)
// default for these OIDs.
func docsisValue(state *devstate.DeviceState, oid string) (oidtree.Value, bool) {
	switch oid {
	case devstate.DocsDevSwAdminStatusOID:
		return oidtree.Value{Type: oidtree.TypeInteger, Value: int32(state.Upgrade.AdminStatus)}, true
	case devstate.DocsDevSwOperStatusOID:
		return oidtree.Value{Type: oidtree.TypeInteger, Value: int32(state.Upgrade.OperStatus)}, true
	case devstate.DocsDevSwServerOID:
		return oidtree.Value{Type: oidtree.TypeIPAddress, Value: state.Upgrade.Server}, true
	case devstate.DocsDevSwFilenameOID:
		return oidtree.Value{Type: oidtree.TypeOctetString, Value: state.Upgrade.Filename}, true
	default:
		return oidtree.Value{}, false
	}
}
