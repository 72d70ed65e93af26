package processor

import (
	"net"
	"regexp"
	"time"

	"github.com/devicesim/snmpsim/internal/devstate"
	"github.com/devicesim/snmpsim/internal/oidtree"
	"github.com/devicesim/snmpsim/internal/pdu"
)

// maxFilenameLength is docsDevSwFilename's length bound (spec.md §4.5.5
// table).
const maxFilenameLength = 64

// handleSet implements spec.md §4.5.5: every OID is read-only except, for
// device_type=cable_modem, the four docsDevSw* scalars. A non-cable_modem
// SET (or one against any other OID) fails the whole PDU with
// readOnly(4), error_index=1, echoing the input varbinds verbatim
// (spec.md invariant "read-only by default").
func (p *Processor) handleSet(state *devstate.DeviceState, req pdu.PDU, now time.Time) pdu.PDU {
	if state.DeviceType != CableModemDeviceType {
		return response(req, req.VarBinds, pdu.ReadOnly, 1)
	}

	for _, vb := range req.VarBinds {
		if !isDocsisWritable(vb.OID) {
			return response(req, req.VarBinds, pdu.ReadOnly, 1)
		}
	}

	// Validate every varbind before applying any of them: a SET is
	// all-or-nothing (spec.md §4.5.5, §8.1).
	for i, vb := range req.VarBinds {
		if status, ok := validateDocsisVarBind(vb); !ok {
			return response(req, req.VarBinds, status, i+1)
		}
	}

	var triggerIndex = -1
	for i, vb := range req.VarBinds {
		applyDocsisVarBind(state, vb)
		if vb.OID == devstate.DocsDevSwAdminStatusOID {
			if v, ok := asInt(vb.Value); ok && v == devstate.AdminUpgradeFromMgt {
				triggerIndex = i
			}
		}
	}

	if triggerIndex >= 0 {
		if status, index, ok := p.triggerUpgrade(state, now, triggerIndex+1); !ok {
			return response(req, req.VarBinds, status, index)
		}
	}

	return response(req, req.VarBinds, pdu.NoError, 0)
}

func isDocsisWritable(oid string) bool {
	oid = oidtree.Normalize(oid)
	switch oid {
	case devstate.DocsDevSwAdminStatusOID,
		devstate.DocsDevSwOperStatusOID,
		devstate.DocsDevSwServerOID,
		devstate.DocsDevSwFilenameOID:
		return true
	default:
		return false
	}
}

// validateDocsisVarBind type/value-checks one writable varbind in
// isolation (spec.md §4.5.5's table), returning the error_status to use
// if invalid.
func validateDocsisVarBind(vb pdu.VarBind) (pdu.ErrorStatus, bool) {
	oid := oidtree.Normalize(vb.OID)
	switch oid {
	case devstate.DocsDevSwAdminStatusOID:
		v, ok := asInt(vb.Value)
		if !ok {
			return pdu.WrongType, false
		}
		if v != devstate.AdminUpgradeFromMgt && v != devstate.AdminAllowProvisioningUpgrade && v != devstate.AdminIgnoreProvisioningUpgrade {
			return pdu.WrongValue, false
		}
		return 0, true

	case devstate.DocsDevSwOperStatusOID:
		return pdu.NotWritable, false

	case devstate.DocsDevSwServerOID:
		s, ok := vb.Value.(string)
		if !ok {
			return pdu.WrongType, false
		}
		ip := net.ParseIP(s)
		if ip == nil || ip.To4() == nil {
			return pdu.WrongValue, false
		}
		return 0, true

	case devstate.DocsDevSwFilenameOID:
		s, ok := vb.Value.(string)
		if !ok {
			return pdu.WrongType, false
		}
		if len(s) > maxFilenameLength {
			return pdu.WrongLength, false
		}
		return 0, true

	default:
		return pdu.NotWritable, false
	}
}

func applyDocsisVarBind(state *devstate.DeviceState, vb pdu.VarBind) {
	oid := oidtree.Normalize(vb.OID)
	switch oid {
	case devstate.DocsDevSwAdminStatusOID:
		if v, ok := asInt(vb.Value); ok {
			state.Upgrade.AdminStatus = v
		}
	case devstate.DocsDevSwServerOID:
		if s, ok := vb.Value.(string); ok {
			state.Upgrade.Server = s
		}
	case devstate.DocsDevSwFilenameOID:
		if s, ok := vb.Value.(string); ok {
			state.Upgrade.Filename = s
		}
	}
}

// triggerUpgrade runs the preconditions and state transition fired by
// setting docsDevSwAdminStatus=upgradeFromMgt(1) (spec.md §4.5.5, §9).
//
// Preconditions (upgrades disabled for this device, an upgrade already
// in progress, or a server/filename that still carries its power-on
// default) fail the SET with inconsistentValue(12) at the
// docsDevSwAdminStatus varbind's own index — the Open Question spec.md
// §9 flags as needing a decision rather than a guess; inconsistentValue
// is the closest RFC 3416 code for "valid in isolation, invalid given
// current device state".
//
// Once preconditions pass, the transition always reports success to the
// SET caller per scenario S6: docsDevSwAdminStatus moves to
// ignoreProvisioningUpgrade(3) and, for a zero-delay (default)
// UpgradeConfig, docsDevSwOperStatus completes synchronously within this
// same call — completeFromMgt(3) normally, or failed(4) if
// InvalidServerRegex matches the configured server. A non-empty
// PhaseDelays instead leaves OperStatus at inProgress(1) here and defers
// completion to the device actor's self-scheduled timer.
func (p *Processor) triggerUpgrade(state *devstate.DeviceState, now time.Time, index int) (pdu.ErrorStatus, int, bool) {
	cfg := state.UpgradeConfig
	u := &state.Upgrade

	switch {
	case !cfg.Enabled:
		return pdu.InconsistentValue, index, false
	case u.InProgress:
		return pdu.InconsistentValue, index, false
	case u.Server == "" || u.Server == "0.0.0.0":
		return pdu.InconsistentValue, index, false
	case u.Filename == "" || u.Filename == "(unknown)":
		return pdu.InconsistentValue, index, false
	}

	u.StartedAt = now
	u.AdminStatus = devstate.AdminIgnoreProvisioningUpgrade

	if len(cfg.PhaseDelays) > 0 {
		u.InProgress = true
		u.OperStatus = devstate.OperInProgress
		return 0, 0, true
	}

	u.InProgress = false
	if serverRejected(cfg.InvalidServerRegex, u.Server) {
		u.OperStatus = devstate.OperFailed
	} else {
		u.OperStatus = devstate.OperCompleteFromMgt
	}
	return 0, 0, true
}

// FinishPhasedUpgrade completes an in-progress phased upgrade (spec.md
// §9's phased-variant note). The device actor calls this from its own
// goroutine when the last of UpgradeConfig.PhaseDelays elapses; it is a
// no-op if no upgrade is in progress, so a stale or duplicate timer fire
// is harmless.
func (p *Processor) FinishPhasedUpgrade(state *devstate.DeviceState) {
	u := &state.Upgrade
	if !u.InProgress {
		return
	}
	u.InProgress = false
	if serverRejected(state.UpgradeConfig.InvalidServerRegex, u.Server) {
		u.OperStatus = devstate.OperFailed
	} else {
		u.OperStatus = devstate.OperCompleteFromMgt
	}
}

func serverRejected(pattern, server string) bool {
	if pattern == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(server)
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint32:
		return int(n), true
	default:
		return 0, false
	}
}
