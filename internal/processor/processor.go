// Package processor implements spec.md §4.5, the Walk PDU Processor: GET,
// GETNEXT, GETBULK and SET semantics against a device's own state plus the
// shared profile tree for its device_type, including the DOCSIS
// firmware-upgrade state machine. It replaces the teacher's
// agent.go handle*Request methods, which only ever produced noError GETs
// and an unconditional read-only SET; this package implements the full
// version-dispatch exception table (§4.5.3) the teacher never had.
package processor

import (
	"time"

	"github.com/devicesim/snmpsim/internal/devstate"
	"github.com/devicesim/snmpsim/internal/pdu"
	"github.com/devicesim/snmpsim/internal/profiles"
)

// defaultMaxGetBulkRepetitions is the hard GETBULK cap's default (spec.md
// §4.4, §6.1, §9), used when a Processor is constructed with no explicit
// cap (cap <= 0). A deployment can lower or raise it via
// config.Config.GetBulkMaxRepetitionsCap (spec.md §6.4
// getbulk_max_repetitions_cap), to stay clear of UDP fragmentation at
// whatever MTU that deployment runs under.
const defaultMaxGetBulkRepetitions = 50

// CableModemDeviceType is the one device_type carrying a writable DOCSIS
// firmware-upgrade substate (spec.md §4.5.5). Every other device_type
// treats all four docsDevSw* OIDs as ordinary profile entries, if present
// at all.
const CableModemDeviceType = "cable_modem"

// Processor resolves PDUs against a device's own state and its device
// type's shared profile. It holds no per-device state itself — safe to
// share across every device actor of a process, since all mutation it
// performs is on the *devstate.DeviceState passed into each call, owned
// exclusively by the caller (the device actor).
type Processor struct {
	Profiles *profiles.Store

	// maxGetBulkRepetitions is the configured GETBULK repetition cap
	// (spec.md §6.4 getbulk_max_repetitions_cap); always > 0.
	maxGetBulkRepetitions int
}

// New returns a Processor resolving shared-profile lookups against store,
// capping GETBULK at defaultMaxGetBulkRepetitions. Use NewWithBulkCap to
// configure a different cap.
func New(store *profiles.Store) *Processor {
	return NewWithBulkCap(store, defaultMaxGetBulkRepetitions)
}

// NewWithBulkCap returns a Processor capping GETBULK at maxRepetitions
// (spec.md §6.4 getbulk_max_repetitions_cap). maxRepetitions <= 0 falls
// back to defaultMaxGetBulkRepetitions.
func NewWithBulkCap(store *profiles.Store, maxRepetitions int) *Processor {
	if maxRepetitions <= 0 {
		maxRepetitions = defaultMaxGetBulkRepetitions
	}
	return &Processor{Profiles: store, maxGetBulkRepetitions: maxRepetitions}
}

// Handle dispatches req to the matching operation and always returns a
// get_response PDU (spec.md §4.5: "Always produces a get_response PDU
// unless the input is not a valid request type").
func (p *Processor) Handle(state *devstate.DeviceState, req pdu.PDU, now time.Time) pdu.PDU {
	switch req.Type {
	case pdu.TypeGetRequest:
		return p.handleGet(state, req, now)
	case pdu.TypeGetNextRequest:
		return p.handleGetNext(state, req, now, pdu.V2c)
	case pdu.TypeGetBulkRequest:
		return p.handleGetBulk(state, req, now)
	case pdu.TypeSetRequest:
		return p.handleSet(state, req, now)
	default:
		return pdu.PDU{
			Type:        pdu.TypeGetResponse,
			RequestID:   req.RequestID,
			ErrorStatus: pdu.GenErr,
			ErrorIndex:  0,
			VarBinds:    req.VarBinds,
		}
	}
}

// HandleVersioned is like Handle but threads the message version through
// to GETNEXT/GETBULK, whose terminal exceptions differ between v1 and v2c
// (spec.md §4.5.3's table). Handle always assumes v2c; the device actor
// calls HandleVersioned directly so v1 clients get v1 semantics.
func (p *Processor) HandleVersioned(state *devstate.DeviceState, req pdu.PDU, now time.Time, version pdu.Version) pdu.PDU {
	switch req.Type {
	case pdu.TypeGetRequest:
		return p.handleGet(state, req, now)
	case pdu.TypeGetNextRequest:
		return p.handleGetNext(state, req, now, version)
	case pdu.TypeGetBulkRequest:
		if version == pdu.V1 {
			return p.handleGetNextSequence(state, req, now, pdu.V1)
		}
		return p.handleGetBulk(state, req, now)
	case pdu.TypeSetRequest:
		return p.handleSet(state, req, now)
	default:
		return pdu.PDU{
			Type:        pdu.TypeGetResponse,
			RequestID:   req.RequestID,
			ErrorStatus: pdu.GenErr,
			VarBinds:    req.VarBinds,
		}
	}
}

func response(req pdu.PDU, vbs []pdu.VarBind, status pdu.ErrorStatus, index int) pdu.PDU {
	return pdu.PDU{
		Type:        pdu.TypeGetResponse,
		RequestID:   req.RequestID,
		ErrorStatus: status,
		ErrorIndex:  index,
		VarBinds:    vbs,
	}
}
