package processor

import (
	"time"

	"github.com/devicesim/snmpsim/internal/devstate"
	"github.com/devicesim/snmpsim/internal/oidtree"
	"github.com/devicesim/snmpsim/internal/pdu"
)

// handleGetBulk implements spec.md §4.5.4: the first non_repeaters
// varbinds each advance once (ordinary GetNext semantics); the remaining
// varbinds are "repeaters", each walked forward up to max_repetitions
// times (capped at Processor.maxGetBulkRepetitions), with results concatenated in
// round-major order: rep 1 of every repeater, then rep 2 of every
// repeater, and so on — the standard GETBULK response layout (RFC 3416
// §4.2.3). A repeater that yields no next OID at all produces
// min(max_repetitions, cap) copies of end_of_mib_view, one per round,
// rather than vanishing from the response (so every repeater contributes
// the same number of varbinds the caller asked for). GETBULK is only ever
// invoked for v2c (spec.md §4.5.4: a v1 GETBULK falls back to
// handleGetNextSequence instead), so every terminal condition here uses
// v2c exception values.
func (p *Processor) handleGetBulk(state *devstate.DeviceState, req pdu.PDU, now time.Time) pdu.PDU {
	nonRep := req.NonRepeaters
	if nonRep < 0 {
		nonRep = 0
	}
	if nonRep > len(req.VarBinds) {
		nonRep = len(req.VarBinds)
	}

	maxRep := req.MaxRepetitions
	if maxRep < 0 {
		maxRep = 0
	}
	if maxRep > p.maxGetBulkRepetitions {
		maxRep = p.maxGetBulkRepetitions
	}

	out := make([]pdu.VarBind, 0, len(req.VarBinds))

	for _, in := range req.VarBinds[:nonRep] {
		out = append(out, p.bulkStep(state, in.OID, now))
	}

	repeaters := req.VarBinds[nonRep:]
	cursors := make([]string, len(repeaters))
	for i, in := range repeaters {
		cursors[i] = in.OID
	}

	for round := 0; round < maxRep; round++ {
		for i := range repeaters {
			vb := p.bulkStep(state, cursors[i], now)
			out = append(out, vb)
			cursors[i] = vb.OID
		}
	}

	return response(req, out, pdu.NoError, 0)
}

// bulkStep advances one OID by a single GetNext hop under v2c exception
// rules, the unit GETBULK repeats per repeater per round.
func (p *Processor) bulkStep(state *devstate.DeviceState, oid string, now time.Time) pdu.VarBind {
	if !isWellFormedOID(oid) {
		return pdu.VarBind{OID: oid, Type: oidtree.TypeNoSuchObject, Value: nil}
	}
	e, ok := p.mergeNext(state, oid, now)
	if !ok {
		return pdu.VarBind{OID: oid, Type: oidtree.TypeEndOfMibView, Value: nil}
	}
	return pdu.VarBind{OID: string(e.OID), Type: e.Value.Type, Value: e.Value.Value}
}
