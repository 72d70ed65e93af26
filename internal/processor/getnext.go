package processor

import (
	"strconv"
	"strings"
	"time"

	"github.com/devicesim/snmpsim/internal/devstate"
	"github.com/devicesim/snmpsim/internal/oidtree"
	"github.com/devicesim/snmpsim/internal/pdu"
)

// handleGetNext implements spec.md §4.5.3: each varbind's OID advances to
// its lexicographic successor in the device type's tree (or overlay),
// with counter/gauge/sysUpTime/DOCSIS OIDs spliced in as ordinary leaves
// by mergeNext. Per the version-mapping table, error_status/error_index
// on the response PDU stay 0 regardless of version — every terminal
// condition is reported in-band, as the named varbind's exception value.
func (p *Processor) handleGetNext(state *devstate.DeviceState, req pdu.PDU, now time.Time, version pdu.Version) pdu.PDU {
	return p.handleGetNextSequence(state, req, now, version)
}

// handleGetNextSequence computes one successor per input varbind; it is
// shared by plain GETNEXT and the v1-malformed-GETBULK fallback (spec.md
// §4.5.4: "a v1 GETBULK is invalid and should be treated as an ordinary
// GETNEXT over its varbinds").
//
// A malformed/unparseable start OID is the one terminal condition this
// spec still routes through the PDU-level error_status for v1: RFC 1157
// has no wire encoding for a per-varbind exception, and no v1 agent ever
// reports a malformed query as an in-band value, so v1 fails the whole
// request with noSuchName(2) there while every other terminal condition
// stays in-band per the table.
func (p *Processor) handleGetNextSequence(state *devstate.DeviceState, req pdu.PDU, now time.Time, version pdu.Version) pdu.PDU {
	vbs := make([]pdu.VarBind, len(req.VarBinds))

	for i, in := range req.VarBinds {
		if !isWellFormedOID(in.OID) {
			if version == pdu.V1 {
				return response(req, req.VarBinds, pdu.NoSuchName, i+1)
			}
			vbs[i] = pdu.VarBind{OID: in.OID, Type: oidtree.TypeNoSuchObject, Value: nil}
			continue
		}

		e, ok := p.mergeNext(state, in.OID, now)
		if !ok {
			if version == pdu.V1 {
				vbs[i] = pdu.VarBind{OID: in.OID, Type: oidtree.TypeNoSuchObject, Value: nil}
			} else {
				vbs[i] = pdu.VarBind{OID: in.OID, Type: oidtree.TypeEndOfMibView, Value: nil}
			}
			continue
		}
		vbs[i] = pdu.VarBind{OID: string(e.OID), Type: e.Value.Type, Value: e.Value.Value}
	}

	return response(req, vbs, pdu.NoError, 0)
}

// isWellFormedOID reports whether oid is a syntactically valid dotted
// numeric OID (spec.md §4.5.3's "invalid start OID" condition). It is not
// a check against anything in the tree — a well-formed OID with no
// successor is simply end-of-MIB.
func isWellFormedOID(oid string) bool {
	oid = oidtree.Normalize(oid)
	if oid == "" {
		return false
	}
	for _, part := range strings.Split(oid, ".") {
		if part == "" {
			return false
		}
		if _, err := strconv.ParseUint(part, 10, 64); err != nil {
			return false
		}
	}
	return true
}

// mergeNext returns the successor of oid across every live source
// (dynamic scalars, sysUpTime, DOCSIS, overlay/profile), since those
// scalars are not necessarily present as static leaves in the tree being
// walked — a behavior-bound OID is still a first-class tree member for
// GetNext purposes (spec.md §4.5.1, §8.1 invariant on walk completeness).
func (p *Processor) mergeNext(state *devstate.DeviceState, oid string, now time.Time) (oidtree.Entry, bool) {
	oid = oidtree.Normalize(oid)

	treeNext, treeOK := p.resolveNext(state, oid, now)

	candidates := make([]oidtree.OID, 0, 4)
	if treeOK {
		candidates = append(candidates, treeNext.OID)
	}
	for candOID := range state.CounterBehaviors {
		if oidtree.Less(oid, oidtree.OID(candOID)) {
			candidates = append(candidates, oidtree.OID(candOID))
		}
	}
	for candOID := range state.GaugeBehaviors {
		if oidtree.Less(oid, oidtree.OID(candOID)) {
			candidates = append(candidates, oidtree.OID(candOID))
		}
	}
	if oidtree.Less(oid, oidtree.OID(devstate.SysUpTimeOID)) {
		candidates = append(candidates, oidtree.OID(devstate.SysUpTimeOID))
	}
	if state.DeviceType == CableModemDeviceType {
		for _, docsOID := range []string{
			devstate.DocsDevSwAdminStatusOID,
			devstate.DocsDevSwOperStatusOID,
			devstate.DocsDevSwServerOID,
			devstate.DocsDevSwFilenameOID,
		} {
			if oidtree.Less(oid, oidtree.OID(docsOID)) {
				candidates = append(candidates, oidtree.OID(docsOID))
			}
		}
	}

	if len(candidates) == 0 {
		return oidtree.Entry{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if oidtree.Less(c, best) {
			best = c
		}
	}

	v, ok := p.resolveValue(state, string(best), now)
	if !ok {
		return oidtree.Entry{}, false
	}
	return oidtree.Entry{OID: best, Value: v}, true
}
