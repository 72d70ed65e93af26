package processor

import (
	"time"

	"github.com/devicesim/snmpsim/internal/devstate"
	"github.com/devicesim/snmpsim/internal/oidtree"
	"github.com/devicesim/snmpsim/internal/pdu"
)

// handleGet implements spec.md §4.5.2: GET is a pure lookup, one varbind
// per requested OID, never advancing to a successor — and, unlike
// GETNEXT/GETBULK, the same rule for both protocol versions. An OID
// absent from every source in resolveValue's chain comes back as the
// in-band exception no_such_object; if any varbind hit that exception,
// the whole response reports error_status=noSuchName(2) with
// error_index set to the first exception's 1-based index, varbind order
// and count otherwise preserved.
func (p *Processor) handleGet(state *devstate.DeviceState, req pdu.PDU, now time.Time) pdu.PDU {
	vbs := make([]pdu.VarBind, len(req.VarBinds))
	firstMissing := -1

	for i, in := range req.VarBinds {
		v, ok := p.resolveValue(state, in.OID, now)
		if !ok {
			if firstMissing == -1 {
				firstMissing = i + 1
			}
			vbs[i] = pdu.VarBind{OID: in.OID, Type: oidtree.TypeNoSuchObject, Value: nil}
			continue
		}
		vbs[i] = pdu.VarBind{OID: in.OID, Type: v.Type, Value: v.Value}
	}

	if firstMissing != -1 {
		return response(req, vbs, pdu.NoSuchName, firstMissing)
	}
	return response(req, vbs, pdu.NoError, 0)
}
