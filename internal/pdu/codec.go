package pdu

import (
	"fmt"

	"github.com/gosnmp/gosnmp"

	"github.com/devicesim/snmpsim/internal/oidtree"
)

// DecodeMessage decodes a raw UDP payload into a Message. SNMPv3 packets
// (and anything else unrecognized) decode to ErrUnsupportedVersion;
// truncated or ill-formed BER decodes to ErrMalformed. Both are silent-drop
// conditions for the caller (spec.md §7).
func DecodeMessage(data []byte) (*Message, error) {
	wireVersion, err := peekVersion(data)
	if err != nil {
		return nil, err
	}

	var gv gosnmp.SnmpVersion
	switch wireVersion {
	case 0:
		gv = gosnmp.Version1
	case 1:
		gv = gosnmp.Version2c
	default:
		return nil, ErrUnsupportedVersion
	}

	decoder := &gosnmp.GoSNMP{Version: gv}
	pkt, err := decoder.SnmpDecodePacket(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return fromWire(pkt), nil
}

// EncodeMessage BER-encodes a Message for a UDP reply.
func EncodeMessage(m *Message) ([]byte, error) {
	pkt := toWire(m)
	data, err := pkt.MarshalMsg()
	if err != nil {
		return nil, fmt.Errorf("encode snmp message: %w", err)
	}
	return data, nil
}

func fromWire(pkt *gosnmp.SnmpPacket) *Message {
	version := V1
	if pkt.Version == gosnmp.Version2c {
		version = V2c
	}

	vbs := make([]VarBind, 0, len(pkt.Variables))
	for _, v := range pkt.Variables {
		vbs = append(vbs, VarBind{
			OID:   oidtree.Normalize(v.Name),
			Type:  typeFromWire(v.Type),
			Value: v.Value,
		})
	}

	return &Message{
		Version:   version,
		Community: pkt.Community,
		PDU: PDU{
			Type:           pduTypeFromWire(pkt.PDUType),
			RequestID:      pkt.RequestID,
			ErrorStatus:    ErrorStatus(pkt.Error),
			ErrorIndex:     int(pkt.ErrorIndex),
			VarBinds:       vbs,
			NonRepeaters:   int(pkt.NonRepeaters),
			MaxRepetitions: int(pkt.MaxRepetitions),
		},
	}
}

func toWire(m *Message) *gosnmp.SnmpPacket {
	gv := gosnmp.Version1
	if m.Version == V2c {
		gv = gosnmp.Version2c
	}

	vars := make([]gosnmp.SnmpPDU, 0, len(m.PDU.VarBinds))
	for _, vb := range m.PDU.VarBinds {
		vars = append(vars, gosnmp.SnmpPDU{
			Name:  "." + vb.OID,
			Type:  typeToWire(vb.Type),
			Value: vb.Value,
		})
	}

	return &gosnmp.SnmpPacket{
		Version:        gv,
		Community:      m.Community,
		PDUType:        pduTypeToWire(m.PDU.Type),
		RequestID:      m.PDU.RequestID,
		Error:          gosnmp.SNMPError(m.PDU.ErrorStatus),
		ErrorIndex:     uint8(m.PDU.ErrorIndex),
		Variables:      vars,
		NonRepeaters:   uint8(m.PDU.NonRepeaters),
		MaxRepetitions: uint8(m.PDU.MaxRepetitions),
	}
}

func pduTypeFromWire(t gosnmp.PDUType) Type {
	switch t {
	case gosnmp.GetNextRequest:
		return TypeGetNextRequest
	case gosnmp.GetBulkRequest:
		return TypeGetBulkRequest
	case gosnmp.SetRequest:
		return TypeSetRequest
	case gosnmp.GetResponse:
		return TypeGetResponse
	case gosnmp.Report:
		return TypeReport
	default:
		return TypeGetRequest
	}
}

func pduTypeToWire(t Type) gosnmp.PDUType {
	switch t {
	case TypeGetNextRequest:
		return gosnmp.GetNextRequest
	case TypeGetBulkRequest:
		return gosnmp.GetBulkRequest
	case TypeSetRequest:
		return gosnmp.SetRequest
	case TypeReport:
		return gosnmp.Report
	case TypeGetResponse:
		return gosnmp.GetResponse
	default:
		return gosnmp.GetRequest
	}
}

func typeFromWire(t gosnmp.Asn1BER) oidtree.Type {
	switch t {
	case gosnmp.Integer:
		return oidtree.TypeInteger
	case gosnmp.Counter32:
		return oidtree.TypeCounter32
	case gosnmp.Counter64:
		return oidtree.TypeCounter64
	case gosnmp.Gauge32:
		return oidtree.TypeGauge32
	case gosnmp.TimeTicks:
		return oidtree.TypeTimeTicks
	case gosnmp.ObjectIdentifier:
		return oidtree.TypeObjectIdentifier
	case gosnmp.IPAddress:
		return oidtree.TypeIPAddress
	case gosnmp.Opaque:
		return oidtree.TypeOpaque
	case gosnmp.NoSuchObject:
		return oidtree.TypeNoSuchObject
	case gosnmp.NoSuchInstance:
		return oidtree.TypeNoSuchInstance
	case gosnmp.EndOfMibView:
		return oidtree.TypeEndOfMibView
	case gosnmp.Null:
		return oidtree.TypeNull
	default:
		return oidtree.TypeOctetString
	}
}

func typeToWire(t oidtree.Type) gosnmp.Asn1BER {
	switch t {
	case oidtree.TypeInteger:
		return gosnmp.Integer
	case oidtree.TypeCounter32:
		return gosnmp.Counter32
	case oidtree.TypeCounter64:
		return gosnmp.Counter64
	case oidtree.TypeGauge32:
		return gosnmp.Gauge32
	case oidtree.TypeTimeTicks:
		return gosnmp.TimeTicks
	case oidtree.TypeObjectIdentifier:
		return gosnmp.ObjectIdentifier
	case oidtree.TypeIPAddress:
		return gosnmp.IPAddress
	case oidtree.TypeOpaque:
		return gosnmp.Opaque
	case oidtree.TypeNoSuchObject:
		return gosnmp.NoSuchObject
	case oidtree.TypeNoSuchInstance:
		return gosnmp.NoSuchInstance
	case oidtree.TypeEndOfMibView:
		return gosnmp.EndOfMibView
	case oidtree.TypeNull:
		return gosnmp.Null
	default:
		return gosnmp.OctetString
	}
}
