// Package pdu defines the wire-agnostic SNMP message/PDU/varbind types the
// rest of the module programs against, and translates them to and from
// github.com/gosnmp/gosnmp's BER codec — the teacher's own dependency for
// ASN.1 encode/decode, reused here rather than hand-rolled.
package pdu

import "github.com/devicesim/snmpsim/internal/oidtree"

// Version is the SNMP protocol version carried in a Message.
type Version int

const (
	V1  Version = 0
	V2c Version = 1
)

// Type is a PDU's operation. Unlike oidtree.Type (a varbind's value type),
// Type here names the request/response kind.
type Type int

const (
	TypeGetRequest Type = iota
	TypeGetNextRequest
	TypeGetBulkRequest
	TypeSetRequest
	TypeGetResponse
	TypeReport
)

// ErrorStatus is the PDU-level error code, spec.md §4.5.6.
type ErrorStatus int

const (
	NoError             ErrorStatus = 0
	TooBig              ErrorStatus = 1
	NoSuchName          ErrorStatus = 2
	BadValue            ErrorStatus = 3
	ReadOnly            ErrorStatus = 4
	GenErr              ErrorStatus = 5
	NoAccess            ErrorStatus = 6
	WrongType           ErrorStatus = 7
	WrongLength         ErrorStatus = 8
	WrongEncoding       ErrorStatus = 9
	WrongValue          ErrorStatus = 10
	NoCreation          ErrorStatus = 11
	InconsistentValue   ErrorStatus = 12
	ResourceUnavailable ErrorStatus = 13
	CommitFailed        ErrorStatus = 14
	UndoFailed          ErrorStatus = 15
	AuthorizationError  ErrorStatus = 16
	NotWritable         ErrorStatus = 17
	InconsistentName    ErrorStatus = 18
)

// VarBind is a (oid, type, value) triple. Type reuses oidtree.Type so
// exception values (NoSuchObject/NoSuchInstance/EndOfMibView) share one
// vocabulary between the OID store and the wire codec.
type VarBind struct {
	OID   string
	Type  oidtree.Type
	Value interface{}
}

// PDU is one SNMP request or response.
type PDU struct {
	Type           Type
	RequestID      int32
	ErrorStatus    ErrorStatus
	ErrorIndex     int
	VarBinds       []VarBind
	NonRepeaters   int // GetBulkRequest only
	MaxRepetitions int // GetBulkRequest only
}

// Message is the outermost SNMPv1/v2c envelope.
type Message struct {
	Version   Version
	Community string
	PDU       PDU
}
