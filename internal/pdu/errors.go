package pdu

import "errors"

// ErrUnsupportedVersion is returned by DecodeMessage for SNMPv3 (and any
// other unrecognized version) messages. SNMPv3 is out of scope (spec.md §1
// Non-goals); callers must not respond (spec.md §6.1).
var ErrUnsupportedVersion = errors.New("pdu: unsupported snmp version")

// ErrMalformed is returned for packets that fail to decode as valid BER
// for their apparent version. Callers must silently drop (spec.md §7).
var ErrMalformed = errors.New("pdu: malformed packet")
