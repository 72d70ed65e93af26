// Package walkparser parses recorded SNMP walk files ("OID = TYPE: value"
// lines, and the pipe-delimited .snmprec form) into OID tree entries.
// Malformed lines are skipped and reported, never fatal.
package walkparser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/devicesim/snmpsim/internal/oidtree"
)

// SkippedLine records one line that failed to parse, for the aggregate
// report spec.md §7 requires ("Walk file parse error → per-line skip;
// aggregate report").
type SkippedLine struct {
	Line   int
	Text   string
	Reason string
}

// Report summarizes a parse pass over a walk file.
type Report struct {
	LinesRead int
	LinesOK   int
	Skipped   []SkippedLine
}

// Parse reads walk-file lines from r and inserts every recognized entry
// into tree. It never returns an error for malformed input; only an
// unreadable stream (I/O error) is returned as err.
func Parse(r io.Reader, tree *oidtree.Tree) (Report, error) {
	var report Report

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		report.LinesRead++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		oid, val, err := parseLine(line)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedLine{
				Line: lineNum, Text: raw, Reason: err.Error(),
			})
			continue
		}

		tree.Insert(oid, val)
		report.LinesOK++
	}

	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("reading walk file: %w", err)
	}
	return report, nil
}

// parseLine dispatches between the "OID = TYPE: value" walk form and the
// "OID|TYPE|VALUE" .snmprec form.
func parseLine(line string) (string, oidtree.Value, error) {
	if strings.Contains(line, "|") && !strings.Contains(line, " = ") {
		return parseSnmprecLine(line)
	}
	return parseWalkLine(line)
}

// parseWalkLine parses "<oid> = <TYPE>: <value>" or "<oid> = <value>"
// (type inferred from the bare value) per spec.md §6.2.
func parseWalkLine(line string) (string, oidtree.Value, error) {
	parts := strings.SplitN(line, " = ", 2)
	if len(parts) != 2 {
		return "", oidtree.Value{}, fmt.Errorf("missing ' = ' separator")
	}

	oid := oidtree.Normalize(strings.TrimSpace(parts[0]))
	if oid == "" {
		return "", oidtree.Value{}, fmt.Errorf("empty OID")
	}

	typ, val, err := parseTypedValue(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", oidtree.Value{}, err
	}
	return oid, oidtree.Value{Type: typ, Value: val}, nil
}

// parseSnmprecLine parses "OID|TYPE|VALUE". Everything after the second
// "|" is the value; a device-routing suffix ("@port" / "@deviceID") is
// not recognized, so it stays part of a string value and makes a numeric
// value fail to parse.
func parseSnmprecLine(line string) (string, oidtree.Value, error) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) < 3 {
		return "", oidtree.Value{}, fmt.Errorf("expected OID|TYPE|VALUE")
	}

	oid := oidtree.Normalize(strings.TrimSpace(parts[0]))
	typeStr := strings.TrimSpace(parts[1])
	valueStr := strings.TrimSpace(parts[2])

	typ, ok := snmprecType(typeStr)
	if !ok {
		return "", oidtree.Value{}, fmt.Errorf("unknown .snmprec type %q", typeStr)
	}

	val, err := decodeSnmprecValue(typ, valueStr)
	if err != nil {
		return "", oidtree.Value{}, err
	}
	return oid, oidtree.Value{Type: typ, Value: val}, nil
}

func snmprecType(s string) (oidtree.Type, bool) {
	switch strings.ToLower(s) {
	case "integer", "int":
		return oidtree.TypeInteger, true
	case "octetstring", "string":
		return oidtree.TypeOctetString, true
	case "objectidentifier", "oid":
		return oidtree.TypeObjectIdentifier, true
	case "ipaddress":
		return oidtree.TypeIPAddress, true
	case "counter32", "counter":
		return oidtree.TypeCounter32, true
	case "counter64":
		return oidtree.TypeCounter64, true
	case "gauge32", "gauge":
		return oidtree.TypeGauge32, true
	case "timeticks":
		return oidtree.TypeTimeTicks, true
	case "opaque":
		return oidtree.TypeOpaque, true
	case "null":
		return oidtree.TypeNull, true
	default:
		return 0, false
	}
}

func decodeSnmprecValue(typ oidtree.Type, s string) (interface{}, error) {
	switch typ {
	case oidtree.TypeInteger:
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid INTEGER %q: %w", s, err)
		}
		return n, nil
	case oidtree.TypeCounter32, oidtree.TypeGauge32, oidtree.TypeTimeTicks:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric value %q: %w", s, err)
		}
		return uint32(n), nil
	case oidtree.TypeCounter64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid Counter64 %q: %w", s, err)
		}
		return n, nil
	case oidtree.TypeNull:
		return nil, nil
	default:
		return s, nil
	}
}

// parseTypedValue parses the RHS of an "OID = ..." walk line, e.g.
//
//	STRING: "Motorola SB6141"
//	Timeticks: (12345) 0:02:03.45
//	Counter32: 1234567
//	INTEGER: 6
//	Hex-STRING: 00 11 22 33
//	OID: .1.3.6.1.4.1.9.9.46.1
func parseTypedValue(rhs string) (oidtree.Type, interface{}, error) {
	typeStr, rest, hasColon := strings.Cut(rhs, ":")
	typeStr = strings.TrimSpace(typeStr)
	rest = strings.TrimSpace(rest)
	if !hasColon {
		// Bare value, no type prefix: infer from shape.
		return inferBareValue(rhs)
	}
	first := ""
	if f := strings.Fields(rest); len(f) > 0 {
		first = f[0]
	}

	switch typeStr {
	case "STRING":
		return oidtree.TypeOctetString, trimQuotes(rest), nil
	case "INTEGER":
		n, err := strconv.Atoi(first)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid INTEGER: %w", err)
		}
		return oidtree.TypeInteger, n, nil
	case "Counter32":
		n, err := strconv.ParseUint(first, 10, 32)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid Counter32: %w", err)
		}
		return oidtree.TypeCounter32, uint32(n), nil
	case "Counter64":
		n, err := strconv.ParseUint(first, 10, 64)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid Counter64: %w", err)
		}
		return oidtree.TypeCounter64, n, nil
	case "Gauge32":
		n, err := strconv.ParseUint(first, 10, 32)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid Gauge32: %w", err)
		}
		return oidtree.TypeGauge32, uint32(n), nil
	case "Timeticks":
		return oidtree.TypeTimeTicks, extractTimeticks(rest), nil
	case "IpAddress":
		return oidtree.TypeIPAddress, strings.TrimSpace(rest), nil
	case "OID":
		return oidtree.TypeObjectIdentifier, oidtree.Normalize(strings.TrimSpace(rest)), nil
	case "Hex-STRING":
		return oidtree.TypeOctetString, strings.TrimSpace(rest), nil
	case "Opaque":
		return oidtree.TypeOpaque, strings.TrimSpace(rest), nil
	case "Network Address", "Null":
		return oidtree.TypeNull, nil, nil
	default:
		return 0, nil, fmt.Errorf("unrecognized type %q", typeStr)
	}
}

func inferBareValue(s string) (oidtree.Type, interface{}, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil, fmt.Errorf("empty value")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return oidtree.TypeInteger, n, nil
	}
	return oidtree.TypeOctetString, trimQuotes(s), nil
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// extractTimeticks pulls the integer centisecond count out of
// "(12345) 0:02:03.45"; the human-readable tail is redundant and dropped.
func extractTimeticks(s string) uint32 {
	start := strings.Index(s, "(")
	end := strings.Index(s, ")")
	if start < 0 || end <= start {
		return 0
	}
	n, _ := strconv.ParseUint(strings.TrimSpace(s[start+1:end]), 10, 32)
	return uint32(n)
}
