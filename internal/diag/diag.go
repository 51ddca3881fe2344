// Package diag carries the structured findings a decode run produces:
// uncataloged parameters, trailer mismatches and clock glitches. Findings
// are the raw material for catalog-extension reports.
package diag

import (
	"encoding/json"
	"io"
	"os"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

const (
	KindUnknownParameter    = "unknown-parameter"
	KindRecordCountMismatch = "record-count-mismatch"
	KindMissingEndMarker    = "missing-end-marker"
	KindClockGlitch         = "clock-glitch"
	KindValueNotNumeric     = "value-not-numeric"
	KindDecodeFault         = "decode-fault"
)

// Finding describes one anomaly with enough context to report it against
// the source file.
type Finding struct {
	Kind      string   `json:"kind"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Offset    int64    `json:"offset,omitempty"`
	Timestamp *float64 `json:"timestamp,omitempty"`
	Parameter string   `json:"parameter,omitempty"`
}

// WriteNDJSON streams findings as newline-delimited JSON.
func WriteNDJSON(w io.Writer, findings []Finding) error {
	enc := json.NewEncoder(w)
	for _, f := range findings {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

// SaveNDJSON writes findings to a file, one JSON object per line.
func SaveNDJSON(path string, findings []Finding) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteNDJSON(f, findings); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Count returns how many findings carry the given severity.
func Count(findings []Finding, severity Severity) int {
	n := 0
	for _, f := range findings {
		if f.Severity == severity {
			n++
		}
	}
	return n
}
