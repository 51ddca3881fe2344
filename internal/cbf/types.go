package cbf

import "example.com/cbfconv/internal/catalog"

// Field is one column of the capture: its position, the optional OBD2 PID
// from the 0x06 descriptor, the name and unit read from the file, and the
// catalog definition when one matched.
type Field struct {
	Index  int
	PID    uint16
	HasPID bool
	Name   string
	Unit   string
	Def    *catalog.Definition
	IsTime bool
}

// Label renders the column heading, name plus unit when one is present.
func (f Field) Label() string {
	if f.Unit == "" {
		return f.Name
	}
	return f.Name + " (" + f.Unit + ")"
}

// Header is the decoded fixed preamble of a CBF file.
type Header struct {
	Program      string
	Mode         string
	Params       string
	Family       catalog.Family
	Fields       []Field
	RecordOffset int64
	HasTimeField bool
}

// Sample is one decoded reading: field identity plus the physical value.
// Scaled is set when a catalog rule was applied to the raw integer;
// otherwise Value holds the token's numeric value as written, and Text
// always preserves the verbatim token.
type Sample struct {
	Field   int
	PID     uint16
	Name    string
	Unit    string
	Raw     int64
	Value   float64
	Text    string
	Numeric bool
	Scaled  bool
	Unknown bool
}

// Record is one timestamp group of samples, in file order.
type Record struct {
	Index     int
	Timestamp float64
	Samples   []Sample
	Offset    int64
	Size      int64
}

// Trailer is the end-of-file structure: the declared record count and the
// AA 55 33 11 marker.
type Trailer struct {
	DeclaredRecords uint32
	Found           bool
	TrailingCRLF    bool
}

// State enumerates the record stream decoder's state machine.
type State int

const (
	StateAtRecordStart State = iota
	StateDecodingFields
	StateEndOfRegion
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateAtRecordStart:
		return "at-record-start"
	case StateDecodingFields:
		return "decoding-fields"
	case StateEndOfRegion:
		return "end-of-region"
	case StateFaulted:
		return "faulted"
	default:
		return "invalid"
	}
}
