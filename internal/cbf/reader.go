package cbf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"example.com/cbfconv/internal/catalog"
	"example.com/cbfconv/internal/common"
	"example.com/cbfconv/internal/diag"
)

// Reader decodes the record region of one CBF file as a lazy, forward-only
// stream. The header is decoded eagerly on construction; each Next call
// yields one record until the trailer is reached or the stream faults.
type Reader struct {
	data    []byte
	cursor  *Cursor
	catalog *catalog.Store
	header  Header

	state State
	fault *DecodeError
	index int

	interval float64
	lastTS   float64
	tsSeen   bool

	trailer     Trailer
	findings    []diag.Finding
	unknownSeen map[int]bool

	metrics *common.Metrics
}

// NewReader buffers the file at path and decodes its header. A nil
// catalog selects the builtin one.
func NewReader(path string, cat *catalog.Store) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewBytesReader(data, cat)
}

// NewBytesReader decodes a CBF already held in memory.
func NewBytesReader(data []byte, cat *catalog.Store) (*Reader, error) {
	if cat == nil {
		cat = catalog.Builtin()
	}
	cursor := NewCursor(data)
	hdr, err := DecodeHeader(cursor, cat)
	if err != nil {
		return nil, err
	}
	return &Reader{
		data:        data,
		cursor:      cursor,
		catalog:     cat,
		header:      hdr,
		state:       StateAtRecordStart,
		interval:    1.0,
		unknownSeen: make(map[int]bool),
	}, nil
}

// Close releases the buffered file. A consumer may abandon the stream at
// any point; Close is idempotent and subsequent Next calls return io.EOF.
func (r *Reader) Close() error {
	r.data = nil
	r.cursor = nil
	return nil
}

// Header returns the decoded preamble.
func (r *Reader) Header() Header {
	return r.header
}

// SetInterval sets the derived-timestamp sampling interval in seconds,
// used when the capture carries no time column.
func (r *Reader) SetInterval(seconds float64) {
	if seconds > 0 {
		r.interval = seconds
	}
}

// SetMetrics attaches a metrics recorder to the reader. The header bytes
// already consumed count toward progress immediately.
func (r *Reader) SetMetrics(m *common.Metrics) {
	r.metrics = m
	if r.metrics != nil {
		r.metrics.SetTotalBytes(int64(len(r.data)))
		r.metrics.AddBytes(r.header.RecordOffset)
	}
}

// State reports the decoder's current state.
func (r *Reader) State() State {
	return r.state
}

// Trailer returns the end-of-file structure once StateEndOfRegion is
// reached; Found is false before that.
func (r *Reader) Trailer() Trailer {
	return r.trailer
}

// Findings returns the diagnostics accumulated so far.
func (r *Reader) Findings() []diag.Finding {
	out := make([]diag.Finding, len(r.findings))
	copy(out, r.findings)
	return out
}

// LastTimestamp reports the last successfully decoded record timestamp.
func (r *Reader) LastTimestamp() (float64, bool) {
	return r.lastTS, r.tsSeen
}

func (r *Reader) addFinding(f diag.Finding) {
	r.findings = append(r.findings, f)
}

func (r *Reader) faultWith(err error) (Record, error) {
	r.state = StateFaulted
	if de, ok := err.(*DecodeError); ok {
		de.Timestamp = r.lastTS
		de.HasTime = r.tsSeen
		r.fault = de
	} else {
		r.fault = &DecodeError{
			Kind:      ErrFaulted,
			Offset:    r.cursor.Offset(),
			Timestamp: r.lastTS,
			HasTime:   r.tsSeen,
			Detail:    err.Error(),
		}
	}
	ts := r.lastTS
	finding := diag.Finding{
		Kind:     diag.KindDecodeFault,
		Severity: diag.SeverityError,
		Message:  r.fault.Error(),
		Offset:   r.fault.Offset,
	}
	if r.tsSeen {
		finding.Timestamp = &ts
	}
	r.addFinding(finding)
	return Record{}, r.fault
}

// Next advances to the next record. It returns io.EOF when the end of the
// record region is reached, and the fault error once the stream faulted.
func (r *Reader) Next() (Record, error) {
	if r.cursor == nil {
		return Record{}, io.EOF
	}
	switch r.state {
	case StateEndOfRegion:
		return Record{}, io.EOF
	case StateFaulted:
		return Record{}, r.fault
	}

	// Trailer layout: uint32 LE record count, then AA 55 33 11. Marker
	// bytes cannot occur inside the ASCII value stream.
	if peek, err := r.cursor.Peek(8); err == nil && bytes.Equal(peek[4:8], endMarker) {
		return r.finishRegion()
	}
	if r.cursor.Remaining() == 0 {
		common.Logf("file ends at offset %d without trailer marker", r.cursor.Offset())
		r.addFinding(diag.Finding{
			Kind:     diag.KindMissingEndMarker,
			Severity: diag.SeverityWarning,
			Message:  "file ends without trailer marker",
			Offset:   r.cursor.Offset(),
		})
		r.state = StateEndOfRegion
		return Record{}, io.EOF
	}

	return r.decodeRecord()
}

func (r *Reader) finishRegion() (Record, error) {
	declared, err := r.cursor.Uint32LE()
	if err != nil {
		return r.faultWith(err)
	}
	if err := r.cursor.Skip(len(endMarker)); err != nil {
		return r.faultWith(err)
	}
	r.trailer = Trailer{DeclaredRecords: declared, Found: true}
	if tail, err := r.cursor.Peek(2); err == nil && bytes.Equal(tail, []byte{'\r', '\n'}) {
		// Honda captures append CR LF after the marker.
		r.trailer.TrailingCRLF = true
	}
	if declared != uint32(r.index) {
		r.addFinding(diag.Finding{
			Kind:     diag.KindRecordCountMismatch,
			Severity: diag.SeverityWarning,
			Message:  fmt.Sprintf("read %d records but trailer declares %d", r.index, declared),
			Offset:   r.cursor.Offset(),
		})
	}
	r.state = StateEndOfRegion
	return Record{}, io.EOF
}

func (r *Reader) decodeRecord() (Record, error) {
	r.state = StateDecodingFields
	start := r.cursor.Offset()
	rec := Record{Index: r.index, Offset: start}
	rec.Samples = make([]Sample, 0, len(r.header.Fields))

	timeVal := 0.0
	timeOK := false
	for i := range r.header.Fields {
		field := &r.header.Fields[i]
		raw, err := r.cursor.CString()
		if err != nil {
			return r.faultWith(err)
		}
		sample := r.decodeSample(field, raw)
		if field.IsTime && sample.Numeric {
			timeVal = sample.Value
			timeOK = true
		}
		rec.Samples = append(rec.Samples, sample)
	}

	if r.header.HasTimeField && timeOK {
		rec.Timestamp = timeVal
		if r.tsSeen && timeVal < r.lastTS {
			ts := timeVal
			r.addFinding(diag.Finding{
				Kind:      diag.KindClockGlitch,
				Severity:  diag.SeverityWarning,
				Message:   fmt.Sprintf("record %d time %g precedes previous %g; order preserved", r.index, timeVal, r.lastTS),
				Offset:    start,
				Timestamp: &ts,
			})
		}
	} else {
		rec.Timestamp = float64(r.index) * r.interval
	}

	rec.Size = r.cursor.Offset() - start
	if r.metrics != nil {
		r.metrics.AddRecord(rec.Size, len(rec.Samples))
	}
	r.lastTS = rec.Timestamp
	r.tsSeen = true
	r.index++
	r.state = StateAtRecordStart
	return rec, nil
}

func (r *Reader) decodeSample(field *Field, raw []byte) Sample {
	token := strings.TrimSpace(string(raw))
	sample := Sample{
		Field:   field.Index,
		PID:     field.PID,
		Name:    field.Name,
		Unit:    field.Unit,
		Text:    token,
		Unknown: field.Def == nil,
	}
	if sample.Unknown && !field.IsTime && !r.unknownSeen[field.Index] {
		r.unknownSeen[field.Index] = true
		common.Logf("parameter %q not in %s catalog", field.Name, r.header.Family)
		r.addFinding(diag.Finding{
			Kind:      diag.KindUnknownParameter,
			Severity:  diag.SeverityWarning,
			Message:   fmt.Sprintf("parameter %q not in %s catalog; raw values passed through", field.Name, r.header.Family),
			Offset:    r.cursor.Offset(),
			Parameter: field.Name,
		})
	}
	if rawInt, err := strconv.ParseInt(token, 10, 64); err == nil {
		sample.Numeric = true
		sample.Raw = rawInt
		if field.Def != nil {
			sample.Value = field.Def.Physical(rawInt)
			sample.Scaled = true
		} else {
			sample.Value = float64(rawInt)
		}
		return sample
	}
	// Some firmware writes pre-scaled decimals; pass the numeric value
	// through without applying the catalog rule again.
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		sample.Numeric = true
		sample.Value = f
	}
	return sample
}

// ScanFile decodes an entire file in one call, returning whatever was
// decoded before a fault together with the fault itself.
func ScanFile(path string, cat *catalog.Store) (Header, []Record, Trailer, []diag.Finding, error) {
	r, err := NewReader(path, cat)
	if err != nil {
		return Header{}, nil, Trailer{}, nil, err
	}
	defer r.Close()

	var records []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return r.Header(), records, r.Trailer(), r.Findings(), nil
		}
		if err != nil {
			return r.Header(), records, r.Trailer(), r.Findings(), err
		}
		records = append(records, rec)
	}
}
