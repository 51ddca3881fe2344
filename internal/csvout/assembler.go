// Package csvout pivots a decoded sample stream into tabular CSV: one row
// per timestamp, one column per parameter ever seen, empty cells for
// readings absent at a given timestamp.
package csvout

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"strconv"

	"example.com/cbfconv/internal/cbf"
)

type column struct {
	key      string
	label    string
	decimals int
	scaled   bool
}

type row struct {
	timestamp float64
	cells     map[string]string
}

// Assembler buffers the full record stream before emitting, because the
// column set is only known once the whole file has been seen.
type Assembler struct {
	columns     []column
	columnIndex map[string]int
	rows        []row
	rowIndex    map[float64]int
	samples     int
}

func NewAssembler() *Assembler {
	return &Assembler{
		columnIndex: make(map[string]int),
		rowIndex:    make(map[float64]int),
	}
}

func columnKey(s cbf.Sample) string {
	if s.Unit == "" {
		return s.Name
	}
	return s.Name + "\x00" + s.Unit
}

func columnLabel(s cbf.Sample) string {
	if s.Unit == "" {
		return s.Name
	}
	return s.Name + " (" + s.Unit + ")"
}

// Add folds one record into the table. Rows keep first-seen timestamp
// order and columns keep first-seen parameter order.
func (a *Assembler) Add(rec cbf.Record, fields []cbf.Field) {
	ri, ok := a.rowIndex[rec.Timestamp]
	if !ok {
		ri = len(a.rows)
		a.rows = append(a.rows, row{timestamp: rec.Timestamp, cells: make(map[string]string)})
		a.rowIndex[rec.Timestamp] = ri
	}
	for _, s := range rec.Samples {
		if fieldIsTime(fields, s.Field) {
			continue
		}
		key := columnKey(s)
		if _, seen := a.columnIndex[key]; !seen {
			col := column{key: key, label: columnLabel(s)}
			if s.Field < len(fields) && fields[s.Field].Def != nil {
				col.decimals = fields[s.Field].Def.Decimals
				col.scaled = true
			}
			a.columnIndex[key] = len(a.columns)
			a.columns = append(a.columns, col)
		}
		a.rows[ri].cells[key] = formatSample(s, a.columns[a.columnIndex[key]])
		a.samples++
	}
}

func fieldIsTime(fields []cbf.Field, idx int) bool {
	return idx < len(fields) && fields[idx].IsTime
}

// formatSample renders one cell with precision matching the parameter's
// scale, avoiding binary floating-point noise in the output.
func formatSample(s cbf.Sample, col column) string {
	switch {
	case s.Numeric && s.Scaled:
		return strconv.FormatFloat(s.Value, 'f', col.decimals, 64)
	case s.Numeric && !math.IsNaN(s.Value):
		// Uncataloged or pre-scaled reading: keep the token as written.
		return s.Text
	default:
		return s.Text
	}
}

// Columns reports the discovered parameter labels in first-seen order.
func (a *Assembler) Columns() []string {
	out := make([]string, len(a.columns))
	for i, c := range a.columns {
		out[i] = c.label
	}
	return out
}

// Rows reports the number of distinct timestamps buffered.
func (a *Assembler) Rows() int {
	return len(a.rows)
}

// Samples reports the number of cells filled.
func (a *Assembler) Samples() int {
	return a.samples
}

// WriteCSV emits the header row and one data row per timestamp. Absent
// readings become empty cells.
func (a *Assembler) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(a.columns)+1)
	header = append(header, "Timestamp")
	for _, c := range a.columns {
		header = append(header, c.label)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	line := make([]string, len(header))
	for _, r := range a.rows {
		line[0] = strconv.FormatFloat(r.timestamp, 'f', -1, 64)
		for i, c := range a.columns {
			line[i+1] = r.cells[c.key]
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Convert drains the reader into w as CSV. With bestEffort set, a faulted
// stream still emits everything decoded before the fault and the fault is
// returned alongside the record count; otherwise nothing is written on
// fault.
func Convert(r *cbf.Reader, w io.Writer, bestEffort bool) (int, error) {
	asm := NewAssembler()
	fields := r.Header().Fields
	var decodeErr error
	n := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			decodeErr = err
			break
		}
		asm.Add(rec, fields)
		n++
	}
	if decodeErr != nil && !bestEffort {
		return n, decodeErr
	}
	if err := asm.WriteCSV(w); err != nil {
		return n, err
	}
	return n, decodeErr
}
