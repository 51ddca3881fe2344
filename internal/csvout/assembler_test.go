package csvout

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"example.com/cbfconv/internal/catalog"
	"example.com/cbfconv/internal/cbf"
)

func sample(field int, name, unit, text string, value float64, scaled bool) cbf.Sample {
	return cbf.Sample{
		Field:   field,
		Name:    name,
		Unit:    unit,
		Text:    text,
		Value:   value,
		Numeric: true,
		Scaled:  scaled,
	}
}

func TestAssemblerUnionOfColumnsAndRows(t *testing.T) {
	fields := []cbf.Field{
		{Index: 0, Name: "P1", Unit: "u"},
		{Index: 1, Name: "P2", Unit: "v"},
	}
	asm := NewAssembler()

	// P1 observed at t=0 and t=2, P2 only at t=1.
	asm.Add(cbf.Record{Timestamp: 0, Samples: []cbf.Sample{
		sample(0, "P1", "u", "10", 10, false),
	}}, fields)
	asm.Add(cbf.Record{Timestamp: 1, Samples: []cbf.Sample{
		sample(1, "P2", "v", "20", 20, false),
	}}, fields)
	asm.Add(cbf.Record{Timestamp: 2, Samples: []cbf.Sample{
		sample(0, "P1", "u", "30", 30, false),
	}}, fields)

	if asm.Rows() != 3 || asm.Samples() != 3 {
		t.Fatalf("rows=%d samples=%d", asm.Rows(), asm.Samples())
	}
	wantCols := []string{"P1 (u)", "P2 (v)"}
	gotCols := asm.Columns()
	if len(gotCols) != len(wantCols) {
		t.Fatalf("columns = %v", gotCols)
	}
	for i := range wantCols {
		if gotCols[i] != wantCols[i] {
			t.Fatalf("columns = %v, want %v", gotCols, wantCols)
		}
	}

	var buf bytes.Buffer
	if err := asm.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "Timestamp,P1 (u),P2 (v)\n" +
		"0,10,\n" +
		"1,,20\n" +
		"2,30,\n"
	if buf.String() != want {
		t.Fatalf("csv = %q, want %q", buf.String(), want)
	}
}

func TestAssemblerScaledPrecision(t *testing.T) {
	def := &catalog.Definition{Name: "Engine RPM", Unit: "rpm", Scale: 0.25, Decimals: 2}
	fields := []cbf.Field{{Index: 0, Name: "Engine RPM", Unit: "rpm", Def: def}}
	asm := NewAssembler()
	asm.Add(cbf.Record{Timestamp: 0.5, Samples: []cbf.Sample{
		sample(0, "Engine RPM", "rpm", "3201", 800.25, true),
	}}, fields)

	var buf bytes.Buffer
	if err := asm.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "Timestamp,Engine RPM (rpm)\n0.5,800.25\n"
	if buf.String() != want {
		t.Fatalf("csv = %q, want %q", buf.String(), want)
	}
}

func TestAssemblerSkipsTimeFields(t *testing.T) {
	fields := []cbf.Field{
		{Index: 0, Name: "Time", Unit: "s", IsTime: true},
		{Index: 1, Name: "Vehicle Speed", Unit: "km/h"},
	}
	asm := NewAssembler()
	asm.Add(cbf.Record{Timestamp: 0, Samples: []cbf.Sample{
		sample(0, "Time", "s", "0", 0, false),
		sample(1, "Vehicle Speed", "km/h", "12", 12, false),
	}}, fields)

	cols := asm.Columns()
	if len(cols) != 1 || cols[0] != "Vehicle Speed (km/h)" {
		t.Fatalf("columns = %v", cols)
	}
}

func TestAssemblerNonNumericTokenVerbatim(t *testing.T) {
	fields := []cbf.Field{{Index: 0, Name: "Fuel System Status", Unit: ""}}
	asm := NewAssembler()
	asm.Add(cbf.Record{Timestamp: 0, Samples: []cbf.Sample{
		{Field: 0, Name: "Fuel System Status", Text: "CL"},
	}}, fields)

	var buf bytes.Buffer
	if err := asm.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !strings.Contains(buf.String(), "CL") {
		t.Fatalf("csv = %q", buf.String())
	}
}

// buildCapture assembles a minimal single-parameter capture for Convert.
func buildCapture(rows []string, withTrailer bool) []byte {
	var buf bytes.Buffer
	cstr := func(s string) {
		buf.WriteString(s)
		buf.WriteByte(0)
	}
	cstr("FOXWELL NT510")
	cstr("OBDII/EOBD")
	buf.Write([]byte{0x7B, 0x14, 0x8E, 0x3F, 0, 0, 0, 0})
	cstr("Live Data")
	buf.Write([]byte{1, 0})
	desc := make([]byte, 10)
	desc[0] = 0x06
	desc[1] = 0x0C
	buf.Write(desc)
	cstr("Engine RPM")
	cstr("rpm")
	for _, tok := range rows {
		cstr(tok)
	}
	if withTrailer {
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], uint32(len(rows)))
		buf.Write(w[:])
		buf.Write([]byte{0xAA, 0x55, 0x33, 0x11})
	}
	return buf.Bytes()
}

func TestConvert(t *testing.T) {
	r, err := cbf.NewBytesReader(buildCapture([]string{"3200", "3300"}, true), nil)
	if err != nil {
		t.Fatalf("NewBytesReader: %v", err)
	}
	var buf bytes.Buffer
	n, err := Convert(r, &buf, false)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if n != 2 {
		t.Fatalf("records = %d, want 2", n)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %v", lines)
	}
	if lines[1] != "0,800.00" || lines[2] != "1,825.00" {
		t.Fatalf("rows = %v", lines[1:])
	}
}

func TestConvertFaultWithoutBestEffort(t *testing.T) {
	data := buildCapture([]string{"3200", "3300"}, false)
	data = data[:len(data)-1]
	r, err := cbf.NewBytesReader(data, nil)
	if err != nil {
		t.Fatalf("NewBytesReader: %v", err)
	}
	var buf bytes.Buffer
	n, err := Convert(r, &buf, false)
	if err == nil {
		t.Fatal("expected fault")
	}
	if buf.Len() != 0 {
		t.Fatalf("output written on fault: %q", buf.String())
	}
	if n != 1 {
		t.Fatalf("records = %d, want 1", n)
	}
}

func TestConvertBestEffortEmitsPartial(t *testing.T) {
	data := buildCapture([]string{"3200", "3300"}, false)
	data = data[:len(data)-1]
	r, err := cbf.NewBytesReader(data, nil)
	if err != nil {
		t.Fatalf("NewBytesReader: %v", err)
	}
	var buf bytes.Buffer
	n, convErr := Convert(r, &buf, true)
	if convErr == nil {
		t.Fatal("expected the fault to be returned alongside partial output")
	}
	if n != 1 {
		t.Fatalf("records = %d, want 1", n)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[1] != "0,800.00" {
		t.Fatalf("lines = %v", lines)
	}
}
