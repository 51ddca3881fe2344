package report

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"example.com/cbfconv/internal/catalog"
)

func writeTestCapture(t *testing.T, rows []string) string {
	t.Helper()
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
	var w [4]byte
	binary.LittleEndian.PutUint32(w[:], uint32(len(rows)))
	buf.Write(w[:])
	buf.Write([]byte{0xAA, 0x55, 0x33, 0x11})

	path := filepath.Join(t.TempDir(), "capture.cbf")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestBuildSession(t *testing.T) {
	path := writeTestCapture(t, []string{"3200", "3300", "3500"})
	s, err := BuildSession(path, nil)
	if err != nil {
		t.Fatalf("BuildSession: %v", err)
	}
	if s.Family != catalog.FamilyOBD2 {
		t.Fatalf("family = %s", s.Family)
	}
	if s.Records != 3 || s.DeclaredRecords != 3 || !s.TrailerFound {
		t.Fatalf("session = %+v", s)
	}
	if s.Samples != 3 {
		t.Fatalf("samples = %d", s.Samples)
	}
	if len(s.Parameters) != 1 {
		t.Fatalf("parameters = %+v", s.Parameters)
	}
	p := s.Parameters[0]
	if !p.HasPID || p.PID != 0x0C || !p.Known || p.Samples != 3 {
		t.Fatalf("parameter = %+v", p)
	}
	if p.Scale != 0.25 {
		t.Fatalf("scale = %g", p.Scale)
	}
	if s.FirstTimestamp != 0 || s.LastTimestamp != 2 {
		t.Fatalf("time range = %g..%g", s.FirstTimestamp, s.LastTimestamp)
	}
	if len(s.Sha256) != 64 || s.SizeBytes == 0 {
		t.Fatalf("hash/size = %q, %d", s.Sha256, s.SizeBytes)
	}
	if s.Fault != "" {
		t.Fatalf("fault = %q", s.Fault)
	}
}

func TestSessionJSONRoundTrip(t *testing.T) {
	path := writeTestCapture(t, []string{"3200"})
	s, err := BuildSession(path, nil)
	if err != nil {
		t.Fatalf("BuildSession: %v", err)
	}
	out := filepath.Join(t.TempDir(), "session.json")
	if err := SaveSessionJSON(s, out); err != nil {
		t.Fatalf("SaveSessionJSON: %v", err)
	}
	loaded, err := LoadSessionJSON(out)
	if err != nil {
		t.Fatalf("LoadSessionJSON: %v", err)
	}
	if loaded.Sha256 != s.Sha256 || loaded.Records != s.Records {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestSaveSessionPDF(t *testing.T) {
	path := writeTestCapture(t, []string{"3200", "3300"})
	s, err := BuildSession(path, nil)
	if err != nil {
		t.Fatalf("BuildSession: %v", err)
	}
	out := filepath.Join(t.TempDir(), "session.pdf")
	if err := SaveSessionPDF(s, out); err != nil {
		t.Fatalf("SaveSessionPDF: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("not a PDF: % X", data[:8])
	}
}

func TestFileHashToQR(t *testing.T) {
	png, err := FileHashToQR("ab12cd34", 128)
	if err != nil {
		t.Fatalf("FileHashToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("not a PNG: % X", png[:4])
	}
	if _, err := FileHashToQR("  ", 128); err == nil {
		t.Fatal("empty hash must fail")
	}
}
