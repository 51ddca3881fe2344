package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func buildTestCapture(rows []string, withTrailer bool) []byte {
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

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	srv, err := NewServer(Options{StorageDir: t.TempDir(), Concurrency: 2})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, NewRouter(srv)
}

func uploadCapture(t *testing.T, router http.Handler, data []byte) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "capture.cbf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Files []ArtifactRef `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if len(resp.Files) != 1 || resp.Files[0].ID == "" {
		t.Fatalf("upload response = %+v", resp)
	}
	return resp.Files[0].ID
}

func TestConvertEndpoint(t *testing.T) {
	_, router := newTestServer(t)
	id := uploadCapture(t, router, buildTestCapture([]string{"3200", "3300"}, true))

	payload := fmt.Sprintf(`{"input":%q,"withReport":true}`, id)
	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Records   int           `json:"records"`
		Fault     string        `json:"fault"`
		Artifacts []ArtifactRef `json:"artifacts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Records != 2 || resp.Fault != "" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Artifacts) != 3 {
		t.Fatalf("artifacts = %+v", resp.Artifacts)
	}

	// Download the CSV artifact.
	var csvID string
	for _, art := range resp.Artifacts {
		if art.Kind == "csv" {
			csvID = art.ID
		}
	}
	if csvID == "" {
		t.Fatalf("no csv artifact in %+v", resp.Artifacts)
	}
	dlReq := httptest.NewRequest(http.MethodGet, "/artifacts/"+csvID, nil)
	dlRec := httptest.NewRecorder()
	router.ServeHTTP(dlRec, dlReq)
	if dlRec.Code != http.StatusOK {
		t.Fatalf("download status = %d", dlRec.Code)
	}
	if got := dlRec.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("content type = %q", got)
	}
	if !strings.HasPrefix(dlRec.Body.String(), "Timestamp,Engine RPM (rpm)") {
		t.Fatalf("csv = %q", dlRec.Body.String())
	}
}

func TestConvertEndpointStream(t *testing.T) {
	_, router := newTestServer(t)
	id := uploadCapture(t, router, buildTestCapture([]string{"3200"}, true))

	payload := fmt.Sprintf(`{"input":%q}`, id)
	req := httptest.NewRequest(http.MethodPost, "/convert?stream=true", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/x-ndjson" {
		t.Fatalf("content type = %q", got)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	var summary struct {
		Type    string `json:"type"`
		Records int    `json:"records"`
	}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Type != "summary" || summary.Records != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestConvertEndpointRejectsGarbage(t *testing.T) {
	_, router := newTestServer(t)
	id := uploadCapture(t, router, []byte("this is not a capture\x00either\x00"))

	payload := fmt.Sprintf(`{"input":%q}`, id)
	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInspectEndpoint(t *testing.T) {
	_, router := newTestServer(t)
	id := uploadCapture(t, router, buildTestCapture([]string{"3200", "3300", "3500"}, true))

	payload := fmt.Sprintf(`{"input":%q}`, id)
	req := httptest.NewRequest(http.MethodPost, "/inspect", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var session struct {
		Family     string `json:"family"`
		Records    int    `json:"records"`
		Parameters []struct {
			Name  string `json:"name"`
			Known bool   `json:"known"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.Family != "obd2" || session.Records != 3 {
		t.Fatalf("session = %+v", session)
	}
	if len(session.Parameters) != 1 || !session.Parameters[0].Known {
		t.Fatalf("parameters = %+v", session.Parameters)
	}
}

func TestFamiliesEndpoint(t *testing.T) {
	_, router := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/families", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var families []string
	if err := json.Unmarshal(rec.Body.Bytes(), &families); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(families) != 2 {
		t.Fatalf("families = %v", families)
	}
}

func TestConvertRequiresInput(t *testing.T) {
	_, router := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestArtifactNotFound(t *testing.T) {
	_, router := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/artifacts/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
