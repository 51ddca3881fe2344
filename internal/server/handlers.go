package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/cbfconv/internal/catalog"
	"example.com/cbfconv/internal/cbf"
	"example.com/cbfconv/internal/csvout"
	"example.com/cbfconv/internal/report"
)

// Server coordinates HTTP handlers and manages temporary artifacts produced
// by conversion requests.
type Server struct {
	artifacts   *ArtifactStore
	workDir     string
	uploadsDir  string
	catalog     *catalog.Store
	concurrency int
	sem         chan struct{}
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of generated artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "cbfd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	cat, err := loadCatalog(opts.CatalogPath)
	if err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	s := &Server{
		artifacts:   &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:     workDir,
		uploadsDir:  uploadsDir,
		catalog:     cat,
		concurrency: concurrency,
		sem:         make(chan struct{}, concurrency),
	}
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) acquire() func() {
	s.sem <- struct{}{}
	return func() { <-s.sem }
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	id := randomID()
	art := Artifact{
		ID:          id,
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[id] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

func (s *Server) resolvePath(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty input path")
	}
	if art, ok := s.getArtifact(token); ok {
		return art.Path, nil
	}
	abs := token
	if !filepath.IsAbs(token) {
		abs = filepath.Clean(token)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

type convertRequest struct {
	Input      string   `json:"input"`
	BestEffort bool     `json:"bestEffort"`
	Interval   *float64 `json:"interval"`
	WithReport bool     `json:"withReport"`
}

type convertResult struct {
	records   int
	session   report.Session
	artifacts []ArtifactRef
	decodeErr error
}

func (s *Server) runConvert(req convertRequest) (convertResult, error) {
	release := s.acquire()
	defer release()

	var res convertResult
	inputPath, err := s.resolvePath(req.Input)
	if err != nil {
		return res, fmt.Errorf("input resolve: %w", err)
	}

	reader, err := cbf.NewReader(inputPath, s.catalog)
	if err != nil {
		return res, fmt.Errorf("open capture: %w", err)
	}
	defer reader.Close()
	if req.Interval != nil {
		reader.SetInterval(*req.Interval)
	}

	csvPath, err := s.tempPath("capture-*.csv")
	if err != nil {
		return res, err
	}
	out, err := os.Create(csvPath)
	if err != nil {
		return res, err
	}
	n, decodeErr := csvout.Convert(reader, out, req.BestEffort)
	closeErr := out.Close()
	if decodeErr != nil && !req.BestEffort {
		os.Remove(csvPath)
		return res, decodeErr
	}
	if closeErr != nil {
		return res, closeErr
	}
	res.records = n
	res.decodeErr = decodeErr

	csvArt, err := s.addArtifact(csvPath, "capture.csv", "text/csv", "csv")
	if err != nil {
		return res, err
	}
	res.artifacts = append(res.artifacts, toRef(csvArt))

	if req.WithReport {
		session, err := report.BuildSession(inputPath, s.catalog)
		if err != nil {
			return res, fmt.Errorf("build session: %w", err)
		}
		res.session = session

		jsonPath, err := s.tempPath("session-*.json")
		if err != nil {
			return res, err
		}
		if err := report.SaveSessionJSON(session, jsonPath); err != nil {
			return res, err
		}
		jsonArt, err := s.addArtifact(jsonPath, "session_report.json", "application/json", "report")
		if err != nil {
			return res, err
		}
		res.artifacts = append(res.artifacts, toRef(jsonArt))

		pdfPath, err := s.tempPath("session-*.pdf")
		if err != nil {
			return res, err
		}
		if err := report.SaveSessionPDF(session, pdfPath); err != nil {
			return res, err
		}
		pdfArt, err := s.addArtifact(pdfPath, "session_report.pdf", "application/pdf", "report")
		if err != nil {
			return res, err
		}
		res.artifacts = append(res.artifacts, toRef(pdfArt))
	}

	return res, nil
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stream := r.URL.Query().Get("stream") == "true"
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		http.Error(w, "input required", http.StatusBadRequest)
		return
	}

	if stream {
		writer := NewNDJSONWriter(w)
		w.Header().Set("Content-Type", "application/x-ndjson")
		res, err := s.runConvert(req)
		if err != nil {
			_ = writer.WriteObject(map[string]any{"type": "error", "error": err.Error()})
			return
		}
		for _, f := range res.session.Findings {
			_ = writer.WriteFinding(f)
		}
		summary := struct {
			Type      string        `json:"type"`
			Records   int           `json:"records"`
			Fault     string        `json:"fault,omitempty"`
			Artifacts []ArtifactRef `json:"artifacts"`
		}{
			Type:      "summary",
			Records:   res.records,
			Artifacts: res.artifacts,
		}
		if res.decodeErr != nil {
			summary.Fault = res.decodeErr.Error()
		}
		_ = writer.WriteObject(summary)
		return
	}

	res, err := s.runConvert(req)
	if err != nil {
		status := http.StatusInternalServerError
		var de *cbf.DecodeError
		if errors.As(err, &de) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}
	resp := struct {
		Records   int           `json:"records"`
		Fault     string        `json:"fault,omitempty"`
		Artifacts []ArtifactRef `json:"artifacts"`
	}{
		Records:   res.records,
		Artifacts: res.artifacts,
	}
	if res.decodeErr != nil {
		resp.Fault = res.decodeErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		http.Error(w, "input required", http.StatusBadRequest)
		return
	}
	inputPath, err := s.resolvePath(req.Input)
	if err != nil {
		http.Error(w, fmt.Sprintf("input resolve: %v", err), http.StatusBadRequest)
		return
	}
	session, err := report.BuildSession(inputPath, s.catalog)
	if err != nil {
		status := http.StatusInternalServerError
		var de *cbf.DecodeError
		if errors.As(err, &de) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, fmt.Sprintf("inspect: %v", err), status)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleFamilies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	families := []string{string(catalog.FamilyOBD2), string(catalog.FamilyHonda)}
	writeJSON(w, http.StatusOK, families)
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	disposition := fmt.Sprintf("attachment; filename=\"%s\"", art.Name)
	w.Header().Set("Content-Disposition", disposition)
	io.Copy(w, f)
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

func (s *Server) handleArtifactList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.listArtifacts())
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".ndjson":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".cbf":
		return "application/octet-stream"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}
