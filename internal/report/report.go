package report

import (
	"encoding/json"
	"os"
	"time"

	"example.com/cbfconv/internal/catalog"
	"example.com/cbfconv/internal/cbf"
	"example.com/cbfconv/internal/common"
	"example.com/cbfconv/internal/diag"
)

// ParameterInfo describes one capture column for the session report.
type ParameterInfo struct {
	Index   int     `json:"index"`
	PID     uint16  `json:"pid,omitempty"`
	HasPID  bool    `json:"hasPid"`
	Name    string  `json:"name"`
	Unit    string  `json:"unit,omitempty"`
	Scale   float64 `json:"scale,omitempty"`
	Offset  float64 `json:"offset,omitempty"`
	Known   bool    `json:"known"`
	IsTime  bool    `json:"isTime,omitempty"`
	Samples int     `json:"samples"`
}

// Session is the full decoded summary of one capture file.
type Session struct {
	Input           string          `json:"input"`
	Sha256          string          `json:"sha256"`
	SizeBytes       int64           `json:"sizeBytes"`
	Family          catalog.Family  `json:"family"`
	Program         string          `json:"program"`
	Mode            string          `json:"mode"`
	Params          string          `json:"params,omitempty"`
	Parameters      []ParameterInfo `json:"parameters"`
	Records         int             `json:"records"`
	DeclaredRecords uint32          `json:"declaredRecords"`
	TrailerFound    bool            `json:"trailerFound"`
	Samples         int             `json:"samples"`
	FirstTimestamp  float64         `json:"firstTimestamp"`
	LastTimestamp   float64         `json:"lastTimestamp"`
	Findings        []diag.Finding  `json:"findings,omitempty"`
	Fault           string          `json:"fault,omitempty"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

// Errors reports the number of error-severity findings in the session.
func (s Session) Errors() int {
	return diag.Count(s.Findings, diag.SeverityError)
}

// Warnings reports the number of warning-severity findings.
func (s Session) Warnings() int {
	return diag.Count(s.Findings, diag.SeverityWarning)
}

// BuildSession decodes the capture at path and summarizes it. A decode
// fault does not fail the build; it is recorded in the session instead.
func BuildSession(path string, cat *catalog.Store) (Session, error) {
	hdr, records, trailer, findings, decodeErr := cbf.ScanFile(path, cat)
	if decodeErr != nil && len(hdr.Fields) == 0 {
		// Header never decoded, nothing to report on.
		return Session{}, decodeErr
	}

	sum, size, err := common.Sha256OfFile(path)
	if err != nil {
		return Session{}, err
	}

	s := Session{
		Input:           path,
		Sha256:          sum,
		SizeBytes:       size,
		Family:          hdr.Family,
		Program:         hdr.Program,
		Mode:            hdr.Mode,
		Params:          hdr.Params,
		Records:         len(records),
		DeclaredRecords: trailer.DeclaredRecords,
		TrailerFound:    trailer.Found,
		Findings:        findings,
		GeneratedAt:     time.Now().UTC(),
	}
	if decodeErr != nil {
		s.Fault = decodeErr.Error()
	}

	s.Parameters = make([]ParameterInfo, len(hdr.Fields))
	for i, f := range hdr.Fields {
		info := ParameterInfo{
			Index:  f.Index,
			PID:    f.PID,
			HasPID: f.HasPID,
			Name:   f.Name,
			Unit:   f.Unit,
			Known:  f.Def != nil,
			IsTime: f.IsTime,
		}
		if f.Def != nil {
			info.Scale = f.Def.Scale
			info.Offset = f.Def.Offset
		}
		s.Parameters[i] = info
	}

	for ri, rec := range records {
		if ri == 0 {
			s.FirstTimestamp = rec.Timestamp
		}
		s.LastTimestamp = rec.Timestamp
		s.Samples += len(rec.Samples)
		for _, sm := range rec.Samples {
			if sm.Field < len(s.Parameters) {
				s.Parameters[sm.Field].Samples++
			}
		}
	}

	return s, nil
}

func SaveSessionJSON(s Session, out string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadSessionJSON(path string) (Session, error) {
	var s Session
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(b, &s)
	return s, err
}
