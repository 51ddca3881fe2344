package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// JSONFile is the on-disk overlay format used to extend the builtin
// catalog without rebuilding the tool.
type JSONFile struct {
	Parameters []JSONEntry `json:"parameters"`
}

type JSONEntry struct {
	Family   string  `json:"family"`
	PID      int     `json:"pid,omitempty"`
	Name     string  `json:"name"`
	Unit     string  `json:"unit,omitempty"`
	Width    int     `json:"width,omitempty"`
	Signed   bool    `json:"signed,omitempty"`
	Scale    float64 `json:"scale,omitempty"`
	Offset   float64 `json:"offset,omitempty"`
	Decimals int     `json:"decimals,omitempty"`
}

// Merge validates the overlay entries and adds them to the store.
// Overlay entries may not shadow existing definitions; a duplicate is a
// configuration error, not a silent override.
func (s *Store) Merge(file JSONFile) error {
	for i, entry := range file.Parameters {
		family, ok := ParseFamily(entry.Family)
		if !ok {
			return fmt.Errorf("parameters[%d]: unknown family %q", i, entry.Family)
		}
		if entry.PID < 0 || entry.PID > 0xFFFF {
			return fmt.Errorf("parameters[%d]: pid out of range", i)
		}
		if strings.TrimSpace(entry.Name) == "" {
			return fmt.Errorf("parameters[%d]: missing name", i)
		}
		if entry.Width < 0 || entry.Width > 4 {
			return fmt.Errorf("parameters[%d]: width out of range", i)
		}
		if entry.Decimals < 0 || entry.Decimals > 6 {
			return fmt.Errorf("parameters[%d]: decimals out of range", i)
		}
		def := Definition{
			PID:      uint16(entry.PID),
			Name:     strings.TrimSpace(entry.Name),
			Unit:     strings.TrimSpace(entry.Unit),
			Width:    entry.Width,
			Signed:   entry.Signed,
			Scale:    entry.Scale,
			Offset:   entry.Offset,
			Decimals: entry.Decimals,
		}
		if err := s.add(family, def); err != nil {
			return fmt.Errorf("parameters[%d]: %w", i, err)
		}
	}
	return nil
}

// Load reads an overlay file and merges it into the store.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file JSONFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	return s.Merge(file)
}

// EnsureLoaded returns the builtin catalog, extended with the overlay at
// path when one is given.
func EnsureLoaded(path string) (*Store, error) {
	store := Builtin()
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return store, nil
	}
	info, err := os.Stat(trimmed)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("catalog path is a directory")
	}
	if err := store.Load(trimmed); err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", trimmed, err)
	}
	return store, nil
}
