package manifest

import (
	"encoding/json"
	"os"
	"time"

	"example.com/cbfconv/internal/common"
)

// Item records one produced artifact and its digest.
type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

// Manifest inventories the outputs of a batch conversion so downstream
// tooling can verify what it received.
type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
}

func kindOf(path string) string {
	switch {
	case hasSuffixFold(path, ".csv"):
		return "csv"
	case hasSuffixFold(path, ".cbf"):
		return "cbf"
	case hasSuffixFold(path, ".json"):
		return "report"
	case hasSuffixFold(path, ".pdf"):
		return "report"
	default:
		return "file"
	}
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := 0; i < len(suffix); i++ {
		a, b := tail[i], suffix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

// Build hashes each path and assembles the manifest.
func Build(paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		sum, size, err := common.Sha256OfFile(p)
		if err != nil {
			return Manifest{}, err
		}
		m.Items = append(m.Items, Item{Path: p, Size: size, Sha256: sum, Type: kindOf(p)})
	}
	return m, nil
}

// Save writes the manifest as indented JSON.
func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

// Load reads a manifest back from disk.
func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
