package server

import (
	"fmt"
	"strings"

	"example.com/cbfconv/internal/catalog"
)

// Options configures server creation.
type Options struct {
	// StorageDir roots the temporary workspace; empty means os.TempDir.
	StorageDir string
	// CatalogPath optionally overlays the builtin parameter catalog.
	CatalogPath string
	// Concurrency bounds simultaneous conversions; <=0 means NumCPU.
	Concurrency int
}

func loadCatalog(path string) (*catalog.Store, error) {
	if strings.TrimSpace(path) == "" {
		return catalog.Builtin(), nil
	}
	cat, err := catalog.EnsureLoaded(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}
