package catalog

import (
	"fmt"
	"strings"
)

// Family identifies the vehicle module dialect a capture came from.
type Family string

const (
	FamilyOBD2    Family = "obd2"
	FamilyHonda   Family = "honda"
	FamilyUnknown Family = "unknown"
)

func (f Family) Supported() bool {
	return f == FamilyOBD2 || f == FamilyHonda
}

// ParseFamily maps a heading string onto a known family.
func ParseFamily(s string) (Family, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "obd2", "obdii", "obd":
		return FamilyOBD2, true
	case "honda":
		return FamilyHonda, true
	default:
		return FamilyUnknown, false
	}
}

// Definition is the decoding rule for one parameter: how wide the raw
// reading is, how to scale it into a physical value and how to label it.
type Definition struct {
	PID      uint16
	Name     string
	Unit     string
	Width    int
	Signed   bool
	Scale    float64
	Offset   float64
	Decimals int
}

// Physical converts a raw integer reading into the physical value.
func (d Definition) Physical(raw int64) float64 {
	return float64(raw)*d.Scale + d.Offset
}

type pidKey struct {
	family Family
	pid    uint16
}

type nameKey struct {
	family Family
	name   string
}

// Store holds the parameter definitions for every known family. OBD2
// entries are addressable by standard PID; Honda records carry no PID so
// its entries resolve by display name only.
type Store struct {
	byPID  map[pidKey]Definition
	byName map[nameKey]Definition
}

func newStore() *Store {
	return &Store{
		byPID:  make(map[pidKey]Definition),
		byName: make(map[nameKey]Definition),
	}
}

func normName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (s *Store) add(family Family, def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("definition without name (family %s, pid %d)", family, def.PID)
	}
	if def.Scale == 0 {
		def.Scale = 1
	}
	if def.Width <= 0 {
		def.Width = 1
	}
	if def.PID != 0 {
		key := pidKey{family: family, pid: def.PID}
		if _, exists := s.byPID[key]; exists {
			return fmt.Errorf("duplicate pid 0x%02X for family %s", def.PID, family)
		}
		s.byPID[key] = def
	}
	nkey := nameKey{family: family, name: normName(def.Name)}
	if _, exists := s.byName[nkey]; exists {
		return fmt.Errorf("duplicate name %q for family %s", def.Name, family)
	}
	s.byName[nkey] = def
	return nil
}

// Lookup resolves a parameter by numeric PID.
func (s *Store) Lookup(family Family, pid uint16) (Definition, bool) {
	if s == nil {
		return Definition{}, false
	}
	def, ok := s.byPID[pidKey{family: family, pid: pid}]
	return def, ok
}

// LookupName resolves a parameter by its display name as written in the
// file header. Matching is case- and whitespace-insensitive.
func (s *Store) LookupName(family Family, name string) (Definition, bool) {
	if s == nil {
		return Definition{}, false
	}
	def, ok := s.byName[nameKey{family: family, name: normName(name)}]
	return def, ok
}

// Len reports the number of distinct definitions loaded.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byName)
}

// Builtin returns the compiled-in catalog covering the parameters observed
// so far. Unknown parameters in real files are reported, not fatal; extend
// the catalog (or supply an overlay file) when new ones appear.
func Builtin() *Store {
	s := newStore()
	for _, def := range obd2Definitions {
		if err := s.add(FamilyOBD2, def); err != nil {
			panic(err)
		}
	}
	for _, def := range hondaDefinitions {
		if err := s.add(FamilyHonda, def); err != nil {
			panic(err)
		}
	}
	return s
}
