package segment

import (
	"errors"
	"fmt"
	"sort"
)

// Well-known segment names used in platform tables.
const (
	UserFirmware        = "userFirmware"
	FactoryReset        = "factoryReset"
	SystemFirmwareOne   = "systemFirmwareOne"
	SystemFirmwareTwo   = "systemFirmwareTwo"
	SystemFirmwareThree = "systemFirmwareThree"
	RadioStack          = "radioStack"
)

// ErrNotFound is returned when a platform has no entry for a segment name.
var ErrNotFound = errors.New("segment: not found")

// Spec is a named flash destination on a platform.
type Spec struct {
	Name    string
	Address uint32
}

// Hex formats the address the way DFU tooling expects it.
func (s Spec) Hex() string {
	return FormatAddress(s.Address)
}

// FormatAddress returns the canonical hex form of a flash address.
func FormatAddress(addr uint32) string {
	return fmt.Sprintf("0x%08x", addr)
}

// Platform describes one device family and its flash segment map.
type Platform struct {
	ID   uint16
	Name string

	// DFU-mode USB identifiers
	VendorID  uint16
	ProductID uint16

	segments map[string]uint32
}

// Lookup returns the segment spec for name. The table is never modified.
func (p Platform) Lookup(name string) (Spec, error) {
	addr, ok := p.segments[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s has no %q segment", ErrNotFound, p.Name, name)
	}
	return Spec{Name: name, Address: addr}, nil
}

// Has reports whether the platform defines the named segment.
func (p Platform) Has(name string) bool {
	_, ok := p.segments[name]
	return ok
}

// Segments returns the platform's segments ordered by address.
func (p Platform) Segments() []Spec {
	specs := make([]Spec, 0, len(p.segments))
	for name, addr := range p.segments {
		specs = append(specs, Spec{Name: name, Address: addr})
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Address == specs[j].Address {
			return specs[i].Name < specs[j].Name
		}
		return specs[i].Address < specs[j].Address
	})
	return specs
}

func (p Platform) String() string {
	return fmt.Sprintf("%s (%d)", p.Name, p.ID)
}
