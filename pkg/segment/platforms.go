package segment

import (
	"sort"
	"strings"
)

// USB vendor IDs used by devices in DFU mode.
const (
	VendorIDParticle = 0x2B04
	VendorIDOpenMoko = 0x1D50
)

// registry is the in-memory platform table, keyed by platform ID.
var registry = make(map[uint16]Platform)

// register adds a platform entry to the registry.
func register(p Platform) {
	registry[p.ID] = p
}

func init() {
	register(Platform{
		ID: 0, Name: "core",
		VendorID: VendorIDOpenMoko, ProductID: 0x607F,
		segments: map[string]uint32{
			UserFirmware: 0x08005000,
		},
	})

	// STM32F2 Wi-Fi devices share one layout
	stm32f2 := map[string]uint32{
		SystemFirmwareOne: 0x08020000,
		SystemFirmwareTwo: 0x08060000,
		UserFirmware:      0x080A0000,
		FactoryReset:      0x080E0000,
	}
	register(Platform{ID: 6, Name: "photon", VendorID: VendorIDParticle, ProductID: 0xD006, segments: stm32f2})
	register(Platform{ID: 8, Name: "p1", VendorID: VendorIDParticle, ProductID: 0xD008, segments: stm32f2})

	register(Platform{
		ID: 10, Name: "electron",
		VendorID: VendorIDParticle, ProductID: 0xD00A,
		segments: map[string]uint32{
			SystemFirmwareOne:   0x08020000,
			SystemFirmwareTwo:   0x08040000,
			SystemFirmwareThree: 0x08060000,
			UserFirmware:        0x08080000,
			FactoryReset:        0x080A0000,
		},
	})

	// nRF52840 devices: the SoftDevice lives in the radio stack segment
	nrf52 := map[string]uint32{
		RadioStack:        0x00001000,
		SystemFirmwareOne: 0x00030000,
		UserFirmware:      0x000D4000,
	}
	for _, p := range []struct {
		id   uint16
		name string
	}{
		{12, "argon"},
		{13, "boron"},
		{14, "xenon"},
		{22, "asom"},
		{23, "bsom"},
		{24, "xsom"},
		{25, "b5som"},
		{26, "tracker"},
	} {
		register(Platform{ID: p.id, Name: p.name, VendorID: VendorIDParticle, ProductID: 0xD000 | p.id, segments: nrf52})
	}

	register(Platform{
		ID: 32, Name: "p2",
		VendorID: VendorIDParticle, ProductID: 0xD020,
		segments: map[string]uint32{
			SystemFirmwareOne: 0x08060000,
			UserFirmware:      0x085F4000,
		},
	})
}

// ByID returns the platform registered under id.
func ByID(id uint16) (Platform, bool) {
	p, ok := registry[id]
	return p, ok
}

// ByName returns the platform with the given name (case-insensitive).
func ByName(name string) (Platform, bool) {
	for _, p := range registry {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Platform{}, false
}

// ByUSB returns the platform whose DFU-mode VID/PID match.
func ByUSB(vid, pid uint16) (Platform, bool) {
	for _, p := range registry {
		if p.VendorID == vid && p.ProductID == pid {
			return p, true
		}
	}
	return Platform{}, false
}

// All returns every registered platform ordered by ID.
func All() []Platform {
	out := make([]Platform, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
