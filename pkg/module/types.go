package module

import "fmt"

// Function identifies what a module binary contains.
type Function uint8

// Module function codes as stored in the module prefix.
const (
	FunctionNone         Function = 0
	FunctionResource     Function = 1
	FunctionBootloader   Function = 2
	FunctionMonoFirmware Function = 3
	FunctionSystemPart   Function = 4
	FunctionUserPart     Function = 5
	FunctionSettings     Function = 6
	FunctionNCPFirmware  Function = 7
	FunctionRadioStack   Function = 8
)

func (f Function) String() string {
	switch f {
	case FunctionNone:
		return "none"
	case FunctionResource:
		return "resource"
	case FunctionBootloader:
		return "bootloader"
	case FunctionMonoFirmware:
		return "mono firmware"
	case FunctionSystemPart:
		return "system part"
	case FunctionUserPart:
		return "user part"
	case FunctionSettings:
		return "settings"
	case FunctionNCPFirmware:
		return "ncp firmware"
	case FunctionRadioStack:
		return "radio stack"
	}
	return fmt.Sprintf("unknown (%d)", uint8(f))
}

// Flags is the module info flag byte.
type Flags uint8

const (
	FlagDropModuleInfo Flags = 0x01
	FlagCompressed     Flags = 0x02
	FlagCombined       Flags = 0x04
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// Dependency is a module the image requires to be present on the device.
type Dependency struct {
	Function Function
	Index    uint8
	Version  uint16
}

// Descriptor is the decoded metadata of a module binary. It is produced once
// per flash attempt and never modified.
type Descriptor struct {
	Path string

	// Prefix fields
	StartAddress uint32
	EndAddress   uint32
	Flags        Flags
	Version      uint16
	PlatformID   uint16
	Function     Function
	Index        uint8
	Dependencies [2]Dependency

	// Suffix fields; zero when SuffixSize is SuffixSizeUnknown, or when the
	// CRC is invalid and SuffixSize does not fit the image
	SuffixSize     uint16
	ProductID      uint16
	ProductVersion uint16

	StoredCRC   uint32
	ComputedCRC uint32
	CRCValid    bool

	// Size of the whole image in bytes
	Size int
}

// SuffixUnknown reports whether the image carries no verifiable suffix.
func (d *Descriptor) SuffixUnknown() bool {
	return d.SuffixSize == SuffixSizeUnknown
}

// DropModuleInfo reports whether the module header must be stripped before
// the image is written.
func (d *Descriptor) DropModuleInfo() bool {
	return d.Flags.Has(FlagDropModuleInfo)
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s platform=%d index=%d start=0x%08x crc=%v",
		d.Function, d.PlatformID, d.Index, d.StartAddress, d.CRCValid)
}
