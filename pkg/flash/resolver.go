package flash

import (
	"errors"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceFlash/pkg/image"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/module"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/segment"
)

// systemSegments maps a system part index to its segment.
var systemSegments = map[uint8]string{
	1: segment.SystemFirmwareOne,
	2: segment.SystemFirmwareTwo,
	3: segment.SystemFirmwareThree,
}

// Request is the input of Resolve.
type Request struct {
	// Image is the file selected by the user
	Image *image.Image

	// Descriptor is nil when KnownApp is set
	Descriptor *module.Descriptor
	KnownApp   bool

	Factory bool
	Force   bool

	// Leave overrides whether the device leaves DFU mode after the write
	Leave *bool
}

// Plan says what to write where.
type Plan struct {
	Segment    string
	Address    string
	Image      *image.Image
	Leave      bool
	Descriptor *module.Descriptor
}

// Close releases a derived image once it has been written.
func (p *Plan) Close() error {
	if p == nil {
		return nil
	}
	return p.Image.Close()
}

// Resolve decides the destination segment and address of an image on the
// connected platform. The returned plan always has an address. If the image
// had to be rewritten the plan owns the new file; call Close after the write.
func Resolve(req Request, platform segment.Platform) (*Plan, error) {
	if req.Image == nil {
		return nil, &ParseError{Err: errors.New("no image")}
	}

	seg := segment.UserFirmware
	if req.Factory {
		seg = segment.FactoryReset
	}

	plan := &Plan{Image: req.Image, Descriptor: req.Descriptor}
	if !req.KnownApp {
		d := req.Descriptor
		if d == nil {
			return nil, &ParseError{Path: imagePath(req.Image), Err: errors.New("no module descriptor")}
		}
		if err := validate(d, platform, req.Force); err != nil {
			return nil, err
		}

		var err error
		seg, plan.Address, err = destination(d, seg, platform, req.Force)
		if err != nil {
			return nil, err
		}

		if d.DropModuleInfo() {
			stripped, err := image.StripHeader(req.Image.Path, module.HeaderSize)
			if err != nil {
				return nil, err
			}
			plan.Image = stripped
		}
	}
	plan.Segment = seg

	if plan.Address == "" {
		spec, err := platform.Lookup(seg)
		if err != nil {
			plan.releaseDerived(req.Image)
			return nil, destinationError(req.Descriptor, platform, seg, err)
		}
		plan.Address = spec.Hex()
	}
	if plan.Address == "" {
		plan.releaseDerived(req.Image)
		return nil, destinationError(req.Descriptor, platform, seg, nil)
	}

	if req.Leave != nil {
		plan.Leave = *req.Leave
	} else {
		plan.Leave = seg == segment.UserFirmware
	}
	return plan, nil
}

// validate checks CRC and platform. Images without a suffix cannot be
// checked and pass with a warning.
func validate(d *module.Descriptor, platform segment.Platform, force bool) error {
	if d.SuffixUnknown() {
		glog.Warningf("%s has no module suffix; skipping CRC and platform checks", d.Path)
		return nil
	}

	if !d.CRCValid {
		err := &CRCError{Path: d.Path, Stored: d.StoredCRC, Computed: d.ComputedCRC}
		if !force {
			return err
		}
		glog.Warningf("%v (forced)", err)
	}

	if d.PlatformID != platform.ID {
		err := &PlatformMismatchError{Image: d.PlatformID, Device: platform.ID}
		if !force {
			return err
		}
		glog.Warningf("%v (forced)", err)
	}
	return nil
}

// destination applies the module function to the default segment. A
// non-empty address overrides the segment table.
func destination(d *module.Descriptor, seg string, platform segment.Platform, force bool) (string, string, error) {
	switch d.Function {
	case module.FunctionMonoFirmware:
		if platform.Has(segment.SystemFirmwareOne) {
			seg = segment.SystemFirmwareOne
		}
		return seg, "", nil

	case module.FunctionSystemPart:
		name, ok := systemSegments[d.Index]
		if !ok {
			return "", "", destinationError(d, platform, "", nil)
		}
		return name, segment.FormatAddress(d.StartAddress), nil

	case module.FunctionUserPart:
		return seg, "", nil

	case module.FunctionRadioStack:
		return segment.RadioStack, segment.FormatAddress(d.StartAddress), nil

	case module.FunctionNone, module.FunctionResource, module.FunctionBootloader,
		module.FunctionSettings, module.FunctionNCPFirmware:
		// unsupported, fall through to the force check below

	default:
		// codes this version does not know about
	}

	err := &ModuleFunctionError{Function: d.Function}
	if !force {
		return "", "", err
	}
	glog.Warningf("%v (forced)", err)
	return seg, "", nil
}

func destinationError(d *module.Descriptor, platform segment.Platform, seg string, err error) error {
	e := &DestinationError{Platform: platform.Name, Segment: seg, Err: err}
	if d != nil {
		e.Function = d.Function
		e.Index = d.Index
	}
	return e
}

// releaseDerived closes the plan image if Resolve created it.
func (p *Plan) releaseDerived(orig *image.Image) {
	if p.Image != orig {
		p.Image.Close()
	}
}

func imagePath(img *image.Image) string {
	if img == nil {
		return ""
	}
	return img.Source
}
