package devkit

import (
	"github.com/mintwald/dolkit/dol"
)

// ArenaPatcher rewrites a game's early-initialization code (stack pointer
// setup, OSInit, thread-system init) so that the runtime arena's lower
// bound sits above the newly injected region and the running game never
// hands that memory out. How to do this is inherently game specific, so
// the caller supplies it; romEnd is the first address past the injected
// section.
type ArenaPatcher func(f *dol.File, romEnd uint32) error

const (
	ramBase = 0x80000000

	// New sections are aligned for OSResetSystem, matching the DOL
	// section alignment rule.
	codeAlignment = dol.SectionAlignment
)

func alignUp(addr uint32) uint32 {
	return (addr + codeAlignment - 1) &^ (codeAlignment - 1)
}

// findRomEnd scans the image for the highest address used by any section
// or by the bss range, the "ROM end" used for automatic base selection.
// A DOL that reserves an extra uninitialized region beyond the header's
// bss (.sbss2 under some linker scripts) cannot be detected from the
// section table alone; callers are warned when they rely on this mode.
func findRomEnd(f *dol.File) (uint32, error) {
	sections := f.Sections()
	if len(sections) == 0 {
		return 0, ErrorLayoutDetection
	}

	end := uint32(ramBase)
	for _, s := range sections {
		if s.End() > end {
			end = s.End()
		}
	}
	if f.BssAddress >= ramBase && f.BssAddress+f.BssSize > end {
		end = f.BssAddress + f.BssSize
	}

	if end == ramBase {
		return 0, ErrorLayoutDetection
	}
	return end, nil
}

// resolveBaseAddr picks the address new code and data will live at: the
// configured base if one was set, the aligned ROM end otherwise.
func (p *Project) resolveBaseAddr(f *dol.File) (uint32, error) {
	if p.BaseAddr != 0 {
		if p.BaseAddr%codeAlignment != 0 {
			p.logf(1, "WARNING: base address %08X is not %d-byte aligned; OSResetSystem may misbehave", p.BaseAddr, codeAlignment)
		}
		return p.BaseAddr, nil
	}

	romEnd, err := findRomEnd(f)
	if err != nil {
		return 0, err
	}

	base := alignUp(romEnd)
	p.logf(1, "Base address auto-set from ROM end: %08X", base)
	p.logf(1, "Do not rely on this feature if your DOL uses .sbss2")
	return base, nil
}
