// Package target describes one chip family's core kind, memory regions, and
// flash algorithms, loaded either from generated Go literals or from YAML
// descriptor files on disk.
package target

import (
	"fmt"
	"strings"

	"github.com/arm-debug/probeutil/internal/xerrors"
)

// RegionKind tags a MemoryRegion as RAM or Flash.
type RegionKind int

const (
	RegionRAM RegionKind = iota
	RegionFlash
)

func (k RegionKind) String() string {
	if k == RegionFlash {
		return "flash"
	}
	return "ram"
}

// MemoryRegion is one contiguous address range of a Target's memory map.
// Start is inclusive, End is exclusive. SectorSize/PageSize/ErasedByteValue
// are only meaningful for RegionFlash.
type MemoryRegion struct {
	Kind            RegionKind
	Name            string
	Start           uint32
	End             uint32
	IsBootMemory    bool
	SectorSize      uint32
	PageSize        uint32
	ErasedByteValue byte
}

// Contains reports whether [addr, addr+length) falls entirely in the region.
func (r MemoryRegion) Contains(addr, length uint32) bool {
	if length == 0 {
		return addr >= r.Start && addr < r.End
	}
	end := addr + length
	return addr >= r.Start && end <= r.End && end > addr
}

// FlashAlgorithm is a CMSIS-Pack-style flash programming blob plus the RAM
// layout and entry points the Runner needs to call it.
type FlashAlgorithm struct {
	Name         string
	Instructions []uint32 // little-endian words of the algorithm blob

	LoadAddress uint32
	BeginStack  uint32
	BeginData   uint32
	StaticBase  uint32
	PageBuffers []uint32

	PCInit     *uint32
	PCUnInit   *uint32
	PCEraseAll *uint32

	// PCEraseSector and PCProgramPage are mandatory entry points: every
	// flash algorithm must expose them, unlike the three above.
	PCEraseSector uint32
	PCProgramPage uint32

	DataSectionOffset uint32
}

// BlobEnd returns the exclusive end address of the uploaded instruction blob.
func (a FlashAlgorithm) BlobEnd() uint32 {
	return a.LoadAddress + uint32(len(a.Instructions))*4
}

// Validate checks the invariants required of a flash algorithm:
// every entry point lies inside the blob range, and begin_stack/begin_data
// /page_buffers lie inside a RAM region and do not overlap the blob or each
// other.
func (a FlashAlgorithm) Validate(ramRegions []MemoryRegion) error {
	if a.PCEraseSector == 0 {
		return xerrors.New(xerrors.KindAddressNotInRegion, fmt.Errorf("flash algorithm %q: pc_erase_sector is required", a.Name))
	}
	if a.PCProgramPage == 0 {
		return xerrors.New(xerrors.KindAddressNotInRegion, fmt.Errorf("flash algorithm %q: pc_program_page is required", a.Name))
	}
	for _, pc := range []uint32{a.PCEraseSector, a.PCProgramPage} {
		if pc < a.LoadAddress || pc >= a.BlobEnd() {
			return xerrors.New(xerrors.KindAddressNotInRegion, fmt.Errorf("flash algorithm %q: entry point 0x%08x outside blob [0x%08x, 0x%08x)", a.Name, pc, a.LoadAddress, a.BlobEnd()))
		}
	}
	for _, pc := range []*uint32{a.PCInit, a.PCUnInit, a.PCEraseAll} {
		if pc == nil {
			continue
		}
		if *pc < a.LoadAddress || *pc >= a.BlobEnd() {
			return xerrors.New(xerrors.KindAddressNotInRegion, fmt.Errorf("flash algorithm %q: entry point 0x%08x outside blob [0x%08x, 0x%08x)", a.Name, *pc, a.LoadAddress, a.BlobEnd()))
		}
	}

	ramPoints := map[string]uint32{"begin_stack": a.BeginStack, "begin_data": a.BeginData}
	for i, pb := range a.PageBuffers {
		ramPoints[fmt.Sprintf("page_buffers[%d]", i)] = pb
	}
	for name, addr := range ramPoints {
		if !inAnyRAMRegion(addr, ramRegions) {
			return xerrors.New(xerrors.KindAddressNotInRegion, fmt.Errorf("flash algorithm %q: %s 0x%08x is not inside any RAM region", a.Name, name, addr))
		}
		if addr >= a.LoadAddress && addr < a.BlobEnd() {
			return xerrors.New(xerrors.KindOverlap, fmt.Errorf("flash algorithm %q: %s 0x%08x lies inside the blob [0x%08x, 0x%08x)", a.Name, name, addr, a.LoadAddress, a.BlobEnd()))
		}
	}

	// Distinct RAM points (stack, data, each page buffer) must not collide;
	// a page_buffer aliasing begin_stack would silently corrupt the stack
	// during double-buffered programming.
	seen := map[uint32]string{}
	for name, addr := range ramPoints {
		if other, ok := seen[addr]; ok {
			return xerrors.New(xerrors.KindOverlap, fmt.Errorf("flash algorithm %q: %s and %s both resolve to 0x%08x", a.Name, name, other, addr))
		}
		seen[addr] = name
	}
	return nil
}

func inAnyRAMRegion(addr uint32, regions []MemoryRegion) bool {
	for _, r := range regions {
		if r.Kind == RegionRAM && addr >= r.Start && addr < r.End {
			return true
		}
	}
	return false
}

// Manufacturer identifies a chip vendor by its JEP-106 continuation count
// and id byte.
type Manufacturer struct {
	CC uint8
	ID uint8
}

// Target is one chip variant: a core kind, its own memory map, and the
// flash algorithms (shared across a family's variants) available to
// program it.
type Target struct {
	Name         string // canonical, lower-cased
	CoreKind     string // e.g. "cortex-m0"
	Manufacturer Manufacturer
	Part         *uint16 // per-variant part number, if the family declares one
	Regions      []MemoryRegion
	Algorithms   []FlashAlgorithm
	DefaultAlg   string // Name of the algorithm marked default, if any
}

// Canonicalize lower-cases Name: names are canonical and lower-cased.
func (t *Target) Canonicalize() {
	t.Name = strings.ToLower(t.Name)
}

// DefaultAlgorithm returns the algorithm marked default, or the sole
// algorithm if there is exactly one, else an error.
func (t *Target) DefaultAlgorithm() (*FlashAlgorithm, error) {
	if t.DefaultAlg != "" {
		for i := range t.Algorithms {
			if t.Algorithms[i].Name == t.DefaultAlg {
				return &t.Algorithms[i], nil
			}
		}
	}
	if len(t.Algorithms) == 1 {
		return &t.Algorithms[0], nil
	}
	return nil, xerrors.New(xerrors.KindTargetSelection, fmt.Errorf("target %q: no default flash algorithm and %d candidates", t.Name, len(t.Algorithms)))
}

// Validate checks every region and algorithm invariant:
// non-overlapping regions, sector_size a multiple of page_size, a flash
// region's length a multiple of sector_size, and each algorithm's own
// invariants.
func (t *Target) Validate() error {
	for i, a := range t.Regions {
		for j, b := range t.Regions {
			if i == j {
				continue
			}
			if overlaps(a, b) {
				return xerrors.New(xerrors.KindOverlap, fmt.Errorf("target %q: regions %q and %q overlap", t.Name, a.Name, b.Name))
			}
		}
		if a.Kind == RegionFlash {
			if a.PageSize == 0 || a.SectorSize%a.PageSize != 0 {
				return xerrors.New(xerrors.KindAlignmentOrSize, fmt.Errorf("target %q: region %q sector_size %d is not a multiple of page_size %d", t.Name, a.Name, a.SectorSize, a.PageSize))
			}
			if a.SectorSize == 0 || (a.End-a.Start)%a.SectorSize != 0 {
				return xerrors.New(xerrors.KindAlignmentOrSize, fmt.Errorf("target %q: region %q length %d is not a multiple of sector_size %d", t.Name, a.Name, a.End-a.Start, a.SectorSize))
			}
		}
	}
	ramRegions := t.ramRegions()
	for _, alg := range t.Algorithms {
		if err := alg.Validate(ramRegions); err != nil {
			return err
		}
	}
	return nil
}

func (t *Target) ramRegions() []MemoryRegion {
	var out []MemoryRegion
	for _, r := range t.Regions {
		if r.Kind == RegionRAM {
			out = append(out, r)
		}
	}
	return out
}

func overlaps(a, b MemoryRegion) bool {
	return a.Start < b.End && b.Start < a.End
}

// ChipFamily groups one or more Targets that share a YAML descriptor file
// (e.g. variants of the same silicon family).
type ChipFamily struct {
	Name    string
	Targets []Target
}
