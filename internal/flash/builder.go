package flash

import (
	"fmt"
	"sort"

	"github.com/arm-debug/probeutil/internal/memory"
	"github.com/arm-debug/probeutil/internal/target"
	"github.com/arm-debug/probeutil/internal/xerrors"
	"github.com/arm-debug/probeutil/internal/xferlog"
)

// contribution is one caller-supplied (address, bytes) pair awaiting
// placement into a BuildPlan.
type contribution struct {
	address uint32
	data    []byte
}

func (c contribution) end() uint32 { return c.address + uint32(len(c.data)) }

// SectorErase is one planned erase_sector call.
type SectorErase struct {
	Address uint32
}

// PageProgram is one planned program_page call: Data is always exactly
// page_size bytes, gap-filled per the rules in Builder.Plan.
type PageProgram struct {
	Address uint32
	Data    []byte
}

// BuildPlan is the output of Builder.Plan: what to erase and what to
// program, in the order Execute will run them.
type BuildPlan struct {
	ChipErase bool
	Sectors   []SectorErase
	Pages     []PageProgram
}

// Builder accepts an unordered stream of add_data contributions against one
// flash region and turns them into a BuildPlan; the package function
// Execute then drives a Flasher through Erase -> Program -> (optional)
// Verify to carry the plan out.
type Builder struct {
	region *target.MemoryRegion
	mem    *memory.Interface

	contributions []contribution
}

// NewBuilder binds a Builder to region, reading pre-existing content (when
// restore_unwritten_bytes is requested) through mem.
func NewBuilder(region *target.MemoryRegion, mem *memory.Interface) *Builder {
	return &Builder{region: region, mem: mem}
}

// AddData records one contribution. address..address+len(data) must lie
// entirely inside the bound region, and must not overlap any previously
// added contribution.
func (b *Builder) AddData(address uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if !b.region.Contains(address, uint32(len(data))) {
		return xerrors.AddressNotInRegion(address)
	}
	newC := contribution{address: address, data: data}
	for _, c := range b.contributions {
		if c.address < newC.end() && newC.address < c.end() {
			return xerrors.New(xerrors.KindOverlap, fmt.Errorf("flash: contribution [0x%08x,0x%08x) overlaps existing [0x%08x,0x%08x)", newC.address, newC.end(), c.address, c.end()))
		}
	}
	b.contributions = append(b.contributions, newC)
	return nil
}

// Plan groups the accumulated contributions by sector, decides between a
// whole-chip erase and per-sector erase, and builds one page-size buffer
// per touched page. When restoreUnwrittenBytes is true, each page's
// untouched gaps are filled with the target's current content, read back
// now, before Execute erases anything; otherwise gaps are filled with the
// region's erased_byte_value.
func (b *Builder) Plan(doChipErase, restoreUnwrittenBytes bool) (*BuildPlan, error) {
	region := b.region
	sectorSize := region.SectorSize
	pageSize := region.PageSize

	touchedSectors := map[uint32]bool{}
	for _, c := range b.contributions {
		first := sectorStart(c.address, region.Start, sectorSize)
		last := sectorStart(c.end()-1, region.Start, sectorSize)
		for s := first; s <= last; s += sectorSize {
			touchedSectors[s] = true
		}
	}

	sectorAddrs := make([]uint32, 0, len(touchedSectors))
	for s := range touchedSectors {
		sectorAddrs = append(sectorAddrs, s)
	}
	sort.Slice(sectorAddrs, func(i, j int) bool { return sectorAddrs[i] < sectorAddrs[j] })

	plan := &BuildPlan{ChipErase: doChipErase}
	if !doChipErase {
		for _, s := range sectorAddrs {
			plan.Sectors = append(plan.Sectors, SectorErase{Address: s})
		}
	}

	for _, s := range sectorAddrs {
		sectorEnd := s + sectorSize
		for p := s; p < sectorEnd; p += pageSize {
			pageEnd := p + pageSize
			if !b.anyContributionIntersects(p, pageEnd) {
				continue
			}
			buf, err := b.buildPageBuffer(p, pageSize, restoreUnwrittenBytes)
			if err != nil {
				return nil, err
			}
			plan.Pages = append(plan.Pages, PageProgram{Address: p, Data: buf})
		}
	}

	xferlog.Debugf("flash: plan covers %d sector(s), %d page(s), chip_erase=%v", len(plan.Sectors), len(plan.Pages), plan.ChipErase)
	return plan, nil
}

func (b *Builder) anyContributionIntersects(start, end uint32) bool {
	for _, c := range b.contributions {
		if c.address < end && start < c.end() {
			return true
		}
	}
	return false
}

func (b *Builder) buildPageBuffer(pageAddr, pageSize uint32, restoreUnwrittenBytes bool) ([]byte, error) {
	buf := make([]byte, pageSize)
	if restoreUnwrittenBytes {
		if err := b.mem.ReadBlock8(pageAddr, buf); err != nil {
			return nil, err
		}
	} else {
		fill := b.region.ErasedByteValue
		for i := range buf {
			buf[i] = fill
		}
	}
	for _, c := range b.contributions {
		pageEnd := pageAddr + pageSize
		if c.address >= pageEnd || c.end() <= pageAddr {
			continue
		}
		lo := max32(pageAddr, c.address)
		hi := min32(pageEnd, c.end())
		copy(buf[lo-pageAddr:hi-pageAddr], c.data[lo-c.address:hi-c.address])
	}
	return buf, nil
}

func sectorStart(addr, regionStart, sectorSize uint32) uint32 {
	offset := addr - regionStart
	return regionStart + (offset/sectorSize)*sectorSize
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// Execute runs plan's three phases against f: erase, then program, then
// (when verify is true) read back every programmed page and compare,
// stopping at the first VerifyMismatch.
func Execute(f *Flasher, plan *BuildPlan, verify bool) error {
	if err := runErasePhase(f, plan); err != nil {
		return err
	}
	if err := runProgramPhase(f, plan); err != nil {
		return err
	}
	if verify {
		if err := runVerifyPhase(f, plan); err != nil {
			return err
		}
	}
	return nil
}

func runErasePhase(f *Flasher, plan *BuildPlan) error {
	active, err := Init[Erase](f, nil, nil)
	if err != nil {
		return err
	}
	if plan.ChipErase {
		if err := EraseAll(active); err != nil {
			_, _ = active.Uninit()
			return err
		}
	} else {
		for _, s := range plan.Sectors {
			if err := EraseSector(active, s.Address); err != nil {
				_, _ = active.Uninit()
				return err
			}
		}
	}
	_, err = active.Uninit()
	return err
}

func runProgramPhase(f *Flasher, plan *BuildPlan) error {
	active, err := Init[Program](f, nil, nil)
	if err != nil {
		return err
	}
	for _, p := range plan.Pages {
		if err := ProgramPage(active, p.Address, p.Data); err != nil {
			_, _ = active.Uninit()
			return err
		}
	}
	_, err = active.Uninit()
	return err
}

func runVerifyPhase(f *Flasher, plan *BuildPlan) error {
	active, err := Init[Verify](f, nil, nil)
	if err != nil {
		return err
	}
	for _, p := range plan.Pages {
		got := make([]byte, len(p.Data))
		if err := active.ReadBlock8(p.Address, got); err != nil {
			_, _ = active.Uninit()
			return err
		}
		for i, want := range p.Data {
			if got[i] != want {
				_, _ = active.Uninit()
				return xerrors.VerifyMismatch(p.Address + uint32(i))
			}
		}
	}
	_, err = active.Uninit()
	return err
}
