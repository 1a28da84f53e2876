package flash_test

import (
	"testing"

	"github.com/arm-debug/probeutil/internal/core"
	"github.com/arm-debug/probeutil/internal/coresight"
	"github.com/arm-debug/probeutil/internal/flash"
	"github.com/arm-debug/probeutil/internal/memory"
	"github.com/arm-debug/probeutil/internal/probe"
	"github.com/arm-debug/probeutil/internal/target"
	"github.com/arm-debug/probeutil/internal/xerrors"
)

// memModel is a MEM-AP-backed DebugProbe: TAR is the current address, and
// every DRW access moves one little-endian 32-bit word and advances TAR by
// 4. CSW is stored and read back, but its size and auto-increment fields
// are ignored. Backed by a map, not a slice,
// since page buffers and begin_data sit at real target addresses (e.g.
// 0x2000_2400) far beyond any small slice length.
type memModel struct {
	mem map[uint32]byte
	csw uint32
	tar uint32
}

func newMemModel(size int) *memModel { return &memModel{mem: make(map[uint32]byte, size)} }

func (m *memModel) Name() string { return "mem model" }
func (m *memModel) Attach(p probe.WireProtocol) (probe.WireProtocol, error) {
	return p, nil
}
func (m *memModel) Detach() error      { return nil }
func (m *memModel) TargetReset() error { return nil }

func (m *memModel) ReadRegister(port probe.Port, addr uint8) (uint32, error) {
	if _, ok := port.IsAccessPort(); !ok {
		return 0, nil
	}
	switch addr {
	case coresight.RegCSW.RegAddress():
		return m.csw, nil
	case coresight.RegTAR.RegAddress():
		return m.tar, nil
	case coresight.RegDRW.RegAddress():
		v := uint32(m.mem[m.tar]) | uint32(m.mem[m.tar+1])<<8 | uint32(m.mem[m.tar+2])<<16 | uint32(m.mem[m.tar+3])<<24
		m.tar += 4
		return v, nil
	}
	return 0, nil
}

func (m *memModel) WriteRegister(port probe.Port, addr uint8, value uint32) error {
	if _, ok := port.IsAccessPort(); !ok {
		return nil
	}
	switch addr {
	case coresight.RegCSW.RegAddress():
		m.csw = value
	case coresight.RegTAR.RegAddress():
		m.tar = value
	case coresight.RegDRW.RegAddress():
		m.mem[m.tar] = byte(value)
		m.mem[m.tar+1] = byte(value >> 8)
		m.mem[m.tar+2] = byte(value >> 16)
		m.mem[m.tar+3] = byte(value >> 24)
		m.tar += 4
	}
	return nil
}

// scriptedCore is a core.Core test double that never really executes the
// uploaded blob: Run() immediately installs a canned R0 "return value" (set
// per call via nextReturn), simulating the algorithm having run to its
// trailing BKPT. When dev is set, a Run with PC at programPage first copies
// r1 bytes from the buffer at r2 to the flash address in r0, standing in
// for program_page so that a verify pass reads back what was programmed.
type scriptedCore struct {
	regs       map[core.RegisterID]uint32
	nextReturn uint32
	runCount   int

	dev         *memModel
	programPage uint32
}

func newScriptedCore() *scriptedCore {
	return &scriptedCore{regs: map[core.RegisterID]uint32{}}
}

func (c *scriptedCore) Halt() (core.CPUInfo, error) { return core.CPUInfo{}, nil }
func (c *scriptedCore) WaitForHalted() error        { return nil }
func (c *scriptedCore) ResetAndHalt() error         { return nil }
func (c *scriptedCore) Run() error {
	c.runCount++
	if c.dev != nil && c.regs[core.PC] == c.programPage {
		dst, n, src := c.regs[core.R0], c.regs[core.R1], c.regs[core.R2]
		for i := uint32(0); i < n; i++ {
			c.dev.mem[dst+i] = c.dev.mem[src+i]
		}
	}
	c.regs[core.R0] = c.nextReturn
	return nil
}
func (c *scriptedCore) ReadCoreReg(id core.RegisterID) (uint32, error) { return c.regs[id], nil }
func (c *scriptedCore) WriteCoreReg(id core.RegisterID, value uint32) error {
	c.regs[id] = value
	return nil
}
func (c *scriptedCore) Registers() core.RegisterFile { return core.DefaultRegisterFile() }

func sampleAlgo() *target.FlashAlgorithm {
	instructions := []uint32{0xBE00BE00, 0x00000000, 0x00000000, 0x00000000}
	init := uint32(0x2000_1004)
	uninit := uint32(0x2000_1008)
	eraseAll := uint32(0x2000_100C)
	return &target.FlashAlgorithm{
		Name:          "test-algo",
		Instructions:  append(instructions, 0x47700000, 0x47700001, 0x47700002, 0x47700003),
		LoadAddress:   0x2000_1000,
		BeginStack:    0x2000_2000,
		BeginData:     0x2000_2400,
		StaticBase:    0x2000_0200,
		PageBuffers:   []uint32{0x2000_2800, 0x2000_2C00},
		PCInit:        &init,
		PCUnInit:      &uninit,
		PCEraseAll:    &eraseAll,
		PCEraseSector: 0x2000_1010,
		PCProgramPage: 0x2000_1014,
	}
}

func sampleRegion() *target.MemoryRegion {
	return &target.MemoryRegion{
		Kind: target.RegionFlash, Name: "flash",
		Start: 0, End: 0x4_0000, SectorSize: 0x400, PageSize: 0x400, ErasedByteValue: 0xFF,
	}
}

func newFlasher() (*flash.Flasher, *scriptedCore) {
	dev := newMemModel(1 << 16)
	probeM := coresight.New(dev)
	mem := memory.New(probeM, coresight.MemoryAP{APSel: 0})
	sc := newScriptedCore()
	return flash.New(sc, mem, sampleAlgo(), sampleRegion()), sc
}

func TestInitUploadsAndVerifiesBlob(t *testing.T) {
	f, sc := newFlasher()
	sc.nextReturn = 0

	active, err := flash.Init[flash.Erase](f, nil, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if sc.runCount != 1 {
		t.Fatalf("expected pc_init to run the core once, got %d", sc.runCount)
	}
	if _, err := active.Uninit(); err != nil {
		t.Fatalf("uninit: %v", err)
	}
}

func TestInitFailsOnNonZeroResult(t *testing.T) {
	f, sc := newFlasher()
	sc.nextReturn = 1

	if _, err := flash.Init[flash.Erase](f, nil, nil); err == nil {
		t.Fatalf("expected CallFailed from non-zero init result")
	} else if !xerrors.Is(err, xerrors.KindCallFailed) {
		t.Fatalf("expected KindCallFailed, got %v", err)
	}
}

func TestEraseAllRequiresEntryPoint(t *testing.T) {
	f, sc := newFlasher()
	sc.nextReturn = 0
	f.Algorithm().PCEraseAll = nil

	active, err := flash.Init[flash.Erase](f, nil, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := flash.EraseAll(active); err == nil {
		t.Fatalf("expected EraseAllNotSupported")
	} else if !xerrors.Is(err, xerrors.KindEraseAllNotSupported) {
		t.Fatalf("expected KindEraseAllNotSupported, got %v", err)
	}
}

func TestEraseSectorSucceeds(t *testing.T) {
	f, sc := newFlasher()
	sc.nextReturn = 0

	active, err := flash.Init[flash.Erase](f, nil, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := flash.EraseSector(active, 0x400); err != nil {
		t.Fatalf("erase sector: %v", err)
	}
}

func TestProgramPageWritesBeginDataThenCallsEntryPoint(t *testing.T) {
	f, sc := newFlasher()
	sc.nextReturn = 0

	active, err := flash.Init[flash.Program](f, nil, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	data := make([]byte, f.Region().PageSize)
	for i := range data {
		data[i] = byte(i)
	}
	if err := flash.ProgramPage(active, 0x1000, data); err != nil {
		t.Fatalf("program page: %v", err)
	}
	if sc.regs[core.R1] != uint32(len(data)) {
		t.Fatalf("expected r1 = len(data), got %d", sc.regs[core.R1])
	}
}

func TestLoadPageBufferRejectsOutOfRangeIndex(t *testing.T) {
	f, sc := newFlasher()
	sc.nextReturn = 0
	active, err := flash.Init[flash.Program](f, nil, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := flash.LoadPageBuffer(active, []byte{1, 2, 3}, 5); err == nil {
		t.Fatalf("expected out-of-range buffer error")
	}
}

func TestLoadPageBufferAcceptsValidIndex(t *testing.T) {
	f, sc := newFlasher()
	sc.nextReturn = 0
	active, err := flash.Init[flash.Program](f, nil, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	data := []byte{1, 2, 3, 4}
	if err := flash.LoadPageBuffer(active, data, 0); err != nil {
		t.Fatalf("expected buffer index 0 (< 2 buffers) to be accepted, got %v", err)
	}
	if err := flash.LoadPageBuffer(active, data, 1); err != nil {
		t.Fatalf("expected buffer index 1 (< 2 buffers) to be accepted, got %v", err)
	}
}

func TestDoubleBufferingSupported(t *testing.T) {
	f, _ := newFlasher()
	if !f.DoubleBufferingSupported() {
		t.Fatalf("sample algorithm has 2 page buffers, expected double buffering supported")
	}
}
