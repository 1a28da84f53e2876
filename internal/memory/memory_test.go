package memory_test

import (
	"testing"

	"github.com/arm-debug/probeutil/internal/coresight"
	"github.com/arm-debug/probeutil/internal/memory"
	"github.com/arm-debug/probeutil/internal/probe"
)

// memModel is a DebugProbe stand-in that actually behaves like a MEM-AP
// wired to a sparse memory: CSW selects size/auto-increment, TAR is the
// current transfer address, and each DRW access reads/writes that address
// and then advances TAR according to the auto-increment mode. fakeprobe's
// plain register map is the right fake for coresight's SELECT-cache tests,
// but block-transfer decomposition needs a model that actually moves
// through memory on repeated DRW access, so this test builds its own. The
// backing store is a map, not a slice, since target addresses (e.g.
// 0x2000_0000) are far larger than any test's working set.
type memModel struct {
	mem       map[uint32]byte
	csw       uint32
	tar       uint32
	selectVal uint32
}

func newMemModel(size int) *memModel {
	return &memModel{mem: make(map[uint32]byte, size)}
}

func (m *memModel) Name() string { return "mem model" }
func (m *memModel) Attach(p probe.WireProtocol) (probe.WireProtocol, error) {
	return p, nil
}
func (m *memModel) Detach() error      { return nil }
func (m *memModel) TargetReset() error { return nil }

func (m *memModel) ReadRegister(port probe.Port, addr uint8) (uint32, error) {
	if _, ok := port.IsAccessPort(); !ok {
		if addr == 0x08 {
			return m.selectVal, nil
		}
		return 0, nil
	}
	switch addr {
	case coresight.RegCSW.RegAddress():
		return m.csw, nil
	case coresight.RegTAR.RegAddress():
		return m.tar, nil
	case coresight.RegDRW.RegAddress():
		return m.readDRW(), nil
	}
	return 0, nil
}

func (m *memModel) WriteRegister(port probe.Port, addr uint8, value uint32) error {
	if _, ok := port.IsAccessPort(); !ok {
		if addr == 0x08 {
			m.selectVal = value
		}
		return nil
	}
	switch addr {
	case coresight.RegCSW.RegAddress():
		m.csw = value
	case coresight.RegTAR.RegAddress():
		m.tar = value
	case coresight.RegDRW.RegAddress():
		m.writeDRW(value)
	}
	return nil
}

func (m *memModel) readDRW() uint32 {
	size := coresight.TransferSize(m.csw & 0x3)
	var v uint32
	switch size {
	case coresight.Size8:
		lane := m.tar & 0x3
		v = uint32(m.mem[m.tar]) << (8 * lane)
	default:
		v = uint32(m.mem[m.tar]) | uint32(m.mem[m.tar+1])<<8 | uint32(m.mem[m.tar+2])<<16 | uint32(m.mem[m.tar+3])<<24
	}
	m.advance(size)
	return v
}

func (m *memModel) writeDRW(value uint32) {
	size := coresight.TransferSize(m.csw & 0x3)
	switch size {
	case coresight.Size8:
		lane := m.tar & 0x3
		m.mem[m.tar] = byte(value >> (8 * lane))
	default:
		m.mem[m.tar] = byte(value)
		m.mem[m.tar+1] = byte(value >> 8)
		m.mem[m.tar+2] = byte(value >> 16)
		m.mem[m.tar+3] = byte(value >> 24)
	}
	m.advance(size)
}

func (m *memModel) advance(size coresight.TransferSize) {
	inc := coresight.AutoIncrement(m.csw & 0x30)
	if inc == coresight.AutoIncOff {
		return
	}
	if size == coresight.Size8 {
		m.tar++
	} else {
		m.tar += 4
	}
}

func TestWord32ReadWriteRoundTrip(t *testing.T) {
	dev := newMemModel(4096)
	probeM := coresight.New(dev)
	mi := memory.New(probeM, coresight.MemoryAP{APSel: 0})

	const addr = 0x2000_0100
	if err := mi.Write32(addr, 0xDEADBEEF); err != nil {
		t.Fatalf("write32: %v", err)
	}
	v, err := mi.Read32(addr)
	if err != nil {
		t.Fatalf("read32: %v", err)
	}
	if v != 0xDEADBEEF {
		t.Fatalf("got 0x%08x, want 0xDEADBEEF", v)
	}
}

func TestWrite32RejectsMisalignedAddress(t *testing.T) {
	dev := newMemModel(4096)
	probeM := coresight.New(dev)
	mi := memory.New(probeM, coresight.MemoryAP{APSel: 0})

	if err := mi.Write32(0x2000_0001, 0x1234); err == nil {
		t.Fatalf("expected alignment error")
	}
}

func TestBlock32CrossesTARWindow(t *testing.T) {
	dev := newMemModel(8192)
	probeM := coresight.New(dev)
	mi := memory.New(probeM, coresight.MemoryAP{APSel: 0})

	// Start 8 bytes before a 1 KiB boundary and write 8 words (32 bytes),
	// forcing the transfer to straddle the boundary and re-seed TAR partway
	// through.
	const addr = 0x2000_03F8
	words := make([]uint32, 8)
	for i := range words {
		words[i] = uint32(0x1000 + i)
	}
	if err := mi.WriteBlock32(addr, words); err != nil {
		t.Fatalf("writeblock32: %v", err)
	}

	got := make([]uint32, 8)
	if err := mi.ReadBlock32(addr, got); err != nil {
		t.Fatalf("readblock32: %v", err)
	}
	for i := range words {
		if got[i] != words[i] {
			t.Fatalf("word %d: got 0x%x, want 0x%x", i, got[i], words[i])
		}
	}
}

func TestBlock8MixedAlignment(t *testing.T) {
	dev := newMemModel(4096)
	probeM := coresight.New(dev)
	mi := memory.New(probeM, coresight.MemoryAP{APSel: 0})

	const addr = 0x2000_0101 // one byte past word alignment
	data := make([]byte, 19) // head(3) + body(16) + tail(0), or similar split
	for i := range data {
		data[i] = byte(i + 1)
	}
	if err := mi.WriteBlock8(addr, data); err != nil {
		t.Fatalf("writeblock8: %v", err)
	}

	got := make([]byte, len(data))
	if err := mi.ReadBlock8(addr, got); err != nil {
		t.Fatalf("readblock8: %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], data[i])
		}
	}
}

func TestRead8PicksCorrectByteLane(t *testing.T) {
	dev := newMemModel(16)
	probeM := coresight.New(dev)
	mi := memory.New(probeM, coresight.MemoryAP{APSel: 0})

	if err := mi.Write32(0, 0x44332211); err != nil {
		t.Fatalf("write32: %v", err)
	}
	for lane := uint32(0); lane < 4; lane++ {
		b, err := mi.Read8(lane)
		if err != nil {
			t.Fatalf("read8(%d): %v", lane, err)
		}
		want := byte(0x11 + lane*0x11)
		if b != want {
			t.Fatalf("lane %d: got 0x%02x, want 0x%02x", lane, b, want)
		}
	}
}
