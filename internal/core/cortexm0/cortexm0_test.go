package cortexm0_test

import (
	"testing"

	"github.com/arm-debug/probeutil/internal/core"
	"github.com/arm-debug/probeutil/internal/core/cortexm0"
	"github.com/arm-debug/probeutil/internal/coresight"
	"github.com/arm-debug/probeutil/internal/memory"
	"github.com/arm-debug/probeutil/internal/probe"
)

// fakeMCU is a DebugProbe stand-in for a MEM-AP wired to a register map
// covering the Cortex-M0 debug register file plus a small RAM window, with
// enough behavior (S_HALT/S_REGRDY set immediately, AIRCR reset clears
// S_HALT) to drive cortexm0.Core through its state transitions.
type fakeMCU struct {
	regs map[uint32]uint32
	csw  uint32
	tar  uint32
}

func newFakeMCU() *fakeMCU {
	return &fakeMCU{regs: map[uint32]uint32{}}
}

func (f *fakeMCU) Name() string { return "fake mcu" }
func (f *fakeMCU) Attach(p probe.WireProtocol) (probe.WireProtocol, error) {
	return p, nil
}
func (f *fakeMCU) Detach() error      { return nil }
func (f *fakeMCU) TargetReset() error { return nil }

func (f *fakeMCU) ReadRegister(port probe.Port, addr uint8) (uint32, error) {
	if _, ok := port.IsAccessPort(); !ok {
		return 0, nil
	}
	switch addr {
	case coresight.RegCSW.RegAddress():
		return f.csw, nil
	case coresight.RegTAR.RegAddress():
		return f.tar, nil
	case coresight.RegDRW.RegAddress():
		return f.regs[f.tar], nil
	}
	return 0, nil
}

func (f *fakeMCU) WriteRegister(port probe.Port, addr uint8, value uint32) error {
	if _, ok := port.IsAccessPort(); !ok {
		return nil
	}
	switch addr {
	case coresight.RegCSW.RegAddress():
		f.csw = value
	case coresight.RegTAR.RegAddress():
		f.tar = value
	case coresight.RegDRW.RegAddress():
		f.handleWrite(value)
	}
	return nil
}

const (
	addrDHCSR = 0xE000EDF0
	addrDCRSR = 0xE000EDF4
	addrDCRDR = 0xE000EDF8
	addrAIRCR = 0xE000ED0C

	sHaltBit   = 1 << 17
	sRegRdyBit = 1 << 16
	cHalt      = 1 << 1
)

func (f *fakeMCU) handleWrite(value uint32) {
	switch f.tar {
	case addrDHCSR:
		// Writes with DBGKEY update the real control bits; a write that
		// requests C_HALT immediately reports S_HALT, matching real
		// hardware's near-instant halt for a core already stopped at a
		// debug-friendly point.
		f.regs[addrDHCSR] = value&0xFFFF | boolBit(value&cHalt != 0, sHaltBit)
	case addrAIRCR:
		// A reset clears S_HALT; ResetAndHalt's VC_CORERESET vector catch
		// then re-halts it, so the next DHCSR read after reset reports not
		// halted until a subsequent halt re-sets it — simplified here to
		// "reset always lands halted", matching VC_CORERESET semantics.
		f.regs[addrDHCSR] = sHaltBit
	case addrDCRSR:
		// Register transfers complete synchronously in this model.
		f.regs[addrDHCSR] |= sRegRdyBit
	default:
		f.regs[f.tar] = value
	}
}

func boolBit(b bool, bit uint32) uint32 {
	if b {
		return bit
	}
	return 0
}

func newCore() (*cortexm0.Core, *fakeMCU) {
	dev := newFakeMCU()
	dev.regs[addrDHCSR] = sRegRdyBit // registers always ready in this model
	probeM := coresight.New(dev)
	mem := memory.New(probeM, coresight.MemoryAP{APSel: 0})
	return cortexm0.New(mem), dev
}

func TestHaltReportsHalted(t *testing.T) {
	c, _ := newCore()
	if _, err := c.Halt(); err != nil {
		t.Fatalf("halt: %v", err)
	}
	if err := c.WaitForHalted(); err != nil {
		t.Fatalf("expected core to report halted after Halt: %v", err)
	}
}

func TestResetAndHaltLandsHalted(t *testing.T) {
	c, _ := newCore()
	if err := c.ResetAndHalt(); err != nil {
		t.Fatalf("reset and halt: %v", err)
	}
	if err := c.WaitForHalted(); err != nil {
		t.Fatalf("expected halted after reset: %v", err)
	}
}

func TestCoreRegRoundTrip(t *testing.T) {
	c, dev := newCore()
	dev.regs[addrDCRDR] = 0
	if err := c.WriteCoreReg(core.R0, 0x12345678); err != nil {
		t.Fatalf("write core reg: %v", err)
	}
	if dev.regs[addrDCRDR] != 0x12345678 {
		t.Fatalf("DCRDR = 0x%08x, want 0x12345678", dev.regs[addrDCRDR])
	}
	v, err := c.ReadCoreReg(core.R0)
	if err != nil {
		t.Fatalf("read core reg: %v", err)
	}
	if v != 0x12345678 {
		t.Fatalf("read back 0x%08x, want 0x12345678", v)
	}
}

func TestRegistersNamesPCAndSP(t *testing.T) {
	c, _ := newCore()
	rf := c.Registers()
	if rf.IDs["pc"] != core.PC || rf.IDs["sp"] != core.SP {
		t.Fatalf("register file missing pc/sp entries: %+v", rf.IDs)
	}
}
