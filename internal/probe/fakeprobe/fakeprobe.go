// Package fakeprobe implements probe.DebugProbe against an in-memory
// register and memory model, for driving the rest of the stack in tests
// without real USB hardware.
package fakeprobe

import (
	"fmt"

	"github.com/arm-debug/probeutil/internal/probe"
)

type regKey struct {
	ap   bool
	apn  uint8
	addr uint8
}

// Probe is a fully in-process stand-in for a real debug probe. Register
// reads/writes are served from an overlay map seeded by the test; a
// RecordingProbe wrapper (below) captures the write sequence so tests can
// assert on SELECT-cache behavior.
type Probe struct {
	Attached   bool
	AttachErr  error // when set, Attach fails with this error instead of succeeding
	regs       map[regKey]uint32
	ReadFault  map[regKey]bool
	WriteCount map[regKey]int
}

// New returns a fake probe with all registers reading as zero until
// explicitly seeded via SetRegister.
func New() *Probe {
	return &Probe{
		regs:       map[regKey]uint32{},
		ReadFault:  map[regKey]bool{},
		WriteCount: map[regKey]int{},
	}
}

func (p *Probe) Name() string { return "fake probe" }

func (p *Probe) Attach(protocol probe.WireProtocol) (probe.WireProtocol, error) {
	if p.AttachErr != nil {
		return protocol, p.AttachErr
	}
	p.Attached = true
	return protocol, nil
}

func (p *Probe) Detach() error {
	p.Attached = false
	return nil
}

func (p *Probe) TargetReset() error { return nil }

func (p *Probe) SetRegister(port probe.Port, addr uint8, value uint32) {
	p.regs[key(port, addr)] = value
}

func (p *Probe) ReadRegister(port probe.Port, addr uint8) (uint32, error) {
	k := key(port, addr)
	if p.ReadFault[k] {
		return 0, probe.ErrTransport(fmt.Errorf("fake fault reading %+v", k))
	}
	return p.regs[k], nil
}

func (p *Probe) WriteRegister(port probe.Port, addr uint8, value uint32) error {
	k := key(port, addr)
	p.WriteCount[k]++
	p.regs[k] = value
	return nil
}

func key(port probe.Port, addr uint8) regKey {
	if ap, ok := port.IsAccessPort(); ok {
		return regKey{ap: true, apn: ap, addr: addr}
	}
	return regKey{addr: addr}
}

// RecordedWrite is one WriteRegister call observed by a RecordingProbe.
type RecordedWrite struct {
	Port  probe.Port
	Addr  uint8
	Value uint32
}

// RecordingProbe wraps another DebugProbe and records every write, so tests
// can check the minimal-SELECT-writes invariant (spec §8).
type RecordingProbe struct {
	probe.DebugProbe
	Writes []RecordedWrite
}

func NewRecording(inner probe.DebugProbe) *RecordingProbe {
	return &RecordingProbe{DebugProbe: inner}
}

func (r *RecordingProbe) WriteRegister(port probe.Port, addr uint8, value uint32) error {
	r.Writes = append(r.Writes, RecordedWrite{Port: port, Addr: addr, Value: value})
	return r.DebugProbe.WriteRegister(port, addr, value)
}
