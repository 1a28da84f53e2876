// Package fakecore implements core.Core against a pkg/dump memory image, for
// driving flash-builder and session logic in tests without real silicon.
// Halt/Run only toggle a halted flag; reads and writes go straight to the
// in-memory dump image (a write changes that image, not the file it was
// loaded from), and core registers live in a small in-memory file.
package fakecore

import (
	"github.com/arm-debug/probeutil/internal/core"
	"github.com/arm-debug/probeutil/pkg/dump"
)

// Core is a core.Core backed by a dump.Image.
type Core struct {
	image  *dump.Image
	regs   map[core.RegisterID]uint32
	halted bool
}

// New wraps image as a Core. Writes change image in place and reads come
// from it directly, so a test can seed the dump once and then assert on
// both flasher writes and core register traffic against the same image.
func New(image *dump.Image) *Core {
	return &Core{image: image, regs: map[core.RegisterID]uint32{}}
}

func (c *Core) Halt() (core.CPUInfo, error) {
	c.halted = true
	return core.CPUInfo{PC: c.regs[core.PC]}, nil
}

func (c *Core) WaitForHalted() error {
	return nil
}

func (c *Core) ResetAndHalt() error {
	c.halted = true
	for id := range c.regs {
		c.regs[id] = 0
	}
	return nil
}

func (c *Core) Run() error {
	c.halted = false
	return nil
}

func (c *Core) ReadCoreReg(id core.RegisterID) (uint32, error) {
	return c.regs[id], nil
}

func (c *Core) WriteCoreReg(id core.RegisterID, value uint32) error {
	c.regs[id] = value
	return nil
}

func (c *Core) Registers() core.RegisterFile { return core.DefaultRegisterFile() }

// Halted reports whether the core is currently halted, for tests asserting
// on Flasher/ActiveFlasher sequencing against a fake target.
func (c *Core) Halted() bool { return c.halted }

// ReadMem32 reads one little-endian word from the underlying dump image, for
// tests that want to assert on memory contents directly rather than through
// a flash algorithm's register interface.
func (c *Core) ReadMem32(addr uint32) uint32 {
	return uint32(c.image.ReadByte(addr)) |
		uint32(c.image.ReadByte(addr+1))<<8 |
		uint32(c.image.ReadByte(addr+2))<<16 |
		uint32(c.image.ReadByte(addr+3))<<24
}

// WriteMem32 writes one little-endian word into the underlying dump image.
func (c *Core) WriteMem32(addr, value uint32) {
	c.image.WriteByte(addr, byte(value))
	c.image.WriteByte(addr+1, byte(value>>8))
	c.image.WriteByte(addr+2, byte(value>>16))
	c.image.WriteByte(addr+3, byte(value>>24))
}
