package fakecore_test

import (
	"testing"

	"github.com/arm-debug/probeutil/internal/core"
	"github.com/arm-debug/probeutil/internal/core/fakecore"
	"github.com/arm-debug/probeutil/pkg/dump"
)

func TestHaltRunToggleState(t *testing.T) {
	c := fakecore.New(&dump.Image{})
	if c.Halted() {
		t.Fatalf("new fake core should start running")
	}
	if _, err := c.Halt(); err != nil {
		t.Fatalf("halt: %v", err)
	}
	if !c.Halted() {
		t.Fatalf("expected halted after Halt()")
	}
	if err := c.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if c.Halted() {
		t.Fatalf("expected running after Run()")
	}
}

func TestCoreRegRoundTrip(t *testing.T) {
	c := fakecore.New(&dump.Image{})
	if err := c.WriteCoreReg(core.R3, 0xCAFEBABE); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, err := c.ReadCoreReg(core.R3)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v != 0xCAFEBABE {
		t.Fatalf("got 0x%08x, want 0xCAFEBABE", v)
	}
}

func TestMem32RoundTripThroughUnderlyingImage(t *testing.T) {
	img := &dump.Image{}
	c := fakecore.New(img)
	c.WriteMem32(0x2000_0000, 0x01020304)
	if got := c.ReadMem32(0x2000_0000); got != 0x01020304 {
		t.Fatalf("got 0x%08x, want 0x01020304", got)
	}
	if got := img.ReadByte(0x2000_0000); got != 0x04 {
		t.Fatalf("expected little-endian byte 0 = 0x04, got 0x%02x", got)
	}
}
