// Package cortexm0 implements core.Core for the Cortex-M0 debug register
// file (DHCSR/DCRSR/DCRDR/DEMCR/AIRCR), the only core kind this module
// supports.
package cortexm0

import (
	"fmt"
	"time"

	"github.com/arm-debug/probeutil/internal/core"
	"github.com/arm-debug/probeutil/internal/memory"
	"github.com/arm-debug/probeutil/internal/xerrors"
)

// Debug register addresses, fixed by the Armv6-M architecture.
const (
	addrDHCSR = 0xE000EDF0
	addrDCRSR = 0xE000EDF4
	addrDCRDR = 0xE000EDF8
	addrDEMCR = 0xE000EDFC
	addrAIRCR = 0xE000ED0C
)

// DHCSR bits.
const (
	dbgKey     = 0xA05F0000
	cDebugEn   = 1 << 0
	cHalt      = 1 << 1
	sHaltBit   = 1 << 17
	sRegRdyBit = 1 << 16
)

// DEMCR bits.
const vcCoreReset = 1 << 0

// AIRCR bits.
const (
	vectKey     = 0x05FA << 16
	sysResetReq = 1 << 2
)

// DCRSR bits.
const regWnR = 1 << 16

const pollInterval = 2 * time.Millisecond

// Core drives one Cortex-M0 via its debug register file over a
// memory.Interface bound to the core's MEM-AP.
type Core struct {
	mem *memory.Interface
}

// New binds a Cortex-M0 Core to mem.
func New(mem *memory.Interface) *Core {
	return &Core{mem: mem}
}

func (c *Core) Halt() (core.CPUInfo, error) {
	if err := c.mem.Write32(addrDHCSR, dbgKey|cDebugEn|cHalt); err != nil {
		return core.CPUInfo{}, err
	}
	if err := c.WaitForHalted(); err != nil {
		return core.CPUInfo{}, err
	}
	pc, err := c.ReadCoreReg(core.PC)
	if err != nil {
		return core.CPUInfo{}, err
	}
	return core.CPUInfo{PC: pc}, nil
}

func (c *Core) WaitForHalted() error {
	deadline := time.Now().Add(core.PollBudget)
	for {
		v, err := c.mem.Read32(addrDHCSR)
		if err != nil {
			return err
		}
		if v&sHaltBit != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return xerrors.New(xerrors.KindProtocolAccess, fmt.Errorf("cortexm0: timed out waiting for S_HALT"))
		}
		time.Sleep(pollInterval)
	}
}

func (c *Core) ResetAndHalt() error {
	demcr, err := c.mem.Read32(addrDEMCR)
	if err != nil {
		return err
	}
	if err := c.mem.Write32(addrDEMCR, demcr|vcCoreReset); err != nil {
		return err
	}
	if err := c.mem.Write32(addrAIRCR, vectKey|sysResetReq); err != nil {
		return err
	}
	return c.WaitForHalted()
}

func (c *Core) Run() error {
	dhcsr, err := c.mem.Read32(addrDHCSR)
	if err != nil {
		return err
	}
	return c.mem.Write32(addrDHCSR, dbgKey|(dhcsr&cDebugEn))
}

func (c *Core) ReadCoreReg(id core.RegisterID) (uint32, error) {
	if err := c.mem.Write32(addrDCRSR, uint32(id)); err != nil {
		return 0, err
	}
	if err := c.waitRegReady(); err != nil {
		return 0, err
	}
	return c.mem.Read32(addrDCRDR)
}

func (c *Core) WriteCoreReg(id core.RegisterID, value uint32) error {
	if err := c.mem.Write32(addrDCRDR, value); err != nil {
		return err
	}
	if err := c.mem.Write32(addrDCRSR, uint32(id)|regWnR); err != nil {
		return err
	}
	return c.waitRegReady()
}

func (c *Core) waitRegReady() error {
	deadline := time.Now().Add(core.PollBudget)
	for {
		v, err := c.mem.Read32(addrDHCSR)
		if err != nil {
			return err
		}
		if v&sRegRdyBit != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return xerrors.New(xerrors.KindProtocolAccess, fmt.Errorf("cortexm0: timed out waiting for S_REGRDY"))
		}
		time.Sleep(pollInterval)
	}
}

func (c *Core) Registers() core.RegisterFile { return core.DefaultRegisterFile() }
