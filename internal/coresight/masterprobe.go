package coresight

import (
	"fmt"

	"github.com/arm-debug/probeutil/internal/probe"
	"github.com/arm-debug/probeutil/internal/xerrors"
	"github.com/arm-debug/probeutil/internal/xferlog"
)

const selectAddress = 0x08 // DP SELECT register offset

// GenericAP addresses a plain Access Port by its APSEL number.
type GenericAP struct{ APSel uint8 }

// MemoryAP addresses a Memory Access Port by its APSEL number.
type MemoryAP struct{ APSel uint8 }

// CtrlAP addresses a vendor Control Access Port by its APSEL number.
type CtrlAP struct{ APSel uint8 }

// MasterProbe wraps a probe.DebugProbe and maintains the (APSEL, APBANKSEL)
// write-through cache ADIv5 requires: before any AP register access it
// compares the requested selection against the cache and writes DP SELECT
// only on a mismatch, keeping the invariant that after any successful AP
// read/write the wire-level SELECT equals the cached selection.
type MasterProbe struct {
	probe probe.DebugProbe

	currentAPSel    uint8
	currentAPBank   uint8
	haveSelectedOne bool

	busy bool
}

// New wraps probe for ADIv5 AP/DP access.
func New(p probe.DebugProbe) *MasterProbe {
	return &MasterProbe{probe: p}
}

// Probe returns the underlying transport, for operations (reset, attach)
// that bypass the AP/DP layer entirely.
func (m *MasterProbe) Probe() probe.DebugProbe { return m.probe }

// Acquire marks the probe busy for the duration of one logical operation,
// enforcing the exclusive-access invariant the SELECT cache depends on. It
// panics on re-entrant use — the runtime assertion called for in the design
// notes for languages without a borrow checker.
func (m *MasterProbe) Acquire() func() {
	if m.busy {
		panic("coresight: MasterProbe accessed re-entrantly; two logical operations interleaved on one probe")
	}
	m.busy = true
	return func() { m.busy = false }
}

func (m *MasterProbe) selectAPBank(apsel, bank uint8) error {
	changed := !m.haveSelectedOne || m.currentAPSel != apsel || m.currentAPBank != bank
	if !changed {
		return nil
	}
	xferlog.Debugf("coresight: SELECT -> apsel=%d apbanksel=%d", apsel, bank)
	selectValue := uint32(apsel)<<24 | uint32(bank)<<4
	if err := m.probe.WriteRegister(probe.DebugPort(), selectAddress, selectValue); err != nil {
		return xerrors.New(xerrors.KindProtocolAccess, err)
	}
	m.currentAPSel = apsel
	m.currentAPBank = bank
	m.haveSelectedOne = true
	return nil
}

// ReadGenericAP reads a GenericAPRegister from ap.
func (m *MasterProbe) ReadGenericAP(ap GenericAP, reg GenericAPRegister) (uint32, error) {
	if err := m.selectAPBank(ap.APSel, reg.RegBank()); err != nil {
		return 0, err
	}
	return m.readAP(ap.APSel, reg)
}

// WriteGenericAP writes value to a GenericAPRegister on ap.
func (m *MasterProbe) WriteGenericAP(ap GenericAP, reg GenericAPRegister, value uint32) error {
	if err := m.selectAPBank(ap.APSel, reg.RegBank()); err != nil {
		return err
	}
	return m.writeAP(ap.APSel, reg, value)
}

// ReadMemoryAP reads a MemoryAPRegister (CSW/TAR/DRW) from ap.
func (m *MasterProbe) ReadMemoryAP(ap MemoryAP, reg MemoryAPRegister) (uint32, error) {
	if err := m.selectAPBank(ap.APSel, reg.RegBank()); err != nil {
		return 0, err
	}
	return m.readAP(ap.APSel, reg)
}

// WriteMemoryAP writes value to a MemoryAPRegister on ap.
func (m *MasterProbe) WriteMemoryAP(ap MemoryAP, reg MemoryAPRegister, value uint32) error {
	if err := m.selectAPBank(ap.APSel, reg.RegBank()); err != nil {
		return err
	}
	return m.writeAP(ap.APSel, reg, value)
}

// ReadCtrlAP reads a CtrlAPRegister (RESET/ERASEALL/ERASEALLSTATUS) from ap.
func (m *MasterProbe) ReadCtrlAP(ap CtrlAP, reg CtrlAPRegister) (uint32, error) {
	if err := m.selectAPBank(ap.APSel, reg.RegBank()); err != nil {
		return 0, err
	}
	return m.readAP(ap.APSel, reg)
}

// WriteCtrlAP writes value to a CtrlAPRegister on ap.
func (m *MasterProbe) WriteCtrlAP(ap CtrlAP, reg CtrlAPRegister, value uint32) error {
	if err := m.selectAPBank(ap.APSel, reg.RegBank()); err != nil {
		return err
	}
	return m.writeAP(ap.APSel, reg, value)
}

func (m *MasterProbe) readAP(apsel uint8, reg APRegister) (uint32, error) {
	v, err := m.probe.ReadRegister(probe.AccessPort(apsel), reg.RegAddress())
	if err != nil {
		return 0, xerrors.New(xerrors.KindProtocolAccess, fmt.Errorf("read %s: %w", reg.RegName(), err))
	}
	xferlog.Debugf("coresight: read  %-6s = 0x%08x", reg.RegName(), v)
	return v, nil
}

func (m *MasterProbe) writeAP(apsel uint8, reg APRegister, value uint32) error {
	xferlog.Debugf("coresight: write %-6s = 0x%08x", reg.RegName(), value)
	if err := m.probe.WriteRegister(probe.AccessPort(apsel), reg.RegAddress(), value); err != nil {
		return xerrors.New(xerrors.KindProtocolAccess, fmt.Errorf("write %s: %w", reg.RegName(), err))
	}
	return nil
}

// ReadDP reads a Debug Port register directly, bypassing the AP select cache.
func (m *MasterProbe) ReadDP(addr uint8) (uint32, error) {
	v, err := m.probe.ReadRegister(probe.DebugPort(), addr)
	if err != nil {
		return 0, xerrors.New(xerrors.KindProtocolAccess, err)
	}
	return v, nil
}

// WriteDP writes a Debug Port register directly, bypassing the AP select cache.
func (m *MasterProbe) WriteDP(addr uint8, value uint32) error {
	if err := m.probe.WriteRegister(probe.DebugPort(), addr, value); err != nil {
		return xerrors.New(xerrors.KindProtocolAccess, err)
	}
	return nil
}

// FindAPByIDR scans APSEL 0..255 looking for an AP whose IDR satisfies
// match, used to locate a vendor Control AP before a mass-erase unlock.
func (m *MasterProbe) FindAPByIDR(match func(class IDRClass, designer uint16) bool) (apsel uint8, found bool, err error) {
	for ap := uint8(0); ; ap++ {
		raw, rerr := m.ReadGenericAP(GenericAP{APSel: ap}, RegIDR)
		if rerr != nil {
			return 0, false, rerr
		}
		if raw != 0 {
			class, designer, _ := DecodeIDR(raw)
			if match(class, designer) {
				return ap, true, nil
			}
		}
		if ap == 255 {
			break
		}
	}
	return 0, false, nil
}
