package coresight

import (
	"time"

	"github.com/arm-debug/probeutil/internal/xerrors"
	"github.com/arm-debug/probeutil/internal/xferlog"
)

// MassEraseTimeout bounds how long UnlockByMassErase polls ERASEALLSTATUS
// before giving up and surfacing a warning (not a fatal error — the chip
// may have completed the erase silently).
const MassEraseTimeout = 15 * time.Second

// ctrlAPDesigner is the JEP-106 designer code this unlock path looks for
// when scanning for a vendor Control AP (Nordic's nRF52 CTRL-AP fingerprint).
const ctrlAPDesigner = 0x0144

// UnlockByMassErase finds a vendor Control AP by its IDR fingerprint, pulses
// RESET, issues ERASEALL, and polls ERASEALLSTATUS until it clears or
// MassEraseTimeout elapses, then pulses RESET again and clears ERASEALL.
//
// A timeout surfaces as a logged warning, not an error: the chip may have
// completed the erase silently and the caller should simply retry the
// attach.
func UnlockByMassErase(m *MasterProbe) error {
	apsel, found, err := m.FindAPByIDR(func(class IDRClass, designer uint16) bool {
		return designer == ctrlAPDesigner
	})
	if err != nil {
		return err
	}
	if !found {
		return xerrors.NotFound("control AP")
	}
	ctrl := CtrlAP{APSel: apsel}

	xferlog.Infof("coresight: starting mass erase unlock via AP %d", apsel)

	if err := m.WriteCtrlAP(ctrl, RegCtrlRESET, 1); err != nil {
		return err
	}
	if err := m.WriteCtrlAP(ctrl, RegCtrlRESET, 0); err != nil {
		return err
	}
	if err := m.WriteCtrlAP(ctrl, RegCtrlERASEALL, 1); err != nil {
		return err
	}

	deadline := time.Now().Add(MassEraseTimeout)
	timedOut := true
	for time.Now().Before(deadline) {
		status, err := m.ReadCtrlAP(ctrl, RegCtrlERASEALLSTATUS)
		if err != nil {
			return err
		}
		if status&1 == 0 {
			timedOut = false
			break
		}
	}

	if err := m.WriteCtrlAP(ctrl, RegCtrlRESET, 1); err != nil {
		return err
	}
	if err := m.WriteCtrlAP(ctrl, RegCtrlRESET, 0); err != nil {
		return err
	}
	if err := m.WriteCtrlAP(ctrl, RegCtrlERASEALL, 0); err != nil {
		return err
	}

	if timedOut {
		xferlog.Warnf("coresight: mass erase timed out after %s; chip may have unlocked anyway", MassEraseTimeout)
	} else {
		xferlog.Infof("coresight: mass erase completed, chip unlocked")
	}
	return nil
}
