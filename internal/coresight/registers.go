// Package coresight implements the ADIv5 Debug Port / Access Port layer on
// top of a probe.DebugProbe: the (APSEL, APBANKSEL) selection cache, and
// typed accessors for named AP registers.
package coresight

// APRegister is the compile-time descriptor every named AP register
// implements: its name (for logging), its 8-bit offset within the bank,
// and the 4-bit bank index that selects it via DP SELECT. Descriptors
// never carry a live value — they identify *where* a register lives;
// MasterProbe.Read*/Write* move the raw 32-bit word.
type APRegister interface {
	RegName() string
	RegAddress() uint8
	RegBank() uint8
}

// GenericAPRegister marks registers that live on any AccessPort (IDR).
// A register satisfying only this marker cannot be passed to a Memory-AP
// accessor, and vice versa — the type system rejects the "Memory-AP
// register on Generic AP" mistake at compile time.
type GenericAPRegister interface {
	APRegister
	genericAPRegister()
}

// MemoryAPRegister marks registers specific to a MEM-AP (CSW, TAR, DRW).
type MemoryAPRegister interface {
	APRegister
	memoryAPRegister()
}

// CtrlAPRegister marks registers on a vendor Control AP used for the
// mass-erase unlock path (RESET, ERASEALL, ERASEALLSTATUS).
type CtrlAPRegister interface {
	APRegister
	ctrlAPRegister()
}

type reg struct {
	name string
	addr uint8
	bank uint8
}

func (r reg) RegName() string   { return r.name }
func (r reg) RegAddress() uint8 { return r.addr }
func (r reg) RegBank() uint8    { return r.bank }

// genericReg is any register reachable on every AP class.
type genericReg struct{ reg }

func (genericReg) genericAPRegister() {}

// memoryReg is a MEM-AP-only register.
type memoryReg struct{ reg }

func (memoryReg) memoryAPRegister() {}

// ctrlReg is a vendor Control-AP-only register.
type ctrlReg struct{ reg }

func (ctrlReg) ctrlAPRegister() {}

var (
	// RegIDR identifies the AP implementation; present on every AP class.
	RegIDR = genericReg{reg{"IDR", 0xFC, 0xF}}

	// RegCSW, RegTAR, RegDRW are MEM-AP control/status, transfer-address,
	// and data-read/write registers.
	RegCSW = memoryReg{reg{"CSW", 0x00, 0x0}}
	RegTAR = memoryReg{reg{"TAR", 0x04, 0x0}}
	RegDRW = memoryReg{reg{"DRW", 0x0C, 0x0}}

	// RegCtrlRESET, RegCtrlERASEALL, RegCtrlERASEALLSTATUS are the vendor
	// Control AP registers used by UnlockByMassErase.
	RegCtrlRESET          = ctrlReg{reg{"RESET", 0x00, 0x0}}
	RegCtrlERASEALL       = ctrlReg{reg{"ERASEALL", 0x04, 0x0}}
	RegCtrlERASEALLSTATUS = ctrlReg{reg{"ERASEALLSTATUS", 0x08, 0x0}}
)

// IDR bit layout.
type IDRClass uint8

const (
	IDRClassUndefined IDRClass = 0x0
	IDRClassMemAP     IDRClass = 0x8
)

// DecodeIDR extracts the AP class and designer fields from a raw IDR word.
func DecodeIDR(raw uint32) (class IDRClass, designer uint16, revision uint8) {
	class = IDRClass((raw >> 13) & 0xF)
	designer = uint16((raw >> 17) & 0x7FF)
	revision = uint8((raw >> 28) & 0xF)
	return
}

// CSW transfer sizes and auto-increment modes, encoded into the raw word
// MasterProbe writes to RegCSW.
type TransferSize uint32
type AutoIncrement uint32

const (
	Size8  TransferSize = 0
	Size32 TransferSize = 2

	AutoIncOff    AutoIncrement = 0
	AutoIncSingle AutoIncrement = 1 << 4
	AutoIncPacked AutoIncrement = 2 << 4
)

// EncodeCSW builds the raw CSW word for the requested size and
// auto-increment mode, preserving the HPROT/privileged bits the CMSIS-Pack
// algorithms expect to already be set (0x23000000 base, matching the
// standard MEM-AP default CSW value used across ADIv5 debug tooling).
func EncodeCSW(size TransferSize, inc AutoIncrement) uint32 {
	const base = 0x23000000
	return base | uint32(size) | uint32(inc)
}
