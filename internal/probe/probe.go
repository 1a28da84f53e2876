// Package probe defines the uniform contract every USB debug probe must
// satisfy: attach with a wire protocol, detach, reset the target, and move
// one 32-bit word across the wire to a DP or AP register. Concrete variants
// (daplink, stlink, fakeprobe) each implement DebugProbe; everything above
// this package talks only to the interface.
package probe

import "github.com/arm-debug/probeutil/internal/xerrors"

// WireProtocol is the transport-level protocol negotiated on attach.
type WireProtocol int

const (
	SWD WireProtocol = iota
	JTAG
)

func (w WireProtocol) String() string {
	if w == JTAG {
		return "JTAG"
	}
	return "SWD"
}

// Port selects one of the two addressing modes every probe operation needs.
type Port struct {
	isAP bool
	ap   uint8
}

// DebugPort addresses the Debug Port.
func DebugPort() Port { return Port{} }

// AccessPort addresses the Access Port selected by apsel.
func AccessPort(apsel uint8) Port { return Port{isAP: true, ap: apsel} }

// IsAccessPort reports whether this port addresses an AP (and which one).
func (p Port) IsAccessPort() (apsel uint8, ok bool) { return p.ap, p.isAP }

// Variant tags which concrete wire protocol a probe speaks, mirroring the
// two mass-market families this library supports.
type Variant int

const (
	VariantDAPLink Variant = iota
	VariantSTLink
)

func (v Variant) String() string {
	if v == VariantSTLink {
		return "ST-Link"
	}
	return "DAPLink"
}

// Info describes a USB debug probe as enumerated from the host, before it is
// opened. It is produced once by ListProbes and consumed once by Open.
type Info struct {
	Identifier string
	VendorID   uint16
	ProductID  uint16
	Serial     *string
	Variant    Variant
}

// DebugProbe is the uniform contract every concrete probe implementation
// satisfies: attach, detach, reset, and single-register read/write.
//
// Failure semantics: every call either succeeds or fails with a
// *xerrors.Error of KindProbeTransport. daplink.Probe retries WAIT
// acknowledgements internally up to a fixed bound; once that bound is
// exceeded the error is fatal to the current operation. stlink.Probe does
// not inspect the status it reads back and does not retry.
type DebugProbe interface {
	// Attach enters debug mode, returning the protocol actually negotiated
	// (the probe may decline the one requested).
	Attach(protocol WireProtocol) (WireProtocol, error)

	// Detach leaves debug mode. Idempotent.
	Detach() error

	// TargetReset asserts and deasserts the target's reset line.
	TargetReset() error

	// ReadRegister reads one 32-bit register. addr is the 8-bit offset
	// within the currently selected bank of port; higher-order bits are
	// ignored by the callee.
	ReadRegister(port Port, addr uint8) (uint32, error)

	// WriteRegister writes one 32-bit register.
	WriteRegister(port Port, addr uint8, value uint32) error

	// Name returns a human-readable identifier for logging.
	Name() string
}

// ErrTransport wraps cause as a KindProbeTransport error.
func ErrTransport(cause error) error { return xerrors.New(xerrors.KindProbeTransport, cause) }
