// Package memory implements byte- and word-granular reads/writes of target
// address space over a Memory Access Port, including block transfers that
// exploit MEM-AP TAR auto-increment.
package memory

import (
	"fmt"

	"github.com/arm-debug/probeutil/internal/coresight"
	"github.com/arm-debug/probeutil/internal/xerrors"
)

// tarWindow is the size of one TAR auto-increment window; block transfers
// must refresh TAR whenever they cross this boundary.
const tarWindow = 1024

// Interface reads and writes target memory through one MEM-AP.
type Interface struct {
	probe *coresight.MasterProbe
	ap    coresight.MemoryAP
}

// New binds a Memory Interface to the given MEM-AP.
func New(probe *coresight.MasterProbe, ap coresight.MemoryAP) *Interface {
	return &Interface{probe: probe, ap: ap}
}

// Read32 reads one 32-bit word at addr. addr must be 4-byte aligned.
func (mi *Interface) Read32(addr uint32) (uint32, error) {
	if addr%4 != 0 {
		return 0, alignmentError(addr, 4)
	}
	if err := mi.setCSW(coresight.Size32, coresight.AutoIncOff); err != nil {
		return 0, err
	}
	if err := mi.probe.WriteMemoryAP(mi.ap, coresight.RegTAR, addr); err != nil {
		return 0, err
	}
	return mi.probe.ReadMemoryAP(mi.ap, coresight.RegDRW)
}

// Write32 writes one 32-bit word at addr. addr must be 4-byte aligned.
func (mi *Interface) Write32(addr, value uint32) error {
	if addr%4 != 0 {
		return alignmentError(addr, 4)
	}
	if err := mi.setCSW(coresight.Size32, coresight.AutoIncOff); err != nil {
		return err
	}
	if err := mi.probe.WriteMemoryAP(mi.ap, coresight.RegTAR, addr); err != nil {
		return err
	}
	return mi.probe.WriteMemoryAP(mi.ap, coresight.RegDRW, value)
}

// Read8 reads one byte at addr, picking the correct byte lane of DRW from
// TAR[1:0].
func (mi *Interface) Read8(addr uint32) (byte, error) {
	if err := mi.setCSW(coresight.Size8, coresight.AutoIncOff); err != nil {
		return 0, err
	}
	if err := mi.probe.WriteMemoryAP(mi.ap, coresight.RegTAR, addr); err != nil {
		return 0, err
	}
	word, err := mi.probe.ReadMemoryAP(mi.ap, coresight.RegDRW)
	if err != nil {
		return 0, err
	}
	lane := addr & 0x3
	return byte(word >> (8 * lane)), nil
}

// Write8 writes one byte at addr.
func (mi *Interface) Write8(addr uint32, value byte) error {
	if err := mi.setCSW(coresight.Size8, coresight.AutoIncOff); err != nil {
		return err
	}
	if err := mi.probe.WriteMemoryAP(mi.ap, coresight.RegTAR, addr); err != nil {
		return err
	}
	lane := addr & 0x3
	word := uint32(value) << (8 * lane)
	return mi.probe.WriteMemoryAP(mi.ap, coresight.RegDRW, word)
}

// ReadBlock32 reads len(out) words starting at addr (which must be 4-byte
// aligned) into out, decomposed across TAR auto-increment windows.
func (mi *Interface) ReadBlock32(addr uint32, out []uint32) error {
	if addr%4 != 0 {
		return alignmentError(addr, 4)
	}
	if err := mi.setCSW(coresight.Size32, coresight.AutoIncPacked); err != nil {
		return err
	}
	i := 0
	cur := addr
	for i < len(out) {
		if err := mi.probe.WriteMemoryAP(mi.ap, coresight.RegTAR, cur); err != nil {
			return err
		}
		n := wordsUntilWindow(cur, len(out)-i)
		for j := 0; j < n; j++ {
			v, err := mi.probe.ReadMemoryAP(mi.ap, coresight.RegDRW)
			if err != nil {
				return err
			}
			out[i] = v
			i++
			cur += 4
		}
	}
	return nil
}

// WriteBlock32 writes in, a sequence of 32-bit words, starting at addr.
func (mi *Interface) WriteBlock32(addr uint32, in []uint32) error {
	if addr%4 != 0 {
		return alignmentError(addr, 4)
	}
	if err := mi.setCSW(coresight.Size32, coresight.AutoIncPacked); err != nil {
		return err
	}
	i := 0
	cur := addr
	for i < len(in) {
		if err := mi.probe.WriteMemoryAP(mi.ap, coresight.RegTAR, cur); err != nil {
			return err
		}
		n := wordsUntilWindow(cur, len(in)-i)
		for j := 0; j < n; j++ {
			if err := mi.probe.WriteMemoryAP(mi.ap, coresight.RegDRW, in[i]); err != nil {
				return err
			}
			i++
			cur += 4
		}
	}
	return nil
}

// ReadBlock8 reads len(out) bytes starting at addr, decomposing mixed
// alignment into head/byte, body/word-block, and tail/byte ranges.
func (mi *Interface) ReadBlock8(addr uint32, out []byte) error {
	head, body, tail := splitAlignment(addr, len(out))

	off := 0
	for i := 0; i < head; i++ {
		b, err := mi.Read8(addr + uint32(off))
		if err != nil {
			return err
		}
		out[off] = b
		off++
	}
	if body > 0 {
		words := make([]uint32, body/4)
		if err := mi.ReadBlock32(addr+uint32(off), words); err != nil {
			return err
		}
		for _, w := range words {
			out[off] = byte(w)
			out[off+1] = byte(w >> 8)
			out[off+2] = byte(w >> 16)
			out[off+3] = byte(w >> 24)
			off += 4
		}
	}
	for i := 0; i < tail; i++ {
		b, err := mi.Read8(addr + uint32(off))
		if err != nil {
			return err
		}
		out[off] = b
		off++
	}
	return nil
}

// WriteBlock8 writes in, a byte sequence, starting at addr, decomposing
// mixed alignment the same way ReadBlock8 does.
func (mi *Interface) WriteBlock8(addr uint32, in []byte) error {
	head, body, tail := splitAlignment(addr, len(in))

	off := 0
	for i := 0; i < head; i++ {
		if err := mi.Write8(addr+uint32(off), in[off]); err != nil {
			return err
		}
		off++
	}
	if body > 0 {
		words := make([]uint32, body/4)
		for i := range words {
			b := in[off:]
			words[i] = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
			off += 4
		}
		if err := mi.WriteBlock32(addr+uint32(off)-uint32(len(words)*4), words); err != nil {
			return err
		}
	}
	for i := 0; i < tail; i++ {
		if err := mi.Write8(addr+uint32(off), in[off]); err != nil {
			return err
		}
		off++
	}
	return nil
}

func (mi *Interface) setCSW(size coresight.TransferSize, inc coresight.AutoIncrement) error {
	return mi.probe.WriteMemoryAP(mi.ap, coresight.RegCSW, coresight.EncodeCSW(size, inc))
}

// wordsUntilWindow returns how many more words can be transferred from cur
// before the next 1 KiB TAR auto-increment boundary, capped by remaining.
func wordsUntilWindow(cur uint32, remaining int) int {
	untilBoundary := int((tarWindow - cur%tarWindow) / 4)
	if untilBoundary < remaining {
		return untilBoundary
	}
	return remaining
}

// splitAlignment decomposes a byte range into a head (bytes until 4-byte
// alignment), a body (whole words), and a tail (trailing partial bytes).
func splitAlignment(addr uint32, length int) (head, body, tail int) {
	headBytes := int((4 - addr%4) % 4)
	if headBytes > length {
		headBytes = length
	}
	remaining := length - headBytes
	bodyWords := remaining / 4
	bodyBytes := bodyWords * 4
	tailBytes := remaining - bodyBytes
	return headBytes, bodyBytes, tailBytes
}

func alignmentError(addr uint32, unit int) error {
	return xerrors.New(xerrors.KindAlignmentOrSize, fmt.Errorf("address 0x%08x is not %d-byte aligned", addr, unit))
}
