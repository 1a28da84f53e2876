// Package daplink implements probe.DebugProbe for mass-market CMSIS-DAP
// probes reachable as a serial device, framing requests the way the
// teacher's debug-port transport does: a fixed sync byte, a command byte,
// an address, a payload, and a checksum trailer.
package daplink

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/arm-debug/probeutil/internal/probe"
	"github.com/arm-debug/probeutil/internal/xferlog"
	"go.bug.st/serial"
)

const (
	reqSync  = 0x55
	respSync = 0xAA

	cmdReadDP  = 0x00
	cmdWriteDP = 0x01
	cmdReadAP  = 0x02
	cmdWriteAP = 0x03
	cmdReset   = 0x10
	cmdAttach  = 0x11
	cmdDetach  = 0x12

	ackOK    = 0x01
	ackWait  = 0x02
	ackFault = 0x04

	maxWaitRetries = 8
	readTimeout    = 2 * time.Second
)

// Probe drives a CMSIS-DAP device over a serial transport.
type Probe struct {
	name string
	port serial.Port
}

// Open opens portName at the CMSIS-DAP default bit rate.
func Open(portName string) (*Probe, error) {
	mode := &serial.Mode{
		BaudRate: 6_000_000,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, probe.ErrTransport(fmt.Errorf("open %s: %w", portName, err))
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, probe.ErrTransport(fmt.Errorf("set timeout: %w", err))
	}
	return &Probe{name: portName, port: port}, nil
}

func (p *Probe) Name() string { return p.name }

func (p *Probe) Attach(protocol probe.WireProtocol) (probe.WireProtocol, error) {
	if _, err := p.transfer(cmdAttach, 0, nil, 0); err != nil {
		return protocol, err
	}
	// CMSIS-DAP mass-market probes only ever negotiate SWD.
	return probe.SWD, nil
}

func (p *Probe) Detach() error {
	_, err := p.transfer(cmdDetach, 0, nil, 0)
	return err
}

func (p *Probe) TargetReset() error {
	_, err := p.transfer(cmdReset, 0, nil, 0)
	return err
}

func (p *Probe) ReadRegister(port probe.Port, addr uint8) (uint32, error) {
	cmd := uint8(cmdReadDP)
	apsel := uint8(0)
	if ap, ok := port.IsAccessPort(); ok {
		cmd = cmdReadAP
		apsel = ap
	}
	data, err := p.transfer(cmd, uint32(apsel)<<8|uint32(addr), nil, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (p *Probe) WriteRegister(port probe.Port, addr uint8, value uint32) error {
	cmd := uint8(cmdWriteDP)
	apsel := uint8(0)
	if ap, ok := port.IsAccessPort(); ok {
		cmd = cmdWriteAP
		apsel = ap
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	_, err := p.transfer(cmd, uint32(apsel)<<8|uint32(addr), buf, 0)
	return err
}

// transfer sends one request packet and waits for its response, retrying
// transient WAIT acknowledgements up to maxWaitRetries times.
//
// Request:  [0x55][CMD][ADDR(3 bytes BE)][LEN(2 bytes BE)][...DATA][LRC]
// Response: [0xAA][ACK][...DATA][LRC]
func (p *Probe) transfer(cmd uint8, addr uint32, data []byte, readLen uint16) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		resp, ack, err := p.transferOnce(cmd, addr, data, readLen)
		if err != nil {
			return nil, err
		}
		switch ack {
		case ackOK:
			return resp, nil
		case ackWait:
			if attempt >= maxWaitRetries {
				return nil, probe.ErrTransport(fmt.Errorf("WAIT acknowledged %d times, giving up", attempt+1))
			}
			xferlog.Debugf("daplink: WAIT ack, retrying (attempt %d)", attempt+1)
			continue
		default:
			return nil, probe.ErrTransport(fmt.Errorf("unexpected ack 0x%02x", ack))
		}
	}
}

func (p *Probe) transferOnce(cmd uint8, addr uint32, data []byte, readLen uint16) ([]byte, uint8, error) {
	length := readLen
	if len(data) > 0 {
		length = uint16(len(data))
	}

	header := make([]byte, 7)
	header[0] = reqSync
	header[1] = cmd
	header[2] = byte(addr >> 16)
	header[3] = byte(addr >> 8)
	header[4] = byte(addr)
	binary.BigEndian.PutUint16(header[5:7], length)

	lrc := byte(0)
	for i := 0; i < 6; i++ {
		lrc ^= header[i]
	}
	for _, b := range data {
		lrc ^= b
	}

	packet := append(append([]byte{}, header...), data...)
	packet = append(packet, lrc)

	if err := writeAll(p.port, packet); err != nil {
		return nil, 0, probe.ErrTransport(err)
	}

	sync, err := readExact(p.port, 1)
	if err != nil {
		return nil, 0, probe.ErrTransport(err)
	}
	if sync[0] != respSync {
		return nil, 0, probe.ErrTransport(fmt.Errorf("bad response sync byte 0x%02x", sync[0]))
	}

	ackByte, err := readExact(p.port, 1)
	if err != nil {
		return nil, 0, probe.ErrTransport(err)
	}

	var payload []byte
	if readLen > 0 && ackByte[0] == ackOK {
		payload, err = readExact(p.port, int(readLen))
		if err != nil {
			return nil, 0, probe.ErrTransport(err)
		}
	}

	if _, err := readExact(p.port, 1); err != nil { // trailing LRC, not verified
		return nil, 0, probe.ErrTransport(err)
	}

	return payload, ackByte[0], nil
}

func readExact(port serial.Port, n int) ([]byte, error) {
	buf := make([]byte, n)
	total := 0
	for total < n {
		read, err := port.Read(buf[total:])
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if read == 0 {
			return nil, fmt.Errorf("read timeout (got %d of %d bytes)", total, n)
		}
		total += read
	}
	return buf, nil
}

func writeAll(port serial.Port, data []byte) error {
	total := 0
	for total < len(data) {
		n, err := port.Write(data[total:])
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		total += n
	}
	return nil
}
