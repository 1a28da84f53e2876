// Package stlink implements probe.DebugProbe for ST-Link V2/V3 adapters
// reached over USB bulk endpoints, grounded on the gousb enumeration and
// open pattern used for flashing tools elsewhere in the ecosystem.
package stlink

import (
	"encoding/binary"
	"fmt"

	"github.com/arm-debug/probeutil/internal/probe"
	"github.com/google/gousb"
)

const (
	vendorSTMicro = gousb.ID(0x0483)

	cmdGetVersion = 0xF1
	cmdDebugEnter = 0x30
	cmdDebugExit  = 0x21
	cmdResetSys   = 0x07

	cmdReadDP  = 0x45
	cmdWriteDP = 0x46
	cmdReadAP  = 0x47
	cmdWriteAP = 0x48

	inEndpoint  = 0x81
	outEndpoint = 0x02
)

// Probe drives an ST-Link adapter over a USB bulk transport.
type Probe struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	iface  *gousb.Interface
	done   func()
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	serial string
}

// Open opens the ST-Link identified by serial (empty matches the first
// device found), grounded on the OpenUSBDevice helper pattern used by the
// pack's flashing tools.
func Open(serial string) (*Probe, error) {
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendorSTMicro
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, probe.ErrTransport(fmt.Errorf("enumerate ST-Link devices: %w", err))
	}

	var dev *gousb.Device
	for _, d := range devs {
		if dev != nil {
			d.Close()
			continue
		}
		sn, _ := d.SerialNumber()
		if serial == "" || sn == serial {
			dev = d
		} else {
			d.Close()
		}
	}
	if dev == nil {
		ctx.Close()
		return nil, probe.ErrTransport(fmt.Errorf("no ST-Link matching serial %q found", serial))
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, probe.ErrTransport(fmt.Errorf("select config: %w", err))
	}
	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, probe.ErrTransport(fmt.Errorf("claim interface: %w", err))
	}
	in, err := iface.InEndpoint(inEndpoint)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, probe.ErrTransport(fmt.Errorf("open in endpoint: %w", err))
	}
	out, err := iface.OutEndpoint(outEndpoint)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, probe.ErrTransport(fmt.Errorf("open out endpoint: %w", err))
	}

	sn, _ := dev.SerialNumber()
	return &Probe{
		ctx:    ctx,
		dev:    dev,
		iface:  iface,
		in:     in,
		out:    out,
		serial: sn,
		done: func() {
			iface.Close()
			cfg.Close()
		},
	}, nil
}

func (p *Probe) Name() string { return "ST-Link " + p.serial }

func (p *Probe) Attach(protocol probe.WireProtocol) (probe.WireProtocol, error) {
	if protocol == probe.JTAG {
		return protocol, probe.ErrTransport(fmt.Errorf("ST-Link transport supports SWD only"))
	}
	if _, err := p.xfer(cmdDebugEnter, nil, 0); err != nil {
		return protocol, err
	}
	return probe.SWD, nil
}

func (p *Probe) Detach() error {
	_, err := p.xfer(cmdDebugExit, nil, 0)
	return err
}

func (p *Probe) TargetReset() error {
	_, err := p.xfer(cmdResetSys, nil, 0)
	return err
}

func (p *Probe) ReadRegister(port probe.Port, addr uint8) (uint32, error) {
	cmd := uint8(cmdReadDP)
	req := []byte{addr}
	if ap, ok := port.IsAccessPort(); ok {
		cmd = cmdReadAP
		req = []byte{ap, addr}
	}
	resp, err := p.xfer(cmd, req, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(resp), nil
}

func (p *Probe) WriteRegister(port probe.Port, addr uint8, value uint32) error {
	cmd := uint8(cmdWriteDP)
	req := []byte{addr}
	if ap, ok := port.IsAccessPort(); ok {
		cmd = cmdWriteAP
		req = []byte{ap, addr}
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	req = append(req, buf...)
	_, err := p.xfer(cmd, req, 0)
	return err
}

// Close releases the USB handle. Safe to call after Detach.
func (p *Probe) Close() error {
	if p.done != nil {
		p.done()
	}
	if p.dev != nil {
		p.dev.Close()
	}
	if p.ctx != nil {
		p.ctx.Close()
	}
	return nil
}

func (p *Probe) xfer(cmd uint8, payload []byte, readLen int) ([]byte, error) {
	req := append([]byte{cmd}, payload...)
	if _, err := p.out.Write(req); err != nil {
		return nil, probe.ErrTransport(fmt.Errorf("bulk write: %w", err))
	}
	if readLen == 0 {
		readLen = 2 // status word
	}
	resp := make([]byte, readLen)
	n, err := p.in.Read(resp)
	if err != nil {
		return nil, probe.ErrTransport(fmt.Errorf("bulk read: %w", err))
	}
	return resp[:n], nil
}
