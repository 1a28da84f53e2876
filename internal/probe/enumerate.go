package probe

import (
	"fmt"

	"github.com/arm-debug/probeutil/internal/probe/daplink"
	"github.com/arm-debug/probeutil/internal/probe/stlink"
	"github.com/cesanta/hid"
	"github.com/google/gousb"
)

const (
	vidSTMicro = 0x0483

	vidGenericCMSISDAP = 0x0d28 // mbed/DAPLink family
)

// ListProbes enumerates USB debug probes reachable from this host: CMSIS-DAP
// devices via HID and ST-Link devices via the bulk USB transport.
func ListProbes() ([]Info, error) {
	var infos []Info

	devs, err := hid.Devices()
	if err != nil {
		return nil, ErrTransport(fmt.Errorf("enumerate HID devices: %w", err))
	}
	for _, d := range devs {
		if d.VendorID != vidGenericCMSISDAP {
			continue
		}
		path := d.Path
		infos = append(infos, Info{
			Identifier: fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID),
			VendorID:   d.VendorID,
			ProductID:  d.ProductID,
			Serial:     &path,
			Variant:    VariantDAPLink,
		})
	}

	ctx := gousb.NewContext()
	defer ctx.Close()
	usbDevs, _ := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vidSTMicro)
	})
	for _, d := range usbDevs {
		sn, _ := d.SerialNumber()
		infos = append(infos, Info{
			Identifier: "ST-Link",
			VendorID:   vidSTMicro,
			ProductID:  uint16(d.Desc.Product),
			Serial:     &sn,
			Variant:    VariantSTLink,
		})
		d.Close()
	}

	return infos, nil
}

// Open constructs the concrete probe described by info.
func Open(info Info) (DebugProbe, error) {
	switch info.Variant {
	case VariantSTLink:
		serial := ""
		if info.Serial != nil {
			serial = *info.Serial
		}
		return stlink.Open(serial)
	case VariantDAPLink:
		if info.Serial == nil {
			return nil, ErrTransport(fmt.Errorf("daplink probe %q has no serial port path", info.Identifier))
		}
		return daplink.Open(*info.Serial)
	default:
		return nil, ErrTransport(fmt.Errorf("unknown probe variant %v", info.Variant))
	}
}
