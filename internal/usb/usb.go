package usb

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/multierr"
)

var (
	// ErrNoDevice is returned when no matching device is connected.
	ErrNoDevice = errors.New("no UFP device found")

	// ErrMultipleDevices is returned when the filter matches more than one device.
	ErrMultipleDevices = errors.New("more than one UFP device connected, select one by bus and address")
)

// Options select and configure the device to open.
type Options struct {
	VendorID   uint16
	ProductIDs []uint16

	// Bus and Address pin a specific device when non-zero.
	Bus     int
	Address int

	// Timeout bounds every single bulk transfer.
	Timeout time.Duration

	// ReadBufferSize is the largest response accepted.
	ReadBufferSize int
}

func (o Options) matches(desc *gousb.DeviceDesc) bool {
	if uint16(desc.Vendor) != o.VendorID {
		return false
	}
	if len(o.ProductIDs) > 0 && !slices.Contains(o.ProductIDs, uint16(desc.Product)) {
		return false
	}
	if o.Bus != 0 && desc.Bus != o.Bus {
		return false
	}
	if o.Address != 0 && desc.Address != o.Address {
		return false
	}
	return true
}

// Device describes a connected device without opening it.
type Device struct {
	Bus     int
	Address int
	Port    int
	Vendor  uint16
	Product uint16
	Speed   string
}

func (d Device) String() string {
	return fmt.Sprintf("bus %03d address %03d (%04x:%04x)", d.Bus, d.Address, d.Vendor, d.Product)
}

func deviceFromDesc(desc *gousb.DeviceDesc) Device {
	return Device{
		Bus:     desc.Bus,
		Address: desc.Address,
		Port:    desc.Port,
		Vendor:  uint16(desc.Vendor),
		Product: uint16(desc.Product),
		Speed:   desc.Speed.String(),
	}
}

// bulkInterface locates the vendor-specific interface with one bulk
// endpoint in each direction.
type bulkInterface struct {
	config    int
	number    int
	alternate int
	in        int
	out       int
}

func findBulkInterface(desc *gousb.DeviceDesc) (bulkInterface, bool) {
	for _, cn := range slices.Sorted(maps.Keys(desc.Configs)) {
		cfg := desc.Configs[cn]
		for _, id := range cfg.Interfaces {
			for _, is := range id.AltSettings {
				if is.Class != gousb.ClassVendorSpec {
					continue
				}
				bi := bulkInterface{config: cfg.Number, number: id.Number, alternate: is.Alternate}
				for _, ed := range is.Endpoints {
					if ed.TransferType != gousb.TransferTypeBulk {
						continue
					}
					if ed.Direction == gousb.EndpointDirectionIn {
						bi.in = ed.Number
					} else {
						bi.out = ed.Number
					}
				}
				if bi.in != 0 && bi.out != 0 {
					return bi, true
				}
			}
		}
	}
	return bulkInterface{}, false
}

// List returns the connected devices matching o.
func List(o Options) ([]Device, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var found []Device
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if o.matches(desc) {
			if _, ok := findBulkInterface(desc); ok {
				found = append(found, deviceFromDesc(desc))
			}
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	return found, nil
}

// Port is an open bulk pipe to a device in flash mode. It implements the
// request/response transport of the UFP session.
type Port struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint

	mu      sync.Mutex
	timeout time.Duration
	readBuf []byte
	device  Device
}

// Open opens the single device matching o and claims its bulk interface.
func Open(o Options) (*Port, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !o.matches(desc) {
			return false
		}
		_, ok := findBulkInterface(desc)
		return ok
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("failed to open USB device: %w", err)
	}
	if len(devs) != 1 {
		for _, d := range devs {
			d.Close()
		}
		ctx.Close()
		if len(devs) == 0 {
			return nil, ErrNoDevice
		}
		return nil, ErrMultipleDevices
	}

	p := &Port{ctx: ctx, dev: devs[0], timeout: o.Timeout, device: deviceFromDesc(devs[0].Desc)}
	if err := p.claim(); err != nil {
		p.Close()
		return nil, err
	}

	size := o.ReadBufferSize
	if size <= 0 {
		size = 0xF000
	}
	p.readBuf = make([]byte, size)
	return p, nil
}

func (p *Port) claim() error {
	bi, _ := findBulkInterface(p.dev.Desc)

	if err := p.dev.SetAutoDetach(true); err != nil {
		return fmt.Errorf("failed to enable kernel driver auto-detach: %w", err)
	}
	cfg, err := p.dev.Config(bi.config)
	if err != nil {
		return fmt.Errorf("failed to select configuration %d: %w", bi.config, err)
	}
	p.cfg = cfg
	intf, err := cfg.Interface(bi.number, bi.alternate)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", bi.number, err)
	}
	p.intf = intf
	if p.in, err = intf.InEndpoint(bi.in); err != nil {
		return fmt.Errorf("failed to open IN endpoint %d: %w", bi.in, err)
	}
	if p.out, err = intf.OutEndpoint(bi.out); err != nil {
		return fmt.Errorf("failed to open OUT endpoint %d: %w", bi.out, err)
	}
	return nil
}

// Close releases the interface and the device.
func (p *Port) Close() error {
	if p.intf != nil {
		p.intf.Close()
	}
	var err error
	if p.cfg != nil {
		err = multierr.Append(err, p.cfg.Close())
	}
	if p.dev != nil {
		err = multierr.Append(err, p.dev.Close())
	}
	if p.ctx != nil {
		err = multierr.Append(err, p.ctx.Close())
	}
	return err
}

// Device returns the descriptor of the open device.
func (p *Port) Device() Device {
	return p.device
}

func (p *Port) transferContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Port) write(ctx context.Context, req []byte) error {
	tctx, cancel := p.transferContext(ctx)
	defer cancel()

	n, err := p.out.WriteContext(tctx, req)
	if err != nil {
		return fmt.Errorf("bulk write failed: %w", err)
	}
	if n != len(req) {
		return fmt.Errorf("short bulk write: %d of %d bytes", n, len(req))
	}
	return nil
}

// Send writes a request without reading an answer.
func (p *Port) Send(ctx context.Context, req []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.write(ctx, req)
}

// SendAndReceive writes a request and reads one response transfer.
func (p *Port) SendAndReceive(ctx context.Context, req []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.write(ctx, req); err != nil {
		return nil, err
	}

	tctx, cancel := p.transferContext(ctx)
	defer cancel()

	n, err := p.in.ReadContext(tctx, p.readBuf)
	if err != nil {
		return nil, fmt.Errorf("bulk read failed: %w", err)
	}
	return slices.Clone(p.readBuf[:n]), nil
}
