// Package simdev implements the device side of a virtio-net PCI function in
// memory. It answers the same register accesses a real device would, which
// makes it usable for bring-up without hardware.
package simdev

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/lab47/lsvd/logger"
	"github.com/lab47/vnic/features"
	"github.com/lab47/vnic/pci"
)

// Device status bits as seen by the device.
const (
	statusFeaturesOK = 8
	statusFailed     = 128
)

const (
	NET_DEVICE_ID = pci.VIRTIO_MODERN_ID_BASE + pci.VIRTIO_TYPE_NET

	// BAR layout, one page per structure.
	barIndex     = 4
	barSize      = 0x4000
	commonOffset = 0x0000
	commonLength = 0x1000
	isrOffset    = 0x1000
	isrLength    = 0x1000
	deviceOffset = 0x2000
	deviceLength = 0x1000
	notifyOffset = 0x3000
	notifyLength = 0x1000

	notifyMultiplier = 4

	// Layout of the network device configuration.
	netCfgMAC   = 0
	netCfgState = 6
	netCfgPairs = 8
	netCfgMTU   = 10
	NetCfgSize  = 12

	capStart = 0x40
)

// Options describes the simulated function. Zero values pick defaults that
// make a well-behaved device.
type Options struct {
	DeviceID          uint16
	Features          features.Set
	MAC               net.HardwareAddr
	NetStatus         uint16
	MaxVirtqueuePairs uint16
	MTU               uint16
	NumQueues         uint16

	// Omit drops capabilities of these kinds from the chain.
	Omit []pci.CapKind

	// DeviceCfgLength overrides the length declared by the device-specific
	// capability.
	DeviceCfgLength uint64

	// Prepend adds capabilities ahead of the regular ones.
	Prepend []pci.VirtioCap

	// RejectFeaturesOK makes the device refuse every feature selection.
	RejectFeaturesOK bool
}

// Device is a simulated virtio-net function.
type Device struct {
	log  logger.Logger
	opts Options

	mu  sync.Mutex
	cfg pci.ConfigSpace
	mem []byte

	status         uint8
	dfSelect       uint32
	gfSelect       uint32
	driverFeatures features.Set
	featureWrites  int
	statusWrites   []uint8
	generation     uint8
	queueSel       uint16
	isr            uint8
	notifications  []uint16
}

func New(log logger.Logger, opts Options) *Device {
	if opts.DeviceID == 0 {
		opts.DeviceID = NET_DEVICE_ID
	}

	if opts.MAC == nil {
		opts.MAC = net.HardwareAddr{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	}

	if opts.MaxVirtqueuePairs == 0 {
		opts.MaxVirtqueuePairs = 1
	}

	if opts.MTU == 0 {
		opts.MTU = 1500
	}

	if opts.NumQueues == 0 {
		opts.NumQueues = 2 * opts.MaxVirtqueuePairs
	}

	d := &Device{
		log:  log,
		opts: opts,
		mem:  make([]byte, barSize),
	}

	d.buildConfigSpace()
	d.writeNetConfig()

	return d
}

func (d *Device) omitted(k pci.CapKind) bool {
	for _, o := range d.opts.Omit {
		if o == k {
			return true
		}
	}
	return false
}

func (d *Device) buildConfigSpace() {
	cs := make(pci.ConfigSpace, pci.ConfigLegacySize)
	cs.WriteU16(pci.CFG_VENDOR_ID, pci.VIRTIO_VENDOR_ID)
	cs.WriteU16(pci.CFG_DEVICE_ID, d.opts.DeviceID)
	cs.WriteU16(pci.CFG_STATUS, pci.STATUS_CAP_LIST)
	cs.WriteU8(pci.CFG_REVISION, 1)
	cs.WriteU16(pci.CFG_SUBSYS_VID, pci.VIRTIO_VENDOR_ID)
	cs.WriteU16(pci.CFG_SUBSYS_ID, pci.VIRTIO_TYPE_NET)

	devLen := d.opts.DeviceCfgLength
	if devLen == 0 {
		devLen = deviceLength
	}

	caps := append([]pci.VirtioCap{}, d.opts.Prepend...)
	caps = append(caps,
		pci.VirtioCap{Kind: pci.CAP_COMMON_CFG, Bar: barIndex, Offset: commonOffset, Length: commonLength},
		pci.VirtioCap{Kind: pci.CAP_ISR_CFG, Bar: barIndex, Offset: isrOffset, Length: isrLength},
		pci.VirtioCap{Kind: pci.CAP_DEVICE_CFG, Bar: barIndex, Offset: deviceOffset, Length: devLen},
		pci.VirtioCap{Kind: pci.CAP_NOTIFY_CFG, Bar: barIndex, Offset: notifyOffset, Length: notifyLength, NotifyOffMultiplier: notifyMultiplier},
	)

	var kept []pci.VirtioCap
	for _, c := range caps {
		if !d.omitted(c.Kind) {
			kept = append(kept, c)
		}
	}

	ptr := capStart
	if len(kept) > 0 {
		cs.WriteU8(pci.CFG_CAP_POINTER, uint8(ptr))
	}

	for i, c := range kept {
		next := 0
		if i+1 < len(kept) {
			next = ptr + pci.VirtioNotifyCapLen
		}

		pci.EncodeVirtioCap(cs, uint8(ptr), uint8(next), c)
		ptr = next
	}

	d.cfg = cs
}

func (d *Device) writeNetConfig() {
	cfg := d.mem[deviceOffset:]
	copy(cfg[netCfgMAC:netCfgMAC+6], d.opts.MAC)
	binary.LittleEndian.PutUint16(cfg[netCfgState:], d.opts.NetStatus)
	binary.LittleEndian.PutUint16(cfg[netCfgPairs:], d.opts.MaxVirtqueuePairs)
	binary.LittleEndian.PutUint16(cfg[netCfgMTU:], d.opts.MTU)
}

// Adapter returns the function as the bus layer would present it.
func (d *Device) Adapter() *pci.Adapter {
	var bars [pci.MaxBARs]pci.Memory
	bars[barIndex] = (*bar)(d)

	return pci.NewAdapter(pci.Address{Slot: 3}, d.cfg, bars)
}

// Status returns the device status register.
func (d *Device) Status() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.status
}

// StatusWrites returns every value the driver wrote to the status register.
func (d *Device) StatusWrites() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]uint8(nil), d.statusWrites...)
}

func (d *Device) DriverFeatures() features.Set {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.driverFeatures
}

// FeatureWrites counts writes to the driver feature register.
func (d *Device) FeatureWrites() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.featureWrites
}

func (d *Device) Notifications() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]uint16(nil), d.notifications...)
}

// SetNetStatus changes the device-owned status field, as a link change on
// the host would.
func (d *Device) SetNetStatus(v uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()

	binary.LittleEndian.PutUint16(d.mem[deviceOffset+netCfgState:], v)
	d.generation++
	d.isr |= 2
}

// RaiseQueueInterrupt sets the queue bit of the ISR.
func (d *Device) RaiseQueueInterrupt() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.isr |= 1
}
