package pci

import (
	"github.com/pkg/errors"
)

const (
	VIRTIO_VENDOR_ID = 0x1af4

	// Modern (virtio 1.0+) device ids are 0x1040 + the virtio device type.
	VIRTIO_MODERN_ID_BASE = 0x1040

	// Transitional devices use 0x1000-0x103f, mapped through the subsystem id.
	VIRTIO_TRANSITIONAL_FIRST = 0x1000
	VIRTIO_TRANSITIONAL_LAST  = 0x103f

	VIRTIO_TYPE_NET = 1
)

// Adapter is a PCI function whose configuration space has been read and
// whose BARs have been mapped by the bus layer.
type Adapter struct {
	Addr   Address
	Config ConfigSpace
	Bars   [MaxBARs]Memory

	close func() error
}

func NewAdapter(addr Address, cs ConfigSpace, bars [MaxBARs]Memory) *Adapter {
	return &Adapter{
		Addr:   addr,
		Config: cs,
		Bars:   bars,
	}
}

func (a *Adapter) VendorID() uint16 {
	return a.Config.VendorID()
}

func (a *Adapter) DeviceID() uint16 {
	return a.Config.DeviceID()
}

// VirtioType returns the virtio device type of the function, or 0 when it
// is not a virtio device.
func (a *Adapter) VirtioType() uint16 {
	if a.VendorID() != VIRTIO_VENDOR_ID {
		return 0
	}

	id := a.DeviceID()
	switch {
	case id >= VIRTIO_MODERN_ID_BASE:
		return id - VIRTIO_MODERN_ID_BASE
	case id >= VIRTIO_TRANSITIONAL_FIRST && id <= VIRTIO_TRANSITIONAL_LAST:
		return a.Config.ReadU16(CFG_SUBSYS_ID)
	}

	return 0
}

// BAR returns the mapped memory of bar i, if the bus layer mapped it.
func (a *Adapter) BAR(i uint8) (Memory, bool) {
	if int(i) >= len(a.Bars) || a.Bars[i] == nil {
		return nil, false
	}
	return a.Bars[i], true
}

func (a *Adapter) VirtioCaps() ([]VirtioCap, error) {
	caps, err := ScanVirtioCaps(a.Config)
	if err != nil {
		return nil, errors.Wrapf(err, "scanning capabilities of %s", a.Addr)
	}
	return caps, nil
}

// Close releases the BAR mappings. The adapter must not be used afterwards.
func (a *Adapter) Close() error {
	if a.close == nil {
		return nil
	}

	err := a.close()
	a.close = nil
	a.Bars = [MaxBARs]Memory{}

	return err
}
