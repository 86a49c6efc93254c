package virtio

import (
	"github.com/lab47/lsvd/logger"
	"github.com/lab47/vnic/pci"
)

// Caps groups the virtio capabilities of one device by kind, keeping chain
// order within each kind.
type Caps struct {
	deviceID uint16
	byKind   map[pci.CapKind][]pci.VirtioCap
}

func CollectCaps(deviceID uint16, caps []pci.VirtioCap) *Caps {
	c := &Caps{
		deviceID: deviceID,
		byKind:   make(map[pci.CapKind][]pci.VirtioCap),
	}

	for _, cp := range caps {
		c.byKind[cp.Kind] = append(c.byKind[cp.Kind], cp)
	}

	return c
}

func (c *Caps) Candidates(kind pci.CapKind) []pci.VirtioCap {
	return c.byKind[kind]
}

// MapFirst maps the first capability of kind that passes validation. Each
// candidate is tried once; when all are rejected, or there are none, it
// returns a MissingCapabilityError wrapping the last rejection.
func (c *Caps) MapFirst(log logger.Logger, m *Mapper, kind pci.CapKind, required uint64) (*Region, pci.VirtioCap, error) {
	var last error

	for _, cp := range c.byKind[kind] {
		r, err := m.Map(cp, required)
		if err == nil {
			log.Trace("mapped region", "device", cp.DeviceID, "cap", cp.String())
			return r, cp, nil
		}

		log.Warn("rejected capability", "device", cp.DeviceID, "kind", kind.String(), "error", err)
		last = err
	}

	return nil, pci.VirtioCap{}, &MissingCapabilityError{Kind: kind, DeviceID: c.deviceID, Err: last}
}

// Transport holds the four mandatory regions of a virtio PCI device, each
// owned by exactly one view.
type Transport struct {
	DeviceID uint16
	Common   *ComCfg
	ISR      *IsrStatus
	Notify   *NotifCfg

	// Device is the device-specific configuration region, handed to the
	// device class view.
	Device *Region
}

// MapTransport locates and validates the common, ISR, notification and
// device-specific regions of a. deviceCfgSize is the size of the device
// class configuration structure. Nothing is returned unless all four map.
func MapTransport(log logger.Logger, a *pci.Adapter, caps []pci.VirtioCap, deviceCfgSize uint64) (*Transport, error) {
	var (
		dev = a.DeviceID()
		cc  = CollectCaps(dev, caps)
		m   = NewMapper(a)
	)

	common, _, err := cc.MapFirst(log, m, pci.CAP_COMMON_CFG, CommonCfgSize)
	if err != nil {
		return nil, err
	}

	isr, _, err := cc.MapFirst(log, m, pci.CAP_ISR_CFG, ISRCfgSize)
	if err != nil {
		return nil, err
	}

	notify, ncap, err := cc.MapFirst(log, m, pci.CAP_NOTIFY_CFG, NotifyCfgMinSize)
	if err != nil {
		return nil, err
	}

	devcfg, _, err := cc.MapFirst(log, m, pci.CAP_DEVICE_CFG, deviceCfgSize)
	if err != nil {
		return nil, err
	}

	return &Transport{
		DeviceID: dev,
		Common:   NewComCfg(common),
		ISR:      NewIsrStatus(isr),
		Notify:   NewNotifCfg(notify, ncap.NotifyOffMultiplier),
		Device:   devcfg,
	}, nil
}
