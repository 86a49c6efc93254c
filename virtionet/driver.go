// Package virtionet brings up virtio-net PCI functions: it maps the
// transport, negotiates features under the network dependency rules, checks
// the device configuration and hands the result to a queue layer.
package virtionet

import (
	"net"

	"github.com/lab47/lsvd/logger"
	"github.com/lab47/vnic/features"
	"github.com/lab47/vnic/pci"
	"github.com/lab47/vnic/virtio"
	"github.com/pkg/errors"
)

// Driver is a virtio-net device that completed the handshake. It is only
// obtainable from Init.
type Driver struct {
	log     logger.Logger
	adapter *pci.Adapter
	tr      *virtio.Transport
	cfg     *NetDevCfg
	hs      *virtio.Handshake

	extraInit virtio.DeviceInitFunc
	newQueues virtio.QueueFactory
	queues    virtio.QueueOps
}

// Init brings up the virtio-net function behind a. It returns a Driver in
// the DRIVER_OK state or an *InitError; no partially initialized Driver is
// ever returned. When the handshake fails the device is left marked FAILED.
func Init(log logger.Logger, a *pci.Adapter, cfg Config) (*Driver, error) {
	dev := a.DeviceID()

	fail := func(stage Stage, err error) (*Driver, error) {
		return nil, &InitError{Stage: stage, Addr: a.Addr, DeviceID: dev, Err: err}
	}

	if a.VirtioType() != pci.VIRTIO_TYPE_NET {
		return fail(StageProbe, errors.Errorf("vendor %04x device %04x is not a virtio network function", a.VendorID(), dev))
	}

	caps, err := a.VirtioCaps()
	if err != nil {
		return fail(StageScan, err)
	}

	if log.IsTrace() {
		for _, c := range caps {
			log.Trace("found capability", "device", dev, "cap", c.String())
		}
	}

	tr, err := virtio.MapTransport(log, a, caps, NetDevCfgSize)
	if err != nil {
		return fail(StageMap, err)
	}

	d := &Driver{
		log:       log,
		adapter:   a,
		tr:        tr,
		cfg:       NewNetDevCfg(tr.Device.Reader()),
		extraInit: cfg.DeviceInit,
		newQueues: cfg.Queues,
	}

	neg := &virtio.Negotiator{
		Required:     cfg.Required,
		Wanted:       cfg.Wanted,
		Dependencies: NetDependencies,
		Names:        NetFeatureNames,
	}

	d.hs = virtio.NewHandshake(log, tr.Common, neg, virtio.HandshakeOptions{
		DeviceID:     dev,
		DeviceInit:   d.deviceInit,
		HistoryDepth: cfg.HistoryDepth,
	})

	if _, err := d.hs.Run(); err != nil {
		return fail(StageHandshake, err)
	}

	log.Info("network device initialized", "device", dev, "addr", a.Addr.String(), "mac", d.cfg.MAC().String())

	d.logLink()

	return d, nil
}

// deviceInit runs between FEATURES_OK and DRIVER_OK.
func (d *Driver) deviceInit(negotiated features.Set) error {
	if negotiated.Has(VIRTIO_NET_F_MTU) {
		if mtu := d.cfg.MTU(); mtu < MinMTU {
			return errors.Errorf("device reports mtu %d, below the minimum of %d", mtu, MinMTU)
		}
	}

	if negotiated.Has(VIRTIO_NET_F_MQ) {
		pairs := d.cfg.MaxVirtqueuePairs()
		if pairs < 1 || pairs > MaxVirtqueuePairs {
			return errors.Errorf("device reports %d virtqueue pairs, outside 1..%d", pairs, MaxVirtqueuePairs)
		}
	}

	if d.extraInit != nil {
		if err := d.extraInit(negotiated); err != nil {
			return err
		}
	}

	if d.newQueues != nil {
		q, err := d.newQueues(d.tr, negotiated)
		if err != nil {
			return errors.Wrapf(err, "building queues")
		}
		d.queues = q
	}

	d.log.Info("device specific initialization finished", "device", d.tr.DeviceID)

	return nil
}

func (d *Driver) logLink() {
	if !d.Features().Has(VIRTIO_NET_F_STATUS) {
		d.log.Info("link state unknown, status field not negotiated", "device", d.tr.DeviceID)
		return
	}

	if d.cfg.LinkUp() {
		d.log.Info("link is up after initialization", "device", d.tr.DeviceID)
	} else {
		d.log.Warn("link is down after initialization", "device", d.tr.DeviceID)
	}
}

// DevStatus returns the status field of the device configuration, read
// from the device on every call.
func (d *Driver) DevStatus() uint16 {
	return d.cfg.Status()
}

func (d *Driver) LinkUp() bool {
	return d.cfg.LinkUp()
}

func (d *Driver) AnnouncePending() bool {
	return d.cfg.AnnouncePending()
}

func (d *Driver) MAC() net.HardwareAddr {
	return d.cfg.MAC()
}

func (d *Driver) Config() *NetDevCfg {
	return d.cfg
}

func (d *Driver) DeviceID() uint16 {
	return d.tr.DeviceID
}

func (d *Driver) Features() features.Set {
	return d.hs.Negotiated()
}

func (d *Driver) Advertised() features.Set {
	return d.hs.Advertised()
}

func (d *Driver) State() virtio.State {
	return d.hs.State()
}

func (d *Driver) History() []virtio.State {
	return d.hs.History()
}

// Transport exposes the mapped regions to the queue layer.
func (d *Driver) Transport() *virtio.Transport {
	return d.tr
}

// Close resets the device and releases the adapter.
func (d *Driver) Close() error {
	d.tr.Common.Reset()
	return d.adapter.Close()
}

func (d *Driver) AddBuffer(queue uint16, buf []byte, deviceWritable bool) error {
	if d.queues == nil {
		return virtio.ErrNoQueues
	}
	return d.queues.AddBuffer(queue, buf, deviceWritable)
}

func (d *Driver) GetBuffer(queue uint16) ([]byte, uint32, bool, error) {
	if d.queues == nil {
		return nil, 0, false, virtio.ErrNoQueues
	}
	return d.queues.GetBuffer(queue)
}

func (d *Driver) ProcessBuffers(queue uint16) (int, error) {
	if d.queues == nil {
		return 0, virtio.ErrNoQueues
	}
	return d.queues.ProcessBuffers(queue)
}

func (d *Driver) SetNotification(queue uint16, enabled bool) error {
	if d.queues == nil {
		return virtio.ErrNoQueues
	}
	return d.queues.SetNotification(queue, enabled)
}

var _ virtio.QueueOps = (*Driver)(nil)
