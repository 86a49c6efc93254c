package virtionet

import (
	"errors"
	"testing"

	"github.com/lab47/lsvd/logger"
	"github.com/lab47/vnic/features"
	"github.com/lab47/vnic/pci"
	"github.com/lab47/vnic/simdev"
	"github.com/lab47/vnic/virtio"
	"github.com/stretchr/testify/require"
)

type fakeQueues struct {
	added    int
	last     []byte
	lastQ    uint16
	notified map[uint16]bool
}

func (q *fakeQueues) AddBuffer(queue uint16, buf []byte, deviceWritable bool) error {
	q.added++
	q.last = buf
	q.lastQ = queue
	return nil
}

func (q *fakeQueues) GetBuffer(queue uint16) ([]byte, uint32, bool, error) {
	return []byte("done"), 4, true, nil
}

func (q *fakeQueues) ProcessBuffers(queue uint16) (int, error) {
	return q.added, nil
}

func (q *fakeQueues) SetNotification(queue uint16, enabled bool) error {
	if q.notified == nil {
		q.notified = map[uint16]bool{}
	}
	q.notified[queue] = enabled
	return nil
}

func TestInit(t *testing.T) {
	log := logger.New(logger.Trace)

	t.Run("negotiates the default network set", func(t *testing.T) {
		r := require.New(t)

		dev := simdev.New(log, simdev.Options{
			Features:  DefaultRequired,
			NetStatus: VIRTIO_NET_S_LINK_UP,
		})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.NoError(err)

		r.Equal(virtio.StateDriverOk, d.State())
		r.Equal(DefaultRequired, d.Features())
		r.Equal(DefaultRequired, dev.DriverFeatures())
		r.Equal(2, dev.FeatureWrites())

		want := features.Set(1<<5 | 1<<16 | 1<<1 | 1<<7 | 1<<8 | 1<<10)
		r.Equal(want, dev.DriverFeatures())

		r.Equal(uint8(virtio.STATUS_ACKNOWLEDGE|virtio.STATUS_DRIVER|virtio.STATUS_FEATURES_OK|virtio.STATUS_DRIVER_OK), dev.Status())

		r.Equal(uint16(VIRTIO_NET_S_LINK_UP), d.DevStatus())
		r.True(d.LinkUp())
		r.False(d.AnnouncePending())
		r.Equal("52:54:00:12:34:56", d.MAC().String())
		r.Equal(uint16(simdev.NET_DEVICE_ID), d.DeviceID())
	})

	t.Run("takes VERSION_1 when offered", func(t *testing.T) {
		r := require.New(t)

		dev := simdev.New(log, simdev.Options{
			Features: features.Union(DefaultRequired, features.Of(virtio.VIRTIO_F_VERSION_1, VIRTIO_NET_F_MRG_RXBUF)),
		})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.NoError(err)

		r.Equal(features.Union(DefaultRequired, virtio.VIRTIO_F_VERSION_1.Set()), d.Features())
		r.False(d.Features().Has(VIRTIO_NET_F_MRG_RXBUF))
		r.True(d.Advertised().Has(VIRTIO_NET_F_MRG_RXBUF))
	})

	t.Run("a device without STATUS is marked failed", func(t *testing.T) {
		r := require.New(t)

		offered := DefaultRequired &^ VIRTIO_NET_F_STATUS.Set()
		dev := simdev.New(log, simdev.Options{Features: offered})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.Nil(d)
		r.Error(err)

		var ie *InitError
		r.True(errors.As(err, &ie))
		r.Equal(StageHandshake, ie.Stage)

		var fe *virtio.FeatureNegotiationError
		r.True(errors.As(err, &fe))
		r.Equal(virtio.MissingRequired, fe.Reason)
		r.Equal(VIRTIO_NET_F_STATUS.Set(), fe.Missing)
		r.Contains(err.Error(), "STATUS")

		r.NotZero(dev.Status() & virtio.STATUS_FAILED)
		r.Zero(dev.FeatureWrites())
	})

	t.Run("a missing ISR capability names the device", func(t *testing.T) {
		r := require.New(t)

		dev := simdev.New(log, simdev.Options{
			Features: DefaultRequired,
			Omit:     []pci.CapKind{pci.CAP_ISR_CFG},
		})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.Nil(d)

		var ie *InitError
		r.True(errors.As(err, &ie))
		r.Equal(StageMap, ie.Stage)
		r.Equal(uint16(simdev.NET_DEVICE_ID), ie.DeviceID)

		var mc *virtio.MissingCapabilityError
		r.True(errors.As(err, &mc))
		r.Equal(pci.CAP_ISR_CFG, mc.Kind)
		r.Equal(uint16(simdev.NET_DEVICE_ID), mc.DeviceID)

		r.Empty(dev.StatusWrites())
	})

	t.Run("a short device config surfaces as a missing capability", func(t *testing.T) {
		r := require.New(t)

		dev := simdev.New(log, simdev.Options{
			Features:        DefaultRequired,
			DeviceCfgLength: 4,
		})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.Nil(d)

		var mc *virtio.MissingCapabilityError
		r.True(errors.As(err, &mc))
		r.Equal(pci.CAP_DEVICE_CFG, mc.Kind)

		var re *virtio.RegionError
		r.True(errors.As(err, &re))
		r.Equal(virtio.RegionTooSmall, re.Reason)
		r.Equal(uint64(4), re.Cap.Length)
		r.Equal(uint64(NetDevCfgSize), re.Required)
	})

	t.Run("rejects a non-network function", func(t *testing.T) {
		r := require.New(t)

		dev := simdev.New(log, simdev.Options{DeviceID: pci.VIRTIO_MODERN_ID_BASE + 2})

		_, err := Init(log, dev.Adapter(), DefaultConfig())

		var ie *InitError
		r.True(errors.As(err, &ie))
		r.Equal(StageProbe, ie.Stage)
	})

	t.Run("rejects a required offload without its checksum bit", func(t *testing.T) {
		r := require.New(t)

		cfg := DefaultConfig()
		cfg.Required = features.Of(VIRTIO_NET_F_MAC, VIRTIO_NET_F_GUEST_TSO4)

		dev := simdev.New(log, simdev.Options{
			Features: features.Of(VIRTIO_NET_F_MAC, VIRTIO_NET_F_GUEST_TSO4, VIRTIO_NET_F_GUEST_CSUM),
		})

		_, err := Init(log, dev.Adapter(), cfg)

		var fe *virtio.FeatureNegotiationError
		r.True(errors.As(err, &fe))
		r.Equal(virtio.UnmetDependency, fe.Reason)
		r.Contains(err.Error(), "GUEST_TSO4 requires GUEST_CSUM")

		r.NotZero(dev.Status() & virtio.STATUS_FAILED)
		r.Zero(dev.FeatureWrites())
	})

	t.Run("a wanted checksum bit does not cover a required offload", func(t *testing.T) {
		r := require.New(t)

		cfg, err := ParseConfig([]byte(`
required: [MAC, STATUS, GUEST_TSO4]
wanted: [GUEST_CSUM]
`))
		r.NoError(err)

		dev := simdev.New(log, simdev.Options{
			Features: features.Of(VIRTIO_NET_F_MAC, VIRTIO_NET_F_STATUS, VIRTIO_NET_F_GUEST_TSO4, VIRTIO_NET_F_GUEST_CSUM),
		})

		d, err := Init(log, dev.Adapter(), cfg)
		r.Nil(d)

		var fe *virtio.FeatureNegotiationError
		r.True(errors.As(err, &fe))
		r.Equal(virtio.UnmetDependency, fe.Reason)
		r.Equal(VIRTIO_NET_F_GUEST_TSO4, fe.Dependency.Bit)

		r.NotZero(dev.Status() & virtio.STATUS_FAILED)
		r.Zero(dev.FeatureWrites())
	})

	t.Run("drops wanted bits whose prerequisites are not offered", func(t *testing.T) {
		r := require.New(t)

		cfg := DefaultConfig()
		cfg.Wanted = features.Of(VIRTIO_NET_F_MQ, VIRTIO_NET_F_GUEST_ECN)

		dev := simdev.New(log, simdev.Options{
			Features: features.Union(DefaultRequired, features.Of(VIRTIO_NET_F_MQ, VIRTIO_NET_F_GUEST_ECN)),
		})

		d, err := Init(log, dev.Adapter(), cfg)
		r.NoError(err)

		r.False(d.Features().Has(VIRTIO_NET_F_MQ))
		r.True(d.Features().Has(VIRTIO_NET_F_GUEST_ECN))
	})

	t.Run("validates the mtu when negotiated", func(t *testing.T) {
		r := require.New(t)

		cfg := DefaultConfig()
		cfg.Wanted = VIRTIO_NET_F_MTU.Set()

		dev := simdev.New(log, simdev.Options{
			Features: features.Union(DefaultRequired, VIRTIO_NET_F_MTU.Set()),
			MTU:      40,
		})

		_, err := Init(log, dev.Adapter(), cfg)

		var de *virtio.DeviceSpecificInitError
		r.True(errors.As(err, &de))
		r.Contains(err.Error(), "mtu 40")

		r.NotZero(dev.Status() & virtio.STATUS_FAILED)
		r.Zero(dev.Status() & virtio.STATUS_DRIVER_OK)
	})

	t.Run("ignores the mtu when not negotiated", func(t *testing.T) {
		r := require.New(t)

		dev := simdev.New(log, simdev.Options{
			Features: DefaultRequired,
			MTU:      40,
		})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.NoError(err)
		r.Equal(uint16(40), d.Config().MTU())
	})

	t.Run("validates queue pairs when MQ is negotiated", func(t *testing.T) {
		r := require.New(t)

		cfg := DefaultConfig()
		cfg.Wanted = features.Of(VIRTIO_NET_F_CTRL_VQ, VIRTIO_NET_F_MQ)

		dev := simdev.New(log, simdev.Options{
			Features:          features.Union(DefaultRequired, cfg.Wanted),
			MaxVirtqueuePairs: 0x8001,
			NumQueues:         4,
		})

		_, err := Init(log, dev.Adapter(), cfg)

		var de *virtio.DeviceSpecificInitError
		r.True(errors.As(err, &de))
		r.Contains(err.Error(), "32769 virtqueue pairs")
	})

	t.Run("runs the extra init step and the queue factory", func(t *testing.T) {
		r := require.New(t)

		var order []string
		q := &fakeQueues{}

		cfg := DefaultConfig()
		cfg.DeviceInit = func(f features.Set) error {
			order = append(order, "init")
			return nil
		}
		cfg.Queues = func(tr *virtio.Transport, f features.Set) (virtio.QueueOps, error) {
			order = append(order, "queues")
			r.Equal(DefaultRequired, f)
			r.NotNil(tr.Notify)
			return q, nil
		}

		dev := simdev.New(log, simdev.Options{Features: DefaultRequired})

		d, err := Init(log, dev.Adapter(), cfg)
		r.NoError(err)
		r.Equal([]string{"init", "queues"}, order)

		r.NoError(d.AddBuffer(0, make([]byte, 64), true))

		buf, n, ok, err := d.GetBuffer(0)
		r.NoError(err)
		r.True(ok)
		r.Equal(uint32(4), n)
		r.Equal("done", string(buf))

		cnt, err := d.ProcessBuffers(0)
		r.NoError(err)
		r.Equal(1, cnt)

		r.NoError(d.SetNotification(1, false))
		r.Equal(map[uint16]bool{1: false}, q.notified)
	})

	t.Run("a failing queue factory fails the handshake", func(t *testing.T) {
		r := require.New(t)

		boom := errors.New("no memory for rings")

		cfg := DefaultConfig()
		cfg.Queues = func(*virtio.Transport, features.Set) (virtio.QueueOps, error) {
			return nil, boom
		}

		dev := simdev.New(log, simdev.Options{Features: DefaultRequired})

		d, err := Init(log, dev.Adapter(), cfg)
		r.Nil(d)
		r.ErrorIs(err, boom)

		var de *virtio.DeviceSpecificInitError
		r.True(errors.As(err, &de))
		r.NotZero(dev.Status() & virtio.STATUS_FAILED)
	})

	t.Run("queue hooks fail without a queue layer", func(t *testing.T) {
		r := require.New(t)

		dev := simdev.New(log, simdev.Options{Features: DefaultRequired})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.NoError(err)

		r.ErrorIs(d.AddBuffer(0, nil, false), virtio.ErrNoQueues)

		_, _, _, err = d.GetBuffer(0)
		r.ErrorIs(err, virtio.ErrNoQueues)

		_, err = d.ProcessBuffers(0)
		r.ErrorIs(err, virtio.ErrNoQueues)

		r.ErrorIs(d.SetNotification(0, true), virtio.ErrNoQueues)
	})

	t.Run("status is read from the device on every call", func(t *testing.T) {
		r := require.New(t)

		dev := simdev.New(log, simdev.Options{Features: DefaultRequired})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.NoError(err)
		r.False(d.LinkUp())

		dev.SetNetStatus(VIRTIO_NET_S_LINK_UP | VIRTIO_NET_S_ANNOUNCE)
		r.Equal(uint16(VIRTIO_NET_S_LINK_UP|VIRTIO_NET_S_ANNOUNCE), d.DevStatus())
		r.True(d.LinkUp())
		r.True(d.AnnouncePending())
	})

	t.Run("records the handshake", func(t *testing.T) {
		r := require.New(t)

		dev := simdev.New(log, simdev.Options{Features: DefaultRequired})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.NoError(err)

		h := d.History()
		r.Equal(virtio.StateNew, h[0])
		r.Equal(virtio.StateDriverOk, h[len(h)-1])
		r.Len(h, 8)
	})

	t.Run("close resets the device", func(t *testing.T) {
		r := require.New(t)

		dev := simdev.New(log, simdev.Options{Features: DefaultRequired})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.NoError(err)

		r.NoError(d.Close())
		r.Equal(uint8(0), dev.Status())
	})
}
