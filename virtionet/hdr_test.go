package virtionet

import (
	"io"
	"net"
	"testing"

	"github.com/lab47/lsvd/logger"
	"github.com/lab47/vnic/features"
	"github.com/lab47/vnic/simdev"
	"github.com/lab47/vnic/virtio"
	"github.com/mdlayher/ethernet"
	"github.com/stretchr/testify/require"
)

func TestNetHdr(t *testing.T) {
	t.Run("length follows the negotiated features", func(t *testing.T) {
		r := require.New(t)

		r.Equal(NetHdrLegacyLen, HdrLen(DefaultRequired))
		r.Equal(NetHdrLen, HdrLen(features.Union(DefaultRequired, virtio.VIRTIO_F_VERSION_1.Set())))
		r.Equal(NetHdrLen, HdrLen(VIRTIO_NET_F_MRG_RXBUF.Set()))
	})

	t.Run("encodes little endian fields", func(t *testing.T) {
		r := require.New(t)

		h := NetHdr{
			Flags:      VIRTIO_NET_HDR_F_NEEDS_CSUM,
			GSOType:    VIRTIO_NET_HDR_GSO_TCPV4,
			HdrLen:     54,
			GSOSize:    1448,
			CsumStart:  34,
			CsumOffset: 16,
			NumBuffers: 1,
		}

		b := make([]byte, NetHdrLen)
		r.NoError(h.Encode(b, NetHdrLen))
		r.Equal([]byte{1, 1, 54, 0, 0xa8, 0x05, 34, 0, 16, 0, 1, 0}, b)

		var out NetHdr
		r.NoError(out.Decode(b, NetHdrLen))
		r.Equal(h, out)

		r.NoError(out.Decode(b, NetHdrLegacyLen))
		r.Equal(uint16(0), out.NumBuffers)
	})

	t.Run("rejects short buffers", func(t *testing.T) {
		r := require.New(t)

		var h NetHdr
		r.ErrorIs(h.Encode(make([]byte, 4), NetHdrLegacyLen), io.ErrShortBuffer)
		r.ErrorIs(h.Decode(make([]byte, 11), NetHdrLen), io.ErrShortBuffer)
	})

	t.Run("rejects lengths that are not a header size", func(t *testing.T) {
		r := require.New(t)

		var h NetHdr
		for _, n := range []int{0, 4, 9, 11, 16} {
			r.Error(h.Decode(make([]byte, 4), n))
			r.Error(h.Encode(make([]byte, 4), n))
			r.Error(h.Decode(make([]byte, 16), n))
		}
	})

	t.Run("announcements go out on the first transmit queue", func(t *testing.T) {
		r := require.New(t)

		log := logger.New(logger.Trace)
		q := &fakeQueues{}

		cfg := DefaultConfig()
		cfg.Queues = func(*virtio.Transport, features.Set) (virtio.QueueOps, error) {
			return q, nil
		}

		dev := simdev.New(log, simdev.Options{
			Features: features.Union(DefaultRequired, virtio.VIRTIO_F_VERSION_1.Set()),
		})

		d, err := Init(log, dev.Adapter(), cfg)
		r.NoError(err)
		r.Equal(NetHdrLen, d.HeaderLen())

		r.NoError(d.SendAnnouncement(net.IPv4(10, 0, 0, 2)))
		r.Equal(uint16(TransmitQueue0), q.lastQ)
		r.Equal(make([]byte, NetHdrLen), q.last[:NetHdrLen])

		var fr ethernet.Frame
		r.NoError(fr.UnmarshalBinary(q.last[NetHdrLen:]))
		r.Equal(ethernet.EtherTypeARP, fr.EtherType)
	})

	t.Run("announcements need a queue layer", func(t *testing.T) {
		r := require.New(t)

		log := logger.New(logger.Trace)
		dev := simdev.New(log, simdev.Options{Features: DefaultRequired})

		d, err := Init(log, dev.Adapter(), DefaultConfig())
		r.NoError(err)

		r.ErrorIs(d.SendAnnouncement(net.IPv4(10, 0, 0, 2)), virtio.ErrNoQueues)
	})
}
