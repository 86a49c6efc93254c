package virtionet

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/lab47/vnic/features"
	"github.com/lab47/vnic/virtio"
	"github.com/pkg/errors"
)

const (
	VIRTIO_NET_HDR_F_NEEDS_CSUM = 1
	VIRTIO_NET_HDR_F_DATA_VALID = 2
	VIRTIO_NET_HDR_F_RSC_INFO   = 4

	VIRTIO_NET_HDR_GSO_NONE  = 0
	VIRTIO_NET_HDR_GSO_TCPV4 = 1
	VIRTIO_NET_HDR_GSO_UDP   = 3
	VIRTIO_NET_HDR_GSO_TCPV6 = 4
	VIRTIO_NET_HDR_GSO_ECN   = 0x80
)

const (
	// NetHdrLegacyLen is sizeof(virtio_net_hdr) without num_buffers.
	NetHdrLegacyLen = 10
	NetHdrLen       = 12

	// Queue 1 is the transmit queue of the first pair.
	TransmitQueue0 = 1
)

// NetHdr is struct virtio_net_hdr, which precedes every packet on the
// receive and transmit queues.
type NetHdr struct {
	Flags      uint8
	GSOType    uint8
	HdrLen     uint16
	GSOSize    uint16
	CsumStart  uint16
	CsumOffset uint16
	NumBuffers uint16
}

// HdrLen returns the header length implied by the negotiated features.
// num_buffers is present with VERSION_1 or MRG_RXBUF.
func HdrLen(negotiated features.Set) int {
	if negotiated.Has(virtio.VIRTIO_F_VERSION_1) || negotiated.Has(VIRTIO_NET_F_MRG_RXBUF) {
		return NetHdrLen
	}
	return NetHdrLegacyLen
}

func checkHdrLen(b []byte, n int) error {
	if n != NetHdrLegacyLen && n != NetHdrLen {
		return errors.Errorf("invalid virtio net header length %d", n)
	}

	if len(b) < n {
		return io.ErrShortBuffer
	}

	return nil
}

// Decode reads a header of length n, which must be NetHdrLegacyLen or
// NetHdrLen.
func (h *NetHdr) Decode(b []byte, n int) error {
	if err := checkHdrLen(b, n); err != nil {
		return err
	}

	h.Flags = b[0]
	h.GSOType = b[1]
	h.HdrLen = binary.LittleEndian.Uint16(b[2:])
	h.GSOSize = binary.LittleEndian.Uint16(b[4:])
	h.CsumStart = binary.LittleEndian.Uint16(b[6:])
	h.CsumOffset = binary.LittleEndian.Uint16(b[8:])

	h.NumBuffers = 0
	if n == NetHdrLen {
		h.NumBuffers = binary.LittleEndian.Uint16(b[10:])
	}

	return nil
}

// Encode writes the first n bytes of the header, n being HdrLen of the
// negotiated features.
func (h *NetHdr) Encode(b []byte, n int) error {
	if err := checkHdrLen(b, n); err != nil {
		return err
	}

	b[0] = h.Flags
	b[1] = h.GSOType
	binary.LittleEndian.PutUint16(b[2:], h.HdrLen)
	binary.LittleEndian.PutUint16(b[4:], h.GSOSize)
	binary.LittleEndian.PutUint16(b[6:], h.CsumStart)
	binary.LittleEndian.PutUint16(b[8:], h.CsumOffset)

	if n == NetHdrLen {
		binary.LittleEndian.PutUint16(b[10:], h.NumBuffers)
	}

	return nil
}

func (d *Driver) HeaderLen() int {
	return HdrLen(d.Features())
}

// SendAnnouncement queues a gratuitous arp for ip on the first transmit
// queue, behind an empty header.
func (d *Driver) SendAnnouncement(ip net.IP) error {
	frame, err := d.AnnouncementFrame(ip)
	if err != nil {
		return err
	}

	n := d.HeaderLen()
	buf := make([]byte, n+len(frame))

	var hdr NetHdr
	if err := hdr.Encode(buf, n); err != nil {
		return err
	}

	copy(buf[n:], frame)

	if err := d.AddBuffer(TransmitQueue0, buf, false); err != nil {
		return errors.Wrapf(err, "queueing announcement")
	}

	d.log.Trace("announcement queued", "device", d.tr.DeviceID, "ip", ip.String(), "size", len(buf))

	return nil
}
