package virtionet

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/ethernet"
	"github.com/pkg/errors"
)

// BuildAnnouncement returns a broadcast gratuitous ARP frame announcing
// that ip lives at mac.
func BuildAnnouncement(mac net.HardwareAddr, ip net.IP) ([]byte, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, errors.Errorf("announcement needs an ipv4 address, got %s", ip)
	}

	if len(mac) != 6 {
		return nil, errors.Errorf("invalid mac %s", mac)
	}

	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   mac,
		SourceProtAddress: ip4,
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    ip4,
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, &arp); err != nil {
		return nil, errors.Wrapf(err, "serializing arp")
	}

	fr := ethernet.Frame{
		Destination: ethernet.Broadcast,
		Source:      mac,
		EtherType:   ethernet.EtherTypeARP,
		Payload:     buf.Bytes(),
	}

	return fr.MarshalBinary()
}

// AnnouncementFrame builds the announcement for the device MAC. A driver
// sends it when AnnouncePending reports true.
func (d *Driver) AnnouncementFrame(ip net.IP) ([]byte, error) {
	return BuildAnnouncement(d.cfg.MAC(), ip)
}
