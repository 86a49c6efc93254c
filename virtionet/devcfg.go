package virtionet

import (
	"net"

	"github.com/lab47/vnic/virtio"
)

// Layout of struct virtio_net_config up to mtu.
const (
	NET_CFG_MAC          = 0
	NET_CFG_STATUS       = 6
	NET_CFG_MAX_VQ_PAIRS = 8
	NET_CFG_MTU          = 10

	NetDevCfgSize = 12

	// MinMTU is the smallest MTU a device may report once MTU is
	// negotiated.
	MinMTU = 68

	MaxVirtqueuePairs = 0x8000
)

// NetDevCfg reads the network device configuration. The device owns the
// structure and may change it at any time, so every accessor reads through
// to the device; nothing is cached.
type NetDevCfg struct {
	r virtio.RegionReader
}

func NewNetDevCfg(r virtio.RegionReader) *NetDevCfg {
	return &NetDevCfg{r: r}
}

func (c *NetDevCfg) MAC() net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	c.r.ReadBytes(NET_CFG_MAC, mac)
	return mac
}

// Status returns the VIRTIO_NET_S_* bits. It is only meaningful when
// VIRTIO_NET_F_STATUS was negotiated.
func (c *NetDevCfg) Status() uint16 {
	return c.r.Read16(NET_CFG_STATUS)
}

func (c *NetDevCfg) MaxVirtqueuePairs() uint16 {
	return c.r.Read16(NET_CFG_MAX_VQ_PAIRS)
}

func (c *NetDevCfg) MTU() uint16 {
	return c.r.Read16(NET_CFG_MTU)
}

func (c *NetDevCfg) LinkUp() bool {
	return c.Status()&VIRTIO_NET_S_LINK_UP != 0
}

// AnnouncePending reports whether the device asks the driver to send a
// gratuitous announcement.
func (c *NetDevCfg) AnnouncePending() bool {
	return c.Status()&VIRTIO_NET_S_ANNOUNCE != 0
}
