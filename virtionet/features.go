package virtionet

import (
	"github.com/lab47/vnic/features"
	"github.com/lab47/vnic/virtio"
)

const (
	VIRTIO_NET_F_CSUM                features.Bit = 0  /* Host handles pkts w/ partial csum */
	VIRTIO_NET_F_GUEST_CSUM          features.Bit = 1  /* Guest handles pkts w/ partial csum */
	VIRTIO_NET_F_CTRL_GUEST_OFFLOADS features.Bit = 2  /* Dynamic offload configuration. */
	VIRTIO_NET_F_MTU                 features.Bit = 3  /* Initial MTU advice */
	VIRTIO_NET_F_MAC                 features.Bit = 5  /* Host has given MAC address. */
	VIRTIO_NET_F_GSO                 features.Bit = 6  /* Host handles pkts w/ any GSO type */
	VIRTIO_NET_F_GUEST_TSO4          features.Bit = 7  /* Guest can handle TSOv4 in. */
	VIRTIO_NET_F_GUEST_TSO6          features.Bit = 8  /* Guest can handle TSOv6 in. */
	VIRTIO_NET_F_GUEST_ECN           features.Bit = 9  /* Guest can handle TSO[6] w/ ECN in. */
	VIRTIO_NET_F_GUEST_UFO           features.Bit = 10 /* Guest can handle UFO in. */
	VIRTIO_NET_F_HOST_TSO4           features.Bit = 11 /* Host can handle TSOv4 in. */
	VIRTIO_NET_F_HOST_TSO6           features.Bit = 12 /* Host can handle TSOv6 in. */
	VIRTIO_NET_F_HOST_ECN            features.Bit = 13 /* Host can handle TSO[6] w/ ECN in. */
	VIRTIO_NET_F_HOST_UFO            features.Bit = 14 /* Host can handle UFO in. */
	VIRTIO_NET_F_MRG_RXBUF           features.Bit = 15 /* Driver can merge receive buffers. */
	VIRTIO_NET_F_STATUS              features.Bit = 16 /* Configuration status field is available. */
	VIRTIO_NET_F_CTRL_VQ             features.Bit = 17 /* Control channel is available. */
	VIRTIO_NET_F_CTRL_RX             features.Bit = 18 /* Control channel RX mode support. */
	VIRTIO_NET_F_CTRL_VLAN           features.Bit = 19 /* Control channel VLAN filtering. */
	VIRTIO_NET_F_CTRL_RX_EXTRA       features.Bit = 20 /* Extra RX mode control support. */
	VIRTIO_NET_F_GUEST_ANNOUNCE      features.Bit = 21 /* Driver can send gratuitous packets. */
	VIRTIO_NET_F_MQ                  features.Bit = 22 /* Device supports Receive Flow Steering */
	VIRTIO_NET_F_CTRL_MAC_ADDR       features.Bit = 23 /* Set MAC address */
	VIRTIO_NET_F_VQ_NOTF_COAL        features.Bit = 52 /* Device supports virtqueue notification coalescing */
	VIRTIO_NET_F_NOTF_COAL           features.Bit = 53 /* Device supports notifications coalescing */
	VIRTIO_NET_F_GUEST_USO4          features.Bit = 54 /* Guest can handle USOv4 in. */
	VIRTIO_NET_F_GUEST_USO6          features.Bit = 55 /* Guest can handle USOv6 in. */
	VIRTIO_NET_F_HOST_USO            features.Bit = 56 /* Host can handle USO in. */
	VIRTIO_NET_F_HASH_REPORT         features.Bit = 57 /* Supports hash report */
	VIRTIO_NET_F_GUEST_HDRLEN        features.Bit = 59 /* Guest provides the exact hdr_len value. */
	VIRTIO_NET_F_RSS                 features.Bit = 60 /* Supports RSS RX steering */
	VIRTIO_NET_F_RSC_EXT             features.Bit = 61 /* extended coalescing info */
	VIRTIO_NET_F_STANDBY             features.Bit = 62 /* Act as standby for another device with the same MAC. */
	VIRTIO_NET_F_SPEED_DUPLEX        features.Bit = 63 /* Device set linkspeed and duplex */
)

const (
	VIRTIO_NET_S_LINK_UP  = 1 /* Link is up */
	VIRTIO_NET_S_ANNOUNCE = 2 /* Announcement is needed */
)

// NetFeatureNames names every network and device-independent bit.
var NetFeatureNames = features.Merge(virtio.FeatureNames, features.Table{
	"CSUM":                VIRTIO_NET_F_CSUM,
	"GUEST_CSUM":          VIRTIO_NET_F_GUEST_CSUM,
	"CTRL_GUEST_OFFLOADS": VIRTIO_NET_F_CTRL_GUEST_OFFLOADS,
	"MTU":                 VIRTIO_NET_F_MTU,
	"MAC":                 VIRTIO_NET_F_MAC,
	"GSO":                 VIRTIO_NET_F_GSO,
	"GUEST_TSO4":          VIRTIO_NET_F_GUEST_TSO4,
	"GUEST_TSO6":          VIRTIO_NET_F_GUEST_TSO6,
	"GUEST_ECN":           VIRTIO_NET_F_GUEST_ECN,
	"GUEST_UFO":           VIRTIO_NET_F_GUEST_UFO,
	"HOST_TSO4":           VIRTIO_NET_F_HOST_TSO4,
	"HOST_TSO6":           VIRTIO_NET_F_HOST_TSO6,
	"HOST_ECN":            VIRTIO_NET_F_HOST_ECN,
	"HOST_UFO":            VIRTIO_NET_F_HOST_UFO,
	"MRG_RXBUF":           VIRTIO_NET_F_MRG_RXBUF,
	"STATUS":              VIRTIO_NET_F_STATUS,
	"CTRL_VQ":             VIRTIO_NET_F_CTRL_VQ,
	"CTRL_RX":             VIRTIO_NET_F_CTRL_RX,
	"CTRL_VLAN":           VIRTIO_NET_F_CTRL_VLAN,
	"CTRL_RX_EXTRA":       VIRTIO_NET_F_CTRL_RX_EXTRA,
	"GUEST_ANNOUNCE":      VIRTIO_NET_F_GUEST_ANNOUNCE,
	"MQ":                  VIRTIO_NET_F_MQ,
	"CTRL_MAC_ADDR":       VIRTIO_NET_F_CTRL_MAC_ADDR,
	"VQ_NOTF_COAL":        VIRTIO_NET_F_VQ_NOTF_COAL,
	"NOTF_COAL":           VIRTIO_NET_F_NOTF_COAL,
	"GUEST_USO4":          VIRTIO_NET_F_GUEST_USO4,
	"GUEST_USO6":          VIRTIO_NET_F_GUEST_USO6,
	"HOST_USO":            VIRTIO_NET_F_HOST_USO,
	"HASH_REPORT":         VIRTIO_NET_F_HASH_REPORT,
	"GUEST_HDRLEN":        VIRTIO_NET_F_GUEST_HDRLEN,
	"RSS":                 VIRTIO_NET_F_RSS,
	"RSC_EXT":             VIRTIO_NET_F_RSC_EXT,
	"STANDBY":             VIRTIO_NET_F_STANDBY,
	"SPEED_DUPLEX":        VIRTIO_NET_F_SPEED_DUPLEX,
})

func anyOf(bs ...features.Bit) []features.Bit {
	return bs
}

// NetDependencies lists the prerequisites the network device imposes on
// feature selection.
var NetDependencies = []features.Dependency{
	{Bit: VIRTIO_NET_F_GUEST_TSO4, AnyOf: anyOf(VIRTIO_NET_F_GUEST_CSUM)},
	{Bit: VIRTIO_NET_F_GUEST_TSO6, AnyOf: anyOf(VIRTIO_NET_F_GUEST_CSUM)},
	{Bit: VIRTIO_NET_F_GUEST_UFO, AnyOf: anyOf(VIRTIO_NET_F_GUEST_CSUM)},
	{Bit: VIRTIO_NET_F_GUEST_ECN, AnyOf: anyOf(VIRTIO_NET_F_GUEST_TSO4, VIRTIO_NET_F_GUEST_TSO6)},
	{Bit: VIRTIO_NET_F_GUEST_USO4, AnyOf: anyOf(VIRTIO_NET_F_GUEST_CSUM)},
	{Bit: VIRTIO_NET_F_GUEST_USO6, AnyOf: anyOf(VIRTIO_NET_F_GUEST_CSUM)},

	{Bit: VIRTIO_NET_F_HOST_TSO4, AnyOf: anyOf(VIRTIO_NET_F_CSUM)},
	{Bit: VIRTIO_NET_F_HOST_TSO6, AnyOf: anyOf(VIRTIO_NET_F_CSUM)},
	{Bit: VIRTIO_NET_F_HOST_UFO, AnyOf: anyOf(VIRTIO_NET_F_CSUM)},
	{Bit: VIRTIO_NET_F_HOST_USO, AnyOf: anyOf(VIRTIO_NET_F_CSUM)},
	{Bit: VIRTIO_NET_F_HOST_ECN, AnyOf: anyOf(VIRTIO_NET_F_HOST_TSO4, VIRTIO_NET_F_HOST_TSO6)},

	{Bit: VIRTIO_NET_F_CTRL_RX, AnyOf: anyOf(VIRTIO_NET_F_CTRL_VQ)},
	{Bit: VIRTIO_NET_F_CTRL_VLAN, AnyOf: anyOf(VIRTIO_NET_F_CTRL_VQ)},
	{Bit: VIRTIO_NET_F_GUEST_ANNOUNCE, AnyOf: anyOf(VIRTIO_NET_F_CTRL_VQ)},
	{Bit: VIRTIO_NET_F_MQ, AnyOf: anyOf(VIRTIO_NET_F_CTRL_VQ)},
	{Bit: VIRTIO_NET_F_CTRL_MAC_ADDR, AnyOf: anyOf(VIRTIO_NET_F_CTRL_VQ)},
	{Bit: VIRTIO_NET_F_NOTF_COAL, AnyOf: anyOf(VIRTIO_NET_F_CTRL_VQ)},
	{Bit: VIRTIO_NET_F_RSS, AnyOf: anyOf(VIRTIO_NET_F_CTRL_VQ)},

	{Bit: VIRTIO_NET_F_RSC_EXT, AnyOf: anyOf(VIRTIO_NET_F_HOST_TSO4, VIRTIO_NET_F_HOST_TSO6)},
}
