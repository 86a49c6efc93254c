package virtio

import "github.com/lab47/vnic/features"

// Device-independent feature bits.
const (
	VIRTIO_F_NOTIFY_ON_EMPTY   features.Bit = 24
	VIRTIO_F_ANY_LAYOUT        features.Bit = 27
	VIRTIO_F_INDIRECT_DESC     features.Bit = 28
	VIRTIO_F_EVENT_IDX         features.Bit = 29
	VIRTIO_F_VERSION_1         features.Bit = 32
	VIRTIO_F_ACCESS_PLATFORM   features.Bit = 33
	VIRTIO_F_RING_PACKED       features.Bit = 34
	VIRTIO_F_IN_ORDER          features.Bit = 35
	VIRTIO_F_ORDER_PLATFORM    features.Bit = 36
	VIRTIO_F_SR_IOV            features.Bit = 37
	VIRTIO_F_NOTIFICATION_DATA features.Bit = 38
	VIRTIO_F_NOTIF_CONFIG_DATA features.Bit = 39
	VIRTIO_F_RING_RESET        features.Bit = 40
)

// FeatureNames holds the names of the device-independent bits.
var FeatureNames = features.Table{
	"NOTIFY_ON_EMPTY":   VIRTIO_F_NOTIFY_ON_EMPTY,
	"ANY_LAYOUT":        VIRTIO_F_ANY_LAYOUT,
	"INDIRECT_DESC":     VIRTIO_F_INDIRECT_DESC,
	"EVENT_IDX":         VIRTIO_F_EVENT_IDX,
	"VERSION_1":         VIRTIO_F_VERSION_1,
	"ACCESS_PLATFORM":   VIRTIO_F_ACCESS_PLATFORM,
	"RING_PACKED":       VIRTIO_F_RING_PACKED,
	"IN_ORDER":          VIRTIO_F_IN_ORDER,
	"ORDER_PLATFORM":    VIRTIO_F_ORDER_PLATFORM,
	"SR_IOV":            VIRTIO_F_SR_IOV,
	"NOTIFICATION_DATA": VIRTIO_F_NOTIFICATION_DATA,
	"NOTIF_CONFIG_DATA": VIRTIO_F_NOTIF_CONFIG_DATA,
	"RING_RESET":        VIRTIO_F_RING_RESET,
}
