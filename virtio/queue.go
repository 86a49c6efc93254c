package virtio

import "github.com/lab47/vnic/features"

// QueueOps is the contract of the virtqueue layer built on top of a device
// that reached DRIVER_OK. This package only hands the layer a ready
// Transport; descriptor rings and buffer management live in the layer.
type QueueOps interface {
	// AddBuffer makes buf available to the device on queue.
	AddBuffer(queue uint16, buf []byte, deviceWritable bool) error

	// GetBuffer returns the next buffer the device finished with, and
	// the number of bytes it wrote.
	GetBuffer(queue uint16) (buf []byte, written uint32, ok bool, err error)

	// ProcessBuffers reclaims every used buffer on queue.
	ProcessBuffers(queue uint16) (int, error)

	// SetNotification enables or suppresses used buffer notifications.
	SetNotification(queue uint16, enabled bool) error
}

// QueueFactory builds the queue layer for a transport. It runs as part of
// the device-specific init step, after FEATURES_OK and before DRIVER_OK.
type QueueFactory func(t *Transport, negotiated features.Set) (QueueOps, error)
