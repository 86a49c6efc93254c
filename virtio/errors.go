package virtio

import (
	"fmt"

	"github.com/lab47/vnic/features"
	"github.com/lab47/vnic/pci"
	"github.com/pkg/errors"
)

// ErrNoQueues is returned by the queue hooks of a driver that has no queue
// layer attached.
var ErrNoQueues = errors.New("no queue layer attached")

type RegionReason int

const (
	// RegionExceedsBar means offset+length runs past the mapped BAR.
	RegionExceedsBar RegionReason = iota + 1
	// RegionTooSmall means the declared length is shorter than the
	// structure the capability claims to describe.
	RegionTooSmall
	// RegionNoBar means the capability names a BAR the bus did not map.
	RegionNoBar
	// RegionOverlap means the extent is already owned by another view.
	RegionOverlap
)

func (r RegionReason) String() string {
	switch r {
	case RegionExceedsBar:
		return "extent exceeds bar"
	case RegionTooSmall:
		return "extent smaller than structure"
	case RegionNoBar:
		return "bar not mapped"
	case RegionOverlap:
		return "extent overlaps another region"
	default:
		return fmt.Sprintf("region-reason(%d)", int(r))
	}
}

// RegionError reports a capability whose declared extent cannot back a view.
type RegionError struct {
	Reason   RegionReason
	Cap      pci.VirtioCap
	BarSize  uint64
	Required uint64
}

func (e *RegionError) Error() string {
	switch e.Reason {
	case RegionExceedsBar:
		return fmt.Sprintf("%s of device %04x: %s (offset %#x + length %#x > bar %d size %#x)",
			e.Cap.Kind, e.Cap.DeviceID, e.Reason, e.Cap.Offset, e.Cap.Length, e.Cap.Bar, e.BarSize)
	case RegionTooSmall:
		return fmt.Sprintf("%s of device %04x: %s (length %d < %d)",
			e.Cap.Kind, e.Cap.DeviceID, e.Reason, e.Cap.Length, e.Required)
	default:
		return fmt.Sprintf("%s of device %04x: %s (bar %d offset %#x length %#x)",
			e.Cap.Kind, e.Cap.DeviceID, e.Reason, e.Cap.Bar, e.Cap.Offset, e.Cap.Length)
	}
}

// MissingCapabilityError means no capability of Kind could be mapped. Err is
// the RegionError of the last candidate rejected, if any were found.
type MissingCapabilityError struct {
	Kind     pci.CapKind
	DeviceID uint16
	Err      error
}

func (e *MissingCapabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device %04x: no usable %s capability: %s", e.DeviceID, e.Kind, e.Err)
	}
	return fmt.Sprintf("device %04x: no %s capability", e.DeviceID, e.Kind)
}

func (e *MissingCapabilityError) Unwrap() error {
	return e.Err
}

type NegotiationReason int

const (
	// MissingRequired means the device does not offer a required bit.
	MissingRequired NegotiationReason = iota + 1
	// UnmetDependency means the selection holds a bit without any of its
	// prerequisites.
	UnmetDependency
	// NotAcknowledged means the device cleared FEATURES_OK.
	NotAcknowledged
)

func (r NegotiationReason) String() string {
	switch r {
	case MissingRequired:
		return "device lacks required features"
	case UnmetDependency:
		return "unmet feature dependency"
	case NotAcknowledged:
		return "device did not accept features"
	default:
		return fmt.Sprintf("negotiation-reason(%d)", int(r))
	}
}

// FeatureNegotiationError is fatal to a handshake. By the time a caller sees
// it the device has been marked failed.
type FeatureNegotiationError struct {
	DeviceID   uint16
	Reason     NegotiationReason
	Missing    features.Set
	Dependency features.Dependency
	Selected   features.Set

	names features.Table
}

func (e *FeatureNegotiationError) Error() string {
	switch e.Reason {
	case MissingRequired:
		return fmt.Sprintf("device %04x: %s: %s", e.DeviceID, e.Reason, e.names.Format(e.Missing))
	case UnmetDependency:
		return fmt.Sprintf("device %04x: %s: %s", e.DeviceID, e.Reason, e.Dependency.Describe(e.names))
	default:
		return fmt.Sprintf("device %04x: %s: %s", e.DeviceID, e.Reason, e.names.Format(e.Selected))
	}
}

// DeviceSpecificInitError carries the failure of a device class init step
// unchanged.
type DeviceSpecificInitError struct {
	DeviceID uint16
	Err      error
}

func (e *DeviceSpecificInitError) Error() string {
	return fmt.Sprintf("device %04x: device-specific init: %s", e.DeviceID, e.Err)
}

func (e *DeviceSpecificInitError) Unwrap() error {
	return e.Err
}
