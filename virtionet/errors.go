package virtionet

import (
	"fmt"

	"github.com/lab47/vnic/pci"
)

// Stage names the part of Init that failed.
type Stage int

const (
	StageProbe Stage = iota + 1
	StageScan
	StageMap
	StageHandshake
)

func (s Stage) String() string {
	switch s {
	case StageProbe:
		return "probe"
	case StageScan:
		return "capability scan"
	case StageMap:
		return "region mapping"
	case StageHandshake:
		return "handshake"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// InitError is returned by Init. Err is one of the virtio error types or a
// bus error, and stays reachable through errors.As.
type InitError struct {
	Stage    Stage
	Addr     pci.Address
	DeviceID uint16
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("virtio-net %s (device %04x): %s failed: %s", e.Addr, e.DeviceID, e.Stage, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
