package virtio

import "fmt"

// Device status register bits.
const (
	STATUS_ACKNOWLEDGE        = 1
	STATUS_DRIVER             = 2
	STATUS_DRIVER_OK          = 4
	STATUS_FEATURES_OK        = 8
	STATUS_DEVICE_NEEDS_RESET = 64
	STATUS_FAILED             = 128
)

// State is a step of the driver/device handshake. States only advance in
// declaration order; StateFailed is terminal.
type State int

const (
	StateNew State = iota
	StateReset
	StateAcknowledged
	StateDriverClaimed
	StateFeaturesNegotiated
	StateFeaturesOk
	StateDeviceSpecificInit
	StateDriverOk
	StateFailed
)

var stateNames = [...]string{
	StateNew:                "new",
	StateReset:              "reset",
	StateAcknowledged:       "acknowledged",
	StateDriverClaimed:      "driver-claimed",
	StateFeaturesNegotiated: "features-negotiated",
	StateFeaturesOk:         "features-ok",
	StateDeviceSpecificInit: "device-specific-init",
	StateDriverOk:           "driver-ok",
	StateFailed:             "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateDriverOk || s == StateFailed
}
