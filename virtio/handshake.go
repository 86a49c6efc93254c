package virtio

import (
	"fmt"

	"github.com/lab47/lsvd/logger"
	"github.com/lab47/vnic/features"
	ringbuf "github.com/lab47/vnic/pkg/ring_buf"
	"github.com/pkg/errors"
)

// DeviceInitFunc is the device class step run between FEATURES_OK and
// DRIVER_OK. It receives the negotiated features.
type DeviceInitFunc func(negotiated features.Set) error

const DefaultHistoryDepth = 16

// Handshake drives one device through reset, acknowledge, driver,
// feature negotiation, FEATURES_OK, the device class step and DRIVER_OK.
// A Handshake runs once; a retry after failure needs a new Handshake.
type Handshake struct {
	log      logger.Logger
	ctl      Control
	neg      *Negotiator
	devInit  DeviceInitFunc
	deviceID uint16

	state      State
	advertised features.Set
	negotiated features.Set
	history    *ringbuf.RingBuf[State]
}

type HandshakeOptions struct {
	DeviceID     uint16
	DeviceInit   DeviceInitFunc
	HistoryDepth int
}

func NewHandshake(log logger.Logger, ctl Control, neg *Negotiator, opts HandshakeOptions) *Handshake {
	depth := opts.HistoryDepth
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}

	h := &Handshake{
		log:      log,
		ctl:      ctl,
		neg:      neg,
		devInit:  opts.DeviceInit,
		deviceID: opts.DeviceID,
		history:  ringbuf.NewRingBuf[State](depth + 1),
	}

	h.history.Record(StateNew)

	return h
}

func (h *Handshake) State() State {
	return h.state
}

// History returns the states visited so far, oldest first.
func (h *Handshake) History() []State {
	return h.history.Snapshot()
}

func (h *Handshake) Advertised() features.Set {
	return h.advertised
}

func (h *Handshake) Negotiated() features.Set {
	return h.negotiated
}

type step struct {
	to State
	fn func() error
}

// Run executes the handshake. On failure the device status carries FAILED
// before the error is returned, and the handshake ends in StateFailed.
func (h *Handshake) Run() (features.Set, error) {
	if h.state != StateNew {
		return 0, errors.Errorf("handshake for device %04x already ran (state %s)", h.deviceID, h.state)
	}

	steps := []step{
		{StateReset, h.reset},
		{StateAcknowledged, h.acknowledge},
		{StateDriverClaimed, h.claim},
		{StateFeaturesNegotiated, h.negotiate},
		{StateFeaturesOk, h.featuresOK},
		{StateDeviceSpecificInit, h.deviceSpecific},
		{StateDriverOk, h.driverOK},
	}

	for _, s := range steps {
		if err := s.fn(); err != nil {
			h.abort(s.to, err)
			return 0, err
		}

		h.enter(s.to)
	}

	return h.negotiated, nil
}

func (h *Handshake) enter(s State) {
	if s != h.state+1 {
		panic(fmt.Sprintf("virtio: handshake transition %s -> %s out of order", h.state, s))
	}

	h.state = s
	h.history.Record(s)

	h.log.Trace("handshake transition", "device", h.deviceID, "state", s.String())
}

func (h *Handshake) abort(during State, err error) {
	h.ctl.SetFailed()

	h.state = StateFailed
	h.history.Record(StateFailed)

	h.log.Error("handshake aborted", "device", h.deviceID, "during", during.String(), "error", err)
}

func (h *Handshake) reset() error {
	h.ctl.Reset()
	return nil
}

func (h *Handshake) acknowledge() error {
	h.ctl.Acknowledge()
	return nil
}

func (h *Handshake) claim() error {
	h.ctl.ClaimDriver()
	return nil
}

func (h *Handshake) negotiate() error {
	adv, sel, err := h.neg.Negotiate(h.ctl, h.deviceID)
	h.advertised = adv
	if err != nil {
		return err
	}

	h.negotiated = sel

	if pruned := features.Intersect(h.neg.Wanted, adv) &^ sel; pruned != 0 {
		h.log.Info("dropped features with unmet prerequisites", "device", h.deviceID, "features", h.neg.Names.Format(pruned))
	}

	if h.log.IsTrace() {
		h.log.Trace("features selected",
			"device", h.deviceID,
			"advertised", h.neg.Names.Format(adv),
			"selected", h.neg.Names.Format(sel),
		)
	}

	return nil
}

func (h *Handshake) featuresOK() error {
	h.ctl.SetFeaturesOK()

	if !h.ctl.CheckFeaturesOK() {
		return &FeatureNegotiationError{
			DeviceID: h.deviceID,
			Reason:   NotAcknowledged,
			Selected: h.negotiated,
			names:    h.neg.Names,
		}
	}

	h.log.Info("features negotiated", "device", h.deviceID, "features", h.neg.Names.Format(h.negotiated))

	return nil
}

func (h *Handshake) deviceSpecific() error {
	if h.devInit == nil {
		return nil
	}

	if err := h.devInit(h.negotiated); err != nil {
		return &DeviceSpecificInitError{DeviceID: h.deviceID, Err: err}
	}

	return nil
}

func (h *Handshake) driverOK() error {
	h.ctl.SetDriverOK()
	return nil
}
