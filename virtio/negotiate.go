package virtio

import (
	"github.com/lab47/vnic/features"
)

// Negotiator selects the driver feature word from what a device advertises.
// Required bits are mandatory and must carry their own prerequisites; Wanted
// bits are taken when offered and when their prerequisites can be selected
// too. The zero Negotiator selects nothing.
type Negotiator struct {
	Required     features.Set
	Wanted       features.Set
	Dependencies []features.Dependency

	// Names renders feature sets in errors.
	Names features.Table
}

// Select computes the driver features for advertised. It has no side effects
// and returns the same result for the same inputs.
func (n *Negotiator) Select(advertised features.Set) (features.Set, error) {
	if missing := features.Missing(n.Required, advertised); missing != 0 {
		return 0, &FeatureNegotiationError{
			Reason:  MissingRequired,
			Missing: missing,
			names:   n.Names,
		}
	}

	if d, bad := features.Unmet(n.Required, n.Dependencies); bad {
		return 0, &FeatureNegotiationError{
			Reason:     UnmetDependency,
			Dependency: d,
			Selected:   n.Required,
			names:      n.Names,
		}
	}

	optional := features.Intersect(n.Wanted, advertised)
	optional = features.Prune(n.Required, optional, n.Dependencies)

	selected := features.Union(n.Required, optional)

	if d, bad := features.Unmet(selected, n.Dependencies); bad {
		return 0, &FeatureNegotiationError{
			Reason:     UnmetDependency,
			Dependency: d,
			Selected:   selected,
			names:      n.Names,
		}
	}

	return selected, nil
}

// Negotiate reads the device features from regs, selects, and writes the
// selection back. Nothing is written when selection fails.
func (n *Negotiator) Negotiate(regs FeatureRegisters, deviceID uint16) (advertised, selected features.Set, err error) {
	advertised = regs.DeviceFeatures()

	selected, err = n.Select(advertised)
	if err != nil {
		if fe, ok := err.(*FeatureNegotiationError); ok {
			fe.DeviceID = deviceID
		}
		return advertised, 0, err
	}

	regs.SetDriverFeatures(selected)

	return advertised, selected, nil
}
