package virtio

import (
	"errors"
	"testing"

	"github.com/lab47/vnic/features"
	"github.com/stretchr/testify/require"
)

type fakeRegs struct {
	advertised features.Set
	writes     []features.Set
}

func (f *fakeRegs) DeviceFeatures() features.Set {
	return f.advertised
}

func (f *fakeRegs) SetDriverFeatures(s features.Set) {
	f.writes = append(f.writes, s)
}

const (
	bitCsum  features.Bit = 1
	bitTSO4  features.Bit = 7
	bitTSO6  features.Bit = 8
	bitECN   features.Bit = 9
	bitMAC   features.Bit = 5
	bitExtra features.Bit = 20
)

var testDeps = []features.Dependency{
	{Bit: bitTSO4, AnyOf: []features.Bit{bitCsum}},
	{Bit: bitTSO6, AnyOf: []features.Bit{bitCsum}},
	{Bit: bitECN, AnyOf: []features.Bit{bitTSO4, bitTSO6}},
}

var testNames = features.Merge(FeatureNames, features.Table{
	"GUEST_CSUM": bitCsum,
	"GUEST_TSO4": bitTSO4,
	"GUEST_TSO6": bitTSO6,
	"GUEST_ECN":  bitECN,
	"MAC":        bitMAC,
})

func TestNegotiator(t *testing.T) {
	t.Run("selects required and offered wanted bits", func(t *testing.T) {
		r := require.New(t)

		n := &Negotiator{
			Required:     features.Of(bitMAC, bitCsum),
			Wanted:       features.Of(VIRTIO_F_VERSION_1, bitTSO4),
			Dependencies: testDeps,
			Names:        testNames,
		}

		regs := &fakeRegs{advertised: features.Of(bitMAC, bitCsum, bitTSO4, bitExtra, VIRTIO_F_VERSION_1)}

		adv, sel, err := n.Negotiate(regs, 0x1041)
		r.NoError(err)
		r.Equal(regs.advertised, adv)
		r.Equal(features.Of(bitMAC, bitCsum, bitTSO4, VIRTIO_F_VERSION_1), sel)
		r.Equal([]features.Set{sel}, regs.writes)
	})

	t.Run("is idempotent", func(t *testing.T) {
		r := require.New(t)

		n := &Negotiator{
			Required:     features.Of(bitMAC),
			Wanted:       features.Of(bitCsum, bitTSO6, bitECN),
			Dependencies: testDeps,
		}

		adv := features.Of(bitMAC, bitCsum, bitTSO6, bitECN)

		a, err := n.Select(adv)
		r.NoError(err)

		b, err := n.Select(adv)
		r.NoError(err)

		r.Equal(a, b)
	})

	t.Run("fails without writing when a required bit is missing", func(t *testing.T) {
		r := require.New(t)

		n := &Negotiator{
			Required: features.Of(bitMAC, bitCsum),
			Names:    testNames,
		}

		regs := &fakeRegs{advertised: features.Of(bitMAC)}

		_, _, err := n.Negotiate(regs, 0x1041)
		r.Error(err)
		r.Empty(regs.writes)

		var fe *FeatureNegotiationError
		r.True(errors.As(err, &fe))
		r.Equal(MissingRequired, fe.Reason)
		r.Equal(features.Of(bitCsum), fe.Missing)
		r.Equal(uint16(0x1041), fe.DeviceID)
		r.Contains(err.Error(), "GUEST_CSUM")
	})

	t.Run("fails when a required bit lacks its prerequisite", func(t *testing.T) {
		r := require.New(t)

		n := &Negotiator{
			Required:     features.Of(bitTSO4),
			Dependencies: testDeps,
			Names:        testNames,
		}

		regs := &fakeRegs{advertised: features.Of(bitTSO4, bitCsum)}

		_, _, err := n.Negotiate(regs, 0x1041)
		r.Error(err)
		r.Empty(regs.writes)

		var fe *FeatureNegotiationError
		r.True(errors.As(err, &fe))
		r.Equal(UnmetDependency, fe.Reason)
		r.Equal(bitTSO4, fe.Dependency.Bit)
		r.Contains(err.Error(), "GUEST_TSO4 requires GUEST_CSUM")
	})

	t.Run("prunes wanted bits whose prerequisites are absent", func(t *testing.T) {
		r := require.New(t)

		n := &Negotiator{
			Required:     features.Of(bitMAC),
			Wanted:       features.Of(bitTSO4, bitECN),
			Dependencies: testDeps,
		}

		sel, err := n.Select(features.Of(bitMAC, bitTSO4, bitECN))
		r.NoError(err)
		r.Equal(features.Of(bitMAC), sel)
	})

	t.Run("wanted bits do not satisfy required prerequisites", func(t *testing.T) {
		r := require.New(t)

		n := &Negotiator{
			Required:     features.Of(bitMAC, bitTSO4),
			Wanted:       features.Of(bitCsum),
			Dependencies: testDeps,
			Names:        testNames,
		}

		regs := &fakeRegs{advertised: features.Of(bitMAC, bitTSO4, bitCsum)}

		_, _, err := n.Negotiate(regs, 0x1041)
		r.Error(err)

		var fe *FeatureNegotiationError
		r.True(errors.As(err, &fe))
		r.Equal(UnmetDependency, fe.Reason)
		r.Equal(bitTSO4, fe.Dependency.Bit)
		r.Empty(regs.writes)
	})

	t.Run("never selects unadvertised bits", func(t *testing.T) {
		r := require.New(t)

		n := &Negotiator{
			Wanted: features.Of(bitCsum, VIRTIO_F_VERSION_1),
		}

		sel, err := n.Select(features.Of(VIRTIO_F_VERSION_1, bitExtra))
		r.NoError(err)
		r.Equal(features.Of(VIRTIO_F_VERSION_1), sel)
		r.True(features.IsSubset(sel, features.Of(VIRTIO_F_VERSION_1, bitExtra)))
	})
}
