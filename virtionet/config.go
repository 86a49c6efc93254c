package virtionet

import (
	"os"

	"github.com/lab47/vnic/features"
	"github.com/lab47/vnic/virtio"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultRequired is the feature set a network device must offer.
var DefaultRequired = features.Of(
	VIRTIO_NET_F_MAC,
	VIRTIO_NET_F_STATUS,
	VIRTIO_NET_F_GUEST_CSUM,
	VIRTIO_NET_F_GUEST_TSO4,
	VIRTIO_NET_F_GUEST_TSO6,
	VIRTIO_NET_F_GUEST_UFO,
)

var DefaultWanted = features.Of(virtio.VIRTIO_F_VERSION_1)

type Config struct {
	// Required bits must all be offered by the device.
	Required features.Set

	// Wanted bits are taken when offered and when their prerequisites
	// can be selected.
	Wanted features.Set

	// HistoryDepth bounds the recorded handshake transitions.
	HistoryDepth int

	// Queues builds the queue layer once features are accepted. Without
	// it the driver has no queues and the queue hooks fail.
	Queues virtio.QueueFactory

	// DeviceInit runs after the built-in network checks and before Queues.
	DeviceInit virtio.DeviceInitFunc
}

func DefaultConfig() Config {
	return Config{
		Required:     DefaultRequired,
		Wanted:       DefaultWanted,
		HistoryDepth: virtio.DefaultHistoryDepth,
	}
}

type profile struct {
	Required []string `yaml:"required"`
	Wanted   []string `yaml:"wanted"`
	History  int      `yaml:"history"`
}

// ParseConfig reads a YAML feature profile on top of DefaultConfig. Keys
// that are absent keep their defaults; an empty list clears the set.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	var p profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return cfg, errors.Wrapf(err, "parsing feature profile")
	}

	if p.Required != nil {
		s, err := NetFeatureNames.Parse(p.Required)
		if err != nil {
			return cfg, errors.Wrapf(err, "required features")
		}
		cfg.Required = s
	}

	if p.Wanted != nil {
		s, err := NetFeatureNames.Parse(p.Wanted)
		if err != nil {
			return cfg, errors.Wrapf(err, "wanted features")
		}
		cfg.Wanted = s
	}

	if p.History < 0 {
		return cfg, errors.Errorf("history depth %d is negative", p.History)
	}

	if p.History > 0 {
		cfg.HistoryDepth = p.History
	}

	return cfg, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading feature profile")
	}

	return ParseConfig(data)
}
