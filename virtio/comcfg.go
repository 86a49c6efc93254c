package virtio

import (
	"github.com/lab47/vnic/features"
)

// Layout of struct virtio_pci_common_cfg.
const (
	COMMON_DFSELECT      = 0x00
	COMMON_DF            = 0x04
	COMMON_GFSELECT      = 0x08
	COMMON_GF            = 0x0c
	COMMON_MSIX          = 0x10
	COMMON_NUMQ          = 0x12
	COMMON_STATUS        = 0x14
	COMMON_CFGGENERATION = 0x15
	COMMON_Q_SELECT      = 0x16
	COMMON_Q_SIZE        = 0x18
	COMMON_Q_MSIX        = 0x1a
	COMMON_Q_ENABLE      = 0x1c
	COMMON_Q_NOFF        = 0x1e
	COMMON_Q_DESCLO      = 0x20
	COMMON_Q_DESCHI      = 0x24
	COMMON_Q_AVAILLO     = 0x28
	COMMON_Q_AVAILHI     = 0x2c
	COMMON_Q_USEDLO      = 0x30
	COMMON_Q_USEDHI      = 0x34

	CommonCfgSize = 0x38
	ISRCfgSize    = 1

	// A notification is a 16-bit queue index write.
	NotifyCfgMinSize = 2
)

// FeatureRegisters is the part of the control surface used by feature
// negotiation.
type FeatureRegisters interface {
	DeviceFeatures() features.Set
	SetDriverFeatures(features.Set)
}

// Control is the control surface the handshake drives.
type Control interface {
	FeatureRegisters

	Reset()
	Acknowledge()
	ClaimDriver()
	SetFeaturesOK()
	CheckFeaturesOK() bool
	SetFailed()
	SetDriverOK()
	Status() uint8
}

// ComCfg drives the common configuration structure of a device.
type ComCfg struct {
	r *Region
}

func NewComCfg(r *Region) *ComCfg {
	return &ComCfg{r: r}
}

func (c *ComCfg) Status() uint8 {
	return c.r.Read8(COMMON_STATUS)
}

func (c *ComCfg) setStatus(bits uint8) {
	c.r.Write8(COMMON_STATUS, c.Status()|bits)
}

// Reset writes 0 to the status register, returning the device to its
// initial state.
func (c *ComCfg) Reset() {
	c.r.Write8(COMMON_STATUS, 0)
}

func (c *ComCfg) Acknowledge() {
	c.setStatus(STATUS_ACKNOWLEDGE)
}

func (c *ComCfg) ClaimDriver() {
	c.setStatus(STATUS_DRIVER)
}

func (c *ComCfg) DeviceFeatures() features.Set {
	c.r.Write32(COMMON_DFSELECT, 0)
	low := c.r.Read32(COMMON_DF)

	c.r.Write32(COMMON_DFSELECT, 1)
	high := c.r.Read32(COMMON_DF)

	return features.Join(low, high)
}

func (c *ComCfg) SetDriverFeatures(s features.Set) {
	c.r.Write32(COMMON_GFSELECT, 0)
	c.r.Write32(COMMON_GF, s.Low())

	c.r.Write32(COMMON_GFSELECT, 1)
	c.r.Write32(COMMON_GF, s.High())
}

// DriverFeatures reads back the driver feature word.
func (c *ComCfg) DriverFeatures() features.Set {
	c.r.Write32(COMMON_GFSELECT, 0)
	low := c.r.Read32(COMMON_GF)

	c.r.Write32(COMMON_GFSELECT, 1)
	high := c.r.Read32(COMMON_GF)

	return features.Join(low, high)
}

func (c *ComCfg) SetFeaturesOK() {
	c.setStatus(STATUS_FEATURES_OK)
}

// CheckFeaturesOK re-reads the status register; a device that rejects the
// selected features leaves FEATURES_OK clear.
func (c *ComCfg) CheckFeaturesOK() bool {
	return c.Status()&STATUS_FEATURES_OK != 0
}

func (c *ComCfg) SetFailed() {
	c.setStatus(STATUS_FAILED)
}

func (c *ComCfg) SetDriverOK() {
	c.setStatus(STATUS_DRIVER_OK)
}

func (c *ComCfg) NeedsReset() bool {
	return c.Status()&STATUS_DEVICE_NEEDS_RESET != 0
}

func (c *ComCfg) NumQueues() uint16 {
	return c.r.Read16(COMMON_NUMQ)
}

func (c *ComCfg) ConfigGeneration() uint8 {
	return c.r.Read8(COMMON_CFGGENERATION)
}

// QueueNotifyOff selects queue q and returns its notification offset.
func (c *ComCfg) QueueNotifyOff(q uint16) uint16 {
	c.r.Write16(COMMON_Q_SELECT, q)
	return c.r.Read16(COMMON_Q_NOFF)
}
