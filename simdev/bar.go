package simdev

import (
	"encoding/binary"

	"github.com/lab47/vnic/features"
)

// Common configuration registers as decoded by the device.
const (
	regDFSelect   = 0x00
	regDF         = 0x04
	regGFSelect   = 0x08
	regGF         = 0x0c
	regMSIX       = 0x10
	regNumQ       = 0x12
	regStatus     = 0x14
	regGeneration = 0x15
	regQSelect    = 0x16
	regQSize      = 0x18
	regQNotifyOff = 0x1e

	noVector  = 0xffff
	queueSize = 256
)

// bar is the BAR memory of a Device. Accesses to the common configuration
// page are decoded as register operations; the rest is plain memory with
// read side effects on the ISR byte.
type bar Device

func (b *bar) dev() *Device {
	return (*Device)(b)
}

func (b *bar) Size() uint64 {
	return barSize
}

func inPage(off uint64, base, length uint64) bool {
	return off >= base && off < base+length
}

func (b *bar) ReadMMIO(off uint64, data []byte) {
	d := b.dev()

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case inPage(off, commonOffset, commonLength):
		v := d.readCommon(off - commonOffset)
		putLE(data, v)
	case off == isrOffset:
		// Reading the ISR acknowledges it.
		clear(data)
		data[0] = d.isr
		d.isr = 0
	default:
		copy(data, d.mem[off:])
	}
}

func (b *bar) WriteMMIO(off uint64, data []byte) {
	d := b.dev()

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case inPage(off, commonOffset, commonLength):
		d.writeCommon(off-commonOffset, getLE(data))
	case inPage(off, notifyOffset, notifyLength):
		q := uint16(getLE(data))
		d.notifications = append(d.notifications, q)
		d.log.Trace("queue notified", "queue", q)
	case inPage(off, deviceOffset, deviceLength):
		d.log.Warn("ignoring write to read-only device config", "offset", off-deviceOffset)
	default:
		copy(d.mem[off:], data)
	}
}

func putLE(data []byte, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	copy(data, b[:])
}

func getLE(data []byte) uint32 {
	var b [4]byte
	copy(b[:], data)
	return binary.LittleEndian.Uint32(b[:])
}

func (d *Device) readCommon(reg uint64) uint32 {
	switch reg {
	case regDFSelect:
		return d.dfSelect
	case regDF:
		switch d.dfSelect {
		case 0:
			return d.opts.Features.Low()
		case 1:
			return d.opts.Features.High()
		}
		return 0
	case regGFSelect:
		return d.gfSelect
	case regGF:
		switch d.gfSelect {
		case 0:
			return d.driverFeatures.Low()
		case 1:
			return d.driverFeatures.High()
		}
		return 0
	case regMSIX:
		return noVector
	case regNumQ:
		return uint32(d.opts.NumQueues)
	case regStatus:
		return uint32(d.status)
	case regGeneration:
		return uint32(d.generation)
	case regQSelect:
		return uint32(d.queueSel)
	case regQSize:
		if d.queueSel < d.opts.NumQueues {
			return queueSize
		}
		return 0
	case regQNotifyOff:
		if d.queueSel < d.opts.NumQueues {
			return uint32(d.queueSel)
		}
		return 0
	}

	d.log.Trace("read of unhandled common register", "offset", reg)
	return 0
}

func (d *Device) writeCommon(reg uint64, v uint32) {
	switch reg {
	case regDFSelect:
		d.dfSelect = v
	case regGFSelect:
		d.gfSelect = v
	case regGF:
		d.featureWrites++

		switch d.gfSelect {
		case 0:
			d.driverFeatures = features.Join(v, d.driverFeatures.High())
		case 1:
			d.driverFeatures = features.Join(d.driverFeatures.Low(), v)
		}
	case regStatus:
		d.setStatus(uint8(v))
	case regQSelect:
		d.queueSel = uint16(v)
	default:
		d.log.Trace("write to unhandled common register", "offset", reg, "value", v)
	}
}

func (d *Device) reset() {
	d.status = 0
	d.dfSelect = 0
	d.gfSelect = 0
	d.driverFeatures = 0
	d.queueSel = 0
	d.isr = 0
}

func (d *Device) setStatus(v uint8) {
	d.statusWrites = append(d.statusWrites, v)

	if v == 0 {
		d.log.Trace("device reset")
		d.reset()
		return
	}

	if v&statusFeaturesOK != 0 && d.status&statusFeaturesOK == 0 {
		if !d.acceptFeatures() {
			d.log.Warn("refusing feature selection", "features", uint64(d.driverFeatures))
			v &^= statusFeaturesOK
		} else {
			d.log.Info("configuring features", "features", uint64(d.driverFeatures))
		}
	}

	if v&statusFailed != 0 && d.status&statusFailed == 0 {
		d.log.Warn("driver marked device failed")
	}

	d.status = v
}

func (d *Device) acceptFeatures() bool {
	if d.opts.RejectFeaturesOK {
		return false
	}

	return features.IsSubset(d.driverFeatures, d.opts.Features)
}
