package pci

import "encoding/binary"

// Type 0 configuration header offsets.
const (
	CFG_VENDOR_ID   = 0x00
	CFG_DEVICE_ID   = 0x02
	CFG_COMMAND     = 0x04
	CFG_STATUS      = 0x06
	CFG_REVISION    = 0x08
	CFG_HEADER_TYPE = 0x0e
	CFG_BAR0        = 0x10
	CFG_SUBSYS_VID  = 0x2c
	CFG_SUBSYS_ID   = 0x2e
	CFG_CAP_POINTER = 0x34

	ConfigHeaderSize = 0x40
	ConfigLegacySize = 0x100

	STATUS_CAP_LIST = 1 << 4

	CAP_ID_VENDOR = 0x09
)

// ConfigSpace is a snapshot of a function's configuration space. Reads past
// the end return zero, like a read from an absent register.
type ConfigSpace []byte

func (c ConfigSpace) ReadU8(off int) uint8 {
	if off < 0 || off >= len(c) {
		return 0
	}
	return c[off]
}

func (c ConfigSpace) ReadU16(off int) uint16 {
	if off < 0 || off+2 > len(c) {
		return 0
	}
	return binary.LittleEndian.Uint16(c[off:])
}

func (c ConfigSpace) ReadU32(off int) uint32 {
	if off < 0 || off+4 > len(c) {
		return 0
	}
	return binary.LittleEndian.Uint32(c[off:])
}

func (c ConfigSpace) VendorID() uint16 {
	return c.ReadU16(CFG_VENDOR_ID)
}

func (c ConfigSpace) DeviceID() uint16 {
	return c.ReadU16(CFG_DEVICE_ID)
}

func (c ConfigSpace) HasCapabilities() bool {
	return c.ReadU16(CFG_STATUS)&STATUS_CAP_LIST != 0
}

func (c ConfigSpace) CapPointer() uint8 {
	return c.ReadU8(CFG_CAP_POINTER)
}

func (c ConfigSpace) WriteU8(off int, v uint8) {
	c[off] = v
}

func (c ConfigSpace) WriteU16(off int, v uint16) {
	binary.LittleEndian.PutUint16(c[off:], v)
}

func (c ConfigSpace) WriteU32(off int, v uint32) {
	putU32(c[off:], v)
}

func putU32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}
