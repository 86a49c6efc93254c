package pci

import (
	"fmt"

	"github.com/pkg/errors"
)

// CapKind is the cfg_type of a virtio vendor capability.
type CapKind uint8

const (
	CAP_COMMON_CFG CapKind = 1
	CAP_NOTIFY_CFG CapKind = 2
	CAP_ISR_CFG    CapKind = 3
	CAP_DEVICE_CFG CapKind = 4
	CAP_PCI_CFG    CapKind = 5
	CAP_SHARED_MEM CapKind = 8
	CAP_VENDOR_CFG CapKind = 9
)

var capKindNames = map[CapKind]string{
	CAP_COMMON_CFG: "common-cfg",
	CAP_NOTIFY_CFG: "notify-cfg",
	CAP_ISR_CFG:    "isr-cfg",
	CAP_DEVICE_CFG: "device-cfg",
	CAP_PCI_CFG:    "pci-cfg",
	CAP_SHARED_MEM: "shared-mem",
	CAP_VENDOR_CFG: "vendor-cfg",
}

func (k CapKind) String() string {
	if n, ok := capKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("cfg-type-%d", uint8(k))
}

// Layout of struct virtio_pci_cap and its extensions.
const (
	capOffVendor     = 0
	capOffNext       = 1
	capOffLen        = 2
	capOffCfgType    = 3
	capOffBar        = 4
	capOffID         = 5
	capOffOffset     = 8
	capOffLength     = 12
	capOffMultiplier = 16
	capOffOffsetHi   = 16
	capOffLengthHi   = 20

	VirtioCapLen       = 16
	VirtioNotifyCapLen = 20
	VirtioCap64Len     = 24

	MaxBARs = 6
)

// VirtioCap is one virtio capability found on the chain. It is a value and
// is never modified after the scan produces it.
type VirtioCap struct {
	Kind     CapKind
	Bar      uint8
	ID       uint8
	Offset   uint64
	Length   uint64
	DeviceID uint16

	// CapOffset is where the capability lives in configuration space.
	CapOffset uint8

	// NotifyOffMultiplier is only meaningful for CAP_NOTIFY_CFG.
	NotifyOffMultiplier uint32
}

func (c VirtioCap) String() string {
	return fmt.Sprintf("%s bar=%d off=%#x len=%#x dev=%04x", c.Kind, c.Bar, c.Offset, c.Length, c.DeviceID)
}

// ScanVirtioCaps walks the capability list of cs and returns every virtio
// vendor capability, in chain order. The walk visits each pointer at most
// once, so a looping chain terminates.
func ScanVirtioCaps(cs ConfigSpace) ([]VirtioCap, error) {
	if len(cs) < ConfigHeaderSize {
		return nil, errors.Errorf("config space too short (%d bytes)", len(cs))
	}

	if !cs.HasCapabilities() {
		return nil, nil
	}

	var (
		caps    []VirtioCap
		visited = make(map[int]bool)
		dev     = cs.DeviceID()
	)

	ptr := int(cs.CapPointer()) & 0xfc
	for ptr >= ConfigHeaderSize && ptr < len(cs) && !visited[ptr] {
		visited[ptr] = true

		id := cs.ReadU8(ptr + capOffVendor)
		next := int(cs.ReadU8(ptr+capOffNext)) & 0xfc

		if id == CAP_ID_VENDOR {
			if c, ok := decodeVirtioCap(cs, ptr, dev); ok {
				caps = append(caps, c)
			}
		}

		ptr = next
	}

	return caps, nil
}

func decodeVirtioCap(cs ConfigSpace, ptr int, dev uint16) (VirtioCap, bool) {
	clen := int(cs.ReadU8(ptr + capOffLen))
	if clen < VirtioCapLen || ptr+clen > len(cs) {
		return VirtioCap{}, false
	}

	c := VirtioCap{
		Kind:      CapKind(cs.ReadU8(ptr + capOffCfgType)),
		Bar:       cs.ReadU8(ptr + capOffBar),
		ID:        cs.ReadU8(ptr + capOffID),
		Offset:    uint64(cs.ReadU32(ptr + capOffOffset)),
		Length:    uint64(cs.ReadU32(ptr + capOffLength)),
		DeviceID:  dev,
		CapOffset: uint8(ptr),
	}

	switch c.Kind {
	case CAP_NOTIFY_CFG:
		if clen < VirtioNotifyCapLen {
			return VirtioCap{}, false
		}
		c.NotifyOffMultiplier = cs.ReadU32(ptr + capOffMultiplier)
	case CAP_SHARED_MEM:
		if clen >= VirtioCap64Len {
			c.Offset |= uint64(cs.ReadU32(ptr+capOffOffsetHi)) << 32
			c.Length |= uint64(cs.ReadU32(ptr+capOffLengthHi)) << 32
		}
	}

	return c, true
}

// EncodeVirtioCap writes a virtio capability at ptr, linking it to next.
// The buffer must hold at least VirtioCapLen bytes past ptr, or
// VirtioNotifyCapLen for a notify capability.
func EncodeVirtioCap(cs ConfigSpace, ptr, next uint8, c VirtioCap) {
	clen := VirtioCapLen
	if c.Kind == CAP_NOTIFY_CFG {
		clen = VirtioNotifyCapLen
	}

	b := cs[int(ptr):]
	b[capOffVendor] = CAP_ID_VENDOR
	b[capOffNext] = next
	b[capOffLen] = uint8(clen)
	b[capOffCfgType] = uint8(c.Kind)
	b[capOffBar] = c.Bar
	b[capOffID] = c.ID
	b[6], b[7] = 0, 0
	putU32(b[capOffOffset:], uint32(c.Offset))
	putU32(b[capOffLength:], uint32(c.Length))

	if c.Kind == CAP_NOTIFY_CFG {
		putU32(b[capOffMultiplier:], c.NotifyOffMultiplier)
	}
}
