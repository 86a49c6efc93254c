package pci

import (
	"fmt"

	"github.com/pkg/errors"
)

// Address identifies a PCI function as domain:bus:slot.function.
type Address struct {
	Domain uint16
	Bus    uint8
	Slot   uint8
	Fn     uint8
}

func (a Address) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", a.Domain, a.Bus, a.Slot, a.Fn)
}

// ParseAddress accepts both the full "0000:00:03.0" form and the short
// "00:03.0" form, which implies domain 0.
func ParseAddress(s string) (Address, error) {
	var a Address

	if _, err := fmt.Sscanf(s, "%x:%x:%x.%x", &a.Domain, &a.Bus, &a.Slot, &a.Fn); err == nil {
		return a.check(s)
	}

	a = Address{}
	if _, err := fmt.Sscanf(s, "%x:%x.%x", &a.Bus, &a.Slot, &a.Fn); err != nil {
		return Address{}, errors.Wrapf(err, "parsing pci address %q", s)
	}

	return a.check(s)
}

func (a Address) check(s string) (Address, error) {
	if a.Slot > 0x1f || a.Fn > 7 {
		return Address{}, errors.Errorf("pci address %q out of range", s)
	}
	return a, nil
}
