//go:build !linux

package pci

import "github.com/pkg/errors"

// Open is only supported on linux, where BARs are mapped through sysfs.
func Open(addr Address) (*Adapter, error) {
	return nil, errors.Errorf("opening %s: pci sysfs access is only available on linux", addr)
}
