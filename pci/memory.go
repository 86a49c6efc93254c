package pci

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Memory is the mapped extent of a single BAR. Offsets are relative to the
// start of the BAR. Callers must stay inside Size(); implementations panic on
// out-of-range access the same way a slice would.
//
// A 1, 2, 4 or 8 byte access at a naturally aligned offset must reach the
// device as a single load or store of that width. Device registers such as
// device_feature only accept their natural width.
type Memory interface {
	Size() uint64
	ReadMMIO(off uint64, data []byte)
	WriteMMIO(off uint64, data []byte)
}

// RAM is a Memory backed by a plain byte slice, such as an mmap'd sysfs
// resource file. Naturally aligned register sized accesses are performed as
// single loads and stores; anything else is copied bytewise.
type RAM []byte

func (m RAM) Size() uint64 {
	return uint64(len(m))
}

func (m RAM) ReadMMIO(off uint64, data []byte) {
	span := m.span(off, len(data))
	if len(span) == 0 {
		return
	}

	p := unsafe.Pointer(&span[0])
	if !aligned(p, len(span)) {
		copy(data, span)
		return
	}

	switch len(span) {
	case 1:
		data[0] = *(*uint8)(p)
	case 2:
		binary.NativeEndian.PutUint16(data, *(*uint16)(p))
	case 4:
		binary.NativeEndian.PutUint32(data, atomic.LoadUint32((*uint32)(p)))
	case 8:
		binary.NativeEndian.PutUint64(data, atomic.LoadUint64((*uint64)(p)))
	default:
		copy(data, span)
	}
}

func (m RAM) WriteMMIO(off uint64, data []byte) {
	span := m.span(off, len(data))
	if len(span) == 0 {
		return
	}

	p := unsafe.Pointer(&span[0])
	if !aligned(p, len(span)) {
		copy(span, data)
		return
	}

	switch len(span) {
	case 1:
		*(*uint8)(p) = data[0]
	case 2:
		*(*uint16)(p) = binary.NativeEndian.Uint16(data)
	case 4:
		atomic.StoreUint32((*uint32)(p), binary.NativeEndian.Uint32(data))
	case 8:
		atomic.StoreUint64((*uint64)(p), binary.NativeEndian.Uint64(data))
	default:
		copy(span, data)
	}
}

func aligned(p unsafe.Pointer, n int) bool {
	switch n {
	case 1, 2, 4, 8:
		return uintptr(p)%uintptr(n) == 0
	}
	return false
}

func (m RAM) span(off uint64, n int) []byte {
	if off > uint64(len(m)) || uint64(n) > uint64(len(m))-off {
		panic(fmt.Sprintf("pci: access [%#x, +%d) outside %d byte bar", off, n, len(m)))
	}
	return m[off : off+uint64(n)]
}
