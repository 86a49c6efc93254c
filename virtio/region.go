package virtio

import (
	"encoding/binary"
	"fmt"

	"github.com/lab47/vnic/pci"
)

// RegionReader is the read-only face of a Region, handed to views over
// device-owned structures.
type RegionReader interface {
	Kind() pci.CapKind
	Len() uint64
	Read8(off uint64) uint8
	Read16(off uint64) uint16
	Read32(off uint64) uint32
	ReadBytes(off uint64, p []byte)
}

// Region is a validated window onto device memory. Its extent was checked
// against the BAR and the target structure when it was mapped, so accessors
// do not report errors; an access outside the window is a driver bug and
// panics. All multi-byte fields are little endian.
type Region struct {
	kind   pci.CapKind
	mem    pci.Memory
	base   uint64
	length uint64
}

func (r *Region) Kind() pci.CapKind {
	return r.kind
}

func (r *Region) Len() uint64 {
	return r.length
}

func (r *Region) at(off uint64, n int) uint64 {
	if off > r.length || uint64(n) > r.length-off {
		panic(fmt.Sprintf("virtio: %s access [%#x, +%d) outside %d byte region", r.kind, off, n, r.length))
	}
	return r.base + off
}

func (r *Region) Read8(off uint64) uint8 {
	var b [1]byte
	r.mem.ReadMMIO(r.at(off, 1), b[:])
	return b[0]
}

func (r *Region) Read16(off uint64) uint16 {
	var b [2]byte
	r.mem.ReadMMIO(r.at(off, 2), b[:])
	return binary.LittleEndian.Uint16(b[:])
}

func (r *Region) Read32(off uint64) uint32 {
	var b [4]byte
	r.mem.ReadMMIO(r.at(off, 4), b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (r *Region) ReadBytes(off uint64, p []byte) {
	r.mem.ReadMMIO(r.at(off, len(p)), p)
}

func (r *Region) Write8(off uint64, v uint8) {
	r.mem.WriteMMIO(r.at(off, 1), []byte{v})
}

func (r *Region) Write16(off uint64, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	r.mem.WriteMMIO(r.at(off, 2), b[:])
}

func (r *Region) Write32(off uint64, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	r.mem.WriteMMIO(r.at(off, 4), b[:])
}

// Reader drops write access.
func (r *Region) Reader() RegionReader {
	return readOnly{r}
}

type readOnly struct {
	r *Region
}

func (v readOnly) Kind() pci.CapKind              { return v.r.Kind() }
func (v readOnly) Len() uint64                    { return v.r.Len() }
func (v readOnly) Read8(off uint64) uint8         { return v.r.Read8(off) }
func (v readOnly) Read16(off uint64) uint16       { return v.r.Read16(off) }
func (v readOnly) Read32(off uint64) uint32       { return v.r.Read32(off) }
func (v readOnly) ReadBytes(off uint64, p []byte) { v.r.ReadBytes(off, p) }

// MapRegion validates c against the BAR memory backing it and against the
// size of the structure it must hold. It is the only way to obtain a Region.
// The caller keeps bar mapped for as long as the region is in use.
func MapRegion(c pci.VirtioCap, bar pci.Memory, required uint64) (*Region, error) {
	if bar == nil {
		return nil, &RegionError{Reason: RegionNoBar, Cap: c, Required: required}
	}

	size := bar.Size()

	if c.Offset > size || c.Length > size-c.Offset {
		return nil, &RegionError{Reason: RegionExceedsBar, Cap: c, BarSize: size, Required: required}
	}

	if c.Length < required {
		return nil, &RegionError{Reason: RegionTooSmall, Cap: c, BarSize: size, Required: required}
	}

	return &Region{
		kind:   c.Kind,
		mem:    bar,
		base:   c.Offset,
		length: c.Length,
	}, nil
}

type span struct {
	start, end uint64
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// Mapper hands out regions of one adapter, guaranteeing that no two regions
// share a byte of the same BAR.
type Mapper struct {
	adapter *pci.Adapter
	claimed map[uint8][]span
}

func NewMapper(a *pci.Adapter) *Mapper {
	return &Mapper{
		adapter: a,
		claimed: make(map[uint8][]span),
	}
}

func (m *Mapper) Map(c pci.VirtioCap, required uint64) (*Region, error) {
	bar, _ := m.adapter.BAR(c.Bar)

	r, err := MapRegion(c, bar, required)
	if err != nil {
		return nil, err
	}

	s := span{c.Offset, c.Offset + c.Length}
	for _, o := range m.claimed[c.Bar] {
		if s.overlaps(o) {
			return nil, &RegionError{Reason: RegionOverlap, Cap: c, BarSize: bar.Size(), Required: required}
		}
	}

	m.claimed[c.Bar] = append(m.claimed[c.Bar], s)

	return r, nil
}
