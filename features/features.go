// Package features models the 64-bit feature words exchanged between a virtio
// driver and device.
package features

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Bit is the position of a single feature flag, 0 through 63.
type Bit uint8

// Set is a 64-bit feature word.
type Set uint64

// Of builds a set from individual bit positions.
func Of(bs ...Bit) Set {
	var s Set
	for _, b := range bs {
		s |= b.Set()
	}
	return s
}

func (b Bit) Set() Set {
	return Set(1) << (b & 63)
}

func (s Set) Has(b Bit) bool {
	return s&b.Set() != 0
}

func (s Set) Bits() []Bit {
	var out []Bit

	for v := uint64(s); v != 0; v &= v - 1 {
		out = append(out, Bit(bits.TrailingZeros64(v)))
	}

	return out
}

func (s Set) Len() int {
	return bits.OnesCount64(uint64(s))
}

func (s Set) Low() uint32 {
	return uint32(s)
}

func (s Set) High() uint32 {
	return uint32(s >> 32)
}

// Join reassembles a set from the two 32-bit halves used by feature select
// registers.
func Join(low, high uint32) Set {
	return Set(uint64(high)<<32 | uint64(low))
}

func Union(a, b Set) Set {
	return a | b
}

func Intersect(a, b Set) Set {
	return a & b
}

// IsSubset reports whether every bit of a is also in b.
func IsSubset(a, b Set) bool {
	return a&^b == 0
}

// Missing returns the bits of want that are absent from have.
func Missing(want, have Set) Set {
	return want &^ have
}

// Table maps canonical feature names to bit positions.
type Table map[string]Bit

// Merge returns a new table holding the entries of all the given tables.
// Later tables win on name collisions.
func Merge(tables ...Table) Table {
	out := Table{}
	for _, t := range tables {
		for n, b := range t {
			out[n] = b
		}
	}
	return out
}

func (t Table) Lookup(name string) (Bit, bool) {
	b, ok := t[strings.ToUpper(strings.TrimSpace(name))]
	return b, ok
}

// Name returns the name registered for b, or "BIT_<n>" when there is none.
func (t Table) Name(b Bit) string {
	var found []string
	for n, v := range t {
		if v == b {
			found = append(found, n)
		}
	}

	if len(found) == 0 {
		return fmt.Sprintf("BIT_%d", b)
	}

	sort.Strings(found)
	return found[0]
}

// Parse resolves a list of names into a set.
func (t Table) Parse(names []string) (Set, error) {
	var s Set

	for _, n := range names {
		b, ok := t.Lookup(n)
		if !ok {
			return 0, errors.Errorf("unknown feature %q", n)
		}
		s |= b.Set()
	}

	return s, nil
}

// Names renders s with the table's names, lowest bit first.
func (t Table) Names(s Set) []string {
	var out []string
	for _, b := range s.Bits() {
		out = append(out, t.Name(b))
	}
	return out
}

func (t Table) Format(s Set) string {
	if s == 0 {
		return "none"
	}
	return strings.Join(t.Names(s), "|")
}
