package features

import (
	"strings"
)

// Dependency states that Bit may only be selected together with at least one
// of AnyOf.
type Dependency struct {
	Bit   Bit
	AnyOf []Bit
}

func (d Dependency) prereqs() Set {
	return Of(d.AnyOf...)
}

// Satisfied reports whether s is consistent with d. A set that does not
// contain d.Bit always satisfies it.
func (d Dependency) Satisfied(s Set) bool {
	if !s.Has(d.Bit) {
		return true
	}
	return s&d.prereqs() != 0
}

func (d Dependency) Describe(t Table) string {
	var names []string
	for _, b := range d.AnyOf {
		names = append(names, t.Name(b))
	}
	return t.Name(d.Bit) + " requires " + strings.Join(names, " or ")
}

// Unmet returns the first dependency in deps that s violates.
func Unmet(s Set, deps []Dependency) (Dependency, bool) {
	for _, d := range deps {
		if !d.Satisfied(s) {
			return d, true
		}
	}
	return Dependency{}, false
}

// Prune removes from optional every bit whose prerequisites cannot be met
// within base|optional, repeating until nothing else drops out. Bits in base
// are never removed.
func Prune(base, optional Set, deps []Dependency) Set {
	optional &^= base

	for {
		changed := false

		for _, d := range deps {
			if !optional.Has(d.Bit) {
				continue
			}

			if !d.Satisfied(base | optional) {
				optional &^= d.Bit.Set()
				changed = true
			}
		}

		if !changed {
			return optional
		}
	}
}
