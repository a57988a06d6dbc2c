// Package bounds classifies memory accesses against the extent of the
// buffer they touch.
package bounds

import (
	"fmt"
	"go/token"
	"strings"

	"github.com/techguru321/infer/analysis/interval"
)

// Class is the verdict for a single access.
type Class int

const (
	// Safe accesses stay within bounds for every value of the abstract
	// state, or are unreachable.
	Safe Class = iota
	// DefiniteOverrun accesses are at or past the end for every value.
	DefiniteOverrun
	// DefiniteUnderrun accesses are before the start for every value.
	DefiniteUnderrun
	// Possible accesses may be out of bounds; the abstract state can't rule
	// it out.
	Possible
	// UnknownSafe accesses could not be proven safe only because of
	// precision lost by widening or approximation.
	UnknownSafe
)

var classNames = [...]string{
	Safe:             "SAFE",
	DefiniteOverrun:  "DEFINITE_OVERRUN",
	DefiniteUnderrun: "DEFINITE_UNDERRUN",
	Possible:         "POSSIBLE",
	UnknownSafe:      "UNKNOWN_SAFE",
}

func (c Class) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return fmt.Sprintf("Class(%d)", int(c))
	}
	return classNames[c]
}

// ParseClass is the inverse of Class.String.
func ParseClass(s string) (Class, bool) {
	for i, name := range classNames {
		if strings.EqualFold(name, s) {
			return Class(i), true
		}
	}
	return 0, false
}

// Definite reports whether c is certain to be a bug.
func (c Class) Definite() bool { return c == DefiniteOverrun || c == DefiniteUnderrun }

// Kind identifies what was checked.
type Kind int

const (
	// Index is an element access through a pointer or array.
	Index Kind = iota
	// Bulk is the length of memcpy, memmove, memset or strncpy.
	Bulk
	// Allocation is the byte count passed to an allocator.
	Allocation
	// ArraySize is the length of a declared array.
	ArraySize
)

var kindNames = [...]string{
	Index:      "index",
	Bulk:       "bulk",
	Allocation: "alloc",
	ArraySize:  "array-size",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// Check classifies v against the half-open range [lo, hi).
func Check(v, lo, hi interval.Interval) Class {
	return classify(v, lo.Lower(), lo.Upper(), hi.Lower(), hi.Upper())
}

// CheckAtLeast classifies v against the range [lo, +∞).
func CheckAtLeast(v, lo interval.Interval) Class {
	return classify(v, lo.Lower(), lo.Upper(), interval.PlusInf, interval.PlusInf)
}

// CheckIndex classifies an access to element idx of an array of size
// elements.
func CheckIndex(idx, size interval.Interval) Class {
	return Check(idx, interval.Const(0), size)
}

func classify(v interval.Interval, loL, loU, hiL, hiU interval.Bound) Class {
	if v.IsBottom() {
		return Safe
	}
	below := hiL.IsPlusInf() || interval.LT(v.Upper(), hiL)
	if below && interval.LE(loU, v.Lower()) {
		return Safe
	}
	if !hiU.IsPlusInf() && interval.LE(hiU, v.Lower()) {
		return DefiniteOverrun
	}
	if !loL.IsMinusInf() && interval.LT(v.Upper(), loL) {
		return DefiniteUnderrun
	}
	switch {
	case v.External():
		return Possible
	case v.Lossy():
		return UnknownSafe
	}
	return Possible
}

// A Step is one entry of a witness trace.
type Step struct {
	Pos         token.Position
	Description string
}

func (s Step) String() string {
	return fmt.Sprintf("%s: %s", s.Pos, s.Description)
}

// A Finding is an access that was not classified as safe.
type Finding struct {
	Pos   token.Position
	Func  string
	Kind  Kind
	Class Class
	// Access describes the checked operation in source terms.
	Access string
	// Value is the checked index, length or size.
	Value interval.Interval
	// Limit is the extent Value was checked against: the array size for
	// indices, the remaining bytes for bulk operations.
	Limit interval.Interval
	// Trace explains how Value came to be.
	Trace []Step
}

func (f Finding) Message() string {
	switch f.Kind {
	case Index:
		return fmt.Sprintf("%s: index %s, size %s (%s)", describe(f.Class), f.Value, f.Limit, f.Access)
	case Bulk:
		return fmt.Sprintf("%s: length %s, buffer %s bytes (%s)", describe(f.Class), f.Value, f.Limit, f.Access)
	case Allocation:
		return fmt.Sprintf("%s allocation size: %s bytes (%s)", describeAlloc(f.Class), f.Value, f.Access)
	case ArraySize:
		return fmt.Sprintf("array size may be non-positive: %s (%s)", f.Value, f.Access)
	}
	return f.Access
}

func describe(c Class) string {
	switch c {
	case DefiniteOverrun:
		return "buffer overrun"
	case DefiniteUnderrun:
		return "buffer underrun"
	case Possible:
		return "possible buffer overrun"
	case UnknownSafe:
		return "buffer access not proven safe"
	}
	return "safe access"
}

func describeAlloc(c Class) string {
	switch c {
	case DefiniteOverrun:
		return "too large"
	case DefiniteUnderrun:
		return "non-positive"
	case Possible:
		return "possibly invalid"
	}
	return "unproven"
}
