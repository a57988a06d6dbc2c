// Package interval implements a symbolic interval domain over
// arbitrary-precision integers.
//
// An interval's bounds are constants, ±∞, linear expressions c + k·s over a
// single symbol s, or min/max expressions c ± min/max(d, s). Operations on
// symbolically incomparable bounds fall back to the symbols' binding ranges,
// and ultimately to ±∞; they never fail.
package interval

import (
	"fmt"
	"math/big"
)

// Flags record the provenance of an interval.
type Flags uint8

const (
	// Lossy marks intervals whose bounds were widened or concretized.
	Lossy Flags = 1 << iota
	// External marks intervals that derive from an unknown source, such as
	// the result of an unmodelled function.
	External
)

func (f Flags) String() string {
	switch f {
	case 0:
		return ""
	case Lossy:
		return "lossy"
	case External:
		return "external"
	default:
		return "lossy,external"
	}
}

// Interval is a possibly empty range of integers. The zero value is the
// singleton [0, 0].
type Interval struct {
	lower  Bound
	upper  Bound
	flags  Flags
	bottom bool
}

func Top() Interval { return Interval{lower: MinusInf, upper: PlusInf} }

func Bottom() Interval { return Interval{bottom: true, lower: PlusInf, upper: MinusInf} }

// Unknown returns top, marked as coming from an external source.
func Unknown() Interval {
	return Interval{lower: MinusInf, upper: PlusInf, flags: External}
}

func Const(n int64) Interval { return ConstZ(NewZ(n)) }

func ConstZ(z Z) Interval {
	b := ConstBound(z)
	return Interval{lower: b, upper: b}
}

func ConstBig(n *big.Int) Interval { return ConstZ(NewBigZ(n)) }

func Range(lo, hi int64) Interval {
	return New(ConstBound(NewZ(lo)), ConstBound(NewZ(hi)))
}

func RangeZ(lo, hi Z) Interval {
	return New(ConstBound(lo), ConstBound(hi))
}

// OfSymbol returns [s, s].
func OfSymbol(s *Symbol) Interval {
	b := SymBound(0, 1, s)
	return Interval{lower: b, upper: b}
}

// New returns [lo, hi], or bottom if the range is provably empty.
func New(lo, hi Bound) Interval {
	return newFlags(lo, hi, 0)
}

func newFlags(lo, hi Bound, f Flags) Interval {
	if lo.IsPlusInf() || hi.IsMinusInf() || LT(hi, lo) {
		return Bottom()
	}
	return Interval{lower: lo, upper: hi, flags: f}
}

func (iv Interval) Lower() Bound { return iv.lower }
func (iv Interval) Upper() Bound { return iv.upper }

func (iv Interval) IsBottom() bool { return iv.bottom }

func (iv Interval) IsTop() bool {
	return !iv.bottom && iv.lower.IsMinusInf() && iv.upper.IsPlusInf()
}

func (iv Interval) Flags() Flags   { return iv.flags }
func (iv Interval) Lossy() bool    { return iv.flags&Lossy != 0 }
func (iv Interval) External() bool { return iv.flags&External != 0 }
func (iv Interval) Symbolic() bool { return iv.lower.sym != nil || iv.upper.sym != nil }
func (iv Interval) Symbols() []*Symbol {
	var out []*Symbol
	if iv.lower.sym != nil {
		out = append(out, iv.lower.sym)
	}
	if iv.upper.sym != nil && iv.upper.sym != iv.lower.sym {
		out = append(out, iv.upper.sym)
	}
	return out
}

// WithFlags returns iv with f added to its flags.
func (iv Interval) WithFlags(f Flags) Interval {
	if iv.bottom {
		return iv
	}
	iv.flags |= f
	return iv
}

// WithoutFlags returns iv with f removed from its flags.
func (iv Interval) WithoutFlags(f Flags) Interval {
	iv.flags &^= f
	return iv
}

// Const returns the value of iv if it is a finite singleton.
func (iv Interval) Const() (Z, bool) {
	if iv.bottom {
		return Z{}, false
	}
	l, ok1 := iv.lower.Const()
	u, ok2 := iv.upper.Const()
	if !ok1 || !ok2 || l.Infinite() || !l.Equal(u) {
		return Z{}, false
	}
	return l, true
}

// Concrete returns constant bounds enclosing iv, concretizing symbols through
// their binding ranges.
func (iv Interval) Concrete() (Z, Z) {
	if iv.bottom {
		return PInfinity, NInfinity
	}
	return iv.lower.lowerZ(), iv.upper.upperZ()
}

func (iv Interval) concrete() (Interval, bool) {
	if !iv.Symbolic() {
		return iv, false
	}
	lo, hi := iv.Concrete()
	return Interval{lower: ConstBound(lo), upper: ConstBound(hi), flags: iv.flags}, true
}

var zeroBound = ConstBound(NewZ(0))

// NonNegative reports whether every value of iv is provably ≥ 0.
func (iv Interval) NonNegative() bool { return iv.bottom || LE(zeroBound, iv.lower) }

// NonPositive reports whether every value of iv is provably ≤ 0.
func (iv Interval) NonPositive() bool { return iv.bottom || LE(iv.upper, zeroBound) }

// Join returns the least upper bound of a and b that the domain can
// express.
func (a Interval) Join(b Interval) Interval {
	switch {
	case a.bottom:
		return b
	case b.bottom:
		return a
	}
	lo, ok1 := minBound(a.lower, b.lower, lowerSide)
	hi, ok2 := maxBound(a.upper, b.upper, upperSide)
	f := a.flags | b.flags
	if !ok1 || !ok2 {
		f |= Lossy
	}
	return Interval{lower: lo, upper: hi, flags: f}
}

// Meet returns an over-approximation of the intersection of a and b. It
// returns bottom if the intersection is provably empty.
func (a Interval) Meet(b Interval) Interval {
	if a.bottom || b.bottom {
		return Bottom()
	}
	// Between two incomparable symbolic bounds, b's is kept: guards pass
	// the constraint as b.
	lo, _ := maxBound(b.lower, a.lower, lowerSide)
	hi, _ := minBound(b.upper, a.upper, upperSide)
	return newFlags(lo, hi, a.flags|b.flags)
}

// Widen extrapolates the bounds of b that are not provably within a to the
// next threshold, or to ±∞.
func (a Interval) Widen(b Interval, ts Thresholds) Interval {
	switch {
	case a.bottom:
		return b
	case b.bottom:
		return a
	}
	f := a.flags | b.flags
	lo := a.lower
	if !LE(a.lower, b.lower) {
		lo = ConstBound(ts.below(MinZ(a.lower.lowerZ(), b.lower.lowerZ())))
		f |= Lossy
	}
	hi := a.upper
	if !LE(b.upper, a.upper) {
		hi = ConstBound(ts.above(MaxZ(a.upper.upperZ(), b.upper.upperZ())))
		f |= Lossy
	}
	return Interval{lower: lo, upper: hi, flags: f}
}

// Narrow refines the infinite bounds of a with those of b.
func (a Interval) Narrow(b Interval) Interval {
	if a.bottom || b.bottom {
		return Bottom()
	}
	lo, hi := a.lower, a.upper
	if lo.IsMinusInf() {
		lo = b.lower
	}
	if hi.IsPlusInf() {
		hi = b.upper
	}
	f := a.flags | b.flags
	if lo.Equal(b.lower) && hi.Equal(b.upper) {
		f = b.flags
	}
	return newFlags(lo, hi, f)
}

// Leq reports whether a ⊑ b is provable. Flags are ignored.
func (a Interval) Leq(b Interval) bool {
	switch {
	case a.bottom:
		return true
	case b.bottom:
		return false
	}
	return LE(b.lower, a.lower) && LE(a.upper, b.upper)
}

// Equal reports whether a and b are structurally identical, flags
// included.
func (a Interval) Equal(b Interval) bool {
	if a.bottom || b.bottom {
		return a.bottom == b.bottom
	}
	return a.flags == b.flags && a.lower.Equal(b.lower) && a.upper.Equal(b.upper)
}

// Subst replaces symbols by intervals. The result over-approximates iv for
// every choice of symbol values within their intervals.
func (iv Interval) Subst(env map[*Symbol]Interval) Interval {
	if iv.bottom || len(env) == 0 || !iv.Symbolic() {
		return iv
	}
	for _, s := range iv.Symbols() {
		if arg, ok := env[s]; ok && arg.bottom {
			return Bottom()
		}
	}
	lo, f1, ok1 := substBound(iv.lower, env, lowerSide)
	hi, f2, ok2 := substBound(iv.upper, env, upperSide)
	f := iv.flags | f1 | f2
	if !ok1 || !ok2 {
		f |= Lossy
	}
	return newFlags(lo, hi, f)
}

func (iv Interval) String() string {
	if iv.bottom {
		return "⊥"
	}
	if iv.flags != 0 {
		return fmt.Sprintf("[%s, %s]{%s}", iv.lower, iv.upper, iv.flags)
	}
	return fmt.Sprintf("[%s, %s]", iv.lower, iv.upper)
}
