package interval

import (
	"math/big"
	"strconv"
)

// maxShift bounds shift amounts that are evaluated exactly.
const maxShift = 1024

func (a Interval) Neg() Interval {
	if a.bottom {
		return a
	}
	return Interval{lower: negBound(a.upper), upper: negBound(a.lower), flags: a.flags}
}

func (a Interval) Add(b Interval) Interval {
	if a.bottom || b.bottom {
		return Bottom()
	}
	lo, ok1 := addBound(a.lower, b.lower, lowerSide)
	hi, ok2 := addBound(a.upper, b.upper, upperSide)
	f := a.flags | b.flags
	if !ok1 || !ok2 {
		f |= Lossy
	}
	return Interval{lower: lo, upper: hi, flags: f}
}

func (a Interval) Sub(b Interval) Interval {
	return a.Add(b.Neg())
}

func (a Interval) mulConst(n *big.Int, f Flags) Interval {
	var lo, hi Bound
	var ok1, ok2 bool
	if n.Sign() >= 0 {
		lo, ok1 = mulBound(a.lower, n, lowerSide)
		hi, ok2 = mulBound(a.upper, n, upperSide)
	} else {
		lo, ok1 = mulBound(a.upper, n, lowerSide)
		hi, ok2 = mulBound(a.lower, n, upperSide)
	}
	if !ok1 || !ok2 {
		f |= Lossy
	}
	return Interval{lower: lo, upper: hi, flags: f}
}

func (a Interval) Mul(b Interval) Interval {
	if a.bottom || b.bottom {
		return Bottom()
	}
	f := a.flags | b.flags
	if n, ok := b.Const(); ok {
		return a.mulConst(n.int(), f)
	}
	if n, ok := a.Const(); ok {
		return b.mulConst(n.int(), f)
	}
	ca, lossy1 := a.concrete()
	cb, lossy2 := b.concrete()
	if lossy1 || lossy2 {
		f |= Lossy
	}
	x1, x2 := ca.lower.c, ca.upper.c
	y1, y2 := cb.lower.c, cb.upper.c
	ps := []Z{x1.Mul(y1), x1.Mul(y2), x2.Mul(y1), x2.Mul(y2)}
	return Interval{lower: ConstBound(MinZ(ps...)), upper: ConstBound(MaxZ(ps...)), flags: f}
}

// Div divides with truncation towards zero. Dividing by an interval that
// is exactly zero yields top.
func (a Interval) Div(b Interval) Interval {
	if a.bottom || b.bottom {
		return Bottom()
	}
	f := a.flags | b.flags
	if n, ok := b.Const(); ok {
		switch n.Sign() {
		case 0:
			return Top().WithFlags(f | Lossy)
		}
		if n.int().CmpAbs(big.NewInt(1)) == 0 {
			return a.mulConst(n.int(), f)
		}
	}
	ca, lossy1 := a.concrete()
	cb, lossy2 := b.concrete()
	if lossy1 || lossy2 {
		f |= Lossy
	}
	x1, x2 := ca.lower.c, ca.upper.c
	y1, y2 := cb.lower.c, cb.upper.c

	// Split the divisor around zero; each part is divided separately.
	var qs []Z
	quo := func(lo, hi Z) {
		qs = append(qs, x1.Quo(lo), x1.Quo(hi), x2.Quo(lo), x2.Quo(hi))
	}
	if y1.Sign() < 0 {
		quo(y1, MinZ(y2, NewZ(-1)))
	}
	if y2.Sign() > 0 {
		quo(MaxZ(y1, NewZ(1)), y2)
	}
	if len(qs) == 0 {
		return Top().WithFlags(f | Lossy)
	}
	return Interval{lower: ConstBound(MinZ(qs...)), upper: ConstBound(MaxZ(qs...)), flags: f}
}

// Mod computes the remainder of truncated division. The sign of the result
// follows the dividend, and its magnitude is below the largest magnitude of
// the divisor.
func (a Interval) Mod(b Interval) Interval {
	if a.bottom || b.bottom {
		return Bottom()
	}
	f := a.flags | b.flags
	if n, ok := b.Const(); ok && n.Sign() == 0 {
		return Top().WithFlags(f | Lossy)
	}

	// A remainder by zero has no value, so a divisor that is never
	// negative is positive.
	var m1 Bound // largest |divisor| - 1
	var ok bool
	switch {
	case b.NonNegative():
		m1, ok = addBound(b.upper, ConstBound(NewZ(-1)), upperSide)
	case b.NonPositive():
		m1, ok = addBound(negBound(b.lower), ConstBound(NewZ(-1)), upperSide)
	default:
		lo, hi := b.Concrete()
		m1 = ConstBound(MaxZ(lo.Abs(), hi.Abs()).Sub(NewZ(1)))
		ok = !b.Symbolic()
	}
	if !ok {
		f |= Lossy
	}
	nm1 := negBound(m1)

	var lo, hi Bound
	switch {
	case a.NonNegative():
		lo = zeroBound
		hi, _ = minBound(m1, a.upper, upperSide)
	case a.NonPositive():
		lo, _ = maxBound(nm1, a.lower, lowerSide)
		hi = zeroBound
	default:
		// a value of a only bounds the result on its own side of zero
		l, _ := minBound(a.lower, zeroBound, lowerSide)
		u, _ := maxBound(a.upper, zeroBound, upperSide)
		lo, _ = maxBound(nm1, l, lowerSide)
		hi, _ = minBound(m1, u, upperSide)
	}
	return newFlags(lo, hi, f)
}

// Min returns the values of min(x, y) for x in a and y in b.
func (a Interval) Min(b Interval) Interval {
	if a.bottom || b.bottom {
		return Bottom()
	}
	lo, ok1 := minBound(a.lower, b.lower, lowerSide)
	hi, ok2 := minBound(a.upper, b.upper, upperSide)
	f := a.flags | b.flags
	if !ok1 || !ok2 {
		f |= Lossy
	}
	return Interval{lower: lo, upper: hi, flags: f}
}

// And computes bitwise AND. Only non-negative operands are tracked.
func (a Interval) And(b Interval) Interval {
	if a.bottom || b.bottom {
		return Bottom()
	}
	f := a.flags | b.flags
	switch {
	case a.NonNegative() && b.NonNegative():
		hi, _ := minBound(a.upper, b.upper, upperSide)
		return Interval{lower: zeroBound, upper: hi, flags: f}
	case a.NonNegative():
		return Interval{lower: zeroBound, upper: a.upper, flags: f}
	case b.NonNegative():
		return Interval{lower: zeroBound, upper: b.upper, flags: f}
	}
	return Top().WithFlags(f | Lossy)
}

func shiftAmount(b Interval) (uint, bool) {
	n, ok := b.Const()
	if !ok || n.Sign() < 0 {
		return 0, false
	}
	k, ok := n.Int64()
	if !ok || k > maxShift {
		return 0, false
	}
	return uint(k), true
}

func (a Interval) Shl(b Interval) Interval {
	if a.bottom || b.bottom {
		return Bottom()
	}
	f := a.flags | b.flags
	k, ok := shiftAmount(b)
	if !ok {
		return Top().WithFlags(f | Lossy)
	}
	return a.mulConst(new(big.Int).Lsh(big.NewInt(1), k), f)
}

func (a Interval) Shr(b Interval) Interval {
	if a.bottom || b.bottom {
		return Bottom()
	}
	f := a.flags | b.flags
	k, ok := shiftAmount(b)
	if !ok {
		if a.NonNegative() && b.NonNegative() {
			return Interval{lower: zeroBound, upper: a.upper, flags: f}
		}
		return Top().WithFlags(f | Lossy)
	}
	ca, lossy := a.concrete()
	if lossy {
		f |= Lossy
	}
	return Interval{lower: ConstBound(ca.lower.c.Rsh(k)), upper: ConstBound(ca.upper.c.Rsh(k)), flags: f}
}

// IntType describes a fixed-width integer type. A zero Bits means the type
// is unbounded.
type IntType struct {
	Bits     int
	Unsigned bool
}

// Range returns the set of values of t.
func (t IntType) Range() Interval {
	if t.Bits <= 0 {
		return Top()
	}
	one := big.NewInt(1)
	if t.Unsigned {
		hi := new(big.Int).Lsh(one, uint(t.Bits))
		return RangeZ(NewZ(0), NewBigZ(hi.Sub(hi, one)))
	}
	hi := new(big.Int).Lsh(one, uint(t.Bits-1))
	lo := new(big.Int).Neg(hi)
	return RangeZ(NewBigZ(lo), NewBigZ(hi.Sub(hi, one)))
}

func (t IntType) String() string {
	switch {
	case t.Bits <= 0:
		return "int"
	case t.Unsigned:
		return "uint" + strconv.Itoa(t.Bits)
	}
	return "int" + strconv.Itoa(t.Bits)
}

// Convert returns a converted to t. Values that provably fit are kept,
// anything else wraps to the whole range of t.
func (a Interval) Convert(t IntType) Interval {
	if a.bottom || t.Bits <= 0 {
		return a
	}
	r := t.Range()
	if a.Leq(r) {
		return a
	}
	return r.WithFlags(a.flags | Lossy)
}
