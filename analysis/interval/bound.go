package interval

import (
	"fmt"
	"math/big"
	"strings"
)

type mmOp uint8

const (
	opNone mmOp = iota
	opMin
	opMax
)

func (op mmOp) dual() mmOp {
	switch op {
	case opMin:
		return opMax
	case opMax:
		return opMin
	}
	return opNone
}

func (op mmOp) apply(a, b *big.Int) *big.Int {
	if (op == opMin) == (a.Cmp(b) < 0) {
		return a
	}
	return b
}

// A Bound is one end of an interval. It is one of
//
//   - -∞ or +∞
//   - c + k·s, a constant when there is no symbol
//   - c + min(d, s), c + max(d, s), c - min(d, s) or c - max(d, s)
//
// Bounds are immutable.
type Bound struct {
	c   Z
	k   *big.Int
	sym *Symbol
	op  mmOp
	neg bool
	d   *big.Int
}

var (
	MinusInf = Bound{c: NInfinity}
	PlusInf  = Bound{c: PInfinity}
)

func ConstBound(z Z) Bound { return Bound{c: z} }

// SymBound returns the bound c + k·s.
func SymBound(c, k int64, s *Symbol) Bound {
	return linear(big.NewInt(c), big.NewInt(k), s)
}

// MinBound returns c + min(d, s).
func MinBound(c, d int64, s *Symbol) Bound {
	return minmax(big.NewInt(c), false, opMin, big.NewInt(d), s)
}

// MaxBound returns c + max(d, s).
func MaxBound(c, d int64, s *Symbol) Bound {
	return minmax(big.NewInt(c), false, opMax, big.NewInt(d), s)
}

func linear(c, k *big.Int, s *Symbol) Bound {
	if s == nil || k.Sign() == 0 {
		return Bound{c: NewBigZ(c)}
	}
	return Bound{c: NewBigZ(c), k: k, sym: s}
}

func minmax(c *big.Int, neg bool, op mmOp, d *big.Int, s *Symbol) Bound {
	dz := NewBigZ(d)
	toSym := (op == opMax && dz.Cmp(s.Lo) <= 0) || (op == opMin && dz.Cmp(s.Hi) >= 0)
	toConst := (op == opMax && dz.Cmp(s.Hi) >= 0) || (op == opMin && dz.Cmp(s.Lo) <= 0)
	switch {
	case toSym:
		k := big.NewInt(1)
		if neg {
			k.Neg(k)
		}
		return linear(c, k, s)
	case toConst:
		if neg {
			return Bound{c: NewBigZ(new(big.Int).Sub(c, d))}
		}
		return Bound{c: NewBigZ(new(big.Int).Add(c, d))}
	}
	return Bound{c: NewBigZ(c), sym: s, op: op, neg: neg, d: d}
}

func (b Bound) IsMinusInf() bool { return b.c.inf < 0 }
func (b Bound) IsPlusInf() bool  { return b.c.inf > 0 }

// Const returns the value of b if b mentions no symbol. The value may be
// infinite.
func (b Bound) Const() (Z, bool) {
	if b.sym != nil {
		return Z{}, false
	}
	return b.c, true
}

// Symbol returns the symbol b mentions, if any.
func (b Bound) Symbol() *Symbol { return b.sym }

// Add returns b + n.
func (b Bound) Add(n int64) Bound {
	if b.c.Infinite() || n == 0 {
		return b
	}
	b.c = b.c.Add(NewZ(n))
	return b
}

func (b Bound) Equal(o Bound) bool {
	if !b.c.Equal(o.c) || b.sym != o.sym || b.op != o.op {
		return false
	}
	switch {
	case b.sym == nil:
		return true
	case b.op == opNone:
		return b.k.Cmp(o.k) == 0
	}
	return b.neg == o.neg && b.d.Cmp(o.d) == 0
}

// eval returns the value of a finite bound when its symbol is v.
func (b Bound) eval(v *big.Int) *big.Int {
	r := new(big.Int).Set(b.c.int())
	switch {
	case b.sym == nil:
	case b.op == opNone:
		r.Add(r, new(big.Int).Mul(b.k, v))
	default:
		m := b.op.apply(b.d, v)
		if b.neg {
			r.Sub(r, m)
		} else {
			r.Add(r, m)
		}
	}
	return r
}

// slope returns the rate of change of a finite bound as its symbol moves
// towards +∞ (dir > 0) or -∞ (dir < 0).
func (b Bound) slope(dir int) *big.Int {
	switch {
	case b.sym == nil:
		return zero
	case b.op == opNone:
		return b.k
	}
	// max(d, s) follows s towards +∞ and is flat towards -∞.
	if (b.op == opMax) != (dir > 0) {
		return zero
	}
	if b.neg {
		return big.NewInt(-1)
	}
	return big.NewInt(1)
}

// at evaluates a finite bound at a possibly infinite symbol value.
func (b Bound) at(v Z) Z {
	if !v.Infinite() {
		return NewBigZ(b.eval(v.int()))
	}
	sl := b.slope(v.Sign())
	if sl.Sign() == 0 {
		return NewBigZ(b.eval(b.d))
	}
	return Z{inf: int8(sl.Sign() * v.Sign())}
}

// lowerZ returns the least value b takes over its symbol's range.
func (b Bound) lowerZ() Z {
	if b.sym == nil {
		return b.c
	}
	return MinZ(b.at(b.sym.Lo), b.at(b.sym.Hi))
}

// upperZ returns the greatest value b takes over its symbol's range.
func (b Bound) upperZ() Z {
	if b.sym == nil {
		return b.c
	}
	return MaxZ(b.at(b.sym.Lo), b.at(b.sym.Hi))
}

// diffRange returns the range of a - b over all values of the symbols
// involved.
func diffRange(a, b Bound) (Z, Z) {
	if a.c.Infinite() || b.c.Infinite() {
		switch {
		case a.c.inf != 0 && a.c.inf == b.c.inf:
			return NewZ(0), NewZ(0)
		case a.c.inf > 0 || b.c.inf < 0:
			return PInfinity, PInfinity
		default:
			return NInfinity, NInfinity
		}
	}
	if a.sym != nil && b.sym != nil && a.sym != b.sym {
		return a.lowerZ().Sub(b.upperZ()), a.upperZ().Sub(b.lowerZ())
	}
	s := a.sym
	if s == nil {
		s = b.sym
	}
	if s == nil {
		d := a.c.Sub(b.c)
		return d, d
	}

	// a - b is piecewise linear in s, with breakpoints at the d of each
	// min/max bound. Its extremes are at the breakpoints or at the ends of
	// the symbol's range.
	f := func(v *big.Int) Z {
		return NewBigZ(new(big.Int).Sub(a.eval(v), b.eval(v)))
	}
	var pts []*big.Int
	add := func(v Z) {
		if !v.Infinite() && s.contains(v) {
			pts = append(pts, v.int())
		}
	}
	add(s.Lo)
	add(s.Hi)
	if a.op != opNone {
		add(NewBigZ(a.d))
	}
	if b.op != opNone {
		add(NewBigZ(b.d))
	}

	vals := make([]Z, 0, len(pts)+2)
	for _, p := range pts {
		vals = append(vals, f(p))
	}
	tail := func(dir int) {
		sl := new(big.Int).Sub(a.slope(dir), b.slope(dir))
		if sl.Sign() != 0 {
			vals = append(vals, Z{inf: int8(sl.Sign() * dir)})
			return
		}
		// flat beyond the outermost breakpoint
		p := zero
		for i, q := range pts {
			if i == 0 || (dir > 0 && q.Cmp(p) > 0) || (dir < 0 && q.Cmp(p) < 0) {
				p = q
			}
		}
		vals = append(vals, f(p))
	}
	if s.Hi.Infinite() {
		tail(1)
	}
	if s.Lo.Infinite() {
		tail(-1)
	}
	return MinZ(vals...), MaxZ(vals...)
}

// LE reports whether a ≤ b holds for every value of the symbols involved.
func LE(a, b Bound) bool {
	_, hi := diffRange(a, b)
	return hi.Sign() <= 0
}

// LT reports whether a < b holds for every value of the symbols involved.
func LT(a, b Bound) bool {
	_, hi := diffRange(a, b)
	return hi.Sign() < 0
}

type side int8

const (
	lowerSide side = -1
	upperSide side = 1
)

func (sd side) flip() side { return -sd }

// concretize returns a constant bound on the given side of b.
func (b Bound) concretize(sd side) Bound {
	if sd == lowerSide {
		return ConstBound(b.lowerZ())
	}
	return ConstBound(b.upperZ())
}

// combine expresses op(a, b) as a single min/max bound, if one of them is a
// finite constant and the other is c ± s or already a compatible min/max
// bound.
func combine(op mmOp, a, b Bound) (Bound, bool) {
	if a.sym == nil {
		a, b = b, a
	}
	if b.sym != nil || b.c.Infinite() || a.sym == nil {
		return Bound{}, false
	}
	c0 := b.c.int()
	c := a.c.int()
	up := new(big.Int).Sub(c0, c) // op(c0, c + x) = c + op(c0 - c, x)
	down := new(big.Int).Sub(c, c0)
	switch {
	case a.op == opNone && a.k.CmpAbs(big.NewInt(1)) == 0:
		if a.k.Sign() > 0 {
			return minmax(c, false, op, up, a.sym), true
		}
		// op(c0, c - s) = c - dual(op)(c - c0, s)
		return minmax(c, true, op.dual(), down, a.sym), true
	case a.op != opNone && !a.neg && a.op == op:
		return minmax(c, false, op, op.apply(up, a.d), a.sym), true
	case a.op != opNone && a.neg && a.op == op.dual():
		return minmax(c, true, a.op, a.op.apply(down, a.d), a.sym), true
	}
	return Bound{}, false
}

// minBound returns min(a, b), or an approximation of it from the given
// side. exact is false if the result was concretized.
func minBound(a, b Bound, sd side) (Bound, bool) {
	switch {
	case LE(a, b):
		return a, true
	case LE(b, a):
		return b, true
	}
	if m, ok := combine(opMin, a, b); ok {
		return m, true
	}
	if sd == upperSide {
		// either operand is above the minimum
		if b.sym == nil {
			return b, true
		}
		return a, true
	}
	return ConstBound(MinZ(a.lowerZ(), b.lowerZ())), false
}

// maxBound returns max(a, b), or an approximation of it from the given
// side.
func maxBound(a, b Bound, sd side) (Bound, bool) {
	switch {
	case LE(b, a):
		return a, true
	case LE(a, b):
		return b, true
	}
	if m, ok := combine(opMax, a, b); ok {
		return m, true
	}
	if sd == lowerSide {
		if b.sym == nil {
			return b, true
		}
		return a, true
	}
	return ConstBound(MaxZ(a.upperZ(), b.upperZ())), false
}

func negBound(b Bound) Bound {
	switch {
	case b.c.Infinite():
		return Bound{c: b.c.Neg()}
	case b.sym == nil:
		return Bound{c: b.c.Neg()}
	case b.op == opNone:
		return Bound{c: b.c.Neg(), k: new(big.Int).Neg(b.k), sym: b.sym}
	}
	return Bound{c: b.c.Neg(), sym: b.sym, op: b.op, neg: !b.neg, d: b.d}
}

func addBound(a, b Bound, sd side) (Bound, bool) {
	switch {
	case a.c.Infinite() && b.c.Infinite() && a.c.inf != b.c.inf:
		if sd == lowerSide {
			return MinusInf, false
		}
		return PlusInf, false
	case a.c.Infinite():
		return a, true
	case b.c.Infinite():
		return b, true
	case b.sym == nil:
		a.c = a.c.Add(b.c)
		return a, true
	case a.sym == nil:
		b.c = b.c.Add(a.c)
		return b, true
	case a.sym == b.sym && a.op == opNone && b.op == opNone:
		return linear(
			new(big.Int).Add(a.c.int(), b.c.int()),
			new(big.Int).Add(a.k, b.k),
			a.sym), true
	}
	if sd == lowerSide {
		return ConstBound(a.lowerZ().Add(b.lowerZ())), false
	}
	return ConstBound(a.upperZ().Add(b.upperZ())), false
}

// mulBound returns n·b, approximated from side sd of the product.
func mulBound(b Bound, n *big.Int, sd side) (Bound, bool) {
	nz := NewBigZ(n)
	switch {
	case n.Sign() == 0:
		return ConstBound(NewZ(0)), true
	case b.sym == nil:
		return ConstBound(b.c.Mul(nz)), true
	case b.op == opNone:
		return linear(new(big.Int).Mul(b.c.int(), n), new(big.Int).Mul(b.k, n), b.sym), true
	case n.Cmp(big.NewInt(1)) == 0:
		return b, true
	case n.Cmp(big.NewInt(-1)) == 0:
		return negBound(b), true
	}
	x, y := b.lowerZ().Mul(nz), b.upperZ().Mul(nz)
	if sd == lowerSide {
		return ConstBound(MinZ(x, y)), false
	}
	return ConstBound(MaxZ(x, y)), false
}

// substBound replaces the symbol of b by the matching bound of its
// interval in env. The result approximates b from side sd.
func substBound(b Bound, env map[*Symbol]Interval, sd side) (Bound, Flags, bool) {
	if b.sym == nil {
		return b, 0, true
	}
	arg, ok := env[b.sym]
	if !ok {
		return b, 0, true
	}
	pick := func(sd side) Bound {
		if sd == lowerSide {
			return arg.lower
		}
		return arg.upper
	}
	c := ConstBound(b.c)
	if b.op == opNone {
		argSide := sd
		if b.k.Sign() < 0 {
			argSide = sd.flip()
		}
		x, ok1 := mulBound(pick(argSide), b.k, sd)
		r, ok2 := addBound(x, c, sd)
		return r, arg.flags, ok1 && ok2
	}
	argSide := sd
	if b.neg {
		argSide = sd.flip()
	}
	var inner Bound
	var ok1 bool
	if b.op == opMin {
		inner, ok1 = minBound(ConstBound(NewBigZ(b.d)), pick(argSide), argSide)
	} else {
		inner, ok1 = maxBound(ConstBound(NewBigZ(b.d)), pick(argSide), argSide)
	}
	if b.neg {
		inner = negBound(inner)
	}
	r, ok2 := addBound(inner, c, sd)
	return r, arg.flags, ok1 && ok2
}

func (b Bound) String() string {
	if b.sym == nil {
		return b.c.String()
	}
	var sb strings.Builder
	switch {
	case b.op == opNone:
		switch {
		case b.k.Cmp(big.NewInt(1)) == 0:
		case b.k.Cmp(big.NewInt(-1)) == 0:
			sb.WriteString("-")
		default:
			fmt.Fprintf(&sb, "%s*", b.k)
		}
		sb.WriteString(b.sym.Name)
	default:
		if b.neg {
			sb.WriteString("-")
		}
		name := "max"
		if b.op == opMin {
			name = "min"
		}
		fmt.Fprintf(&sb, "%s(%s, %s)", name, b.d, b.sym.Name)
	}
	switch c := b.c.int(); c.Sign() {
	case 1:
		fmt.Fprintf(&sb, "+%s", c)
	case -1:
		fmt.Fprintf(&sb, "%s", c)
	}
	return sb.String()
}
