package interval

import (
	"fmt"
	"math/big"
	"sort"
)

// Z is an arbitrary-precision integer extended with -∞ and +∞.
type Z struct {
	inf int8
	n   *big.Int
}

var (
	NInfinity = Z{inf: -1}
	PInfinity = Z{inf: 1}
)

func NewZ(n int64) Z {
	return NewBigZ(big.NewInt(n))
}

// NewBigZ returns a Z holding n. n must not be modified afterwards.
func NewBigZ(n *big.Int) Z {
	return Z{n: n}
}

func (z Z) Infinite() bool { return z.inf != 0 }

var zero = new(big.Int)

// int returns the finite value of z. The zero Z is 0.
func (z Z) int() *big.Int {
	if z.n == nil {
		return zero
	}
	return z.n
}

// Big returns the integer value of z. It panics if z is infinite.
func (z Z) Big() *big.Int {
	if z.inf != 0 {
		panic(fmt.Sprintf("%s has no integer value", z))
	}
	return z.int()
}

// Int64 returns z as an int64, if it is finite and fits.
func (z Z) Int64() (int64, bool) {
	if z.inf != 0 || !z.int().IsInt64() {
		return 0, false
	}
	return z.int().Int64(), true
}

func (z Z) Sign() int {
	if z.inf != 0 {
		return int(z.inf)
	}
	return z.int().Sign()
}

func (z Z) Cmp(o Z) int {
	switch {
	case z.inf == o.inf && z.inf != 0:
		return 0
	case z.inf == 1 || o.inf == -1:
		return 1
	case z.inf == -1 || o.inf == 1:
		return -1
	}
	return z.int().Cmp(o.int())
}

func (z Z) Equal(o Z) bool { return z.Cmp(o) == 0 }

func (z Z) Neg() Z {
	if z.inf != 0 {
		return Z{inf: -z.inf}
	}
	return NewBigZ(new(big.Int).Neg(z.int()))
}

// Add returns z+o. Adding infinities of opposite signs is undefined and panics.
func (z Z) Add(o Z) Z {
	switch {
	case z.inf != 0 && o.inf != 0 && z.inf != o.inf:
		panic(fmt.Sprintf("%s + %s is not defined", z, o))
	case z.inf != 0:
		return z
	case o.inf != 0:
		return o
	}
	return NewBigZ(new(big.Int).Add(z.int(), o.int()))
}

func (z Z) Sub(o Z) Z {
	return z.Add(o.Neg())
}

func (z Z) Mul(o Z) Z {
	if (z.inf == 0 && z.int().Sign() == 0) || (o.inf == 0 && o.int().Sign() == 0) {
		return NewZ(0)
	}
	if z.inf != 0 || o.inf != 0 {
		return Z{inf: int8(z.Sign() * o.Sign())}
	}
	return NewBigZ(new(big.Int).Mul(z.int(), o.int()))
}

// Quo returns z/o truncated towards zero. o must not be zero. A finite
// value divided by an infinity is zero; an infinity divided by an
// infinity keeps the magnitude of the dividend.
func (z Z) Quo(o Z) Z {
	if o.inf == 0 && o.int().Sign() == 0 {
		panic("division by zero")
	}
	switch {
	case z.inf != 0:
		return Z{inf: int8(z.Sign() * o.Sign())}
	case o.inf != 0:
		return NewZ(0)
	}
	return NewBigZ(new(big.Int).Quo(z.int(), o.int()))
}

// Rsh is an arithmetic right shift, rounding towards -∞.
func (z Z) Rsh(k uint) Z {
	if z.inf != 0 {
		return z
	}
	return NewBigZ(new(big.Int).Rsh(z.int(), k))
}

func (z Z) Lsh(k uint) Z {
	if z.inf != 0 {
		return z
	}
	return NewBigZ(new(big.Int).Lsh(z.int(), k))
}

func (z Z) Abs() Z {
	if z.Sign() < 0 {
		return z.Neg()
	}
	return z
}

func (z Z) String() string {
	switch z.inf {
	case -1:
		return "-∞"
	case 1:
		return "+∞"
	}
	return z.int().String()
}

func MaxZ(zs ...Z) Z {
	if len(zs) == 0 {
		panic("MaxZ called with no arguments")
	}
	ret := zs[0]
	for _, z := range zs[1:] {
		if z.Cmp(ret) > 0 {
			ret = z
		}
	}
	return ret
}

func MinZ(zs ...Z) Z {
	if len(zs) == 0 {
		panic("MinZ called with no arguments")
	}
	ret := zs[0]
	for _, z := range zs[1:] {
		if z.Cmp(ret) < 0 {
			ret = z
		}
	}
	return ret
}

// Thresholds is an ascending ladder of widening thresholds.
type Thresholds []Z

func NewThresholds(ns ...int64) Thresholds {
	ts := make(Thresholds, 0, len(ns))
	for _, n := range ns {
		ts = append(ts, NewZ(n))
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Cmp(ts[j]) < 0 })
	return ts
}

// above returns the smallest threshold ≥ z, or +∞.
func (ts Thresholds) above(z Z) Z {
	for _, t := range ts {
		if t.Cmp(z) >= 0 {
			return t
		}
	}
	return PInfinity
}

// below returns the largest threshold ≤ z, or -∞.
func (ts Thresholds) below(z Z) Z {
	for i := len(ts) - 1; i >= 0; i-- {
		if ts[i].Cmp(z) <= 0 {
			return ts[i]
		}
	}
	return NInfinity
}
