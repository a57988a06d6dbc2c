package transfer

import (
	"go/token"

	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/interval"
	"github.com/techguru321/infer/analysis/memory"
)

// Prune restricts s to the values for which c holds. Both operands are
// refined. s becomes bottom if c can't hold.
func (in *Interp) Prune(s *memory.State, c *cfg.Cond) {
	if s.IsBottom() {
		return
	}
	x, y := in.Eval(s, c.X), in.Eval(s, c.Y)
	if x.IsBottom() || y.IsBottom() {
		s.SetBottom()
		return
	}
	in.restrict(s, c.X, c.Op, y)
	in.restrict(s, c.Y, cfg.FlipToken(c.Op), x)
}

// constraint returns the values v for which v op y may hold.
func constraint(op token.Token, y interval.Interval) interval.Interval {
	var lo, hi interval.Bound
	switch op {
	case token.LSS:
		lo, hi = interval.MinusInf, y.Upper().Add(-1)
	case token.LEQ:
		lo, hi = interval.MinusInf, y.Upper()
	case token.GTR:
		lo, hi = y.Lower().Add(1), interval.PlusInf
	case token.GEQ:
		lo, hi = y.Lower(), interval.PlusInf
	case token.EQL:
		return y
	default:
		return interval.Top()
	}
	if lo.IsMinusInf() && hi.IsPlusInf() {
		return interval.Top()
	}
	return interval.New(lo, hi).WithFlags(y.Flags())
}

// restrict refines the variables of e so that e op y may hold.
func (in *Interp) restrict(s *memory.State, e cfg.Expr, op token.Token, y interval.Interval) {
	if s.IsBottom() {
		return
	}
	switch e := e.(type) {
	case cfg.Var:
		if _, ok := s.Pointer(e.Name); ok {
			return
		}
		cur := s.Get(e.Name)
		if op == token.NEQ {
			s.Set(e.Name, excludeConst(cur, y))
			return
		}
		s.Set(e.Name, cur.Meet(constraint(op, y)))
		return
	case cfg.Binary:
		// x + c op y ⟹ x op y - c, and likewise for the other operand and
		// for subtraction.
		if op != token.NEQ {
			switch e.Op {
			case token.ADD:
				if k, ok := e.Y.(cfg.Const); ok {
					in.restrict(s, e.X, op, y.Sub(interval.ConstBig(k.Value)))
					return
				}
				if k, ok := e.X.(cfg.Const); ok {
					in.restrict(s, e.Y, op, y.Sub(interval.ConstBig(k.Value)))
					return
				}
			case token.SUB:
				if k, ok := e.Y.(cfg.Const); ok {
					in.restrict(s, e.X, op, y.Add(interval.ConstBig(k.Value)))
					return
				}
			}
		}
	case cfg.Convert:
		x := in.Eval(s, e.X)
		if x.Convert(e.To).Equal(x) {
			in.restrict(s, e.X, op, y)
			return
		}
	}
	// Nothing to refine, but the condition may still be unsatisfiable.
	if op == token.NEQ {
		if excludeConst(in.Eval(s, e), y).IsBottom() {
			s.SetBottom()
		}
		return
	}
	if in.Eval(s, e).Meet(constraint(op, y)).IsBottom() {
		s.SetBottom()
	}
}

// excludeConst removes y from an end of x if y is a constant.
func excludeConst(x, y interval.Interval) interval.Interval {
	k, ok := y.Const()
	if !ok || x.IsBottom() {
		return x
	}
	if v, ok := x.Const(); ok {
		if v.Equal(k) {
			return interval.Bottom()
		}
		return x
	}
	lo, hi := x.Lower(), x.Upper()
	if c, ok := lo.Const(); ok && c.Equal(k) {
		lo = lo.Add(1)
	}
	if c, ok := hi.Const(); ok && c.Equal(k) {
		hi = hi.Add(-1)
	}
	return interval.New(lo, hi).WithFlags(x.Flags())
}
