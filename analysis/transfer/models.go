package transfer

import (
	"fmt"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/interval"
	"github.com/techguru321/infer/analysis/memory"
	"github.com/techguru321/infer/analysis/summary"
)

// A model replaces the summary of a library function.
type model func(in *Interp, s *memory.State, call *cfg.Call) interval.Interval

var charOrEOF = interval.Range(-1, 255)

var models = map[string]model{
	"fgetc":   func(*Interp, *memory.State, *cfg.Call) interval.Interval { return charOrEOF },
	"getc":    func(*Interp, *memory.State, *cfg.Call) interval.Interval { return charOrEOF },
	"getchar": func(*Interp, *memory.State, *cfg.Call) interval.Interval { return charOrEOF },
	"exit":    func(*Interp, *memory.State, *cfg.Call) interval.Interval { return interval.Bottom() },
	"abort":   func(*Interp, *memory.State, *cfg.Call) interval.Interval { return interval.Bottom() },
	"abs": func(in *Interp, s *memory.State, call *cfg.Call) interval.Interval {
		if len(call.Args) != 1 {
			return interval.Unknown()
		}
		x := in.Eval(s, call.Args[0])
		switch {
		case x.NonNegative():
			return x
		case x.NonPositive():
			return x.Neg()
		}
		return x.Join(x.Neg()).Meet(nonNegative)
	},
}

// Modelled reports whether calls to name are handled by a built-in model.
func Modelled(name string) bool {
	_, ok := models[name]
	return ok
}

// buffer is the part of an object a pointer can reach.
type buffer struct {
	id  string
	obj memory.Object
	ptr memory.Pointer
	// bytes is the number of bytes between the pointer and the end of the
	// object.
	bytes interval.Interval
}

func (in *Interp) buffer(s *memory.State, ptr string) (buffer, bool) {
	p, ok := s.Pointer(ptr)
	if !ok {
		return buffer{}, false
	}
	o, ok := s.Object(p.Object)
	if !ok {
		return buffer{}, false
	}
	bytes := o.Size.Sub(p.Offset).Mul(interval.Const(o.ElemSize))
	return buffer{id: p.Object, obj: o, ptr: p, bytes: bytes}, true
}

// whole reports whether n bytes cover all of b.
func (b buffer) whole(n interval.Interval) bool {
	off, ok := b.ptr.Offset.Const()
	return ok && off.Sign() == 0 && interval.LE(b.bytes.Upper(), n.Lower())
}

// checkBulk checks an operation touching n bytes of buf.
func (in *Interp) checkBulk(s *memory.State, instr cfg.Instr, buf buffer, n interval.Interval, what string, uses []string) {
	in.check(s, access{
		kind:  bounds.Bulk,
		pos:   instr.Pos(),
		desc:  fmt.Sprintf("%s (%s)", instr, what),
		value: n,
		lo:    interval.Const(0),
		hi:    buf.bytes.Add(interval.Const(1)),
		limit: buf.bytes,
		uses:  uses,
	})
}

func isZero(iv interval.Interval) bool {
	z, ok := iv.Const()
	return ok && z.Sign() == 0
}

func (in *Interp) copy(s *memory.State, instr *cfg.Copy) {
	n := in.Eval(s, instr.Len)
	if isZero(n) {
		return
	}
	lenUses := cfg.Vars(instr.Len)
	dst, dstOK := in.buffer(s, instr.Dst)
	src, srcOK := in.buffer(s, instr.Src)
	if dstOK {
		in.checkBulk(s, instr, dst, n, "destination", append([]string{instr.Dst}, lenUses...))
	}
	read := n
	if srcOK {
		if instr.Kind == cfg.Strncpy && !src.obj.NullPos.IsTop() {
			// strncpy stops after the terminating NUL
			nul := src.obj.NullPos.Sub(src.ptr.Offset).Add(interval.Const(1)).Mul(interval.Const(src.obj.ElemSize))
			read = n.Min(nul)
		}
		in.checkBulk(s, instr, src, read, "source", append([]string{instr.Src}, lenUses...))
	}
	if !dstOK {
		return
	}

	elem, nullPos := interval.Top(), interval.Top()
	if srcOK && src.obj.ElemSize == dst.obj.ElemSize {
		elem = src.obj.Elem
		if instr.Kind == cfg.Strncpy {
			// The copy is NUL-terminated where the source is, or not at all
			// within the first n elements.
			nullPos = src.obj.NullPos.Sub(src.ptr.Offset).Min(n.Div(interval.Const(dst.obj.ElemSize)))
		} else if dst.whole(n) {
			nullPos = src.obj.NullPos
		}
	}
	o := dst.obj
	if dst.whole(n) {
		o.Elem = elem
	} else {
		o.Elem = o.Elem.Join(elem)
	}
	o.NullPos = nullPos
	if instr.Kind == cfg.Strncpy && !nullPos.IsTop() {
		o.NullPos = nullPos.Meet(nonNegative)
	}
	s.SetObject(dst.id, o)
}

func (in *Interp) memset(s *memory.State, instr *cfg.Memset) {
	n := in.Eval(s, instr.Len)
	if isZero(n) {
		return
	}
	dst, ok := in.buffer(s, instr.Dst)
	if !ok {
		return
	}
	in.checkBulk(s, instr, dst, n, "destination", append([]string{instr.Dst}, cfg.Vars(instr.Len)...))

	v := in.Eval(s, instr.X)
	switch {
	case dst.obj.ElemSize == 1:
		v = v.Convert(interval.IntType{Bits: 8, Unsigned: true})
	case !isZero(v):
		v = interval.Top()
	}
	o := dst.obj
	if dst.whole(n) {
		o.Elem = v
		if isZero(v) {
			o.NullPos = interval.Const(0)
		} else {
			o.NullPos = interval.Top()
		}
	} else {
		o.Elem = o.Elem.Join(v)
		o.NullPos = interval.Top()
	}
	s.SetObject(dst.id, o)
}

func (in *Interp) call(s *memory.State, call *cfg.Call) {
	var ret interval.Interval
	if m, ok := models[call.Callee]; ok {
		ret = m(in, s, call)
	} else {
		ret = in.callSummary(s, call)
	}
	if ret.IsBottom() {
		// the callee does not return
		s.SetBottom()
		return
	}
	if call.Dst != "" {
		s.Set(call.Dst, ret)
		in.define(call.Dst, Decision{
			Inputs:      cfg.Uses(call),
			Description: fmt.Sprintf("%s: %s", call, ret),
			Pos:         call.Pos(),
		})
	}
}

func (in *Interp) callSummary(s *memory.State, call *cfg.Call) interval.Interval {
	var sum *summary.Summary
	if in.Store != nil {
		sum, _ = in.Store.Lookup(call.Callee)
	}
	if sum == nil {
		// The callee may write to any buffer it is given.
		in.clobber(s, call)
		return interval.Unknown()
	}
	env := map[*interval.Symbol]interval.Interval{}
	for i, p := range sum.Params {
		if i >= len(call.Args) {
			env[p.Symbol] = interval.Top()
			continue
		}
		arg := call.Args[i]
		if !p.Pointer {
			env[p.Symbol] = in.Eval(s, arg)
			continue
		}
		env[p.Symbol] = nonNegative
		if v, ok := arg.(cfg.Var); ok {
			if buf, ok := in.buffer(s, v.Name); ok {
				n := buf.obj.Size.Sub(buf.ptr.Offset)
				if p.ElemSize > 0 && p.ElemSize != buf.obj.ElemSize {
					n = buf.bytes.Div(interval.Const(p.ElemSize))
				}
				env[p.Symbol] = n
			}
		}
	}
	in.instantiate(s, call, sum, env)
	in.clobber(s, call)
	return sum.Return.Subst(env)
}

// clobber forgets the contents of the buffers passed to call.
func (in *Interp) clobber(s *memory.State, call *cfg.Call) {
	for _, arg := range call.Args {
		v, ok := arg.(cfg.Var)
		if !ok {
			continue
		}
		if buf, ok := in.buffer(s, v.Name); ok {
			buf.obj.Elem = interval.Top()
			buf.obj.NullPos = interval.Top()
			s.SetObject(buf.id, buf.obj)
		}
	}
}

// instantiate re-checks the obligations of a callee with the arguments of
// call. Verdicts that the arguments make worse than in the callee are
// reported at the call site.
func (in *Interp) instantiate(s *memory.State, call *cfg.Call, sum *summary.Summary, env map[*interval.Symbol]interval.Interval) {
	if !in.checking || s.IsBottom() {
		return
	}
	for _, ob := range sum.Obligations {
		class, v, hi := ob.Check(env)
		deferred := ob.Class == bounds.Possible && (ob.Kind == bounds.ArraySize || ob.Kind == bounds.Allocation)
		switch {
		case class == bounds.Safe || class == bounds.UnknownSafe:
			continue
		case class == bounds.Possible && v.External():
			continue
		case class == ob.Class && !deferred:
			// already reported in the callee
			continue
		}
		a := access{
			kind:  ob.Kind,
			pos:   call.Pos(),
			desc:  fmt.Sprintf("%s in call to %s", ob.Access, call.Callee),
			value: v,
			lo:    ob.Lo.Subst(env),
			hi:    hi,
			open:  ob.Open,
			limit: hi,
			uses:  cfg.Uses(call),
			steps: append([]bounds.Step{{Pos: ob.Pos, Description: fmt.Sprintf("%s in %s", ob.Access, call.Callee)}}, ob.Trace...),
		}
		switch {
		case ob.Open:
			a.limit = a.lo
		case ob.Kind == bounds.Bulk:
			a.limit = hi.Sub(interval.Const(1))
		}
		in.check(s, a)
	}
}
