package transfer

import (
	"fmt"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/interval"
	"github.com/techguru321/infer/analysis/memory"
)

// Instr applies the effect of instr to s.
func (in *Interp) Instr(s *memory.State, instr cfg.Instr) {
	switch instr := instr.(type) {
	case *cfg.Assign:
		if p, ok := in.pointerOf(s, instr.X); ok {
			s.SetPointer(instr.Dst, p)
		} else {
			s.Set(instr.Dst, in.Eval(s, instr.X))
		}
		in.defineAt(s, instr, instr.Dst, cfg.Vars(instr.X))
	case *cfg.Declare:
		in.declare(s, instr)
	case *cfg.Alloc:
		in.alloc(s, instr)
	case *cfg.AddrOf:
		p, ok := s.Pointer(instr.Base)
		if !ok {
			s.Forget(instr.Dst)
			return
		}
		p.Offset = p.Offset.Add(in.Eval(s, instr.Index))
		s.SetPointer(instr.Dst, p)
		in.define(instr.Dst, Decision{
			Inputs:      cfg.Uses(instr),
			Description: fmt.Sprintf("%s, offset %s", instr, p.Offset),
			Pos:         instr.Pos(),
		})
	case *cfg.Load:
		in.load(s, instr)
	case *cfg.Store:
		in.store(s, instr)
	case *cfg.Copy:
		in.copy(s, instr)
	case *cfg.Memset:
		in.memset(s, instr)
	case *cfg.Strlen:
		s.Set(instr.Dst, in.strlen(s, instr))
		in.defineAt(s, instr, instr.Dst, []string{instr.Src})
	case *cfg.Call:
		in.call(s, instr)
	case *cfg.Return:
		if in.checking {
			v := interval.Top()
			if instr.X != nil {
				v = in.Eval(s, instr.X)
			}
			in.result.Return = in.result.Return.Join(v)
		}
	case *cfg.Exit:
		s.SetBottom()
	default:
		panic(fmt.Sprintf("unhandled instruction %T", instr))
	}
}

// defineAt records that instr assigned the current value of v.
func (in *Interp) defineAt(s *memory.State, instr cfg.Instr, v string, inputs []string) {
	in.define(v, Decision{
		Inputs:      inputs,
		Description: fmt.Sprintf("%s: %s", instr, s.Get(v)),
		Pos:         instr.Pos(),
	})
}

func (in *Interp) declare(s *memory.State, instr *cfg.Declare) {
	size := in.Eval(s, instr.Size)
	least := interval.Const(1)
	if instr.AllowEmpty {
		least = interval.Const(0)
	}
	in.check(s, access{
		kind:  bounds.ArraySize,
		pos:   instr.Pos(),
		desc:  instr.String(),
		value: size,
		lo:    least,
		open:  true,
		limit: least,
		uses:  cfg.Vars(instr.Size),
	})
	o := memory.Object{
		Size:     size,
		Elem:     interval.Top(),
		NullPos:  interval.Top(),
		ElemSize: instr.ElemSize,
	}
	if instr.Init != nil {
		o.Elem, o.NullPos = initContents(instr.Init, size)
	}
	s.SetObject(instr.Dst, o)
	s.SetPointer(instr.Dst, memory.Pointer{Object: instr.Dst, Offset: interval.Const(0)})
	in.define(instr.Dst, Decision{
		Inputs:      cfg.Vars(instr.Size),
		Description: fmt.Sprintf("%s: size %s", instr, size),
		Pos:         instr.Pos(),
	})
}

// initContents returns the element interval and null position of an
// array of the given size whose leading elements are init and whose other
// elements are zero.
func initContents(init []int64, size interval.Interval) (elem, nullPos interval.Interval) {
	elem = interval.Bottom()
	nullPos = interval.Top()
	for i, v := range init {
		elem = elem.Join(interval.Const(v))
		if v == 0 && nullPos.IsTop() {
			nullPos = interval.Const(int64(i))
		}
	}
	n := interval.Const(int64(len(init)))
	if !interval.LE(size.Upper(), n.Lower()) {
		// zero-filled tail
		elem = elem.Join(interval.Const(0))
		if nullPos.IsTop() && interval.LT(n.Upper(), size.Lower()) {
			nullPos = n
		}
	}
	if elem.IsBottom() {
		elem = interval.Top()
	}
	return elem, nullPos
}

func (in *Interp) alloc(s *memory.State, instr *cfg.Alloc) {
	bytes := in.Eval(s, instr.Bytes)
	in.check(s, access{
		kind:  bounds.Allocation,
		pos:   instr.Pos(),
		desc:  instr.String(),
		value: bytes,
		lo:    interval.Const(1),
		hi:    interval.Const(in.Config.BigAllocThreshold),
		limit: interval.Const(in.Config.BigAllocThreshold),
		uses:  cfg.Vars(instr.Bytes),
	})
	size := bytes
	if instr.ElemSize > 1 {
		size = bytes.Div(interval.Const(instr.ElemSize))
	}
	s.SetObject(instr.Dst, memory.Object{
		Size:     size,
		Elem:     interval.Top(),
		NullPos:  interval.Top(),
		ElemSize: max(instr.ElemSize, 1),
	})
	s.SetPointer(instr.Dst, memory.Pointer{Object: instr.Dst, Offset: interval.Const(0)})
	in.define(instr.Dst, Decision{
		Inputs:      cfg.Vars(instr.Bytes),
		Description: fmt.Sprintf("%s: %s elements", instr, size),
		Pos:         instr.Pos(),
	})
}

// element checks an access to ptr[index] and returns the accessed
// object.
func (in *Interp) element(s *memory.State, instr cfg.Instr, ptr string, index cfg.Expr) (memory.Object, string, interval.Interval, bool) {
	p, ok := s.Pointer(ptr)
	if !ok {
		return memory.Object{}, "", interval.Interval{}, false
	}
	o, ok := s.Object(p.Object)
	if !ok {
		return memory.Object{}, "", interval.Interval{}, false
	}
	idx := p.Offset.Add(in.Eval(s, index))
	in.check(s, access{
		kind:  bounds.Index,
		pos:   instr.Pos(),
		desc:  instr.String(),
		value: idx,
		lo:    interval.Const(0),
		hi:    o.Size,
		limit: o.Size,
		uses:  append([]string{ptr}, cfg.Vars(index)...),
	})
	return o, p.Object, idx, true
}

func (in *Interp) load(s *memory.State, instr *cfg.Load) {
	o, _, _, ok := in.element(s, instr, instr.Ptr, instr.Index)
	if !ok {
		s.Set(instr.Dst, interval.Top())
	} else {
		s.Set(instr.Dst, o.Elem)
	}
	in.defineAt(s, instr, instr.Dst, append([]string{instr.Ptr}, cfg.Vars(instr.Index)...))
}

func (in *Interp) store(s *memory.State, instr *cfg.Store) {
	o, id, idx, ok := in.element(s, instr, instr.Ptr, instr.Index)
	if !ok {
		return
	}
	v := in.Eval(s, instr.X)
	o.Elem = o.Elem.Join(v)
	// The first NUL stays where it is only if the store is before it.
	if !o.NullPos.IsTop() && !interval.LT(idx.Upper(), o.NullPos.Lower()) {
		if z, ok := v.Const(); !ok || z.Sign() != 0 {
			o.NullPos = interval.Top()
		}
	}
	s.SetObject(id, o)
}

func (in *Interp) strlen(s *memory.State, instr *cfg.Strlen) interval.Interval {
	p, ok := s.Pointer(instr.Src)
	if !ok {
		return nonNegative
	}
	o, ok := s.Object(p.Object)
	if !ok {
		return nonNegative
	}
	var n interval.Interval
	if !o.NullPos.IsTop() {
		n = o.NullPos.Sub(p.Offset)
	} else {
		n = interval.New(interval.ConstBound(interval.NewZ(0)), o.Size.Sub(p.Offset).Upper().Add(-1))
	}
	if n.IsBottom() {
		// No terminator can lie inside the object: the scan reads past
		// its end.
		in.check(s, access{
			kind:  bounds.Index,
			pos:   instr.Pos(),
			desc:  instr.String(),
			value: p.Offset,
			lo:    interval.Const(0),
			hi:    o.Size,
			limit: o.Size,
			uses:  []string{instr.Src},
		})
		return nonNegative
	}
	return n
}
