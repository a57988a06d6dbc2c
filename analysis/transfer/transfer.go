// Package transfer implements the transfer functions of the bounds
// checker: the effect of edges, instructions and calls on the abstract
// memory state.
package transfer

import (
	"fmt"
	"go/token"
	"log"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/interval"
	"github.com/techguru321/infer/analysis/memory"
	"github.com/techguru321/infer/analysis/summary"
)

const debugging = false

func debugf(f string, args ...any) {
	if debugging {
		log.Printf(f, args...)
	}
}

type Config struct {
	// Allocations of this many bytes or more are reported.
	BigAllocThreshold int64
}

var DefaultConfig = Config{BigAllocThreshold: 1_000_000_000}

// Decision describes how a variable came to hold its value.
type Decision struct {
	// The variables the value was computed from.
	Inputs      []string
	Description string
	Pos         token.Position
}

// Result holds what a checking pass over a function found.
type Result struct {
	Findings    []bounds.Finding
	Obligations []summary.Obligation
	// Return is the join of all returned values, bottom if the function
	// never returns.
	Return interval.Interval
}

// An Interp applies transfer functions for a single function.
type Interp struct {
	Fn     *cfg.Function
	Params []summary.Param
	Store  summary.Store
	Config Config

	paramSyms map[*interval.Symbol]bool
	checking  bool
	result    *Result
	defs      map[string]Decision
}

func New(fn *cfg.Function, params []summary.Param, store summary.Store, conf Config) *Interp {
	in := &Interp{
		Fn:        fn,
		Params:    params,
		Store:     store,
		Config:    conf,
		paramSyms: map[*interval.Symbol]bool{},
		defs:      map[string]Decision{},
	}
	for _, p := range params {
		in.paramSyms[p.Symbol] = true
	}
	return in
}

// Bind binds the parameters of fn to fresh symbols. Integer parameters
// range over their type; the length of the array a pointer parameter
// points into is non-negative.
func Bind(fn *cfg.Function) []summary.Param {
	out := make([]summary.Param, len(fn.Params))
	for i, p := range fn.Params {
		if p.Pointer {
			out[i] = summary.Param{
				Name:     p.Name,
				Pointer:  true,
				ElemSize: p.ElemSize,
				Symbol:   interval.NewSymbol("len("+p.Name+")", true),
			}
			continue
		}
		sym := interval.NewSymbol(p.Name, p.Type.Unsigned)
		if p.Type.Bits > 0 {
			sym.Lo, sym.Hi = p.Type.Range().Concrete()
		}
		out[i] = summary.Param{Name: p.Name, Symbol: sym}
	}
	return out
}

// ParamObject returns the object a pointer parameter initially points to.
func ParamObject(name string) string { return "param:" + name }

// Entry returns the state at the start of the function: every parameter
// holds its symbol.
func (in *Interp) Entry() *memory.State {
	s := memory.New()
	for _, p := range in.Params {
		if p.Pointer {
			obj := ParamObject(p.Name)
			s.DeclareArray(obj, interval.OfSymbol(p.Symbol), interval.Top(), p.ElemSize)
			s.SetPointer(p.Name, memory.Pointer{Object: obj, Offset: interval.Const(0)})
		} else {
			s.Set(p.Name, interval.OfSymbol(p.Symbol))
		}
		in.define(p.Name, Decision{Description: fmt.Sprintf("parameter %s", p.Name), Pos: in.Fn.Pos})
	}
	return s
}

// StartChecking makes subsequent transfer functions classify the accesses
// they perform. The classifications are returned by Result.
func (in *Interp) StartChecking() {
	in.checking = true
	in.result = &Result{Return: interval.Bottom()}
}

func (in *Interp) Result() *Result { return in.result }

// Block returns the state after executing the instructions of b in s. s
// is not modified.
func (in *Interp) Block(s *memory.State, b *cfg.Block) *memory.State {
	out := s.Clone()
	for _, instr := range b.Instrs {
		if out.IsBottom() {
			break
		}
		in.Instr(out, instr)
	}
	return out
}

// Edge returns the state after taking e from a state s at the end of e's
// source block. The result is bottom if the edge's guard can't hold.
func (in *Interp) Edge(s *memory.State, e *cfg.Edge) *memory.State {
	out := s.Clone()
	if out.IsBottom() {
		return out
	}
	if len(e.Moves) > 0 {
		type move struct {
			ptr   memory.Pointer
			isPtr bool
			v     interval.Interval
		}
		vals := make([]move, len(e.Moves))
		for i, m := range e.Moves {
			if p, ok := in.pointerOf(s, m.X); ok {
				vals[i] = move{ptr: p, isPtr: true}
			} else {
				vals[i] = move{v: in.Eval(s, m.X)}
			}
		}
		for i, m := range e.Moves {
			if vals[i].isPtr {
				out.SetPointer(m.Dst, vals[i].ptr)
			} else {
				out.Set(m.Dst, vals[i].v)
			}
			in.define(m.Dst, Decision{
				Inputs:      cfg.Vars(m.X),
				Description: fmt.Sprintf("%s = %s on entry to block %d", m.Dst, m.X, e.To.Index),
				Pos:         in.edgePos(e),
			})
		}
	}
	if e.Guard != nil {
		in.Prune(out, e.Guard)
	}
	debugf("edge %d → %d: %s", e.From.Index, e.To.Index, out)
	return out
}

func (in *Interp) edgePos(e *cfg.Edge) token.Position {
	if n := len(e.From.Instrs); n > 0 {
		return e.From.Instrs[n-1].Pos()
	}
	return in.Fn.Pos
}

// pointerOf returns the pointer e evaluates to, if e is a pointer
// variable.
func (in *Interp) pointerOf(s *memory.State, e cfg.Expr) (memory.Pointer, bool) {
	v, ok := e.(cfg.Var)
	if !ok {
		return memory.Pointer{}, false
	}
	return s.Pointer(v.Name)
}

// Eval evaluates e in s.
func (in *Interp) Eval(s *memory.State, e cfg.Expr) interval.Interval {
	if s.IsBottom() {
		return interval.Bottom()
	}
	switch e := e.(type) {
	case cfg.Const:
		return interval.ConstBig(e.Value)
	case cfg.Var:
		return s.Get(e.Name)
	case cfg.Neg:
		return in.Eval(s, e.X).Neg()
	case cfg.Convert:
		return in.Eval(s, e.X).Convert(e.To)
	case cfg.Len:
		return in.remaining(s, e.Ptr)
	case cfg.Sizeof:
		n := in.remaining(s, e.Ptr)
		if p, ok := s.Pointer(e.Ptr); ok {
			if o, ok := s.Object(p.Object); ok {
				return n.Mul(interval.Const(o.ElemSize))
			}
		}
		return n
	case cfg.Unknown:
		return interval.Unknown()
	case cfg.Binary:
		x, y := in.Eval(s, e.X), in.Eval(s, e.Y)
		switch e.Op {
		case token.ADD:
			return x.Add(y)
		case token.SUB:
			return x.Sub(y)
		case token.MUL:
			return x.Mul(y)
		case token.QUO:
			return x.Div(y)
		case token.REM:
			return x.Mod(y)
		case token.AND:
			return x.And(y)
		case token.SHL:
			return x.Shl(y)
		case token.SHR:
			return x.Shr(y)
		}
	}
	return interval.Unknown()
}

var nonNegative = interval.New(interval.ConstBound(interval.NewZ(0)), interval.PlusInf)

// remaining returns the number of elements between where ptr points and
// the end of its object.
func (in *Interp) remaining(s *memory.State, ptr string) interval.Interval {
	p, ok := s.Pointer(ptr)
	if !ok {
		return nonNegative
	}
	o, ok := s.Object(p.Object)
	if !ok {
		return nonNegative
	}
	return o.Size.Sub(p.Offset)
}

func (in *Interp) define(v string, d Decision) { in.defs[v] = d }
