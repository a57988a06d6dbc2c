// Package fixpoint computes the abstract state at every block of a
// function and classifies the function's memory accesses.
//
// The iteration visits blocks in reverse postorder. At widening points,
// the targets of back edges, successive states are widened once a block has
// been visited a number of times. Narrowing passes then recover the
// precision widening gave up, and a final pass over the stable states
// checks every access.
package fixpoint

import (
	"fmt"
	"log"
	"sort"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/interval"
	"github.com/techguru321/infer/analysis/memory"
	"github.com/techguru321/infer/analysis/summary"
	"github.com/techguru321/infer/analysis/transfer"
)

const debugging = false

func debugf(f string, args ...any) {
	if debugging {
		log.Printf(f, args...)
	}
}

type Config struct {
	// WideningDelay is the number of times a widening point is joined
	// before its states are widened.
	WideningDelay int
	// NarrowingPasses bounds the number of descending passes after the
	// ascending iteration stabilized.
	NarrowingPasses int
	// Thresholds are tried, in order, before a bound is widened to
	// infinity.
	Thresholds interval.Thresholds
}

var DefaultConfig = Config{
	WideningDelay:   2,
	NarrowingPasses: 2,
}

// A Point records the iteration at a widening point.
type Point struct {
	Visits    int
	Widenings int
	// prev holds the last two states before widening.
	prev [2]*memory.State
}

// Previous returns the last two states that reached the point before
// widening, the most recent one last.
func (p *Point) Previous() (*memory.State, *memory.State) { return p.prev[0], p.prev[1] }

type Result struct {
	Func *cfg.Function
	// In holds the state at the start of each block, indexed by block
	// index. Unreachable blocks have no state.
	In     []*memory.State
	Points map[*cfg.Block]*Point
	// Iterations counts the blocks processed by the ascending iteration.
	Iterations  int
	Findings    []bounds.Finding
	Obligations []summary.Obligation
	Return      interval.Interval
}

// StateAt returns the state at the start of b, or bottom if b is
// unreachable.
func (r *Result) StateAt(b *cfg.Block) *memory.State {
	if s := r.In[b.Index]; s != nil {
		return s
	}
	return memory.Bottom()
}

// Summary returns the summary of the analysed function.
func (r *Result) Summary(params []summary.Param) *summary.Summary {
	return &summary.Summary{
		Func:        r.Func.Name,
		Params:      params,
		Return:      r.Return,
		Obligations: r.Obligations,
	}
}

type analysis struct {
	in      *transfer.Interp
	conf    Config
	fn      *cfg.Function
	entry   *memory.State
	wps     map[*cfg.Block]bool
	ins     []*memory.State
	outs    []*memory.State
	points  map[*cfg.Block]*Point
	pending []bool
	order   []*cfg.Block
	rank    map[*cfg.Block]int
}

// Analyze runs the analysis of in.Fn. It returns an error wrapping a
// *cfg.MalformedError if the function's graph is malformed.
func Analyze(in *transfer.Interp, conf Config) (*Result, error) {
	fn := in.Fn
	if err := cfg.Validate(fn); err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", fn.Name, err)
	}
	if conf.WideningDelay < 1 {
		conf.WideningDelay = 1
	}

	a := &analysis{
		in:      in,
		conf:    conf,
		fn:      fn,
		entry:   in.Entry(),
		wps:     cfg.WideningPoints(fn),
		ins:     make([]*memory.State, len(fn.Blocks)),
		outs:    make([]*memory.State, len(fn.Blocks)),
		points:  map[*cfg.Block]*Point{},
		order:   cfg.ReversePostorder(fn),
		rank:    map[*cfg.Block]int{},
		pending: make([]bool, len(fn.Blocks)),
	}
	for i, b := range a.order {
		a.rank[b] = i
	}
	for b := range a.wps {
		a.points[b] = &Point{}
	}

	debugf("Analyzing %s\n%s", fn.Name, fn)
	iterations := a.ascend()
	a.descend()
	res := a.check()
	res.Iterations = iterations
	return res, nil
}

// ceiling bounds the number of blocks processed by the ascending
// iteration. Widening makes reaching it impossible.
func (a *analysis) ceiling() int {
	return (len(a.order) + 1) * (a.conf.WideningDelay + len(a.conf.Thresholds) + 8) * 8
}

// inState joins the states flowing into b along its edges.
func (a *analysis) inState(b *cfg.Block) *memory.State {
	s := memory.Bottom()
	if b == a.fn.Entry() {
		s = a.entry.Clone()
	}
	for _, e := range b.Preds {
		out := a.outs[e.From.Index]
		if out == nil {
			continue
		}
		s = s.Join(a.in.Edge(out, e))
	}
	return s
}

func (a *analysis) push(b *cfg.Block) {
	if _, ok := a.rank[b]; ok {
		a.pending[b.Index] = true
	}
}

// pop returns the pending block that comes first in reverse postorder.
func (a *analysis) pop() (*cfg.Block, bool) {
	for _, b := range a.order {
		if a.pending[b.Index] {
			a.pending[b.Index] = false
			return b, true
		}
	}
	return nil, false
}

func (a *analysis) ascend() int {
	a.push(a.fn.Entry())
	n := 0
	limit := a.ceiling()
	for {
		b, ok := a.pop()
		if !ok {
			return n
		}
		n++
		if n > limit {
			panic(fmt.Sprintf("fixpoint iteration of %s did not converge after %d steps", a.fn.Name, limit))
		}

		s := a.inState(b)
		old := a.ins[b.Index]
		if p, ok := a.points[b]; ok {
			p.Visits++
			p.prev[0], p.prev[1] = p.prev[1], s
			if old != nil && p.Visits > a.conf.WideningDelay {
				s = old.Widen(old.Join(s), a.conf.Thresholds)
				p.Widenings++
				debugf("widen block %d of %s: %s", b.Index, a.fn.Name, s)
			}
		}
		if old != nil && s.Equal(old) {
			continue
		}
		a.ins[b.Index] = s
		a.outs[b.Index] = a.in.Block(s, b)
		for _, e := range b.Succs {
			a.push(e.To)
		}
	}
}

// descend refines the post-fixpoint. States at widening points are
// narrowed, all others are recomputed.
func (a *analysis) descend() {
	for pass := 0; pass < a.conf.NarrowingPasses; pass++ {
		changed := false
		for _, b := range a.order {
			old := a.ins[b.Index]
			if old == nil {
				continue
			}
			s := a.inState(b)
			if a.wps[b] {
				s = old.Narrow(s)
			}
			if s.Equal(old) {
				continue
			}
			changed = true
			a.ins[b.Index] = s
			a.outs[b.Index] = a.in.Block(s, b)
		}
		if !changed {
			return
		}
	}
}

// check re-runs the transfer functions on the stable states, classifying
// every access.
func (a *analysis) check() *Result {
	a.in.StartChecking()
	for _, b := range a.order {
		if a.ins[b.Index] == nil {
			continue
		}
		s := a.ins[b.Index]
		// Recomputing the edges records the decisions made on them.
		if re := a.inState(b); re.Leq(s) {
			s = re
		}
		a.outs[b.Index] = a.in.Block(s, b)
	}
	tr := a.in.Result()
	sort.SliceStable(tr.Findings, func(i, j int) bool {
		return tr.Findings[i].Pos.Line < tr.Findings[j].Pos.Line
	})
	return &Result{
		Func:        a.fn,
		In:          a.ins,
		Points:      a.points,
		Findings:    tr.Findings,
		Obligations: tr.Obligations,
		Return:      tr.Return,
	}
}
