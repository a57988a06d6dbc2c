package transfer

import (
	"go/token"
	"slices"
	"sort"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/interval"
	"github.com/techguru321/infer/analysis/memory"
	"github.com/techguru321/infer/analysis/summary"
)

// maxTrace limits the length of witness traces.
const maxTrace = 8

// An access is a checked value: an index, a length or a size.
type access struct {
	kind  bounds.Kind
	pos   token.Position
	desc  string
	value interval.Interval
	lo    interval.Interval
	// hi is the exclusive upper limit, ignored if open is set.
	hi    interval.Interval
	open  bool
	limit interval.Interval
	uses  []string
	// steps are prepended to the trace of the access.
	steps []bounds.Step
}

func (a access) classify() bounds.Class {
	if a.open {
		return bounds.CheckAtLeast(a.value, a.lo)
	}
	return bounds.Check(a.value, a.lo, a.hi)
}

// check classifies a and records a finding unless it is safe. Checks
// that depend on the parameters of the function also become obligations
// for its callers.
func (in *Interp) check(s *memory.State, a access) {
	if !in.checking || s.IsBottom() {
		return
	}
	class := a.classify()
	debugf("check %s at %s: %s", a.desc, a.pos, class)
	if class == bounds.Safe {
		return
	}
	trace := append(slices.Clone(a.steps), in.trace(a.uses)...)
	if in.dependsOnParams(a) {
		in.result.Obligations = append(in.result.Obligations, summary.Obligation{
			Kind:   a.kind,
			Pos:    a.pos,
			Access: a.desc,
			Value:  a.value,
			Lo:     a.lo,
			Hi:     a.hi,
			Open:   a.open,
			Class:  class,
			Trace:  trace,
		})
		// Sizes are only doubtful for some arguments; leave them to the
		// callers.
		if class == bounds.Possible && (a.kind == bounds.ArraySize || a.kind == bounds.Allocation) {
			return
		}
	}
	in.result.Findings = append(in.result.Findings, bounds.Finding{
		Pos:    a.pos,
		Func:   in.Fn.Name,
		Kind:   a.kind,
		Class:  class,
		Access: a.desc,
		Value:  a.value,
		Limit:  a.limit,
		Trace:  trace,
	})
}

func (in *Interp) dependsOnParams(a access) bool {
	for _, iv := range []interval.Interval{a.value, a.lo, a.hi} {
		for _, sym := range iv.Symbols() {
			if in.paramSyms[sym] {
				return true
			}
		}
	}
	return false
}

// trace returns the decisions that led to the values of vars, in source
// order.
func (in *Interp) trace(vars []string) []bounds.Step {
	seen := map[string]bool{}
	var ds []Decision
	queue := append([]string(nil), vars...)
	for len(queue) > 0 && len(ds) < maxTrace {
		v := queue[0]
		queue = queue[1:]
		if seen[v] {
			continue
		}
		seen[v] = true
		d, ok := in.defs[v]
		if !ok {
			continue
		}
		ds = append(ds, d)
		queue = append(queue, d.Inputs...)
	}
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i].Pos, ds[j].Pos
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.Line < b.Line
	})
	out := make([]bounds.Step, len(ds))
	for i, d := range ds {
		out[i] = bounds.Step{Pos: d.Pos, Description: d.Description}
	}
	return out
}
