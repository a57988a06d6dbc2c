// Package summary defines function summaries, the contract a function
// offers to its callers.
//
// A summary is expressed over the symbols its function's parameters were
// bound to: an integer parameter's value, or the number of elements a
// pointer parameter points to. Call sites instantiate a summary by
// substituting those symbols with the intervals of the arguments.
package summary

import (
	"fmt"
	"go/token"
	"sort"
	"sync"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/interval"
	"golang.org/x/exp/maps"
)

// A Param is the symbol a formal parameter was bound to.
type Param struct {
	Name    string
	Pointer bool
	// ElemSize is the element size of pointer parameters. Their symbol
	// counts elements of this size.
	ElemSize int64
	Symbol   *interval.Symbol
}

// An Obligation is a check in a function whose verdict depends on the
// function's parameters. Callers re-check it with their arguments.
type Obligation struct {
	Kind   bounds.Kind
	Pos    token.Position
	Access string
	Value  interval.Interval
	Lo     interval.Interval
	// Hi is the exclusive upper limit. It is ignored if Open is set.
	Hi    interval.Interval
	Open  bool
	Class bounds.Class
	Trace []bounds.Step
}

// Check classifies the obligation after substituting env. Precision the
// callee lost on its own is not held against the caller; flags introduced
// by the arguments are kept.
func (ob Obligation) Check(env map[*interval.Symbol]interval.Interval) (bounds.Class, interval.Interval, interval.Interval) {
	v := ob.Value.WithoutFlags(interval.Lossy).Subst(env)
	lo := ob.Lo.Subst(env)
	if ob.Open {
		return bounds.CheckAtLeast(v, lo), v, interval.Top()
	}
	hi := ob.Hi.Subst(env)
	return bounds.Check(v, lo, hi), v, hi
}

type Summary struct {
	Func   string
	Params []Param
	// Return over-approximates the returned value. It is bottom if the
	// function never returns.
	Return      interval.Interval
	Obligations []Obligation
}

// Top is the summary of functions nothing is known about.
func Top(name string) *Summary {
	return &Summary{Func: name, Return: interval.Unknown()}
}

// Equal reports whether two summaries promise the same thing to callers.
func (s *Summary) Equal(o *Summary) bool {
	if !s.Return.Equal(o.Return) || len(s.Obligations) != len(o.Obligations) {
		return false
	}
	for i, a := range s.Obligations {
		b := o.Obligations[i]
		if a.Pos != b.Pos || a.Class != b.Class || !a.Value.Equal(b.Value) || !a.Hi.Equal(b.Hi) {
			return false
		}
	}
	return true
}

func (s *Summary) String() string {
	return fmt.Sprintf("%s: return %s, %d obligations", s.Func, s.Return, len(s.Obligations))
}

// Store provides summaries by function name.
type Store interface {
	// Lookup returns the summary of the named function. Functions that are
	// being analysed report a summary whose return value is top.
	Lookup(name string) (*Summary, bool)
}

// Table is a Store that memoizes computed summaries. It is safe for
// concurrent use.
type Table struct {
	mu      sync.RWMutex
	m       map[string]*Summary
	pending map[string]bool
}

func NewTable() *Table {
	return &Table{
		m:       map[string]*Summary{},
		pending: map[string]bool{},
	}
}

// Begin marks name as being computed. Until Put is called, lookups that
// find no earlier summary of name see an unconstrained return value.
func (t *Table) Begin(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[name] = true
}

// Put records the summary of s.Func and clears its pending mark.
func (t *Table) Put(s *Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[s.Func] = s
	delete(t.pending, s.Func)
}

func (t *Table) Lookup(name string) (*Summary, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.m[name]; ok {
		return s, true
	}
	if t.pending[name] {
		return &Summary{Func: name, Return: interval.Top()}, true
	}
	return nil, false
}

func (t *Table) Pending(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pending[name]
}

// Names returns the names of all computed summaries in sorted order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := maps.Keys(t.m)
	sort.Strings(out)
	return out
}
