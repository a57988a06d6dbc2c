// Package memory implements the abstract memory state of the bounds
// checker.
//
// A state maps integer variables to intervals, pointer variables to a
// position inside an abstract object, and objects to a summary of their
// size and contents. A variable without an entry is unconstrained. Each
// object tracks a single interval for all of its elements; stores are weak
// updates.
package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/techguru321/infer/analysis/interval"
	"golang.org/x/exp/maps"
)

// An Object is an array, either declared or allocated.
type Object struct {
	// Size is the number of elements.
	Size interval.Interval
	// Elem over-approximates the value of every element.
	Elem interval.Interval
	// NullPos is the index of the first zero element, when the object
	// holds a NUL-terminated string; top otherwise.
	NullPos  interval.Interval
	ElemSize int64
}

func (o Object) join(p Object) Object {
	return Object{
		Size:     o.Size.Join(p.Size),
		Elem:     o.Elem.Join(p.Elem),
		NullPos:  o.NullPos.Join(p.NullPos),
		ElemSize: o.ElemSize,
	}
}

func (o Object) widen(p Object, ts interval.Thresholds) Object {
	return Object{
		Size:     o.Size.Widen(p.Size, ts),
		Elem:     o.Elem.Widen(p.Elem, ts),
		NullPos:  o.NullPos.Widen(p.NullPos, ts),
		ElemSize: o.ElemSize,
	}
}

func (o Object) narrow(p Object) Object {
	return Object{
		Size:     o.Size.Narrow(p.Size),
		Elem:     o.Elem.Narrow(p.Elem),
		NullPos:  o.NullPos.Narrow(p.NullPos),
		ElemSize: o.ElemSize,
	}
}

func (o Object) leq(p Object) bool {
	return o.Size.Leq(p.Size) && o.Elem.Leq(p.Elem) && o.NullPos.Leq(p.NullPos)
}

func (o Object) equal(p Object) bool {
	return o.ElemSize == p.ElemSize && o.Size.Equal(p.Size) && o.Elem.Equal(p.Elem) && o.NullPos.Equal(p.NullPos)
}

func (o Object) String() string {
	return fmt.Sprintf("{size: %s, elem: %s, null: %s, elemsize: %d}", o.Size, o.Elem, o.NullPos, o.ElemSize)
}

// A Pointer points Offset elements into Object.
type Pointer struct {
	Object string
	Offset interval.Interval
}

func (p Pointer) String() string { return fmt.Sprintf("&%s[%s]", p.Object, p.Offset) }

type State struct {
	bottom bool
	vars   map[string]interval.Interval
	ptrs   map[string]Pointer
	objs   map[string]Object
}

func New() *State {
	return &State{
		vars: map[string]interval.Interval{},
		ptrs: map[string]Pointer{},
		objs: map[string]Object{},
	}
}

// Bottom returns the state of unreachable program points.
func Bottom() *State {
	s := New()
	s.bottom = true
	return s
}

func (s *State) IsBottom() bool { return s.bottom }

func (s *State) Clone() *State {
	return &State{
		bottom: s.bottom,
		vars:   maps.Clone(s.vars),
		ptrs:   maps.Clone(s.ptrs),
		objs:   maps.Clone(s.objs),
	}
}

// Get returns the interval of v, or top if v is unconstrained.
func (s *State) Get(v string) interval.Interval {
	if s.bottom {
		return interval.Bottom()
	}
	if iv, ok := s.vars[v]; ok {
		return iv
	}
	return interval.Top()
}

// Set binds v to iv. An interval that is bottom makes the whole state
// unreachable.
func (s *State) Set(v string, iv interval.Interval) {
	if s.bottom {
		return
	}
	if iv.IsBottom() {
		s.SetBottom()
		return
	}
	delete(s.ptrs, v)
	if iv.Equal(interval.Top()) {
		delete(s.vars, v)
		return
	}
	s.vars[v] = iv
}

// SetBottom marks the state unreachable.
func (s *State) SetBottom() {
	s.bottom = true
	s.vars = map[string]interval.Interval{}
	s.ptrs = map[string]Pointer{}
	s.objs = map[string]Object{}
}

// Pointer returns the target of the pointer variable v.
func (s *State) Pointer(v string) (Pointer, bool) {
	p, ok := s.ptrs[v]
	return p, ok
}

func (s *State) SetPointer(v string, p Pointer) {
	if s.bottom {
		return
	}
	if p.Offset.IsBottom() {
		s.SetBottom()
		return
	}
	delete(s.vars, v)
	s.ptrs[v] = p
}

// Forget removes everything known about v.
func (s *State) Forget(v string) {
	delete(s.vars, v)
	delete(s.ptrs, v)
}

// DeclareArray creates or replaces the object id.
func (s *State) DeclareArray(id string, size, elem interval.Interval, elemSize int64) {
	s.SetObject(id, Object{Size: size, Elem: elem, NullPos: interval.Top(), ElemSize: elemSize})
}

func (s *State) Object(id string) (Object, bool) {
	o, ok := s.objs[id]
	return o, ok
}

func (s *State) SetObject(id string, o Object) {
	if s.bottom {
		return
	}
	s.objs[id] = o
}

// Join returns the least upper bound of s and o. Variables known on only
// one side become unconstrained. Pointers into different objects are
// forgotten.
func (s *State) Join(o *State) *State {
	return s.combine(o, func(a, b interval.Interval) interval.Interval { return a.Join(b) }, Object.join)
}

// Widen returns s ∇ o. o is expected to be above s.
func (s *State) Widen(o *State, ts interval.Thresholds) *State {
	return s.combine(o,
		func(a, b interval.Interval) interval.Interval { return a.Widen(b, ts) },
		func(a, b Object) Object { return a.widen(b, ts) })
}

func (s *State) combine(o *State, op func(a, b interval.Interval) interval.Interval, objOp func(a, b Object) Object) *State {
	switch {
	case s.bottom:
		return o.Clone()
	case o.bottom:
		return s.Clone()
	}
	out := New()
	for k, a := range s.vars {
		b, ok := o.vars[k]
		if !ok {
			b = interval.Top()
		}
		if iv := op(a, b); !iv.Equal(interval.Top()) {
			out.vars[k] = iv
		}
	}
	for k, b := range o.vars {
		if _, ok := s.vars[k]; ok {
			continue
		}
		// Flags of the constrained side survive.
		if iv := op(interval.Top(), b); !iv.Equal(interval.Top()) {
			out.vars[k] = iv
		}
	}
	for k, a := range s.ptrs {
		if b, ok := o.ptrs[k]; ok && a.Object == b.Object {
			out.ptrs[k] = Pointer{Object: a.Object, Offset: op(a.Offset, b.Offset)}
		}
	}
	for k, a := range s.objs {
		if b, ok := o.objs[k]; ok {
			out.objs[k] = objOp(a, b)
		} else {
			out.objs[k] = a
		}
	}
	for k, b := range o.objs {
		if _, ok := s.objs[k]; !ok {
			out.objs[k] = b
		}
	}
	return out
}

// Narrow refines s with o. Entries missing from s are unconstrained and
// take o's value; entries missing from o keep s's.
func (s *State) Narrow(o *State) *State {
	switch {
	case s.bottom || o.bottom:
		return Bottom()
	}
	out := s.Clone()
	for k, b := range o.vars {
		out.Set(k, out.Get(k).Narrow(b))
	}
	for k, b := range o.ptrs {
		if a, ok := s.ptrs[k]; ok && a.Object == b.Object {
			out.ptrs[k] = Pointer{Object: a.Object, Offset: a.Offset.Narrow(b.Offset)}
		}
	}
	for k, b := range o.objs {
		if a, ok := s.objs[k]; ok {
			out.objs[k] = a.narrow(b)
		}
	}
	return out
}

// Leq reports whether s ⊑ o.
func (s *State) Leq(o *State) bool {
	switch {
	case s.bottom:
		return true
	case o.bottom:
		return false
	}
	for k, b := range o.vars {
		if !s.Get(k).Leq(b) {
			return false
		}
	}
	for k, b := range o.ptrs {
		a, ok := s.ptrs[k]
		if !ok || a.Object != b.Object || !a.Offset.Leq(b.Offset) {
			return false
		}
	}
	for k, b := range o.objs {
		if a, ok := s.objs[k]; ok && !a.leq(b) {
			return false
		}
	}
	return true
}

// Equal reports whether s and o are identical.
func (s *State) Equal(o *State) bool {
	if s.bottom || o.bottom {
		return s.bottom == o.bottom
	}
	if len(s.vars) != len(o.vars) || len(s.ptrs) != len(o.ptrs) || len(s.objs) != len(o.objs) {
		return false
	}
	for k, a := range s.vars {
		if b, ok := o.vars[k]; !ok || !a.Equal(b) {
			return false
		}
	}
	for k, a := range s.ptrs {
		if b, ok := o.ptrs[k]; !ok || a.Object != b.Object || !a.Offset.Equal(b.Offset) {
			return false
		}
	}
	for k, a := range s.objs {
		if b, ok := o.objs[k]; !ok || !a.equal(b) {
			return false
		}
	}
	return true
}

// Vars returns the constrained variables in sorted order.
func (s *State) Vars() []string {
	keys := maps.Keys(s.vars)
	sort.Strings(keys)
	return keys
}

func (s *State) String() string {
	if s.bottom {
		return "⊥"
	}
	var parts []string
	for _, k := range s.Vars() {
		parts = append(parts, fmt.Sprintf("%s: %s", k, s.vars[k]))
	}
	ptrs := maps.Keys(s.ptrs)
	sort.Strings(ptrs)
	for _, k := range ptrs {
		parts = append(parts, fmt.Sprintf("%s: %s", k, s.ptrs[k]))
	}
	objs := maps.Keys(s.objs)
	sort.Strings(objs)
	for _, k := range objs {
		parts = append(parts, fmt.Sprintf("%s: %s", k, s.objs[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
