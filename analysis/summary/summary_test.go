package summary

import (
	"testing"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/interval"
)

func TestTable(t *testing.T) {
	tab := NewTable()
	if _, ok := tab.Lookup("f"); ok {
		t.Fatal("found a summary of f before computing it")
	}

	tab.Begin("f")
	s, ok := tab.Lookup("f")
	if !ok || !s.Return.IsTop() {
		t.Fatalf("pending function has summary %v, want an unconstrained return value", s)
	}
	if !tab.Pending("f") {
		t.Error("f is not pending")
	}

	tab.Put(&Summary{Func: "f", Return: interval.Const(1)})
	if tab.Pending("f") {
		t.Error("f is still pending after Put")
	}
	s, _ = tab.Lookup("f")
	if c, ok := s.Return.Const(); !ok || c.String() != "1" {
		t.Errorf("got return value %s, want 1", s.Return)
	}

	// A second round sees the previous result.
	tab.Begin("f")
	if s, _ := tab.Lookup("f"); !s.Return.Equal(interval.Const(1)) {
		t.Errorf("got return value %s during a second round", s.Return)
	}

	tab.Put(&Summary{Func: "a"})
	if names := tab.Names(); len(names) != 2 || names[0] != "a" || names[1] != "f" {
		t.Errorf("got names %v", names)
	}
}

func TestObligationCheck(t *testing.T) {
	n := interval.NewSymbol("n", false)
	ob := Obligation{
		Kind: bounds.Index,
		// the callee widened its loop
		Value: interval.New(interval.ConstBound(interval.NewZ(0)), interval.SymBound(-1, 1, n)).WithFlags(interval.Lossy),
		Lo:    interval.Const(0),
		Hi:    interval.Const(10),
		Class: bounds.UnknownSafe,
	}
	tests := []struct {
		arg  interval.Interval
		want bounds.Class
	}{
		{interval.Const(10), bounds.Safe},
		{interval.Const(11), bounds.Possible},
		{interval.Const(12), bounds.Possible},
		{interval.Unknown(), bounds.Possible},
	}
	for _, tt := range tests {
		got, _, _ := ob.Check(map[*interval.Symbol]interval.Interval{n: tt.arg})
		if got != tt.want {
			t.Errorf("n = %s: got %s, want %s", tt.arg, got, tt.want)
		}
	}

	open := Obligation{Kind: bounds.ArraySize, Value: interval.OfSymbol(n), Lo: interval.Const(1), Open: true}
	if got, _, _ := open.Check(map[*interval.Symbol]interval.Interval{n: interval.Const(0)}); got != bounds.DefiniteUnderrun {
		t.Errorf("array of size 0: got %s", got)
	}
}

func TestEqual(t *testing.T) {
	a := &Summary{Func: "f", Return: interval.Range(0, 3)}
	b := &Summary{Func: "f", Return: interval.Range(0, 3)}
	if !a.Equal(b) {
		t.Error("identical summaries differ")
	}
	b.Obligations = append(b.Obligations, Obligation{Class: bounds.Possible})
	if a.Equal(b) {
		t.Error("summaries with different obligations are equal")
	}
}
