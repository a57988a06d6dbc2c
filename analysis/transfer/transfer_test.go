package transfer

import (
	"go/token"
	"testing"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/interval"
	"github.com/techguru321/infer/analysis/memory"
	"github.com/techguru321/infer/analysis/summary"
)

func newInterp(t *testing.T, store summary.Store, params ...cfg.Param) (*Interp, *memory.State) {
	t.Helper()
	b := cfg.NewBuilder("f", params...)
	b.Return(nil)
	fn, err := b.Func()
	if err != nil {
		t.Fatal(err)
	}
	in := New(fn, Bind(fn), store, DefaultConfig)
	s := in.Entry()
	in.StartChecking()
	return in, s
}

// sameBounds compares intervals ignoring their flags.
func sameBounds(a, b interval.Interval) bool {
	if a.IsBottom() || b.IsBottom() {
		return a.IsBottom() == b.IsBottom()
	}
	return a.Lower().Equal(b.Lower()) && a.Upper().Equal(b.Upper())
}

func TestEval(t *testing.T) {
	in, s := newInterp(t, nil)
	s.Set("x", interval.Range(0, 10))
	in.Instr(s, &cfg.Declare{Dst: "a", Size: cfg.C(10), ElemSize: 4})
	in.Instr(s, &cfg.AddrOf{Dst: "p", Base: "a", Index: cfg.C(3)})

	x := cfg.V("x")
	tests := []struct {
		e    cfg.Expr
		want interval.Interval
	}{
		{cfg.C(7), interval.Const(7)},
		{cfg.Neg{X: x}, interval.Range(-10, 0)},
		{cfg.Binary{Op: token.ADD, X: x, Y: cfg.C(1)}, interval.Range(1, 11)},
		{cfg.Binary{Op: token.MUL, X: x, Y: cfg.C(2)}, interval.Range(0, 20)},
		{cfg.Binary{Op: token.QUO, X: x, Y: cfg.C(2)}, interval.Range(0, 5)},
		{cfg.Binary{Op: token.REM, X: x, Y: cfg.C(3)}, interval.Range(0, 2)},
		{cfg.Len{Ptr: "p"}, interval.Const(7)},
		{cfg.Sizeof{Ptr: "p"}, interval.Const(28)},
		{cfg.Convert{X: cfg.C(300), To: interval.IntType{Bits: 8, Unsigned: true}}, interval.Range(0, 255)},
		{cfg.Convert{X: cfg.C(200), To: interval.IntType{Bits: 8, Unsigned: true}}, interval.Const(200)},
	}
	for _, tt := range tests {
		if got := in.Eval(s, tt.e); !sameBounds(got, tt.want) {
			t.Errorf("%s = %s, want %s", tt.e, got, tt.want)
		}
	}
	if got := in.Eval(s, cfg.Unknown{}); !got.IsTop() || !got.External() {
		t.Errorf("unknown value evaluated to %s", got)
	}
}

func TestPrune(t *testing.T) {
	x := cfg.V("x")
	tests := []struct {
		name string
		cond *cfg.Cond
		want interval.Interval
	}{
		{"less", &cfg.Cond{Op: token.LSS, X: x, Y: cfg.C(5)}, interval.Range(0, 4)},
		{"at least", &cfg.Cond{Op: token.GEQ, X: x, Y: cfg.C(3)}, interval.Range(3, 10)},
		{"flipped", &cfg.Cond{Op: token.GTR, X: cfg.C(3), Y: x}, interval.Range(0, 2)},
		{"not zero", &cfg.Cond{Op: token.NEQ, X: x, Y: cfg.C(0)}, interval.Range(1, 10)},
		{"not inside", &cfg.Cond{Op: token.NEQ, X: x, Y: cfg.C(4)}, interval.Range(0, 10)},
		{"equal", &cfg.Cond{Op: token.EQL, X: x, Y: cfg.C(4)}, interval.Const(4)},
		{"offset", &cfg.Cond{Op: token.LSS, X: cfg.Binary{Op: token.ADD, X: x, Y: cfg.C(1)}, Y: cfg.C(5)}, interval.Range(0, 3)},
		{"unsatisfiable", &cfg.Cond{Op: token.EQL, X: x, Y: cfg.C(20)}, interval.Bottom()},
		{"constant false", &cfg.Cond{Op: token.LSS, X: cfg.C(1), Y: cfg.C(0)}, interval.Bottom()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, s := newInterp(t, nil)
			s.Set("x", interval.Range(0, 10))
			in.Prune(s, tt.cond)
			got := s.Get("x")
			if s.IsBottom() {
				got = interval.Bottom()
			}
			if !sameBounds(got, tt.want) {
				t.Errorf("x is %s after %s, want %s", got, tt.cond, tt.want)
			}
		})
	}
}

func TestGuardKeepsSymbols(t *testing.T) {
	in, s := newInterp(t, nil, cfg.IntParam("n"))
	in.Prune(s, &cfg.Cond{Op: token.GTR, X: cfg.V("n"), Y: cfg.C(0)})
	n := s.Get("n")
	if !interval.LE(interval.ConstBound(interval.NewZ(1)), n.Lower()) {
		t.Errorf("n is %s after n > 0", n)
	}
	if n.Upper().Symbol() == nil {
		t.Errorf("upper bound of %s lost its symbol", n)
	}
}

func strlenOf(in *Interp, s *memory.State, ptr string) interval.Interval {
	in.Instr(s, &cfg.Strlen{Dst: "len", Src: ptr})
	return s.Get("len")
}

func TestStrings(t *testing.T) {
	t.Run("literal", func(t *testing.T) {
		in, s := newInterp(t, nil)
		b := &cfg.Declare{Dst: "s", Size: cfg.C(10), ElemSize: 1, Init: []int64{'a', 'b', 'c', 0}}
		in.Instr(s, b)
		if got := strlenOf(in, s, "s"); !sameBounds(got, interval.Const(3)) {
			t.Errorf("strlen = %s, want 3", got)
		}
		in.Instr(s, &cfg.Store{Ptr: "s", Index: cfg.C(1), X: cfg.C('x')})
		if got := strlenOf(in, s, "s"); !sameBounds(got, interval.Const(3)) {
			t.Errorf("strlen = %s after storing before the NUL, want 3", got)
		}
		in.Instr(s, &cfg.Store{Ptr: "s", Index: cfg.C(3), X: cfg.C('x')})
		if got := strlenOf(in, s, "s"); !sameBounds(got, interval.Range(0, 9)) {
			t.Errorf("strlen = %s after overwriting the NUL, want [0, 9]", got)
		}
	})

	t.Run("strncpy", func(t *testing.T) {
		in, s := newInterp(t, nil)
		in.Instr(s, &cfg.Declare{Dst: "src", Size: cfg.C(10), ElemSize: 1, Init: []int64{'a', 'b', 'c', 0}})
		in.Instr(s, &cfg.Declare{Dst: "dst", Size: cfg.C(5), ElemSize: 1})
		in.Instr(s, &cfg.Copy{Kind: cfg.Strncpy, Dst: "dst", Src: "src", Len: cfg.C(5)})
		if got := strlenOf(in, s, "dst"); !sameBounds(got, interval.Const(3)) {
			t.Errorf("strlen = %s, want 3", got)
		}
		if fs := in.Result().Findings; len(fs) != 0 {
			t.Errorf("unexpected findings %v", fs)
		}
	})

	t.Run("strncpy without NUL", func(t *testing.T) {
		in, s := newInterp(t, nil)
		init := []int64{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 0}
		in.Instr(s, &cfg.Declare{Dst: "src", Size: cfg.C(10), ElemSize: 1, Init: init})
		in.Instr(s, &cfg.Declare{Dst: "dst", Size: cfg.C(5), ElemSize: 1})
		in.Instr(s, &cfg.Copy{Kind: cfg.Strncpy, Dst: "dst", Src: "src", Len: cfg.C(5)})
		strlenOf(in, s, "dst")
		in.Instr(s, &cfg.Load{Dst: "c", Ptr: "dst", Index: cfg.V("len")})
		fs := in.Result().Findings
		if len(fs) != 1 || fs[0].Class != bounds.DefiniteOverrun {
			t.Errorf("got %v, want an overrun reading past the copy", fs)
		}
	})

	t.Run("empty", func(t *testing.T) {
		in, s := newInterp(t, nil)
		in.Instr(s, &cfg.Declare{Dst: "s", Size: cfg.C(0), ElemSize: 1, AllowEmpty: true})
		got := strlenOf(in, s, "s")
		if s.IsBottom() {
			t.Fatal("strlen of an empty object made the state unreachable")
		}
		if !sameBounds(got, interval.New(interval.ConstBound(interval.NewZ(0)), interval.PlusInf)) {
			t.Errorf("strlen = %s, want [0, +oo]", got)
		}
		fs := in.Result().Findings
		if len(fs) != 1 || fs[0].Class != bounds.DefiniteOverrun || fs[0].Kind != bounds.Index {
			t.Errorf("got %v, want an overrun scanning the empty object", fs)
		}
	})

	t.Run("past the end", func(t *testing.T) {
		in, s := newInterp(t, nil)
		in.Instr(s, &cfg.Declare{Dst: "s", Size: cfg.C(4), ElemSize: 1, Init: []int64{'a', 'b', 'c', 'd'}})
		in.Instr(s, &cfg.AddrOf{Dst: "p", Base: "s", Index: cfg.C(4)})
		strlenOf(in, s, "p")
		if s.IsBottom() {
			t.Fatal("strlen past the end made the state unreachable")
		}
		fs := in.Result().Findings
		if len(fs) != 1 || fs[0].Class != bounds.DefiniteOverrun {
			t.Errorf("got %v, want an overrun scanning past the end", fs)
		}
	})

	t.Run("memset", func(t *testing.T) {
		in, s := newInterp(t, nil)
		in.Instr(s, &cfg.Declare{Dst: "m", Size: cfg.C(8), ElemSize: 1})
		in.Instr(s, &cfg.Memset{Dst: "m", X: cfg.C(0), Len: cfg.C(8)})
		if got := strlenOf(in, s, "m"); !sameBounds(got, interval.Const(0)) {
			t.Errorf("strlen = %s, want 0", got)
		}
		in.Instr(s, &cfg.Load{Dst: "c", Ptr: "m", Index: cfg.C(2)})
		if got := s.Get("c"); !sameBounds(got, interval.Const(0)) {
			t.Errorf("loaded %s from zeroed memory", got)
		}
	})

	t.Run("memcpy contents", func(t *testing.T) {
		in, s := newInterp(t, nil)
		in.Instr(s, &cfg.Declare{Dst: "src", Size: cfg.C(1), ElemSize: 4, Init: []int64{5}})
		in.Instr(s, &cfg.Declare{Dst: "dst", Size: cfg.C(1), ElemSize: 4})
		in.Instr(s, &cfg.Copy{Kind: cfg.Memcpy, Dst: "dst", Src: "src", Len: cfg.C(4)})
		in.Instr(s, &cfg.Load{Dst: "i", Ptr: "dst", Index: cfg.C(0)})
		in.Instr(s, &cfg.Declare{Dst: "a", Size: cfg.C(5), ElemSize: 4})
		in.Instr(s, &cfg.Load{Dst: "x", Ptr: "a", Index: cfg.V("i")})
		fs := in.Result().Findings
		if len(fs) != 1 || fs[0].Class != bounds.DefiniteOverrun {
			t.Errorf("got %v, want an overrun indexing with the copied value", fs)
		}
	})
}

func TestTracesAreIndependent(t *testing.T) {
	in, s := newInterp(t, nil)
	s.Set("x", interval.Range(0, 20))
	in.Instr(s, &cfg.Assign{Dst: "i", X: cfg.V("x")})
	in.Instr(s, &cfg.Assign{Dst: "j", X: cfg.Binary{Op: token.ADD, X: cfg.V("x"), Y: cfg.C(1)}})

	steps := make([]bounds.Step, 1, 4)
	steps[0] = bounds.Step{Description: "buf[k] in callee"}
	for _, v := range []string{"i", "j"} {
		in.check(s, access{
			kind:  bounds.Index,
			desc:  "buf[" + v + "]",
			value: s.Get(v),
			lo:    interval.Const(0),
			hi:    interval.Const(10),
			limit: interval.Const(10),
			uses:  []string{v},
			steps: steps,
		})
	}
	fs := in.Result().Findings
	if len(fs) != 2 {
		t.Fatalf("got %d findings, want 2", len(fs))
	}
	for i, f := range fs {
		if len(f.Trace) < 2 {
			t.Fatalf("finding %d has trace %v", i, f.Trace)
		}
	}
	if fs[0].Trace[1].Description == fs[1].Trace[1].Description {
		t.Errorf("traces share their tail: %q", fs[0].Trace[1].Description)
	}
	if steps[0].Description != "buf[k] in callee" || len(steps) != 1 {
		t.Errorf("steps of the access were modified: %v", steps)
	}
}

func TestUnknownCallClobbers(t *testing.T) {
	in, s := newInterp(t, nil)
	in.Instr(s, &cfg.Declare{Dst: "s", Size: cfg.C(10), ElemSize: 1, Init: []int64{'a', 0}})
	in.Instr(s, &cfg.Call{Dst: "r", Callee: "mystery", Args: []cfg.Expr{cfg.V("s")}})
	if got := strlenOf(in, s, "s"); !sameBounds(got, interval.Range(0, 9)) {
		t.Errorf("strlen = %s after an unknown call, want [0, 9]", got)
	}
	if r := s.Get("r"); !r.External() {
		t.Errorf("result of unknown call is %s, want an external value", r)
	}
}

func TestCallInstantiatesSummary(t *testing.T) {
	sym := interval.NewSymbol("i", false)
	table := summary.NewTable()
	table.Put(&summary.Summary{
		Func:   "get",
		Params: []summary.Param{{Name: "i", Symbol: sym}},
		Return: interval.OfSymbol(sym).Add(interval.Const(1)),
		Obligations: []summary.Obligation{{
			Kind:   bounds.Index,
			Access: "buf[i]",
			Value:  interval.OfSymbol(sym),
			Lo:     interval.Const(0),
			Hi:     interval.Const(10),
			Class:  bounds.Possible,
		}},
	})

	tests := []struct {
		arg  int64
		want []bounds.Class
	}{
		{5, nil},
		{11, []bounds.Class{bounds.DefiniteOverrun}},
		{-3, []bounds.Class{bounds.DefiniteUnderrun}},
	}
	for _, tt := range tests {
		in, s := newInterp(t, table)
		in.Instr(s, &cfg.Call{Dst: "r", Callee: "get", Args: []cfg.Expr{cfg.C(tt.arg)}})
		if got := s.Get("r"); !sameBounds(got, interval.Const(tt.arg+1)) {
			t.Errorf("get(%d) returned %s", tt.arg, got)
		}
		fs := in.Result().Findings
		if len(fs) != len(tt.want) {
			t.Errorf("get(%d): got %v, want %v", tt.arg, fs, tt.want)
			continue
		}
		for i, f := range fs {
			if f.Class != tt.want[i] {
				t.Errorf("get(%d): finding is %s, want %s", tt.arg, f.Class, tt.want[i])
			}
			if len(f.Trace) == 0 {
				t.Errorf("get(%d): finding has no trace into the callee", tt.arg)
			}
		}
	}
}

func TestModels(t *testing.T) {
	in, s := newInterp(t, nil)
	in.Instr(s, &cfg.Call{Dst: "c", Callee: "getchar"})
	if got := s.Get("c"); !sameBounds(got, interval.Range(-1, 255)) {
		t.Errorf("getchar() = %s", got)
	}
	s.Set("x", interval.Range(-5, 3))
	in.Instr(s, &cfg.Call{Dst: "y", Callee: "abs", Args: []cfg.Expr{cfg.V("x")}})
	if got := s.Get("y"); !sameBounds(got, interval.Range(0, 5)) {
		t.Errorf("abs([-5, 3]) = %s", got)
	}
	in.Instr(s, &cfg.Call{Callee: "exit", Args: []cfg.Expr{cfg.C(0)}})
	if !s.IsBottom() {
		t.Error("state is reachable after exit")
	}
	if !Modelled("fgetc") || Modelled("printf") {
		t.Error("unexpected set of models")
	}
}
