package program

import (
	"context"
	"errors"
	"go/token"
	"io"
	"reflect"
	"testing"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/interval"
	"github.com/techguru321/infer/config"
)

type builder func(t *testing.T) *cfg.Function

func build(t *testing.T, b *cfg.Builder) *cfg.Function {
	t.Helper()
	fn, err := b.Func()
	if err != nil {
		t.Fatal(err)
	}
	return fn
}

// zeroOrTen returns 10 if its argument is non-zero, else 0.
func zeroOrTen(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("zero_or_ten", cfg.IntParam("ten"))
	then, els := b.If(token.NEQ, cfg.V("ten"), cfg.C(0))
	b.SetBlock(then)
	b.Return(cfg.C(10))
	b.SetBlock(els)
	b.Return(cfg.C(0))
	return build(t, b)
}

// lessThan returns i < n as 0 or 1.
func lessThan(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("less_than", cfg.IntParam("i"), cfg.IntParam("n"))
	then, els := b.If(token.LSS, cfg.V("i"), cfg.V("n"))
	b.SetBlock(then)
	b.Return(cfg.C(1))
	b.SetBlock(els)
	b.Return(cfg.C(0))
	return build(t, b)
}

// store builds a function that declares int a[size] and stores to
// a[index], where index may be computed by a call.
func store(name string, size int64, index cfg.Expr, calls ...*cfg.Call) builder {
	return func(t *testing.T) *cfg.Function {
		b := cfg.NewBuilder(name)
		b.Declare("a", cfg.C(size), 4)
		for _, c := range calls {
			b.Call(c.Dst, c.Callee, c.Args...)
		}
		b.Store("a", index, cfg.C(0))
		b.Return(nil)
		return build(t, b)
	}
}

func call(dst, callee string, args ...cfg.Expr) *cfg.Call {
	return &cfg.Call{Dst: dst, Callee: callee, Args: args}
}

// widenedLoop builds
//
//	int a[10];
//	for (int i = 0; less_than(i, limit); i++) a[i] = 0;
func widenedLoop(name string, limit int64) builder {
	return func(t *testing.T) *cfg.Function {
		b := cfg.NewBuilder(name)
		b.Declare("a", cfg.C(10), 4)
		head := b.NewBlock("for.cond")
		body := b.NewBlock("for.body")
		done := b.NewBlock("for.end")
		b.Jump(head, cfg.Move{Dst: "i", X: cfg.C(0)})
		b.SetBlock(head)
		b.Call("c", "less_than", cfg.V("i"), cfg.C(limit))
		b.Branch(&cfg.Cond{Op: token.NEQ, X: cfg.V("c"), Y: cfg.C(0)}, body, done)
		b.SetBlock(body)
		b.Store("a", cfg.V("i"), cfg.C(0))
		b.Jump(head, cfg.Move{Dst: "i", X: cfg.Binary{Op: token.ADD, X: cfg.V("i"), Y: cfg.C(1)}})
		b.SetBlock(done)
		b.Return(nil)
		return build(t, b)
	}
}

// guarded builds
//
//	int a[10];
//	if (i op k) a[i] = 0;
func guarded(name string, op token.Token, k int64) builder {
	return func(t *testing.T) *cfg.Function {
		b := cfg.NewBuilder(name, cfg.IntParam("i"))
		b.Declare("a", cfg.C(10), 4)
		then, els := b.If(op, cfg.V("i"), cfg.C(k))
		b.SetBlock(then)
		b.Store("a", cfg.V("i"), cfg.C(0))
		b.Return(nil)
		b.SetBlock(els)
		b.Return(nil)
		return build(t, b)
	}
}

func symbolicOverrun(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("l2_symbolic_overrun_Bad", cfg.IntParam("n"))
	b.Declare("a", cfg.V("n"), 4)
	b.Store("a", cfg.V("n"), cfg.C(0))
	b.Return(nil)
	return build(t, b)
}

// concreteOverrun builds
//
//	int a[zero_or_ten(0) + 5];
//	a[zero_or_ten(1)] = 0;
func concreteOverrun(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("l3_concrete_overrun_Bad")
	b.Call("n", "zero_or_ten", cfg.C(0))
	b.Declare("a", cfg.Binary{Op: token.ADD, X: cfg.V("n"), Y: cfg.C(5)}, 4)
	b.Call("i", "zero_or_ten", cfg.C(1))
	b.Store("a", cfg.V("i"), cfg.C(0))
	b.Return(nil)
	return build(t, b)
}

// symbolicWidened builds
//
//	int a[n];
//	for (int i = n; less_than(i, 2 * n); i++) a[i] = 0;
func symbolicWidened(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("s2_symbolic_widened_Bad", cfg.IntParam("n"))
	b.Declare("a", cfg.V("n"), 4)
	head := b.NewBlock("for.cond")
	body := b.NewBlock("for.body")
	done := b.NewBlock("for.end")
	b.Jump(head, cfg.Move{Dst: "i", X: cfg.V("n")})
	b.SetBlock(head)
	b.Call("c", "less_than", cfg.V("i"), cfg.Binary{Op: token.MUL, X: cfg.C(2), Y: cfg.V("n")})
	b.Branch(&cfg.Cond{Op: token.NEQ, X: cfg.V("c"), Y: cfg.C(0)}, body, done)
	b.SetBlock(body)
	b.Store("a", cfg.V("i"), cfg.C(0))
	b.Jump(head, cfg.Move{Dst: "i", X: cfg.Binary{Op: token.ADD, X: cfg.V("i"), Y: cfg.C(1)}})
	b.SetBlock(done)
	b.Return(nil)
	return build(t, b)
}

// unknownFunction builds
//
//	int a[5];
//	int idx = unknown_function() * 10;
//	if (10 <= idx) if (idx <= 10) a[idx] = 0;
func unknownFunction(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("l1_unknown_function_Bad")
	b.Declare("a", cfg.C(5), 4)
	b.Call("u", "unknown_function")
	b.Assign("idx", cfg.Binary{Op: token.MUL, X: cfg.V("u"), Y: cfg.C(10)})
	then, els := b.If(token.LEQ, cfg.C(10), cfg.V("idx"))
	b.SetBlock(els)
	b.Return(nil)
	b.SetBlock(then)
	then, els = b.If(token.LEQ, cfg.V("idx"), cfg.C(10))
	b.SetBlock(els)
	b.Return(nil)
	b.SetBlock(then)
	b.Store("a", cfg.V("idx"), cfg.C(0))
	b.Return(nil)
	return build(t, b)
}

// alloc builds a function that allocates bytes, which may be computed by
// calls.
func alloc(name string, bytes cfg.Expr, elemSize int64, calls ...*cfg.Call) builder {
	return func(t *testing.T) *cfg.Function {
		b := cfg.NewBuilder(name)
		for _, c := range calls {
			b.Call(c.Dst, c.Callee, c.Args...)
		}
		b.Alloc("p", bytes, elemSize)
		b.Return(nil)
		return build(t, b)
	}
}

// zeroToInfty builds
//
//	int r = 0;
//	for (int i = 0; i < zero_or_ten(0); i++) r++;
//	return r;
func zeroToInfty(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("zero_to_infty")
	head := b.NewBlock("for.cond")
	body := b.NewBlock("for.body")
	done := b.NewBlock("for.end")
	b.Jump(head, cfg.Move{Dst: "r", X: cfg.C(0)}, cfg.Move{Dst: "i", X: cfg.C(0)})
	b.SetBlock(head)
	b.Call("c", "zero_or_ten", cfg.C(0))
	b.Branch(&cfg.Cond{Op: token.LSS, X: cfg.V("i"), Y: cfg.V("c")}, body, done)
	b.SetBlock(body)
	b.Assign("r", cfg.Binary{Op: token.ADD, X: cfg.V("r"), Y: cfg.C(1)})
	b.Jump(head, cfg.Move{Dst: "i", X: cfg.Binary{Op: token.ADD, X: cfg.V("i"), Y: cfg.C(1)}})
	b.SetBlock(done)
	b.Return(cfg.V("r"))
	return build(t, b)
}

// moduloUnsigned returns a % b for unsigned a and b.
func moduloUnsigned(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("modulo_unsigned", cfg.UintParam("a"), cfg.UintParam("b"))
	b.Return(cfg.Binary{Op: token.REM, X: cfg.V("a"), Y: cfg.V("b")})
	return build(t, b)
}

// moduloCall builds
//
//	char arr[len];
//	arr[modulo_unsigned(i, len)] = 123;
func moduloCall(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("modulo_call_Good", cfg.UintParam("len"), cfg.UintParam("i"))
	b.Declare("arr", cfg.V("len"), 1)
	b.Call("j", "modulo_unsigned", cfg.V("i"), cfg.V("len"))
	b.Store("arr", cfg.V("j"), cfg.C(123))
	b.Return(nil)
	return build(t, b)
}

// doWhileSub builds
//
//	void do_while_sub(char* a, int len) {
//	  int i = 0;
//	  do { a[i] = i; i++; } while (i < len);
//	}
func doWhileSub(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("do_while_sub", cfg.PtrParam("a", 1), cfg.IntParam("len"))
	body := b.NewBlock("do.body")
	done := b.NewBlock("do.end")
	b.Jump(body, cfg.Move{Dst: "i", X: cfg.C(0)})
	b.SetBlock(body)
	b.Store("a", cfg.V("i"), cfg.V("i"))
	b.Assign("i", cfg.Binary{Op: token.ADD, X: cfg.V("i"), Y: cfg.C(1)})
	b.Branch(&cfg.Cond{Op: token.LSS, X: cfg.V("i"), Y: cfg.V("len")}, body, done)
	b.SetBlock(done)
	b.Return(nil)
	return build(t, b)
}

func doWhile(t *testing.T) *cfg.Function {
	b := cfg.NewBuilder("do_while")
	b.Alloc("a", cfg.C(10), 1)
	b.Call("", "do_while_sub", cfg.V("a"), cfg.C(10))
	b.Call("", "do_while_sub", cfg.V("a"), cfg.C(11))
	b.Return(nil)
	return build(t, b)
}

func quiet() Config {
	conf := DefaultConfig
	conf.Log = config.NewLogGroup(config.ErrLevel)
	conf.Log.SetAllOutput(io.Discard)
	return conf
}

func analyze(t *testing.T, conf Config, builders ...builder) *Result {
	t.Helper()
	var fns []*cfg.Function
	for _, b := range builders {
		fns = append(fns, b(t))
	}
	res, err := Analyze(context.Background(), fns, conf)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func verdicts(res *Result) map[string][]bounds.Class {
	out := map[string][]bounds.Class{}
	for _, f := range res.Findings {
		out[f.Func] = append(out[f.Func], f.Class)
	}
	return out
}

func TestIssueKinds(t *testing.T) {
	res := analyze(t, quiet(),
		zeroOrTen,
		lessThan,
		store("l1_concrete_overrun_Bad", 10, cfg.C(10)),
		store("l1_concrete_underrun_Bad", 10, cfg.C(-1)),
		guarded("l1_symbolic_overrun_Bad", token.GEQ, 10),
		guarded("l1_symbolic_underrun_Bad", token.LSS, 0),
		store("l2_concrete_overrun_Bad", 10, cfg.V("x"), call("x", "zero_or_ten", cfg.C(1))),
		store("l2_concrete_underrun_Bad", 9, cfg.Binary{Op: token.SUB, X: cfg.V("x"), Y: cfg.C(1)}, call("x", "zero_or_ten", cfg.C(0))),
		symbolicOverrun,
		widenedLoop("l4_widened_overrun_Bad", 11),
		store("l5_external_Warn_Bad", 10, cfg.V("x"), call("x", "unknown_function")),
		concreteOverrun,
		symbolicWidened,
		unknownFunction,
		alloc("alloc_is_zero_Bad", cfg.Binary{Op: token.MUL, X: cfg.C(0), Y: cfg.C(4)}, 4),
		alloc("alloc_may_be_negative_Bad", cfg.Binary{Op: token.SUB, X: cfg.V("x"), Y: cfg.C(5)}, 1,
			call("x", "zero_or_ten", cfg.C(0))),
		alloc("alloc_may_be_big_Bad", cfg.Binary{
			Op: token.ADD,
			X:  cfg.Binary{Op: token.MUL, X: cfg.V("x"), Y: cfg.C(100_000_000)},
			Y:  cfg.C(1),
		}, 1, call("x", "zero_or_ten", cfg.C(1))),
		zeroToInfty,
		moduloUnsigned,
		moduloCall,
	)

	want := map[string][]bounds.Class{
		"l1_concrete_overrun_Bad":   {bounds.DefiniteOverrun},
		"l1_concrete_underrun_Bad":  {bounds.DefiniteUnderrun},
		"l1_symbolic_overrun_Bad":   {bounds.DefiniteOverrun},
		"l1_symbolic_underrun_Bad":  {bounds.DefiniteUnderrun},
		"l2_concrete_overrun_Bad":   {bounds.Possible},
		"l2_concrete_underrun_Bad":  {bounds.Possible},
		"l2_symbolic_overrun_Bad":   {bounds.DefiniteOverrun},
		"l4_widened_overrun_Bad":    {bounds.UnknownSafe},
		"l5_external_Warn_Bad":      {bounds.Possible},
		"l3_concrete_overrun_Bad":   {bounds.Possible},
		"s2_symbolic_widened_Bad":   {bounds.DefiniteOverrun},
		"l1_unknown_function_Bad":   {bounds.DefiniteOverrun},
		"alloc_is_zero_Bad":         {bounds.DefiniteUnderrun},
		"alloc_may_be_negative_Bad": {bounds.Possible},
		"alloc_may_be_big_Bad":      {bounds.Possible},
	}
	if got := verdicts(res); !reflect.DeepEqual(got, want) {
		t.Errorf("got verdicts\n%v\nwant\n%v", got, want)
	}

	tests := []struct {
		fn       string
		kind     bounds.Kind
		lo, hi   string
		external bool
		lossy    bool
	}{
		{"l1_unknown_function_Bad", bounds.Index, "10", "10", true, false},
		{"alloc_is_zero_Bad", bounds.Allocation, "0", "0", false, false},
		{"alloc_may_be_negative_Bad", bounds.Allocation, "-5", "5", false, false},
		{"alloc_may_be_big_Bad", bounds.Allocation, "1", "1000000001", false, false},
		{"s2_symbolic_widened_Bad", bounds.Index, "n", "+∞", false, true},
	}
	for _, tt := range tests {
		f, ok := findingIn(res, tt.fn)
		if !ok {
			t.Errorf("%s: no finding", tt.fn)
			continue
		}
		if f.Kind != tt.kind {
			t.Errorf("%s: got a %s finding, want %s", tt.fn, f.Kind, tt.kind)
		}
		if lo, hi := f.Value.Lower().String(), f.Value.Upper().String(); lo != tt.lo || hi != tt.hi {
			t.Errorf("%s: got value %s, want [%s, %s]", tt.fn, f.Value, tt.lo, tt.hi)
		}
		if f.Value.External() != tt.external || f.Value.Lossy() != tt.lossy {
			t.Errorf("%s: value %s has external=%t lossy=%t", tt.fn, f.Value, f.Value.External(), f.Value.Lossy())
		}
	}
	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors %v", res.Errors)
	}
	s, ok := res.Summaries.Lookup("zero_or_ten")
	if !ok {
		t.Fatal("no summary for zero_or_ten")
	}
	if lo, hi := s.Return.Concrete(); lo.String() != "0" || hi.String() != "10" {
		t.Errorf("zero_or_ten returns %s, want [0, 10]", s.Return)
	}

	s, ok = res.Summaries.Lookup("zero_to_infty")
	if !ok {
		t.Fatal("no summary for zero_to_infty")
	}
	if s.Return.Lower().String() != "0" || !s.Return.Upper().IsPlusInf() || !s.Return.Lossy() {
		t.Errorf("zero_to_infty returns %s, want a lossy [0, +∞]", s.Return)
	}

	s, ok = res.Summaries.Lookup("modulo_unsigned")
	if !ok || len(s.Params) != 2 {
		t.Fatalf("got summary %v for modulo_unsigned", s)
	}
	bMinus1 := interval.OfSymbol(s.Params[1].Symbol).Add(interval.Const(-1)).Upper()
	if s.Return.Lower().String() != "0" || !s.Return.Upper().Equal(bMinus1) {
		t.Errorf("modulo_unsigned returns %s, want [0, %s]", s.Return, bMinus1)
	}
}

func findingIn(res *Result, fn string) (bounds.Finding, bool) {
	for _, f := range res.Findings {
		if f.Func == fn {
			return f, true
		}
	}
	return bounds.Finding{}, false
}

func TestDoWhile(t *testing.T) {
	res := analyze(t, quiet(), doWhile, doWhileSub)

	var sub, caller []bounds.Finding
	for _, f := range res.Findings {
		switch f.Func {
		case "do_while_sub":
			sub = append(sub, f)
		case "do_while":
			caller = append(caller, f)
		}
	}
	// The loop bound is widened in the callee, so its own access is only
	// doubtful.
	if len(sub) != 1 || sub[0].Class != bounds.UnknownSafe {
		t.Errorf("got %v in do_while_sub, want one unknown-safe access", sub)
	}
	if len(caller) != 1 {
		t.Fatalf("got %v in do_while, want one finding at the second call", caller)
	}
	f := caller[0]
	if f.Class != bounds.Possible || f.Pos.Line != 4 {
		t.Errorf("got %s at line %d, want a possible overrun at line 4", f.Class, f.Pos.Line)
	}
	if lo, hi := f.Value.Concrete(); lo.String() != "0" || hi.String() != "10" {
		t.Errorf("got value %s, want [0, 10]", f.Value)
	}
	if len(f.Trace) == 0 || f.Trace[0].Pos.Filename != "do_while_sub" {
		t.Errorf("trace %v does not lead into the callee", f.Trace)
	}

	s, _ := res.Summaries.Lookup("do_while_sub")
	if len(s.Obligations) == 0 {
		t.Error("do_while_sub has no obligations")
	}
}

// countdown builds
//
//	int name(int n) { if (n <= 0) return 0; return other(n - 1) + 1; }
func countdown(name, other string) builder {
	return func(t *testing.T) *cfg.Function {
		b := cfg.NewBuilder(name, cfg.IntParam("n"))
		then, els := b.If(token.LEQ, cfg.V("n"), cfg.C(0))
		b.SetBlock(then)
		b.Return(cfg.C(0))
		b.SetBlock(els)
		b.Call("r", other, cfg.Binary{Op: token.SUB, X: cfg.V("n"), Y: cfg.C(1)})
		b.Return(cfg.Binary{Op: token.ADD, X: cfg.V("r"), Y: cfg.C(1)})
		return build(t, b)
	}
}

func TestRecursion(t *testing.T) {
	res := analyze(t, quiet(),
		countdown("self", "self"),
		countdown("even", "odd"),
		countdown("odd", "even"),
		store("caller", 10, cfg.V("x"), call("x", "even", cfg.C(3))),
	)
	for _, name := range []string{"self", "even", "odd"} {
		if res.Summaries.Pending(name) {
			t.Errorf("%s is still pending", name)
		}
		if _, ok := res.Summaries.Lookup(name); !ok {
			t.Errorf("no summary for %s", name)
		}
	}
	// The result of even is not bounded above, so the caller's access is
	// doubtful.
	v := verdicts(res)
	if len(v["caller"]) != 1 {
		t.Errorf("got %v for caller", v["caller"])
	}
}

func TestMaxSummaryRounds(t *testing.T) {
	conf := quiet()
	conf.MaxSummaryRounds = 1
	res := analyze(t, conf, countdown("even", "odd"), countdown("odd", "even"))
	for _, name := range []string{"even", "odd"} {
		s, ok := res.Summaries.Lookup(name)
		if !ok || !s.Return.Upper().IsPlusInf() {
			t.Errorf("%s: got summary %v, want an unbounded return value", name, s)
		}
	}
}

func TestMalformedFunction(t *testing.T) {
	broken := func(*testing.T) *cfg.Function { return &cfg.Function{Name: "broken"} }
	res := analyze(t, quiet(),
		broken,
		store("uses_broken", 10, cfg.V("x"), call("x", "broken")),
		store("fine", 10, cfg.C(10)),
	)
	if len(res.Errors) != 1 {
		t.Fatalf("got errors %v, want one", res.Errors)
	}
	var merr *cfg.MalformedError
	if !errors.As(res.Errors[0], &merr) || merr.Func != "broken" {
		t.Errorf("got error %v, want a *cfg.MalformedError for broken", res.Errors[0])
	}
	want := map[string][]bounds.Class{
		"uses_broken": {bounds.Possible},
		"fine":        {bounds.DefiniteOverrun},
	}
	if got := verdicts(res); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDuplicateFunctions(t *testing.T) {
	fns := []*cfg.Function{zeroOrTen(t), zeroOrTen(t)}
	if _, err := Analyze(context.Background(), fns, quiet()); err == nil {
		t.Error("expected an error for duplicate functions")
	}
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Analyze(ctx, []*cfg.Function{zeroOrTen(t)}, quiet())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestDeterministic(t *testing.T) {
	builders := []builder{
		zeroOrTen,
		lessThan,
		widenedLoop("l4_widened_no_overrun_Good_FP", 10),
		store("l2_concrete_no_overrun_Good_FP", 10, cfg.V("x"), call("x", "zero_or_ten", cfg.C(0))),
		doWhile,
		doWhileSub,
	}
	serial := quiet()
	serial.Concurrency = 1
	parallel := quiet()
	parallel.Concurrency = 8
	a := analyze(t, serial, builders...)
	b := analyze(t, parallel, builders...)
	if len(a.Findings) != len(b.Findings) {
		t.Fatalf("got %d and %d findings", len(a.Findings), len(b.Findings))
	}
	for i := range a.Findings {
		if a.Findings[i].Message() != b.Findings[i].Message() || a.Findings[i].Func != b.Findings[i].Func {
			t.Errorf("finding %d differs: %s / %s", i, a.Findings[i].Message(), b.Findings[i].Message())
		}
	}
}

func TestNewConfig(t *testing.T) {
	c := config.Default()
	c.Analysis.WideningThresholds = []int64{10, 100}
	c.Analysis.MaxSummaryRounds = 9
	conf := NewConfig(c)
	if conf.MaxSummaryRounds != 9 || len(conf.Fixpoint.Thresholds) != 2 || conf.Transfer.BigAllocThreshold != c.Analysis.BigAllocThreshold {
		t.Errorf("got %+v", conf)
	}
}
