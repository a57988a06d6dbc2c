// Package program analyses a set of functions bottom-up over their call
// graph.
//
// Functions are grouped into the strongly connected components of the call
// graph. A component is analysed once all the components it calls have
// summaries, so that calls can be checked against the callee's contract.
// Components of recursive functions are analysed repeatedly until their
// summaries stop changing; calls into a function whose summary is still
// being computed see an unconstrained return value.
package program

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/fixpoint"
	"github.com/techguru321/infer/analysis/interval"
	"github.com/techguru321/infer/analysis/summary"
	"github.com/techguru321/infer/analysis/transfer"
	"github.com/techguru321/infer/config"
)

type Config struct {
	Fixpoint fixpoint.Config
	Transfer transfer.Config
	// MaxSummaryRounds bounds the number of times a recursive component
	// is analysed before the return values of its functions are widened.
	MaxSummaryRounds int
	// Concurrency bounds the number of components analysed at once. Zero
	// means GOMAXPROCS.
	Concurrency int
	Log         *config.LogGroup
}

var DefaultConfig = Config{
	Fixpoint:         fixpoint.DefaultConfig,
	Transfer:         transfer.DefaultConfig,
	MaxSummaryRounds: 4,
}

// NewConfig returns the configuration described by the analysis and log
// sections of c.
func NewConfig(c config.Config) Config {
	a := c.Analysis
	return Config{
		Fixpoint: fixpoint.Config{
			WideningDelay:   a.WideningDelay,
			NarrowingPasses: a.NarrowingPasses,
			Thresholds:      interval.NewThresholds(a.WideningThresholds...),
		},
		Transfer:         transfer.Config{BigAllocThreshold: a.BigAllocThreshold},
		MaxSummaryRounds: a.MaxSummaryRounds,
		Log:              c.LogGroup(),
	}
}

type Result struct {
	// Findings are sorted by position.
	Findings  []bounds.Finding
	Summaries *summary.Table
	// Errors holds an error for every function that could not be
	// analysed. Calls to such functions are treated as calls to unknown
	// functions.
	Errors []error
}

type function struct {
	fn     *cfg.Function
	params []summary.Param
	// calls lists the names of the analysed functions fn calls.
	calls     []string
	recursive bool
}

type node struct {
	id int64
	f  *function
}

func (n node) ID() int64 { return n.id }

type component struct {
	funcs []*function
	level int

	findings []bounds.Finding
	errs     []error
}

// Analyze analyses fns. Function names must be unique. Calls to functions
// outside of fns use built-in models or are treated as unknown.
func Analyze(ctx context.Context, fns []*cfg.Function, conf Config) (*Result, error) {
	if conf.Log == nil {
		conf.Log = config.NewLogGroup(config.WarnLevel)
	}
	if conf.MaxSummaryRounds < 1 {
		conf.MaxSummaryRounds = 1
	}
	if conf.Concurrency < 1 {
		conf.Concurrency = runtime.GOMAXPROCS(0)
	}

	comps, err := schedule(fns)
	if err != nil {
		return nil, err
	}
	table := summary.NewTable()
	a := &analyzer{conf: conf, table: table}

	// Components only call components of lower levels.
	for lo := 0; lo < len(comps); {
		hi := lo
		for hi < len(comps) && comps[hi].level == comps[lo].level {
			hi++
		}
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(conf.Concurrency)
		for _, c := range comps[lo:hi] {
			c := c
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				a.component(c)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		lo = hi
	}

	res := &Result{Summaries: table}
	for _, c := range comps {
		res.Findings = append(res.Findings, c.findings...)
		res.Errors = append(res.Errors, c.errs...)
	}
	SortFindings(res.Findings)
	conf.Log.Infof("analysed %d functions in %d components, %d findings", len(fns), len(comps), len(res.Findings))
	return res, nil
}

// SortFindings sorts findings by position, then by function.
func SortFindings(fs []bounds.Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Pos.Filename != b.Pos.Filename {
			return a.Pos.Filename < b.Pos.Filename
		}
		if a.Pos.Line != b.Pos.Line {
			return a.Pos.Line < b.Pos.Line
		}
		if a.Pos.Column != b.Pos.Column {
			return a.Pos.Column < b.Pos.Column
		}
		return a.Func < b.Func
	})
}

// schedule groups fns into the components of their call graph, callees
// before callers, and assigns each component a level one above the
// highest level of the components it calls.
func schedule(fns []*cfg.Function) ([]*component, error) {
	g := simple.NewDirectedGraph()
	byName := map[string]node{}
	for i, fn := range fns {
		if _, ok := byName[fn.Name]; ok {
			return nil, fmt.Errorf("duplicate function %s", fn.Name)
		}
		n := node{id: int64(i), f: &function{fn: fn, params: transfer.Bind(fn)}}
		byName[fn.Name] = n
		g.AddNode(n)
	}
	for _, fn := range fns {
		caller := byName[fn.Name]
		seen := map[string]bool{}
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				call, ok := instr.(*cfg.Call)
				if !ok || seen[call.Callee] {
					continue
				}
				callee, ok := byName[call.Callee]
				if !ok {
					continue
				}
				seen[call.Callee] = true
				caller.f.calls = append(caller.f.calls, call.Callee)
				if callee.id == caller.id {
					// graph/simple has no self loops
					caller.f.recursive = true
					continue
				}
				g.SetEdge(g.NewEdge(caller, callee))
			}
		}
	}

	// TarjanSCC returns components in reverse topological order: every
	// component comes after the components it has edges to.
	sccs := topo.TarjanSCC(g)
	comps := make([]*component, len(sccs))
	compOf := map[string]*component{}
	for i, scc := range sccs {
		c := &component{}
		for _, n := range scc {
			c.funcs = append(c.funcs, n.(node).f)
		}
		sort.Slice(c.funcs, func(i, j int) bool { return c.funcs[i].fn.Name < c.funcs[j].fn.Name })
		if len(scc) > 1 {
			for _, f := range c.funcs {
				f.recursive = true
			}
		}
		for _, f := range c.funcs {
			compOf[f.fn.Name] = c
		}
		comps[i] = c
	}
	for _, c := range comps {
		for _, f := range c.funcs {
			for _, callee := range f.calls {
				if cc := compOf[callee]; cc != c && cc.level+1 > c.level {
					c.level = cc.level + 1
				}
			}
		}
	}
	sort.SliceStable(comps, func(i, j int) bool { return comps[i].level < comps[j].level })
	return comps, nil
}

var _ graph.Node = node{}

type analyzer struct {
	conf  Config
	table *summary.Table
}

func (a *analyzer) run(f *function) (*fixpoint.Result, error) {
	in := transfer.New(f.fn, f.params, a.table, a.conf.Transfer)
	return fixpoint.Analyze(in, a.conf.Fixpoint)
}

// component analyses the functions of c and stores their summaries.
func (a *analyzer) component(c *component) {
	recursive := false
	for _, f := range c.funcs {
		recursive = recursive || f.recursive
	}
	if !recursive {
		f := c.funcs[0]
		res, err := a.run(f)
		if err != nil {
			a.fail(c, f, err)
			return
		}
		a.conf.Log.Debugf("%s: %s", f.fn.Name, res.Summary(f.params))
		a.table.Put(res.Summary(f.params))
		c.findings = res.Findings
		return
	}

	for _, f := range c.funcs {
		a.table.Begin(f.fn.Name)
	}
	prev := map[string]*summary.Summary{}
	broken := map[string]bool{}
	for round := 1; ; round++ {
		c.findings = c.findings[:0]
		changed := false
		last := round >= a.conf.MaxSummaryRounds
		for _, f := range c.funcs {
			if broken[f.fn.Name] {
				continue
			}
			res, err := a.run(f)
			if err != nil {
				broken[f.fn.Name] = true
				a.fail(c, f, err)
				continue
			}
			s := res.Summary(f.params)
			if old, ok := prev[f.fn.Name]; !ok || !old.Equal(s) {
				changed = true
				if ok && last {
					// Give up on precision rather than iterate further.
					s.Return = old.Return.Widen(old.Return.Join(s.Return), a.conf.Fixpoint.Thresholds)
				}
			}
			prev[f.fn.Name] = s
			a.table.Put(s)
			c.findings = append(c.findings, res.Findings...)
		}
		a.conf.Log.Tracef("round %d of component %s: changed=%t", round, c, changed)
		if !changed || round > a.conf.MaxSummaryRounds {
			break
		}
	}
	for _, f := range c.funcs {
		if s, ok := prev[f.fn.Name]; ok {
			a.conf.Log.Debugf("%s: %s", f.fn.Name, s)
		}
	}
}

func (a *analyzer) fail(c *component, f *function, err error) {
	a.conf.Log.Warnf("skipping %s: %s", f.fn.Name, err)
	c.errs = append(c.errs, err)
	a.table.Put(summary.Top(f.fn.Name))
}

func (c *component) String() string {
	names := make([]string, len(c.funcs))
	for i, f := range c.funcs {
		names[i] = f.fn.Name
	}
	return fmt.Sprint(names)
}
