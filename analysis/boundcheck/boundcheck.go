// Package boundcheck checks slice and array accesses in Go packages with
// the interval analysis.
//
// Functions are lowered from SSA form into control-flow graphs and
// analysed bottom-up over the package's call graph. Calls into other
// packages are treated as calls to unknown functions.
package boundcheck

import (
	"context"
	"go/token"
	"path/filepath"
	"reflect"
	"sort"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/ssa"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/program"
	"github.com/techguru321/infer/config"
	"github.com/techguru321/infer/report"
)

const doc = `check slice and array indices against their bounds

The boundcheck analysis computes symbolic intervals for the integer values
of each function and reports indices and lengths that are, or may be, out
of bounds. Findings are classified as definite overruns and underruns,
possible overruns, and accesses that could not be proven safe because of
lost precision.`

var Analyzer = &analysis.Analyzer{
	Name:       "boundcheck",
	Doc:        doc,
	Run:        run,
	Requires:   []*analysis.Analyzer{buildssa.Analyzer},
	ResultType: reflect.TypeOf((*program.Result)(nil)),
}

var configFile string

func init() {
	Analyzer.Flags.StringVar(&configFile, "config", "", "load the configuration from this file instead of boundcheck.conf files")
}

func loadConfig(pass *analysis.Pass) (config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	for _, f := range pass.Files {
		if tf := pass.Fset.File(f.Pos()); tf != nil {
			return config.Load(filepath.Dir(tf.Name()))
		}
	}
	return config.Default(), nil
}

func run(pass *analysis.Pass) (interface{}, error) {
	conf, err := loadConfig(pass)
	if err != nil {
		return nil, err
	}
	log := conf.LogGroup()
	opts := Options{Sizes: pass.TypesSizes, IntSize: conf.Analysis.IntSize}

	var fns []*cfg.Function
	for _, fn := range pass.ResultOf[buildssa.Analyzer].(*buildssa.SSA).SrcFuncs {
		lowered, err := Lower(fn, opts)
		if err != nil {
			log.Warnf("skipping %s: %s", Name(fn), err)
			continue
		}
		log.Tracef("%s", lowered)
		fns = append(fns, lowered)
	}

	pconf := program.NewConfig(conf)
	pconf.Log = log
	res, err := program.Analyze(context.Background(), fns, pconf)
	if err != nil {
		return nil, err
	}

	report.All(report.Filter(report.Pass(pass), conf), Dedupe(res.Findings))
	return res, nil
}

// Dedupe removes findings that repeat the position, kind and class of an
// earlier finding. The read and the write of a[i] += x are checked
// separately but reported once.
func Dedupe(fs []bounds.Finding) []bounds.Finding {
	type key struct {
		pos   token.Position
		kind  bounds.Kind
		class bounds.Class
	}
	seen := map[key]bool{}
	out := fs[:0:0]
	for _, f := range fs {
		k := key{f.Pos, f.Kind, f.Class}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}

// Functions returns the functions of pkgs that have bodies, sorted by
// name.
func Functions(fns map[*ssa.Function]bool, pkgs map[*ssa.Package]bool) []*ssa.Function {
	var out []*ssa.Function
	for fn := range fns {
		if len(fn.Blocks) == 0 || fn.Synthetic != "" {
			continue
		}
		if pkg := pkgOf(fn); pkg == nil || !pkgs[pkg] {
			continue
		}
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return Name(out[i]) < Name(out[j]) })
	return out
}

func pkgOf(fn *ssa.Function) *ssa.Package {
	for fn.Parent() != nil {
		fn = fn.Parent()
	}
	if fn.Pkg != nil {
		return fn.Pkg
	}
	if fn.Origin() != nil {
		return fn.Origin().Pkg
	}
	return nil
}
