package lintcmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/techguru321/infer/analysis/boundcheck"
	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/program"
	"github.com/techguru321/infer/config"
	"github.com/techguru321/infer/report"
)

type options struct {
	Config    config.Config
	Tags      string
	LintTests bool
	// Dir and Env are passed to go/packages.
	Dir string
	Env []string
}

const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedImports | packages.NeedDeps |
	packages.NeedTypes | packages.NeedTypesSizes | packages.NeedSyntax | packages.NeedTypesInfo

// doLint loads the packages matching patterns and analyses their functions
// together, so that calls between them use each other's summaries. It
// returns the enabled findings and warnings about code that could not be
// analysed.
func doLint(ctx context.Context, patterns []string, opts *options) ([]bounds.Finding, []string, error) {
	pconf := &packages.Config{
		Context: ctx,
		Mode:    loadMode,
		Tests:   opts.LintTests,
		Dir:     opts.Dir,
		Env:     opts.Env,
	}
	if opts.Tags != "" {
		pconf.BuildFlags = []string{"-tags=" + opts.Tags}
	}
	initial, err := packages.Load(pconf, patterns...)
	if err != nil {
		return nil, nil, err
	}
	if len(initial) == 0 {
		return nil, nil, errors.New("no packages matched")
	}

	var warnings []string
	packages.Visit(initial, nil, func(pkg *packages.Package) {
		for _, err := range pkg.Errors {
			warnings = append(warnings, err.Error())
		}
	})

	prog, ssaPkgs := ssautil.AllPackages(initial, ssa.InstantiateGenerics)
	prog.Build()

	roots := map[*ssa.Package]bool{}
	for i, root := range rootPackages(initial) {
		if ssaPkgs[i] == nil {
			warnings = append(warnings, fmt.Sprintf("skipping %s: package has errors", initial[i].ID))
			continue
		}
		if root {
			roots[ssaPkgs[i]] = true
		}
	}

	log := opts.Config.LogGroup()
	lopts := boundcheck.Options{IntSize: opts.Config.Analysis.IntSize}
	if sizes := initial[0].TypesSizes; sizes != nil {
		lopts.Sizes = sizes
	}

	srcs := boundcheck.Functions(ssautil.AllFunctions(prog), roots)
	lowered := make([]*cfg.Function, len(srcs))
	lowerErrs := make([]error, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, fn := range srcs {
		i, fn := i, fn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lowered[i], lowerErrs[i] = boundcheck.Lower(fn, lopts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	fns := lowered[:0]
	for i, fn := range lowered {
		if lowerErrs[i] != nil {
			warnings = append(warnings, fmt.Sprintf("skipping %s: %s", boundcheck.Name(srcs[i]), lowerErrs[i]))
			continue
		}
		fns = append(fns, fn)
	}
	log.Infof("lowered %d functions in %d packages", len(fns), len(roots))

	aconf := program.NewConfig(opts.Config)
	aconf.Log = log
	res, err := program.Analyze(ctx, fns, aconf)
	if err != nil {
		return nil, nil, err
	}
	for _, err := range res.Errors {
		warnings = append(warnings, err.Error())
	}

	var c report.Collector
	report.All(report.Filter(&c, opts.Config), boundcheck.Dedupe(res.Findings))
	return c.Findings(), warnings, nil
}

// rootPackages reports which of pkgs to analyse. With tests enabled, a
// package is loaded twice, and only its test variant is kept. Generated
// test mains are skipped.
func rootPackages(pkgs []*packages.Package) []bool {
	variants := map[string]bool{}
	for _, pkg := range pkgs {
		if strings.HasSuffix(pkg.ID, ".test]") && strings.HasPrefix(pkg.ID, pkg.PkgPath+" [") {
			variants[pkg.PkgPath] = true
		}
	}
	out := make([]bool, len(pkgs))
	for i, pkg := range pkgs {
		switch {
		case strings.HasSuffix(pkg.ID, ".test"):
		case pkg.ID == pkg.PkgPath && variants[pkg.PkgPath]:
		default:
			out[i] = true
		}
	}
	return out
}

var validPattern = regexp.MustCompile(`^[A-Za-z_*]+$`)

// filterNames returns which of names are enabled by patterns. A pattern
// is a name, a glob, or "all", optionally prefixed with "-" to disable
// what it matches. Later patterns override earlier ones. Matching is case
// insensitive.
func filterNames(names []string, patterns []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		enable := true
		if strings.HasPrefix(pattern, "-") {
			enable = false
			pattern = pattern[1:]
		}
		if strings.EqualFold(pattern, "all") {
			pattern = "*"
		}
		if !validPattern.MatchString(pattern) {
			return nil, fmt.Errorf("unknown class %q", pattern)
		}
		pattern = strings.ToUpper(pattern)

		matched := false
		for _, name := range names {
			ok, err := filepath.Match(pattern, strings.ToUpper(name))
			if err != nil {
				return nil, err
			}
			if ok {
				out[name] = enable
				matched = true
			}
		}
		if !matched {
			if strings.Contains(pattern, "*") {
				return nil, fmt.Errorf("%q matched no classes", pattern)
			}
			return nil, fmt.Errorf("unknown class %q", pattern)
		}
	}
	return out, nil
}

// classNames lists the classes of findings.
func classNames() []string {
	var out []string
	for _, c := range []bounds.Class{bounds.DefiniteOverrun, bounds.DefiniteUnderrun, bounds.Possible, bounds.UnknownSafe} {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return out
}
