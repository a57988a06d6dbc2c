// Package lintcmd implements the boundcheck command line tool.
package lintcmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"reflect"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"

	"github.com/gookit/color"
	"golang.org/x/term"
	"golang.org/x/tools/go/buildutil"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/config"
	"github.com/techguru321/infer/lintcmd/version"
)

// Command represents the boundcheck command line tool.
type Command struct {
	name string

	flags struct {
		fs *flag.FlagSet

		tags         string
		tests        bool
		printVersion bool
		formatter    string
		config       string
		color        string

		debugCpuprofile string
		debugMemprofile string
		debugVersion    bool
		debugTrace      string
		debugLogLevel   string

		fail list
	}
}

// NewCommand returns a new Command.
func NewCommand(name string) *Command {
	cmd := &Command{name: name}
	cmd.initFlagSet(name)
	return cmd
}

// FlagSet returns the command's flag set.
func (cmd *Command) FlagSet() *flag.FlagSet {
	return cmd.flags.fs
}

func (cmd *Command) initFlagSet(name string) {
	flags := flag.NewFlagSet("", flag.ExitOnError)
	cmd.flags.fs = flags
	flags.Usage = usage(name, flags)

	flags.StringVar(&cmd.flags.tags, "tags", "", "List of `build tags`")
	flags.BoolVar(&cmd.flags.tests, "tests", true, "Include tests")
	flags.BoolVar(&cmd.flags.printVersion, "version", false, "Print version and exit")
	flags.StringVar(&cmd.flags.formatter, "f", "text", "Output `format` (valid choices are 'stylish', 'text', 'json', 'yaml' and 'null')")
	flags.StringVar(&cmd.flags.config, "config", "", "Load the configuration from `file` instead of boundcheck.conf files")
	flags.StringVar(&cmd.flags.color, "color", "auto", "Colorize stylish output: 'auto', 'always' or 'never'")

	flags.StringVar(&cmd.flags.debugCpuprofile, "debug.cpuprofile", "", "Write CPU profile to `file`")
	flags.StringVar(&cmd.flags.debugMemprofile, "debug.memprofile", "", "Write memory profile to `file`")
	flags.BoolVar(&cmd.flags.debugVersion, "debug.version", false, "Print detailed version information about this program")
	flags.StringVar(&cmd.flags.debugTrace, "debug.trace", "", "Write trace to `file`")
	flags.StringVar(&cmd.flags.debugLogLevel, "debug.log-level", "", "Override the configured log `level`")

	cmd.flags.fail = list{"DEFINITE_*"}
	flags.Var(&cmd.flags.fail, "fail", "Comma-separated list of finding `classes` that cause a non-zero exit status")
}

type list []string

func (list *list) String() string {
	return `"` + strings.Join(*list, ",") + `"`
}

func (list *list) Set(s string) error {
	if s == "" {
		*list = nil
		return nil
	}

	*list = strings.Split(s, ",")
	return nil
}

// ParseFlags parses command line flags.
// It must be called before calling Run.
func (cmd *Command) ParseFlags(args []string) {
	cmd.flags.fs.Parse(args)
}

func (cmd *Command) loadConfig() (config.Config, error) {
	var conf config.Config
	var err error
	if cmd.flags.config != "" {
		conf, err = config.LoadFile(cmd.flags.config)
	} else {
		var wd string
		wd, err = os.Getwd()
		if err == nil {
			conf, err = config.Load(wd)
		}
	}
	if err != nil {
		return config.Config{}, err
	}
	if lvl := cmd.flags.debugLogLevel; lvl != "" {
		if _, err := config.ParseLogLevel(lvl); err != nil {
			return config.Config{}, err
		}
		conf.Log.Level = lvl
	}
	return conf, nil
}

func (cmd *Command) useColor() (bool, error) {
	switch cmd.flags.color {
	case "always":
		color.ForceOpenColor()
		return true, nil
	case "never":
		return false, nil
	case "auto":
		return term.IsTerminal(int(os.Stdout.Fd())) && color.SupportColor(), nil
	}
	return false, fmt.Errorf("invalid value %q for flag -color", cmd.flags.color)
}

// Run analyses the packages named by the command line arguments and
// reports the findings.
// It always calls os.Exit and does not return.
func (cmd *Command) Run() {
	exit := func(code int) {
		if cmd.flags.debugCpuprofile != "" {
			pprof.StopCPUProfile()
		}
		if path := cmd.flags.debugMemprofile; path != "" {
			f, err := os.Create(path)
			if err != nil {
				panic(err)
			}
			runtime.GC()
			pprof.WriteHeapProfile(f)
		}
		if cmd.flags.debugTrace != "" {
			trace.Stop()
		}
		os.Exit(code)
	}
	if path := cmd.flags.debugCpuprofile; path != "" {
		f, err := os.Create(path)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
	}
	if path := cmd.flags.debugTrace; path != "" {
		f, err := os.Create(path)
		if err != nil {
			log.Fatal(err)
		}
		trace.Start(f)
	}

	if cmd.flags.debugVersion {
		version.Verbose(os.Stdout, cmd.name)
		exit(0)
	}
	if cmd.flags.printVersion {
		version.Print(os.Stdout, cmd.name)
		exit(0)
	}

	// Validate that the tags argument is well-formed. go/packages
	// doesn't detect malformed build flags and returns unhelpful
	// errors.
	tf := buildutil.TagsFlag{}
	if err := tf.Set(cmd.flags.tags); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("invalid value %q for flag -tags: %s", cmd.flags.tags, err))
		exit(2)
	}

	failOn, err := filterNames(classNames(), cmd.flags.fail)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid value for flag -fail: %s\n", err)
		exit(2)
	}
	colored, err := cmd.useColor()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exit(2)
	}
	f, err := newFormatter(cmd.flags.formatter, os.Stdout, colored)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exit(2)
	}

	conf, err := cmd.loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exit(1)
	}

	args := cmd.flags.fs.Args()
	if len(args) == 0 {
		args = []string{"."}
	}
	fs, warnings, err := doLint(context.Background(), args, &options{
		Config:    conf,
		Tags:      cmd.flags.tags,
		LintTests: cmd.flags.tests,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exit(1)
	}

	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	ds, numErrors := diagnostics(fs, failOn)
	f.Format(ds)
	if f, ok := f.(statter); ok {
		f.Stats(len(ds), numErrors, len(ds)-numErrors)
	}

	if numErrors > 0 {
		exit(1)
	}
	exit(0)
}

// diagnostics converts findings for output. Findings whose class is in
// failOn are errors, all others warnings.
func diagnostics(fs []bounds.Finding, failOn map[string]bool) ([]diagnostic, int) {
	ds := make([]diagnostic, 0, len(fs))
	numErrors := 0
	for _, f := range fs {
		d := diagnostic{
			Position: f.Pos,
			Class:    f.Class.String(),
			Kind:     f.Kind.String(),
			Func:     f.Func,
			Message:  f.Message(),
			Severity: severityWarning,
		}
		if failOn[d.Class] {
			d.Severity = severityError
			numErrors++
		}
		for _, step := range f.Trace {
			d.Related = append(d.Related, related{Position: step.Pos, Message: step.Description})
		}
		ds = append(ds, d)
	}
	return ds, numErrors
}

func usage(name string, fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [packages]\n", name)

		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Flags:")
		printDefaults(fs)

		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "For help about specifying packages, see 'go help packages'")
	}
}

// isZeroValue determines whether the string represents the zero
// value for a flag.
//
// this function has been copied from the Go standard library's 'flag' package.
func isZeroValue(f *flag.Flag, value string) bool {
	typ := reflect.TypeOf(f.Value)
	var z reflect.Value
	if typ.Kind() == reflect.Ptr {
		z = reflect.New(typ.Elem())
	} else {
		z = reflect.Zero(typ)
	}
	return value == z.Interface().(flag.Value).String()
}

// this function has been copied from the Go standard library's 'flag' package and modified to skip debug flags.
func printDefaults(fs *flag.FlagSet) {
	fs.VisitAll(func(f *flag.Flag) {
		if strings.HasPrefix(f.Name, "debug.") {
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "  -%s", f.Name)
		name, usage := flag.UnquoteUsage(f)
		if len(name) > 0 {
			b.WriteString(" ")
			b.WriteString(name)
		}
		// Boolean flags of one ASCII letter go on the same line as
		// their usage.
		if b.Len() <= 4 {
			b.WriteString("\t")
		} else {
			b.WriteString("\n    \t")
		}
		b.WriteString(strings.ReplaceAll(usage, "\n", "\n    \t"))

		if !isZeroValue(f, f.DefValue) {
			if T := reflect.TypeOf(f.Value); T.Name() == "*stringValue" && T.PkgPath() == "flag" {
				fmt.Fprintf(&b, " (default %q)", f.DefValue)
			} else {
				fmt.Fprintf(&b, " (default %v)", f.DefValue)
			}
		}
		fmt.Fprint(fs.Output(), b.String(), "\n")
	})
}
