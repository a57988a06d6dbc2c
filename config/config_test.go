package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/techguru321/infer/analysis/bounds"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	conf, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(conf, Default()) {
		t.Errorf("got %+v, want the defaults", conf)
	}
}

func TestLoadMerges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, configName), `
[analysis]
widening_thresholds = [100, 10, 100]
max_summary_rounds = 7

[report]
kinds = ["index"]
`)
	sub := filepath.Join(root, "pkg", "sub")
	writeFile(t, filepath.Join(sub, configName), `
[analysis]
widening_delay = 3

[report]
kinds = ["inherit", "bulk"]
report_unknown_safe = false
`)

	conf, err := Load(sub)
	if err != nil {
		t.Fatal(err)
	}
	a := conf.Analysis
	if a.WideningDelay != 3 || a.MaxSummaryRounds != 7 || a.NarrowingPasses != 2 {
		t.Errorf("got analysis section %+v", a)
	}
	if want := []int64{10, 100}; !reflect.DeepEqual(a.WideningThresholds, want) {
		t.Errorf("got thresholds %v, want %v", a.WideningThresholds, want)
	}
	if want := []string{"bulk", "index"}; !reflect.DeepEqual(conf.Report.Kinds, want) {
		t.Errorf("got kinds %v, want %v", conf.Report.Kinds, want)
	}
	if conf.Report.ReportUnknownSafe {
		t.Error("report_unknown_safe was not overridden")
	}

	// the parent directory doesn't see the child's settings
	conf, err = Load(filepath.Join(root, "pkg"))
	if err != nil {
		t.Fatal(err)
	}
	if conf.Analysis.WideningDelay != 2 || !conf.Report.ReportUnknownSafe {
		t.Errorf("got %+v", conf)
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boundcheck.yaml")
	writeFile(t, path, `
analysis:
  narrowing_passes: 0
report:
  report_possible: false
  kinds: [alloc, array-size]
log:
  level: debug
`)
	conf, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Analysis.NarrowingPasses != 0 || conf.Analysis.WideningDelay != 2 {
		t.Errorf("got analysis section %+v", conf.Analysis)
	}
	if conf.Report.ReportPossible || !conf.Report.ReportUnknownSafe {
		t.Errorf("got report section %+v", conf.Report)
	}
	if conf.Reports(bounds.Index, bounds.DefiniteOverrun) || !conf.Reports(bounds.Allocation, bounds.DefiniteOverrun) {
		t.Error("kinds are not honoured")
	}
	if conf.Reports(bounds.ArraySize, bounds.Possible) {
		t.Error("possible findings are reported although disabled")
	}
	if conf.LogGroup().Level() != DebugLevel {
		t.Errorf("got log level %d", conf.LogGroup().Level())
	}
}

func TestLoadFileEmptyYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yml")
	writeFile(t, path, "")
	conf, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(conf, Default()) {
		t.Errorf("got %+v, want the defaults", conf)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, file, data, want string
	}{
		{"bad toml", "a.conf", "[analysis\n", "a.conf"},
		{"bad delay", "b.conf", "[analysis]\nwidening_delay = 0\n", "widening_delay"},
		{"bad int size", "c.toml", "[analysis]\nint_size = 3\n", "int_size"},
		{"bad kind", "d.conf", "[report]\nkinds = [\"index\", \"pointer\"]\n", `"pointer"`},
		{"bad level", "e.yaml", "log:\n  level: loud\n", "loud"},
		{"unknown yaml field", "f.yaml", "analysis:\n  widen: 3\n", "widen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			writeFile(t, path, tt.data)
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestMergeLists(t *testing.T) {
	got := normalizeList(mergeLists([]string{"index", "bulk"}, []string{"alloc", "inherit", "index"}))
	if want := []string{"alloc", "bulk", "index"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := normalizeList([]string{"index", "all"}); !reflect.DeepEqual(got, []string{"all"}) {
		t.Errorf("got %v, want [all]", got)
	}
}

func TestLogGroup(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogGroup(InfoLevel)
	l.SetAllOutput(&buf)
	l.SetAllFlags(0)
	l.Debugf("hidden")
	l.Infof("shown %d", 1)
	l.Errorf("failed")
	if got, want := buf.String(), "[INFO] shown 1\n[ERROR] failed\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if _, err := ParseLogLevel("TRACE"); err != nil {
		t.Error(err)
	}
}
