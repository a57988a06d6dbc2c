// Package config loads the configuration of the bounds checker.
//
// Configuration files named boundcheck.conf are TOML files. They are looked
// up in the analysed directory and all of its parents, and merged so that
// files closer to the code override files further away. List values may
// contain the special element "inherit", which is replaced by the value of
// the enclosing configuration. A single file can also be loaded with
// LoadFile, which accepts TOML and YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/techguru321/infer/analysis/bounds"
)

type config struct {
	cfg  Config
	meta toml.MetaData
}

func mergeLists(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, el := range b {
		if el == "inherit" {
			out = append(out, a...)
		} else {
			out = append(out, el)
		}
	}
	return out
}

func normalizeList(list []string) []string {
	if len(list) > 1 {
		sort.Strings(list)
		nlist := make([]string, 0, len(list))
		nlist = append(nlist, list[0])
		for i, el := range list[1:] {
			if el != list[i] {
				nlist = append(nlist, el)
			}
		}
		list = nlist
	}

	for _, el := range list {
		if el == "inherit" {
			// This should never happen, because the default config
			// should not use "inherit"
			panic(`unresolved "inherit"`)
		}
		if el == "all" {
			return []string{"all"}
		}
	}

	return list
}

func normalizeThresholds(ts []int64) []int64 {
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	out := ts[:0]
	for i, t := range ts {
		if i == 0 || t != ts[i-1] {
			out = append(out, t)
		}
	}
	return out
}

func (cfg config) Merge(ocfg config) config {
	a, oa := &cfg.cfg.Analysis, ocfg.cfg.Analysis
	if ocfg.meta.IsDefined("analysis", "widening_thresholds") {
		a.WideningThresholds = oa.WideningThresholds
	}
	if ocfg.meta.IsDefined("analysis", "widening_delay") {
		a.WideningDelay = oa.WideningDelay
	}
	if ocfg.meta.IsDefined("analysis", "narrowing_passes") {
		a.NarrowingPasses = oa.NarrowingPasses
	}
	if ocfg.meta.IsDefined("analysis", "max_summary_rounds") {
		a.MaxSummaryRounds = oa.MaxSummaryRounds
	}
	if ocfg.meta.IsDefined("analysis", "big_alloc_threshold") {
		a.BigAllocThreshold = oa.BigAllocThreshold
	}
	if ocfg.meta.IsDefined("analysis", "int_size") {
		a.IntSize = oa.IntSize
	}

	r, or := &cfg.cfg.Report, ocfg.cfg.Report
	if ocfg.meta.IsDefined("report", "report_unknown_safe") {
		r.ReportUnknownSafe = or.ReportUnknownSafe
	}
	if ocfg.meta.IsDefined("report", "report_possible") {
		r.ReportPossible = or.ReportPossible
	}
	if ocfg.meta.IsDefined("report", "kinds") {
		r.Kinds = mergeLists(r.Kinds, or.Kinds)
	}

	if ocfg.meta.IsDefined("log", "level") {
		cfg.cfg.Log.Level = ocfg.cfg.Log.Level
	}
	return cfg
}

type Config struct {
	Analysis AnalysisConfig `toml:"analysis" yaml:"analysis"`
	Report   ReportConfig   `toml:"report" yaml:"report"`
	Log      LogConfig      `toml:"log" yaml:"log"`
}

type AnalysisConfig struct {
	// Widening first tries these values before giving up on a bound.
	WideningThresholds []int64 `toml:"widening_thresholds" yaml:"widening_thresholds"`
	WideningDelay      int     `toml:"widening_delay" yaml:"widening_delay"`
	NarrowingPasses    int     `toml:"narrowing_passes" yaml:"narrowing_passes"`
	// MaxSummaryRounds bounds the re-analysis of mutually recursive
	// functions.
	MaxSummaryRounds  int   `toml:"max_summary_rounds" yaml:"max_summary_rounds"`
	BigAllocThreshold int64 `toml:"big_alloc_threshold" yaml:"big_alloc_threshold"`
	// IntSize is the size in bytes of int and uint.
	IntSize int64 `toml:"int_size" yaml:"int_size"`
}

type ReportConfig struct {
	ReportUnknownSafe bool `toml:"report_unknown_safe" yaml:"report_unknown_safe"`
	ReportPossible    bool `toml:"report_possible" yaml:"report_possible"`
	// Kinds lists the issue kinds to report, or "all".
	Kinds []string `toml:"kinds" yaml:"kinds"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

var defaultConfig = Config{
	Analysis: AnalysisConfig{
		WideningThresholds: []int64{},
		WideningDelay:      2,
		NarrowingPasses:    2,
		MaxSummaryRounds:   4,
		BigAllocThreshold:  1_000_000_000,
		IntSize:            8,
	},
	Report: ReportConfig{
		ReportUnknownSafe: true,
		ReportPossible:    true,
		Kinds:             []string{"all"},
	},
	Log: LogConfig{Level: "warn"},
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	cfg := defaultConfig
	cfg.Analysis.WideningThresholds = append([]int64(nil), defaultConfig.Analysis.WideningThresholds...)
	cfg.Report.Kinds = append([]string(nil), defaultConfig.Report.Kinds...)
	return cfg
}

const configName = "boundcheck.conf"

func parseConfigs(dir string) ([]config, error) {
	var out []config

	for dir != "" {
		path := filepath.Join(dir, configName)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			ndir := filepath.Dir(dir)
			if ndir == dir {
				break
			}
			dir = ndir
			continue
		}
		if err != nil {
			return nil, err
		}
		var cfg Config
		meta, err := toml.DecodeReader(f, &cfg)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, config{cfg, meta})
		ndir := filepath.Dir(dir)
		if ndir == dir {
			break
		}
		dir = ndir
	}
	out = append(out, config{
		cfg:  Default(),
		meta: toml.MetaData{}, // meta of the base config should never be accessed
	})
	if len(out) < 2 {
		return out, nil
	}
	for i := 0; i < len(out)/2; i++ {
		out[i], out[len(out)-1-i] = out[len(out)-1-i], out[i]
	}
	return out, nil
}

func mergeConfigs(confs []config) Config {
	if len(confs) == 0 {
		// This shouldn't happen because we always have at least a
		// default config.
		panic("trying to merge zero configs")
	}
	if len(confs) == 1 {
		return confs[0].cfg
	}
	conf := confs[0]
	for _, oconf := range confs[1:] {
		conf = conf.Merge(oconf)
	}
	return conf.cfg
}

// Load returns the configuration for the code in dir.
func Load(dir string) (Config, error) {
	confs, err := parseConfigs(dir)
	if err != nil {
		return Config{}, err
	}
	return finish(mergeConfigs(confs), filepath.Join(dir, configName))
}

// LoadFile loads a single configuration file on top of the defaults.
// Files ending in .yaml or .yml are decoded as YAML, all others as TOML.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var conf Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		conf = Default()
		kinds := conf.Report.Kinds
		conf.Report.Kinds = nil
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&conf); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		if conf.Report.Kinds == nil {
			conf.Report.Kinds = kinds
		} else {
			conf.Report.Kinds = mergeLists(kinds, conf.Report.Kinds)
		}
	default:
		var cfg Config
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		conf = config{cfg: Default()}.Merge(config{cfg, meta}).cfg
	}
	return finish(conf, path)
}

func finish(conf Config, path string) (Config, error) {
	conf.Report.Kinds = normalizeList(conf.Report.Kinds)
	conf.Analysis.WideningThresholds = normalizeThresholds(conf.Analysis.WideningThresholds)
	if err := conf.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return conf, nil
}

func (conf Config) validate() error {
	a := conf.Analysis
	switch {
	case a.WideningDelay < 1:
		return fmt.Errorf("widening_delay must be at least 1, is %d", a.WideningDelay)
	case a.NarrowingPasses < 0:
		return fmt.Errorf("narrowing_passes must not be negative, is %d", a.NarrowingPasses)
	case a.MaxSummaryRounds < 1:
		return fmt.Errorf("max_summary_rounds must be at least 1, is %d", a.MaxSummaryRounds)
	case a.BigAllocThreshold < 1:
		return fmt.Errorf("big_alloc_threshold must be positive, is %d", a.BigAllocThreshold)
	case a.IntSize != 4 && a.IntSize != 8:
		return fmt.Errorf("int_size must be 4 or 8, is %d", a.IntSize)
	}
	for _, k := range conf.Report.Kinds {
		if k == "all" {
			continue
		}
		if _, ok := bounds.ParseKind(k); !ok {
			return fmt.Errorf("unknown issue kind %q", k)
		}
	}
	if _, err := ParseLogLevel(conf.Log.Level); err != nil {
		return err
	}
	return nil
}

// Reports reports whether findings of the given kind and class are
// enabled.
func (conf Config) Reports(kind bounds.Kind, class bounds.Class) bool {
	switch class {
	case bounds.Safe:
		return false
	case bounds.UnknownSafe:
		if !conf.Report.ReportUnknownSafe {
			return false
		}
	case bounds.Possible:
		if !conf.Report.ReportPossible {
			return false
		}
	}
	for _, k := range conf.Report.Kinds {
		if k == "all" || k == kind.String() {
			return true
		}
	}
	return false
}
