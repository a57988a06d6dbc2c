// Package report delivers findings to their consumers.
package report

import (
	"go/token"
	"sync"

	"golang.org/x/tools/go/analysis"

	"github.com/techguru321/infer/analysis/bounds"
	"github.com/techguru321/infer/analysis/program"
	"github.com/techguru321/infer/config"
)

// A Sink receives findings. Sinks may be called concurrently.
type Sink interface {
	Report(f bounds.Finding)
}

// Func adapts a function to the Sink interface.
type Func func(f bounds.Finding)

func (fn Func) Report(f bounds.Finding) { fn(f) }

// Collector is a sink that keeps every finding it receives.
type Collector struct {
	mu       sync.Mutex
	findings []bounds.Finding
}

func (c *Collector) Report(f bounds.Finding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.findings = append(c.findings, f)
}

// Findings returns the collected findings sorted by position.
func (c *Collector) Findings() []bounds.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]bounds.Finding(nil), c.findings...)
	program.SortFindings(out)
	return out
}

// Filter returns a sink that passes on the findings conf enables.
func Filter(sink Sink, conf config.Config) Sink {
	return Func(func(f bounds.Finding) {
		if conf.Reports(f.Kind, f.Class) {
			sink.Report(f)
		}
	})
}

// All reports fs to sink.
func All(sink Sink, fs []bounds.Finding) {
	for _, f := range fs {
		sink.Report(f)
	}
}

type passSink struct {
	pass  *analysis.Pass
	files map[string]*token.File
}

// Pass returns a sink that reports findings as diagnostics of pass. The
// class of a finding becomes the diagnostic's category and its trace the
// related information. Findings outside the pass's files are dropped.
func Pass(pass *analysis.Pass) Sink {
	s := passSink{pass: pass, files: map[string]*token.File{}}
	for _, f := range pass.Files {
		if tf := pass.Fset.File(f.Pos()); tf != nil {
			s.files[tf.Name()] = tf
		}
	}
	return s
}

func (s passSink) pos(p token.Position) token.Pos {
	tf, ok := s.files[p.Filename]
	if !ok || p.Line < 1 || p.Line > tf.LineCount() {
		return token.NoPos
	}
	pos := tf.LineStart(p.Line)
	if p.Column > 1 && tf.Offset(pos)+p.Column-1 <= tf.Size() {
		pos += token.Pos(p.Column - 1)
	}
	return pos
}

func (s passSink) Report(f bounds.Finding) {
	pos := s.pos(f.Pos)
	if !pos.IsValid() {
		return
	}
	d := analysis.Diagnostic{
		Pos:      pos,
		Category: f.Class.String(),
		Message:  f.Message(),
	}
	for _, step := range f.Trace {
		if p := s.pos(step.Pos); p.IsValid() {
			d.Related = append(d.Related, analysis.RelatedInformation{Pos: p, Message: step.Description})
		}
	}
	s.pass.Report(d)
}
