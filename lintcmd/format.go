package lintcmd

import (
	"encoding/json"
	"fmt"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/gookit/color"
	"gopkg.in/yaml.v3"
)

type severity uint8

const (
	severityError severity = iota
	severityWarning
)

func (s severity) String() string {
	switch s {
	case severityError:
		return "error"
	case severityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", s)
	}
}

type related struct {
	Position token.Position
	Message  string
}

type diagnostic struct {
	Position token.Position
	Class    string
	Kind     string
	Func     string
	Message  string
	Severity severity
	Related  []related
}

func (d diagnostic) String() string {
	return fmt.Sprintf("%s (%s)", d.Message, d.Class)
}

func shortPath(path string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(cwd, path); err == nil && len(rel) < len(path) {
		return rel
	}
	return path
}

func relativePositionString(pos token.Position) string {
	s := shortPath(pos.Filename)
	if pos.IsValid() {
		if s != "" {
			s += ":"
		}
		s += fmt.Sprintf("%d:%d", pos.Line, pos.Column)
	}
	if s == "" {
		s = "-"
	}
	return s
}

type statter interface {
	Stats(total, errors, warnings int)
}

type formatter interface {
	Format(ds []diagnostic)
}

func newFormatter(name string, w io.Writer, colored bool) (formatter, error) {
	switch name {
	case "text":
		return textFormatter{W: w}, nil
	case "stylish":
		return &stylishFormatter{W: w, Color: colored}, nil
	case "json":
		return jsonFormatter{W: w}, nil
	case "yaml":
		return yamlFormatter{W: w}, nil
	case "null":
		return nullFormatter{}, nil
	}
	return nil, fmt.Errorf("unsupported output format %q", name)
}

type textFormatter struct {
	W io.Writer
}

func (o textFormatter) Format(ds []diagnostic) {
	for _, d := range ds {
		fmt.Fprintf(o.W, "%s: %s\n", relativePositionString(d.Position), d.String())
		for _, r := range d.Related {
			fmt.Fprintf(o.W, "\t%s: %s\n", relativePositionString(r.Position), r.Message)
		}
	}
}

type nullFormatter struct{}

func (nullFormatter) Format([]diagnostic) {}

type location struct {
	File   string `json:"file" yaml:"file"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
}

func locationOf(pos token.Position) location {
	return location{File: pos.Filename, Line: pos.Line, Column: pos.Column}
}

type relatedRecord struct {
	Location location `json:"location" yaml:"location"`
	Message  string   `json:"message" yaml:"message"`
}

type record struct {
	Class    string          `json:"class" yaml:"class"`
	Kind     string          `json:"kind" yaml:"kind"`
	Severity string          `json:"severity,omitempty" yaml:"severity,omitempty"`
	Function string          `json:"function" yaml:"function"`
	Location location        `json:"location" yaml:"location"`
	Message  string          `json:"message" yaml:"message"`
	Related  []relatedRecord `json:"related,omitempty" yaml:"related,omitempty"`
}

func recordOf(d diagnostic) record {
	r := record{
		Class:    d.Class,
		Kind:     d.Kind,
		Severity: d.Severity.String(),
		Function: d.Func,
		Location: locationOf(d.Position),
		Message:  d.Message,
	}
	for _, rel := range d.Related {
		r.Related = append(r.Related, relatedRecord{Location: locationOf(rel.Position), Message: rel.Message})
	}
	return r
}

// jsonFormatter writes one JSON object per line.
type jsonFormatter struct {
	W io.Writer
}

func (o jsonFormatter) Format(ds []diagnostic) {
	enc := json.NewEncoder(o.W)
	for _, d := range ds {
		_ = enc.Encode(recordOf(d))
	}
}

// yamlFormatter writes a single YAML document holding a list of findings.
type yamlFormatter struct {
	W io.Writer
}

func (o yamlFormatter) Format(ds []diagnostic) {
	rs := make([]record, 0, len(ds))
	for _, d := range ds {
		rs = append(rs, recordOf(d))
	}
	enc := yaml.NewEncoder(o.W)
	enc.SetIndent(2)
	_ = enc.Encode(rs)
	_ = enc.Close()
}

var (
	errorStyle   = color.New(color.FgRed, color.OpBold)
	warningStyle = color.New(color.FgYellow)
	successStyle = color.New(color.FgGreen)
)

type stylishFormatter struct {
	W     io.Writer
	Color bool

	prevFile string
	tw       *tabwriter.Writer
}

func (o *stylishFormatter) style(s color.Style, text string) string {
	if !o.Color {
		return text
	}
	return s.Sprint(text)
}

func (o *stylishFormatter) Format(ds []diagnostic) {
	for _, d := range ds {
		pos := d.Position
		if pos.Filename == "" {
			pos.Filename = "-"
		}

		if pos.Filename != o.prevFile {
			if o.prevFile != "" {
				o.tw.Flush()
				fmt.Fprintln(o.W)
			}
			fmt.Fprintln(o.W, pos.Filename)
			o.prevFile = pos.Filename
			o.tw = tabwriter.NewWriter(o.W, 0, 4, 2, ' ', 0)
		}

		class := o.style(warningStyle, d.Class)
		if d.Severity == severityError {
			class = o.style(errorStyle, d.Class)
		}

		fmt.Fprintf(o.tw, "  (%d, %d)\t%s\t%s\n", pos.Line, pos.Column, class, d.Message)
		for _, r := range d.Related {
			fmt.Fprintf(o.tw, "    (%d, %d)\t\t  %s\n", r.Position.Line, r.Position.Column, r.Message)
		}
	}
}

func (o *stylishFormatter) Stats(total, errors, warnings int) {
	if o.tw != nil {
		o.tw.Flush()
		fmt.Fprintln(o.W)
	}

	icon := o.style(successStyle, "✔")
	if warnings != 0 {
		icon = o.style(warningStyle, "!")
	}
	if errors != 0 {
		icon = o.style(errorStyle, "✘")
	}

	fmt.Fprintf(o.W, " %s %d problems (%d errors, %d warnings)\n", icon, total, errors, warnings)
}
