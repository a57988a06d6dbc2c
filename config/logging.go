package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type LogLevel int

const (
	// ErrLevel is the minimum level of logging.
	ErrLevel LogLevel = iota + 1

	// WarnLevel logs warnings and errors, such as functions that could not
	// be analysed.
	WarnLevel

	// InfoLevel logs high-level progress.
	InfoLevel

	// DebugLevel logs every analysed function and summary.
	DebugLevel

	// TraceLevel logs the iteration of the fixpoint engine. It is only
	// useful on small programs.
	TraceLevel
)

var levelNames = map[string]LogLevel{
	"error": ErrLevel,
	"warn":  WarnLevel,
	"info":  InfoLevel,
	"debug": DebugLevel,
	"trace": TraceLevel,
}

// ParseLogLevel parses one of error, warn, info, debug and trace. The empty
// string means warn.
func ParseLogLevel(s string) (LogLevel, error) {
	if s == "" {
		return WarnLevel, nil
	}
	if l, ok := levelNames[strings.ToLower(s)]; ok {
		return l, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

type LogGroup struct {
	level LogLevel
	trace *log.Logger
	debug *log.Logger
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
}

// NewLogGroup returns a log group writing messages up to level to standard
// error.
func NewLogGroup(level LogLevel) *LogGroup {
	return &LogGroup{
		level: level,
		trace: log.New(os.Stderr, "[TRACE] ", log.LstdFlags),
		debug: log.New(os.Stderr, "[DEBUG] ", log.LstdFlags),
		info:  log.New(os.Stderr, "[INFO] ", log.LstdFlags),
		warn:  log.New(os.Stderr, "[WARN] ", log.LstdFlags),
		err:   log.New(os.Stderr, "[ERROR] ", log.LstdFlags),
	}
}

// LogGroup returns the log group configured by the log section.
func (conf Config) LogGroup() *LogGroup {
	level, err := ParseLogLevel(conf.Log.Level)
	if err != nil {
		level = WarnLevel
	}
	return NewLogGroup(level)
}

func (l *LogGroup) Level() LogLevel { return l.level }

// SetAllOutput sets all the output writers to the writer provided
func (l *LogGroup) SetAllOutput(w io.Writer) {
	l.trace.SetOutput(w)
	l.debug.SetOutput(w)
	l.info.SetOutput(w)
	l.warn.SetOutput(w)
	l.err.SetOutput(w)
}

// SetAllFlags sets the flag of all loggers in the log group to the argument provided
func (l *LogGroup) SetAllFlags(x int) {
	l.trace.SetFlags(x)
	l.debug.SetFlags(x)
	l.info.SetFlags(x)
	l.warn.SetFlags(x)
	l.err.SetFlags(x)
}

func (l *LogGroup) Tracef(format string, v ...any) {
	if l.level >= TraceLevel {
		l.trace.Printf(format, v...)
	}
}

func (l *LogGroup) Debugf(format string, v ...any) {
	if l.level >= DebugLevel {
		l.debug.Printf(format, v...)
	}
}

func (l *LogGroup) Infof(format string, v ...any) {
	if l.level >= InfoLevel {
		l.info.Printf(format, v...)
	}
}

func (l *LogGroup) Warnf(format string, v ...any) {
	if l.level >= WarnLevel {
		l.warn.Printf(format, v...)
	}
}

func (l *LogGroup) Errorf(format string, v ...any) {
	if l.level >= ErrLevel {
		l.err.Printf(format, v...)
	}
}

// Debug returns the debug logger, for code that needs a *log.Logger.
func (l *LogGroup) Debug() *log.Logger { return l.debug }
