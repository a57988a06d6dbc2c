// Package version reports the version of the boundcheck binary.
package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version is set for releases. Development builds fall back to the
// module version recorded in the binary's build information.
const Version = "devel"

// describe returns the version line for the binary called name.
func describe(name, release string, info *debug.BuildInfo) string {
	if release != "devel" {
		return fmt.Sprintf("%s %s", name, release)
	}
	if info == nil || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return fmt.Sprintf("%s (no version)", name)
	}
	return fmt.Sprintf("%s (devel, %s)", name, info.Main.Version)
}

func buildInfo() *debug.BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return info
}

// Print writes the version of the binary called name to w.
func Print(w io.Writer, name string) {
	fmt.Fprintln(w, describe(name, Version, buildInfo()))
}

// Verbose writes the version, the Go version and the modules the binary
// was built from to w.
func Verbose(w io.Writer, name string) {
	info := buildInfo()
	fmt.Fprintln(w, describe(name, Version, info))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Compiled with Go version:", runtime.Version())
	if info == nil {
		fmt.Fprintln(w, "Built without Go modules")
		return
	}
	fmt.Fprintln(w, "Main module:")
	fmt.Fprintln(w, formatModule(&info.Main))
	fmt.Fprintln(w, "Dependencies:")
	for _, dep := range info.Deps {
		fmt.Fprintln(w, formatModule(dep))
	}
}

func formatModule(m *debug.Module) string {
	var sb strings.Builder
	sb.WriteString("\t" + m.Path)
	if m.Version != "(devel)" && m.Version != "" {
		sb.WriteString("@" + m.Version)
	}
	if m.Sum != "" {
		fmt.Fprintf(&sb, " (sum: %s)", m.Sum)
	}
	if m.Replace != nil {
		fmt.Fprintf(&sb, " (replace: %s)", m.Replace.Path)
	}
	return sb.String()
}
