// boundcheck reports slice and array accesses that are, or may be, out of
// bounds.
package main // import "github.com/techguru321/infer/cmd/boundcheck"

import (
	"os"

	"github.com/techguru321/infer/lintcmd"
)

func main() {
	cmd := lintcmd.NewCommand("boundcheck")
	cmd.ParseFlags(os.Args[1:])
	cmd.Run()
}
