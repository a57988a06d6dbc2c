// boundcheck-vet runs the boundcheck analysis as a vet tool:
//
//	go vet -vettool=$(which boundcheck-vet) ./...
package main // import "github.com/techguru321/infer/cmd/boundcheck-vet"

import (
	"golang.org/x/tools/go/analysis/unitchecker"

	"github.com/techguru321/infer/analysis/boundcheck"
)

func main() {
	unitchecker.Main(boundcheck.Analyzer)
}
