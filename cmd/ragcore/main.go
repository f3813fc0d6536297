// Command ragcore is the entry point for the SISTC student assistant
// retrieval core. It provides a CLI interface (via Cobra) and an HTTP
// server exposing the confidence-gated answer pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/sistc/ragcore/cmd/ragcore/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
