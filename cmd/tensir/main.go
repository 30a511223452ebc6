// Command tensir is the CLI for the tensor IR toolchain.
package main

import (
	"os"

	"github.com/tensir/tensir/cmd/tensir/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
