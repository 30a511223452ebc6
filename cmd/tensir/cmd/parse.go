package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tensir/tensir/internal/ir"
	"github.com/tensir/tensir/internal/lexer"
	"github.com/tensir/tensir/internal/parser"
)

var parseCheckOnly bool

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a textual IR file and report diagnostics",
	Long: `Parse a textual IR file, report any syntax errors, and print a
summary of the functions found.

Examples:
  # Parse and summarize
  tensir parse model.tir

  # Only check for errors (exit status reports success)
  tensir parse --check model.tir`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().BoolVar(&parseCheckOnly, "check", false, "report errors only, no summary")
}

func runParse(_ *cobra.Command, args []string) error {
	mod, err := parseFile(args[0])
	if err != nil {
		return err
	}
	if parseCheckOnly {
		return nil
	}
	for _, fn := range mod.Functions() {
		fmt.Printf("fn @%s: %d parameters, %d bindings\n",
			fn.Name, len(fn.Params), len(fn.Body.Bindings))
	}
	return nil
}

// parseFile reads and parses one textual IR file, reporting every
// diagnostic on stderr before returning an error.
func parseFile(filename string) (*ir.Module, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	p := parser.New(lexer.New(string(content)))
	mod, err := p.ParseModule()
	if err != nil {
		for _, perr := range p.Errors() {
			fmt.Fprintf(os.Stderr, "%s:%s\n", filename, perr)
		}
		return nil, fmt.Errorf("%s: parse failed", filename)
	}
	return mod, nil
}
