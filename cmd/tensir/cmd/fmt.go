package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tensir/tensir/pkg/printer"
)

var fmtWrite bool

var fmtCmd = &cobra.Command{
	Use:   "fmt [file]",
	Short: "Format a textual IR file",
	Long: `Format a textual IR file into its canonical form.

The style (indent width, whether binding types are printed) is read from
a ` + printer.StyleFileName + ` file next to the input, when present.

Examples:
  # Format to stdout
  tensir fmt model.tir

  # Rewrite the file in place
  tensir fmt -w model.tir`,
	Args: cobra.ExactArgs(1),
	RunE: runFmt,
}

func init() {
	rootCmd.AddCommand(fmtCmd)
	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "write result to source file instead of stdout")
}

func runFmt(_ *cobra.Command, args []string) error {
	filename := args[0]
	mod, err := parseFile(filename)
	if err != nil {
		return err
	}

	style, err := printer.LoadStyle(filepath.Join(filepath.Dir(filename), printer.StyleFileName))
	if err != nil {
		return err
	}
	out := printer.New(style).Print(mod)

	if fmtWrite {
		if err := os.WriteFile(filename, []byte(out), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", filename, err)
		}
		return nil
	}
	fmt.Print(out)
	return nil
}
