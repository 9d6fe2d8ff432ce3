package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aledsdavies/delta"
	"github.com/aledsdavies/delta/internal/diag"
	"github.com/spf13/cobra"
)

// Exit codes (SPEC_FULL §10.4).
const (
	exitSuccess     = 0
	exitDiagnostics = 1
	exitIOError     = 2
)

func main() {
	var args delta.Arguments

	rootCmd := &cobra.Command{
		Use:           "delta <source-file>",
		Short:         "Compile and run a delta program",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, positional []string) error {
			args.SourcePath = positional[0]
			return run(args)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&args.Debug, "debug", false, "Print the disassembly listing and the program's final value")
	rootCmd.PersistentFlags().BoolVar(&args.NoRun, "no-run", false, "Compile only; do not execute the program")

	if err := rootCmd.Execute(); err != nil {
		if de, ok := err.(*diagExitError); ok {
			os.Exit(de.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitDiagnostics)
	}
}

// diagExitError carries a specific process exit code through cobra's
// RunE error return without cobra printing it a second time.
type diagExitError struct {
	code int
	err  error
}

func (e *diagExitError) Error() string { return e.err.Error() }

func run(args delta.Arguments) error {
	source, err := delta.ReadSource(args.SourcePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return &diagExitError{code: exitIOError, err: err}
	}

	ctx := delta.NewContext()
	ctx.SetLog(func(v delta.Value) { fmt.Println(v.String()) })

	data := delta.NewPersistentData()
	program := delta.New(ctx, data, args.Debug)

	sink := program.Reload(source)
	if !sink.Empty() {
		printDiagnostics(sink, source, isTerminal(os.Stderr))
		return &diagExitError{code: exitDiagnostics, err: fmt.Errorf("%d diagnostic(s)", sink.Len())}
	}

	if args.Debug {
		for _, line := range program.Metadata.Compilation.DisassembledInstructions {
			fmt.Println(line)
		}
	}

	if args.NoRun {
		return nil
	}

	result, err := program.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return &diagExitError{code: exitDiagnostics, err: err}
	}
	if args.Debug {
		fmt.Printf("=> %s\n", result.String())
	}
	return nil
}

func printDiagnostics(sink *diag.Sink, source string, color bool) {
	lines := strings.Split(source, "\n")
	for _, e := range sink.Errors() {
		diag.Render(os.Stderr, e, lines, color)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
