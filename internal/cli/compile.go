package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output   string // write the compiled graph here
	Database string // save the compiled graph into this store
}

// CompilationResult is the JSON payload of a successful compile.
type CompilationResult struct {
	Graph *ir.GraphSpec `json:"graph"`
	Hash  string        `json:"hash"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <graph.cue>",
		Short: "Compile and validate a CUE graph",
		Long: `Compile a CUE graph definition and validate it.

Every validation problem is reported, not just the first. On success the
compiled graph and its content hash are printed, and optionally written
to a file or saved in the SQLite store.

Examples:
  statewire compile ./graphs/counter.cue
  statewire compile ./graphs/counter.cue -o counter.json
  statewire compile ./graphs/counter.cue --db ./cells.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.Database, "db", "", "save the graph into this SQLite store")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.newFormatter(cmd)
	formatter.VerboseLog("Compiling %s", path)

	spec, errs := LoadGraph(path, LoadModeCollectAll)
	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}

	hash, err := ir.GraphHash(spec)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error())
	}
	formatter.VerboseLog("Graph %s hashes to %s", spec.Name, hash)

	if opts.Output != "" {
		if err := writeGraphToFile(spec, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}
	if opts.Database != "" {
		if err := saveGraph(cmd, spec, opts.Database); err != nil {
			return outputCompileError(formatter, ErrCodeStore, err.Error())
		}
	}

	return outputCompileSuccess(formatter, opts, &CompilationResult{Graph: spec, Hash: hash})
}

func saveGraph(cmd *cobra.Command, spec *ir.GraphSpec, path string) error {
	st, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if _, err := st.SaveGraph(cmd.Context(), spec); err != nil {
		return fmt.Errorf("saving graph: %w", err)
	}
	return nil
}

func outputCompileSuccess(formatter *OutputFormatter, opts *CompileOptions, result *CompilationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s Compiled graph %s: %d state(s)\n\n", markOK, result.Graph.Name, len(result.Graph.States))
	fmt.Fprintln(w, "States:")
	for _, st := range result.Graph.States {
		fmt.Fprintf(w, "  %s\n", describeState(st))
	}
	fmt.Fprintf(w, "\nHash: %s\n", result.Hash)

	if opts.Output != "" {
		fmt.Fprintf(w, "Wrote compiled graph to %s\n", opts.Output)
	}
	if opts.Database != "" {
		fmt.Fprintf(w, "Saved graph to %s\n", opts.Database)
	}
	return nil
}

// describeState renders one line per state, e.g. "sum: derived(sum) <- a, b".
func describeState(st ir.StateSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", st.Name, st.Kind)
	switch st.Kind {
	case ir.StateDerived:
		if st.Combine != "" {
			fmt.Fprintf(&b, "(%s)", st.Combine)
		}
		fmt.Fprintf(&b, " <- %s", strings.Join(st.Inputs, ", "))
	case ir.StateProxy:
		if st.Transform != "" {
			fmt.Fprintf(&b, "(%s)", st.Transform)
		}
		fmt.Fprintf(&b, " <- %s", st.Source)
	case ir.StateResource:
		if st.Resource != nil {
			fmt.Fprintf(&b, " [%s]", st.Resource.Backend)
		}
	}
	if st.Writable {
		b.WriteString(", writable")
	}
	return b.String()
}

func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors reports every error. Validation failures exit with
// ExitFailure; a graph that did not load is a command error.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	exitCode := ExitFailure
	var loadErr *LoadError
	if errors.As(errs[0], &loadErr) && !isValidationCode(loadErr.Code) {
		exitCode = ExitCommandError
	}

	if formatter.JSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := errorCode(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return NewExitError(exitCode, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s Compilation failed\n\n", markFail)
	for _, err := range errs {
		code, message := errorCode(err)
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(w, "%s:%d:%d\n", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		fmt.Fprintf(w, "  %s: %s\n\n", code, message)
	}
	return NewExitError(exitCode, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

func isValidationCode(code string) bool {
	return strings.HasPrefix(code, "E1")
}

// writeGraphToFile writes the compiled graph as indented JSON.
func writeGraphToFile(spec *ir.GraphSpec, filename string) error {
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling graph: %w", err)
	}
	return os.WriteFile(filename, append(data, '\n'), 0644)
}
