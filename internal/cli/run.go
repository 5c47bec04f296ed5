package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	GraphDir string // base directory for relative graph paths
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Scenario string `json:"scenario"`
	*harness.Result
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and print its trace",
		Long: `Run a single scenario on virtual time and print every observation.

The graph named by the scenario is resolved relative to the scenario file
unless --graph-dir is given.

Exit codes:
  0 - Scenario passed
  1 - A step expectation or assertion failed
  2 - Command error (missing files, invalid scenario, etc.)

Examples:
  statewire run ./scenarios/derived_batching.yaml
  statewire run ./scenarios/derived_batching.yaml --graph-dir ./graphs --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.GraphDir, "graph-dir", "", "base directory for the scenario's graph path")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.newFormatter(cmd)

	var (
		scenario *harness.Scenario
		err      error
	)
	if opts.GraphDir != "" {
		scenario, err = harness.LoadScenarioWithBasePath(path, opts.GraphDir)
	} else {
		scenario, err = harness.LoadScenario(path)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	formatter.VerboseLog("Running %s against %s", scenario.Name, scenario.Graph)

	result, err := harness.Run(scenario, harness.WithLogger(opts.logger()))
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	if formatter.JSON() {
		if err := formatter.Success(RunOutput{Scenario: scenario.Name, Result: result}); err != nil {
			return err
		}
	} else {
		outputRunText(formatter, scenario.Name, result)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func outputRunText(formatter *OutputFormatter, name string, result *harness.Result) {
	w := formatter.Writer
	fmt.Fprintf(w, "Trace (%d events):\n", len(result.Trace))
	for _, ev := range result.Trace {
		fmt.Fprintf(w, "  %s\n", ev)
	}
	fmt.Fprintln(w)

	if result.Pass {
		fmt.Fprintf(w, "%s %s\n", markOK, name)
		return
	}
	fmt.Fprintf(w, "%s %s\n", markFail, name)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
