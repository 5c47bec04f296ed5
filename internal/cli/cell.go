package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/store"
)

// CellOptions holds flags shared by the cell subcommands.
type CellOptions struct {
	*RootOptions
	Database string
}

// CellOutput is the JSON payload of cell get and cell set.
type CellOutput struct {
	Key     string   `json:"key"`
	Value   ir.Value `json:"value"`
	Seq     int64    `json:"seq"`
	Changed *bool    `json:"changed,omitempty"`
}

// LogEntry is one write of cell log.
type LogEntry struct {
	ID    string   `json:"id"`
	Seq   int64    `json:"seq"`
	Value ir.Value `json:"value"`
}

// NewCellCommand creates the cell command and its subcommands.
func NewCellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CellOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cell",
		Short: "Inspect and edit cells of the SQLite store",
		Long: `Read, write and list the cells that sqlite resource states are bound to.

A cell written here reaches connected sqlite resources on their next poll.

Examples:
  statewire cell keys --db ./cells.db
  statewire cell get stock --db ./cells.db
  statewire cell set stock 12 --db ./cells.db
  statewire cell log stock --db ./cells.db --format json`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite store (defaults to the configured path)")

	cmd.AddCommand(
		&cobra.Command{
			Use:           "get <key>",
			Short:         "Print the current value of a cell",
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCellGet(opts, args[0], cmd)
			},
		},
		&cobra.Command{
			Use:           "set <key> <json>",
			Short:         "Write a value to a cell",
			Args:          cobra.ExactArgs(2),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCellSet(opts, args[0], args[1], cmd)
			},
		},
		&cobra.Command{
			Use:           "log <key>",
			Short:         "Print the write history of a cell",
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCellLog(opts, args[0], cmd)
			},
		},
		&cobra.Command{
			Use:           "keys",
			Short:         "List every cell key",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCellKeys(opts, cmd)
			},
		},
	)
	return cmd
}

func (o *CellOptions) openStore() (*store.Store, error) {
	path := firstNonEmpty(o.Database, o.Config.SQLitePath)
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runCellGet(opts *CellOptions, key string, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	formatter := opts.newFormatter(cmd)
	cell, found, err := st.Get(cmd.Context(), key)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cell", err)
	}
	if !found {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no cell %q", key), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("no cell %q", key))
	}

	if formatter.JSON() {
		return formatter.Success(CellOutput{Key: cell.Key, Value: cell.Value, Seq: cell.Seq})
	}
	return formatter.Success(ir.Format(cell.Value))
}

func runCellSet(opts *CellOptions, key, raw string, cmd *cobra.Command) error {
	v, err := ir.Unmarshal([]byte(raw))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid value", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	cell, changed, err := st.Put(cmd.Context(), key, v)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to write cell", err)
	}

	formatter := opts.newFormatter(cmd)
	if formatter.JSON() {
		return formatter.Success(CellOutput{Key: cell.Key, Value: cell.Value, Seq: cell.Seq, Changed: &changed})
	}
	if !changed {
		return formatter.Success(fmt.Sprintf("%s unchanged", key))
	}
	return formatter.Success(fmt.Sprintf("%s %s = %s (seq %d)", markOK, key, ir.Format(cell.Value), cell.Seq))
}

func runCellLog(opts *CellOptions, key string, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	writes, err := st.History(cmd.Context(), key)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	entries := make([]LogEntry, len(writes))
	for i, w := range writes {
		entries[i] = LogEntry{ID: w.ID, Seq: w.Seq, Value: w.Value}
	}

	formatter := opts.newFormatter(cmd)
	if formatter.JSON() {
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		return formatter.Success(fmt.Sprintf("No writes to %s", key))
	}
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "[%d] %s %s\n", e.Seq, e.ID, ir.Format(e.Value))
	}
	return nil
}

func runCellKeys(opts *CellOptions, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	keys, err := st.Keys(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list keys", err)
	}

	formatter := opts.newFormatter(cmd)
	if formatter.JSON() {
		if keys == nil {
			keys = []string{}
		}
		return formatter.Success(keys)
	}
	for _, k := range keys {
		fmt.Fprintln(formatter.Writer, k)
	}
	return nil
}
