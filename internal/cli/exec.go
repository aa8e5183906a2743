package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlrest/internal/queryir"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Raw bool // keep every parameter a string
}

// ExecResult is the output of the exec command.
type ExecResult struct {
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowCount"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <sql|-> [params...]",
		Short: "Execute a statement against the configured backend",
		Long: `Translate and execute a statement against the backend selected in the
config (PostgREST over HTTP, or a SQL database).

Exit codes:
  0 - Statement succeeded
  1 - Statement failed (parse, safety or execution error)
  2 - Command error (bad config, backend unavailable)

Examples:
  sqlrest exec "SELECT id, name FROM leads WHERE status = \$1" new
  sqlrest exec "UPDATE leads SET status = \$1 WHERE id = \$2 RETURNING id" won l1
  sqlrest exec "SELECT COUNT(*) FROM leads" --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "pass parameters as strings without JSON decoding")

	return cmd
}

func runExec(cmd *cobra.Command, opts *ExecOptions, args []string) error {
	f := newFormatter(cmd, opts.RootOptions)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return commandError(f, ErrCodeConfig, "invalid config", err)
	}
	logger := newLogger(cfg, opts.RootOptions, f.GetErrWriter())

	client, closeClient, err := openClient(cfg, logger)
	if err != nil {
		return commandError(f, ErrCodeBackend, "failed to open backend", err)
	}
	defer closeClient()

	tr, err := newTranslator(cfg, client, logger)
	if err != nil {
		return err
	}

	sql, err := readSQL(args[0], cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read statement", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f.VerboseLog("backend: %s", cfg.Backend)
	res, err := tr.TranslateAndExecute(ctx, sql, parseParams(args[1:], opts.Raw))
	if err != nil {
		return statementError(f, err)
	}

	if opts.Format == "json" {
		return f.Success(ExecResult{Rows: res.Rows, RowCount: res.RowCount})
	}
	return printRows(f, res)
}

// printRows renders rows as an aligned table with columns in sorted
// order, followed by the row count.
func printRows(f *OutputFormatter, res *queryir.Result) error {
	w := f.Writer
	if len(res.Rows) > 0 {
		var cols []string
		for _, row := range res.Rows {
			for col := range row {
				if !slices.Contains(cols, col) {
					cols = append(cols, col)
				}
			}
		}
		slices.Sort(cols)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for i, col := range cols {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, col)
		}
		fmt.Fprintln(tw)
		for _, row := range res.Rows {
			for i, col := range cols {
				if i > 0 {
					fmt.Fprint(tw, "\t")
				}
				fmt.Fprint(tw, cellText(row[col]))
			}
			fmt.Fprintln(tw)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	f.fprintf(f.Colors.OK, "(%d %s)\n", res.RowCount, plural(res.RowCount, "row", "rows"))
	return nil
}

func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
