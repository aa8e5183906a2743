package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlrest/internal/engine"
	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/postgrest"
	"github.com/roach88/sqlrest/internal/queryir"
	"github.com/roach88/sqlrest/internal/querysql"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	*RootOptions
	Raw     bool   // keep every parameter a string
	Dialect string // SQL dialect to render the request in
}

// TranslateResult is the output of the translate command.
type TranslateResult struct {
	PlanID string `json:"plan_id"`
	Kind   string `json:"kind"`
	Table  string `json:"table,omitempty"`

	// Calls is the builder call sequence; empty when no backend call is
	// needed.
	Calls []string `json:"calls"`

	// Query is the PostgREST query string for the request.
	Query string `json:"query,omitempty"`

	// SQL and Args render the request for the SQL backend.
	SQL  string `json:"sql,omitempty"`
	Args []any  `json:"args,omitempty"`

	Dropped []DroppedResult `json:"dropped,omitempty"`

	// Plan is the canonical compiled statement.
	Plan any `json:"plan"`
}

// DroppedResult is a WHERE fragment the compiler could not translate.
type DroppedResult struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate <sql|-> [params...]",
		Short: "Show the request a statement compiles to",
		Long: `Compile a statement without executing it.

Prints the plan fingerprint, the builder call sequence, the PostgREST
query string and the SQL the database backend would run. Parameters are
decoded as JSON when they parse, otherwise taken as strings. Pass "-" to
read the statement from stdin.

Examples:
  sqlrest translate "SELECT * FROM leads WHERE status = \$1 LIMIT 10" new
  sqlrest translate "DELETE FROM leads WHERE id = \$1" l1 --dialect mysql
  sqlrest translate - --format json < query.sql`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "pass parameters as strings without JSON decoding")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", string(querysql.Postgres), "SQL dialect to render (postgres|mysql|sqlite)")

	return cmd
}

func runTranslate(cmd *cobra.Command, opts *TranslateOptions, args []string) error {
	f := newFormatter(cmd, opts.RootOptions)

	dialect, err := querysql.DialectForDriver(opts.Dialect)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, opts.RootOptions, f.GetErrWriter())

	tr, err := newTranslator(cfg, offlineClient{}, logger)
	if err != nil {
		return err
	}

	sql, err := readSQL(args[0], cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read statement", err)
	}

	plan, err := tr.Prepare(sql, parseParams(args[1:], opts.Raw))
	if err != nil {
		return statementError(f, err)
	}

	result, err := describePlan(plan, dialect)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to describe plan", err)
	}

	if opts.Format == "json" {
		return f.Success(result)
	}
	printTranslateText(f, result)
	return nil
}

func describePlan(plan *engine.Plan, dialect querysql.Dialect) (*TranslateResult, error) {
	stmt := plan.Statement
	result := &TranslateResult{
		PlanID: plan.ID,
		Kind:   string(stmt.Kind),
		Table:  stmt.Table,
		Calls:  []string{},
		Plan:   ir.ToGo(stmt.Plan()),
	}
	for _, d := range stmt.Dropped {
		result.Dropped = append(result.Dropped, DroppedResult{Text: d.Text, Reason: d.Reason})
	}
	if plan.Request == nil {
		return result, nil
	}

	for _, c := range plan.Request.Calls {
		result.Calls = append(result.Calls, c.String())
	}
	result.Query = postgrest.QueryValues(plan.Request).Encode()

	rendered, err := querysql.NewSQLCompiler(dialect).Compile(plan.Request)
	switch {
	case err == nil:
		result.SQL = rendered.SQL
		result.Args = rendered.Args
	case !errors.Is(err, querysql.ErrUnsupported):
		return nil, err
	}
	return result, nil
}

func printTranslateText(f *OutputFormatter, r *TranslateResult) {
	w := f.Writer
	f.fprintf(f.Colors.Dim, "plan %s\n", r.PlanID)
	fmt.Fprintf(w, "%s %s\n", r.Kind, r.Table)

	if len(r.Calls) == 0 {
		f.fprintf(f.Colors.Warn, "no backend call\n")
	}
	for _, c := range r.Calls {
		fmt.Fprintf(w, "  .%s\n", c)
	}
	if r.Query != "" {
		fmt.Fprintf(w, "query: %s\n", r.Query)
	}
	if r.SQL != "" {
		fmt.Fprintf(w, "sql:   %s\n", r.SQL)
		if len(r.Args) > 0 {
			fmt.Fprintf(w, "args:  %v\n", r.Args)
		}
	}
	for _, d := range r.Dropped {
		f.fprintf(f.Colors.Warn, "dropped: %s (%s)\n", d.Text, d.Reason)
	}
}

// statementError reports a translation or execution failure using its
// SQLSTATE-style code and exits with ExitFailure.
func statementError(f *OutputFormatter, err error) error {
	code, message, detail := ErrCodeGeneric, err.Error(), ""
	if qe, ok := asQueryError(err); ok {
		code, message, detail = qe.Code, qe.Message, qe.Detail
	}

	var details any
	if detail != "" {
		details = detail
	}
	if outErr := f.Error(code, message, details); outErr != nil {
		return outErr
	}
	return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("[%s] %s", code, message), Err: err, Reported: true}
}

func asQueryError(err error) (*queryir.Error, bool) {
	var qe *queryir.Error
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
