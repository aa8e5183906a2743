package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/sqlrest/internal/compiler"
	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/postgrest"
	"github.com/roach88/sqlrest/internal/queryir"
)

// Translator executes SQL statements through a postgrest.Client.
//
// Thread-safety model:
//   - Every field is set in New and never modified afterwards
//   - TranslateAndExecute calls are fully independent
//   - The client must itself be safe for concurrent use
type Translator struct {
	client          postgrest.Client
	compiler        *compiler.Compiler
	volatile        VolatileSource
	ids             IDGenerator
	logger          *slog.Logger
	strictMutations bool
	stats           *counters
}

// Option configures a Translator.
type Option func(*Translator)

// WithCompiler sets the compiler. Default: compiler.New with default
// options and the translator's logger.
func WithCompiler(c *compiler.Compiler) Option {
	return func(t *Translator) {
		t.compiler = c
	}
}

// WithStrictMutations rejects UPDATE/DELETE statements that had any WHERE
// fragment dropped, in addition to the zero-filter rule.
func WithStrictMutations(strict bool) Option {
	return func(t *Translator) {
		t.strictMutations = strict
	}
}

// WithVolatileColumns sets where the schema-cache retry looks up
// volatile columns. Default: DefaultVolatileColumns. A nil source keeps
// the default.
func WithVolatileColumns(v VolatileSource) Option {
	return func(t *Translator) {
		if v != nil {
			t.volatile = v
		}
	}
}

// WithIDGenerator sets the call id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(t *Translator) {
		t.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) {
		t.logger = l
	}
}

// New creates a Translator around client. A nil client is rejected here
// rather than on first use.
func New(client postgrest.Client, opts ...Option) (*Translator, error) {
	if client == nil {
		return nil, fmt.Errorf("engine: a postgrest.Client is required")
	}

	t := &Translator{
		client:   client,
		volatile: DefaultVolatileColumns,
		ids:      UUIDv7Generator{},
		stats:    &counters{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.compiler == nil {
		t.compiler = compiler.New(compiler.Options{Logger: t.logger})
	}
	return t, nil
}

// Plan is a statement ready for execution.
type Plan struct {
	// ID fingerprints the compiled statement (ir.PlanID).
	ID string

	Statement *queryir.CompiledStatement

	// Request is nil when no backend call is needed (SELECT <int>, LIMIT 0,
	// a condition that never matches).
	Request *postgrest.Request
}

// Prepare translates a statement without executing it. The mutation
// guard runs here, so a Plan is always safe to execute.
func (t *Translator) Prepare(sql string, params []any) (*Plan, error) {
	stmt, err := t.compiler.Translate(sql, params)
	if err != nil {
		return nil, compileError(err)
	}
	return t.plan(stmt)
}

func (t *Translator) plan(stmt *queryir.CompiledStatement) (*Plan, error) {
	if err := queryir.Guard(stmt, queryir.GuardOptions{StrictMutations: t.strictMutations}); err != nil {
		return nil, err
	}

	id, err := ir.PlanID(stmt.Plan())
	if err != nil {
		return nil, compileError(fmt.Errorf("fingerprint plan: %w", err))
	}

	p := &Plan{ID: id, Statement: stmt}
	if stmt.Literal != nil || stmt.Empty {
		return p, nil
	}
	req, err := buildRequest(stmt)
	if err != nil {
		return nil, compileError(err)
	}
	p.Request = req
	return p, nil
}

// TranslateAndExecute parses sql, binds params ($1 is params[0]),
// executes the statement and returns its normalized result.
//
// Every returned error is a *queryir.Error: parse errors and safety
// errors before any backend call, execution errors after.
func (t *Translator) TranslateAndExecute(ctx context.Context, sql string, params []any) (*queryir.Result, error) {
	t.stats.calls.Add(1)
	logger := t.logger.With("call_id", t.ids.Generate())

	p, err := t.Prepare(sql, params)
	if err != nil {
		t.stats.failures.Add(1)
		logger.Error("translation failed", "error", err)
		return nil, err
	}
	return t.execute(ctx, logger, p)
}

// Execute runs an already compiled statement.
func (t *Translator) Execute(ctx context.Context, stmt *queryir.CompiledStatement) (*queryir.Result, error) {
	t.stats.calls.Add(1)
	logger := t.logger.With("call_id", t.ids.Generate())

	p, err := t.plan(stmt)
	if err != nil {
		t.stats.failures.Add(1)
		logger.Error("translation failed", "error", err)
		return nil, err
	}
	return t.execute(ctx, logger, p)
}

func (t *Translator) execute(ctx context.Context, logger *slog.Logger, p *Plan) (*queryir.Result, error) {
	stmt := p.Statement
	t.stats.dropped.Add(int64(len(stmt.Dropped)))
	logger = logger.With("plan_id", p.ID)

	if stmt.Literal != nil {
		return literalResult(*stmt.Literal), nil
	}
	if p.Request == nil {
		logger.Debug("statement matches no rows, skipping backend call", "table", stmt.Table)
		return normalize(stmt, nil), nil
	}

	logger.Debug("executing",
		"table", stmt.Table,
		"kind", string(stmt.Kind),
		"filters", len(stmt.Filters),
		"calls", len(p.Request.Calls))

	t.stats.executed.Add(1)
	resp, err := t.client.Execute(ctx, p.Request)
	if err != nil {
		retry, stripped, ok := retryStatement(stmt, err, t.volatile.VolatileColumns(stmt.Table))
		if !ok {
			return nil, t.fail(logger, err)
		}

		logger.Warn("retrying update without volatile columns",
			"table", stmt.Table,
			"stripped", stripped,
			"error", err)
		t.stats.retries.Add(1)

		req, berr := buildRequest(retry)
		if berr != nil {
			return nil, t.fail(logger, berr)
		}
		t.stats.executed.Add(1)
		resp, err = t.client.Execute(ctx, req)
		if err != nil {
			return nil, t.fail(logger, err)
		}
		stmt = retry
	}

	return normalize(stmt, resp), nil
}

func (t *Translator) fail(logger *slog.Logger, err error) error {
	t.stats.failures.Add(1)
	qe := executionError(err)
	logger.Error("execution failed", "code", qe.Code, "error", qe.Message)
	return qe
}

// Stats returns a snapshot of the translator's counters.
func (t *Translator) Stats() Stats {
	return t.stats.snapshot()
}
