package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/sqlrest/internal/catalog"
	"github.com/roach88/sqlrest/internal/compiler"
	"github.com/roach88/sqlrest/internal/engine"
	"github.com/roach88/sqlrest/internal/postgrest"
	"github.com/roach88/sqlrest/internal/queryir"
	"github.com/roach88/sqlrest/internal/store"
	"github.com/roach88/sqlrest/internal/testutil"
)

// Harness runs one scenario with a fixed clock and call id.
type Harness struct {
	translator *engine.Translator
	client     *stepClient
	store      *store.Store // nil on the recording backend
	logger     *slog.Logger
}

// stepClient counts requests and forwards them to the backend of the
// current step.
//
// Thread-safety: safe for concurrent use via internal mutex.
type stepClient struct {
	mu       sync.Mutex
	backend  postgrest.Client
	requests int
}

func (c *stepClient) Execute(ctx context.Context, req *postgrest.Request) (*postgrest.Response, error) {
	c.mu.Lock()
	c.requests++
	backend := c.backend
	c.mu.Unlock()
	return backend.Execute(ctx, req)
}

func (c *stepClient) reset(backend postgrest.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend = backend
	c.requests = 0
}

func (c *stepClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// Run executes a scenario and returns the result.
//
// Each run gets a fresh backend: an in-memory SQLite database with the
// CRM fixture schema, or a recording client answering from the step's
// scripted replies. Failed expectations land in Result.Errors; the
// returned error is reserved for scenarios that cannot run at all.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		trace := h.executeStep(ctx, i, step)
		result.Trace = append(result.Trace, trace)
		for _, msg := range checkExpect(trace, step.Expect) {
			result.AddError(fmt.Sprintf("steps[%d] %q: %s", i, step.SQL, msg))
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	now := testutil.DefaultTime
	if scenario.Now != "" {
		t, err := time.Parse(time.RFC3339, scenario.Now)
		if err != nil {
			return nil, fmt.Errorf("invalid now: %w", err)
		}
		now = t
	}

	comp := compiler.New(compiler.Options{
		Strict:       scenario.Options.Strict,
		DefaultLimit: scenario.Options.DefaultLimit,
		MaxRows:      scenario.Options.MaxRows,
		Clock:        testutil.NewFixedClock(now),
		Logger:       logger,
	})

	opts := []engine.Option{
		engine.WithCompiler(comp),
		engine.WithStrictMutations(scenario.Options.StrictMutations),
		engine.WithIDGenerator(testutil.NewFixedIDGenerator("harness")),
		engine.WithLogger(logger),
	}
	if scenario.Catalog != "" {
		cat, err := catalog.Load(scenario.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		opts = append(opts, engine.WithVolatileColumns(cat))
	}

	h := &Harness{client: &stepClient{}, logger: logger}
	if scenario.Backend == BackendSQLite {
		st, err := store.Open(store.Config{
			Driver:      "sqlite3",
			DSN:         ":memory:",
			ApplySchema: true,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		h.store = st
		h.client.reset(st)
	}

	tr, err := engine.New(h.client, opts...)
	if err != nil {
		h.close()
		return nil, err
	}
	h.translator = tr
	return h, nil
}

func (h *Harness) close() {
	if h.store != nil {
		_ = h.store.Close()
	}
}

// executeSetup runs setup statements; any failure aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []Statement) error {
	for i, st := range setup {
		if _, err := h.translator.TranslateAndExecute(ctx, st.SQL, st.Params); err != nil {
			return fmt.Errorf("setup[%d] %q: %w", i, st.SQL, err)
		}
		h.logger.Info("setup statement completed", "step", i, "sql", st.SQL)
	}
	return nil
}

// executeStep compiles the step for its trace, then runs it through
// TranslateAndExecute so the translator's counters see every step.
func (h *Harness) executeStep(ctx context.Context, index int, step Step) StepTrace {
	trace := StepTrace{Step: index, SQL: step.SQL}

	if h.store == nil {
		replies := make([]testutil.Reply, len(step.Replies))
		for i, r := range step.Replies {
			replies[i] = r.toReply()
		}
		h.client.reset(testutil.NewRecordingClient(replies...))
	} else {
		h.client.reset(h.store)
	}

	if plan, err := h.translator.Prepare(step.SQL, step.Params); err == nil {
		trace.PlanID = plan.ID
		trace.Dropped = len(plan.Statement.Dropped)
		if plan.Request != nil {
			trace.Calls = callStrings(plan.Request.Calls)
		}
	}

	res, err := h.translator.TranslateAndExecute(ctx, step.SQL, step.Params)
	trace.Requests = h.client.count()
	if err != nil {
		trace.Error, trace.Message = errorCode(err)
		return trace
	}
	trace.Rows = res.Rows
	trace.RowCount = res.RowCount
	return trace
}

func (r Reply) toReply() testutil.Reply {
	if r.Error != nil {
		status := r.Error.Status
		if status == 0 {
			status = 400
		}
		return testutil.Fail(&postgrest.Error{
			Status:  status,
			Code:    r.Error.Code,
			Message: r.Error.Message,
			Details: r.Error.Details,
			Hint:    r.Error.Hint,
		})
	}
	rows := r.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return testutil.Reply{Response: &postgrest.Response{
		Rows:     rows,
		Count:    r.Count,
		Affected: r.Affected,
	}}
}

func callStrings(calls []postgrest.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

func errorCode(err error) (code, message string) {
	var qe *queryir.Error
	if errors.As(err, &qe) {
		return qe.Code, qe.Message
	}
	return queryir.CodeInternalError, err.Error()
}

// checkExpect compares a step trace against its expect clause and
// returns one message per mismatch.
func checkExpect(trace StepTrace, exp *Expect) []string {
	var errs []string
	if exp == nil {
		if trace.Error != "" {
			errs = append(errs, fmt.Sprintf("unexpected error %s: %s", trace.Error, trace.Message))
		}
		return errs
	}

	switch {
	case exp.Error != "" && trace.Error == "":
		errs = append(errs, fmt.Sprintf("expected error %s, got success", exp.Error))
	case exp.Error != "" && trace.Error != exp.Error:
		errs = append(errs, fmt.Sprintf("expected error %s, got %s: %s", exp.Error, trace.Error, trace.Message))
	case exp.Error == "" && trace.Error != "":
		errs = append(errs, fmt.Sprintf("unexpected error %s: %s", trace.Error, trace.Message))
	}

	if exp.Rows != nil {
		want, err := canonicalRows(exp.Rows)
		if err != nil {
			errs = append(errs, fmt.Sprintf("expected rows: %v", err))
		} else if got, err := canonicalRows(trace.Rows); err != nil {
			errs = append(errs, fmt.Sprintf("actual rows: %v", err))
		} else if want != got {
			errs = append(errs, fmt.Sprintf("rows mismatch\n  expected: %s\n  actual:   %s", want, got))
		}
	}
	if exp.RowCount != nil && *exp.RowCount != trace.RowCount {
		errs = append(errs, fmt.Sprintf("expected row_count %d, got %d", *exp.RowCount, trace.RowCount))
	}
	if exp.Calls != nil && !slices.Equal(exp.Calls, trace.Calls) {
		errs = append(errs, fmt.Sprintf("calls mismatch\n  expected: %v\n  actual:   %v", exp.Calls, trace.Calls))
	}
	if exp.Requests != nil && *exp.Requests != trace.Requests {
		errs = append(errs, fmt.Sprintf("expected %d backend requests, got %d", *exp.Requests, trace.Requests))
	}
	if exp.Dropped != nil && *exp.Dropped != trace.Dropped {
		errs = append(errs, fmt.Sprintf("expected %d dropped fragments, got %d", *exp.Dropped, trace.Dropped))
	}
	return errs
}
