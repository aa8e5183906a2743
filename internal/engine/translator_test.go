package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlrest/internal/compiler"
	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/postgrest"
	"github.com/roach88/sqlrest/internal/queryir"
	"github.com/roach88/sqlrest/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestTranslator wires a translator with a fixed clock, fixed call ids
// and a discard logger. Extra options are applied last.
func newTestTranslator(t *testing.T, client postgrest.Client, opts ...Option) *Translator {
	t.Helper()
	logger := discardLogger()
	base := []Option{
		WithLogger(logger),
		WithIDGenerator(testutil.NewFixedIDGenerator("call-1")),
		WithCompiler(compiler.New(compiler.Options{
			Clock:  testutil.NewFixedClock(time.Time{}),
			Logger: logger,
		})),
	}
	tr, err := New(client, append(base, opts...)...)
	require.NoError(t, err)
	return tr
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestTranslateAndExecute_SelectWithLimit(t *testing.T) {
	client := testutil.NewRecordingClient(testutil.Rows(map[string]any{"id": "l1", "status": "new"}))
	tr := newTestTranslator(t, client)

	res, err := tr.TranslateAndExecute(context.Background(),
		"SELECT * FROM leads WHERE status = $1 LIMIT $2", []any{"new", 10})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, []map[string]any{{"id": "l1", "status": "new"}}, res.Rows)

	require.Equal(t, 1, client.Calls())
	req := client.Last()
	assert.Equal(t, "leads", req.Table)
	assert.Equal(t, postgrest.ActionSelect, req.Action)
	assert.Equal(t, []postgrest.Condition{
		{Field: postgrest.Column("status"), Op: postgrest.OpEq, Value: ir.String("new")},
	}, req.Conditions)
	require.NotNil(t, req.Range)
	assert.Equal(t, int64(0), req.Range.From)
	assert.LessOrEqual(t, req.Range.To-req.Range.From+1, int64(10))

	methods := make([]string, len(req.Calls))
	for i, c := range req.Calls {
		methods[i] = c.Method
	}
	assert.Equal(t, []string{"from", "select", "eq", "range"}, methods)
}

func TestTranslateAndExecute_DefaultWindow(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client)

	_, err := tr.TranslateAndExecute(context.Background(), "SELECT * FROM leads", nil)
	require.NoError(t, err)

	req := client.Last()
	require.NotNil(t, req.Range, "a select never requests an unbounded set")
	assert.Equal(t, postgrest.Range{From: 0, To: compiler.DefaultLimit - 1}, *req.Range)
}

func TestTranslateAndExecute_DeleteWithFilter(t *testing.T) {
	client := testutil.NewRecordingClient(testutil.Reply{Response: &postgrest.Response{Affected: 4}})
	tr := newTestTranslator(t, client)

	res, err := tr.TranslateAndExecute(context.Background(), "DELETE FROM leads WHERE tenant_id = $1", []any{"t1"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.RowCount)
	assert.Empty(t, res.Rows)

	req := client.Last()
	assert.Equal(t, postgrest.ActionDelete, req.Action)
	assert.Len(t, req.Conditions, 1)
}

func TestTranslateAndExecute_UnguardedDeleteNeverReachesBackend(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client)

	_, err := tr.TranslateAndExecute(context.Background(), "DELETE FROM leads WHERE 1=1", nil)
	require.Error(t, err)
	assert.True(t, queryir.IsSafetyError(err))

	var qe *queryir.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, queryir.CodeUnsafeMutation, qe.Code)
	assert.Equal(t, "mutation without WHERE is not permitted", qe.Message)
	assert.Zero(t, client.Calls())
}

func TestTranslateAndExecute_UnguardedUpdate(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client)

	_, err := tr.TranslateAndExecute(context.Background(), "UPDATE leads SET status = $1", []any{"x"})
	assert.True(t, queryir.IsSafetyError(err))
	assert.Zero(t, client.Calls())
}

func TestTranslateAndExecute_UpdatePayloadAndFilter(t *testing.T) {
	client := testutil.NewRecordingClient(testutil.Reply{Response: &postgrest.Response{Affected: 1}})
	tr := newTestTranslator(t, client)

	res, err := tr.TranslateAndExecute(context.Background(),
		"UPDATE activities SET status=$1 WHERE id=$2", []any{"done", "uuid-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)

	req := client.Last()
	assert.Equal(t, postgrest.ActionUpdate, req.Action)
	assert.Equal(t, []ir.Object{{"status": ir.String("done")}}, req.Body)
	assert.Equal(t, []postgrest.Condition{
		{Field: postgrest.Column("id"), Op: postgrest.OpEq, Value: ir.String("uuid-1")},
	}, req.Conditions)
	assert.Nil(t, req.Returning)
}

func TestTranslateAndExecute_NotInChainsNotEq(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client)

	_, err := tr.TranslateAndExecute(context.Background(),
		"SELECT * FROM x WHERE status NOT IN ($1,$2)", []any{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, []postgrest.Condition{
		{Field: postgrest.Column("status"), Op: postgrest.OpNeq, Value: ir.String("a")},
		{Field: postgrest.Column("status"), Op: postgrest.OpNeq, Value: ir.String("b")},
	}, client.Last().Conditions)
}

func TestTranslateAndExecute_Count(t *testing.T) {
	client := testutil.NewRecordingClient(testutil.Count(42))
	tr := newTestTranslator(t, client)

	res, err := tr.TranslateAndExecute(context.Background(),
		"SELECT COUNT(*) FROM accounts WHERE tenant_id=$1", []any{"t1"})
	require.NoError(t, err)
	assert.Equal(t, &queryir.Result{Rows: []map[string]any{{"count": "42"}}, RowCount: 1}, res)

	req := client.Last()
	assert.True(t, req.Count)
	assert.Nil(t, req.Range)
	assert.Empty(t, req.Columns)
}

func TestTranslateAndExecute_UnsupportedFragmentDropped(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client,
		WithLogger(logger),
		WithCompiler(compiler.New(compiler.Options{Logger: logger})))

	var res *queryir.Result
	var err error
	assert.NotPanics(t, func() {
		res, err = tr.TranslateAndExecute(context.Background(),
			"SELECT * FROM leads WHERE status = $1 AND id IN (SELECT lead_id FROM activities)", []any{"new"})
	})
	require.NoError(t, err)
	assert.NotNil(t, res)

	assert.Equal(t, []postgrest.Condition{
		{Field: postgrest.Column("status"), Op: postgrest.OpEq, Value: ir.String("new")},
	}, client.Last().Conditions)
	assert.Equal(t, int64(1), tr.Stats().Dropped)
	assert.Contains(t, logs.String(), "where condition dropped")
}

func TestTranslateAndExecute_StrictMutations(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client, WithStrictMutations(true))

	_, err := tr.TranslateAndExecute(context.Background(),
		"DELETE FROM leads WHERE id = $1 AND name LIKE $2", []any{"l1", "A%"})
	assert.True(t, queryir.IsSafetyError(err))
	assert.Zero(t, client.Calls())

	// Selects are unaffected
	_, err = tr.TranslateAndExecute(context.Background(),
		"SELECT * FROM leads WHERE id = $1 AND name LIKE $2", []any{"l1", "A%"})
	assert.NoError(t, err)
}

func TestTranslateAndExecute_Literal(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client)

	res, err := tr.TranslateAndExecute(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{LiteralColumn: int64(1)}}, res.Rows)
	assert.Equal(t, 1, res.RowCount)
	assert.Zero(t, client.Calls())
}

func TestTranslateAndExecute_LimitZero(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client)

	res, err := tr.TranslateAndExecute(context.Background(), "SELECT * FROM leads LIMIT 0", nil)
	require.NoError(t, err)
	assert.Equal(t, queryir.NewResult(nil), res)
	assert.Zero(t, client.Calls())
}

func TestTranslateAndExecute_NullComparisonSkipsBackend(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		params []any
		want   *queryir.Result
	}{
		{"select", "SELECT * FROM leads WHERE status = $1", []any{nil}, queryir.NewResult(nil)},
		{"count", "SELECT COUNT(*) FROM leads WHERE status = $1", []any{nil},
			&queryir.Result{Rows: []map[string]any{{"count": "0"}}, RowCount: 1}},
		{"delete", "DELETE FROM leads WHERE tenant_id = $1 AND status = $2", []any{"t1", nil}, queryir.NewResult(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutil.NewRecordingClient()
			tr := newTestTranslator(t, client)

			res, err := tr.TranslateAndExecute(context.Background(), tt.sql, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
			assert.Zero(t, client.Calls())
			assert.Zero(t, tr.Stats().Dropped)
		})
	}
}

func TestTranslateAndExecute_ParseError(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client)

	_, err := tr.TranslateAndExecute(context.Background(), "DROP TABLE leads", nil)
	require.Error(t, err)
	assert.True(t, queryir.IsParseError(err))
	assert.Zero(t, client.Calls())
	assert.Equal(t, int64(1), tr.Stats().Failures)
}

func TestTranslateAndExecute_BackendErrorNormalized(t *testing.T) {
	backendErr := &postgrest.Error{Status: 409, Code: "23505", Message: "duplicate key value", Details: "Key (id)=(l1) already exists."}
	client := testutil.NewRecordingClient(testutil.Fail(backendErr))
	tr := newTestTranslator(t, client)

	_, err := tr.TranslateAndExecute(context.Background(),
		"INSERT INTO leads (id, name) VALUES ($1, $2)", []any{"l1", "Ada"})
	require.Error(t, err)
	assert.True(t, queryir.IsExecutionError(err))

	var qe *queryir.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "23505", qe.Code)
	assert.Equal(t, "duplicate key value", qe.Message)
	assert.Equal(t, "Key (id)=(l1) already exists.", qe.Detail)
	assert.ErrorIs(t, err, backendErr)
}

func TestTranslateAndExecute_Canceled(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.TranslateAndExecute(ctx, "SELECT * FROM leads", nil)
	require.Error(t, err)

	var qe *queryir.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, queryir.CodeQueryCanceled, qe.Code)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTranslateAndExecute_UnknownError(t *testing.T) {
	client := testutil.NewRecordingClient(testutil.Fail(errors.New("connection reset")))
	tr := newTestTranslator(t, client)

	_, err := tr.TranslateAndExecute(context.Background(), "SELECT * FROM leads", nil)

	var qe *queryir.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, queryir.KindExecution, qe.Kind)
	assert.Equal(t, queryir.CodeInternalError, qe.Code)
	assert.Equal(t, "connection reset", qe.Message)
}

func TestTranslateAndExecute_ReturningRows(t *testing.T) {
	client := testutil.NewRecordingClient(testutil.Rows(map[string]any{"id": "l1", "status": "won"}))
	tr := newTestTranslator(t, client)

	res, err := tr.TranslateAndExecute(context.Background(),
		"UPDATE leads SET status = $1 WHERE id = $2 RETURNING *", []any{"won", "l1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, "won", res.Rows[0]["status"])
	assert.Equal(t, []string{"*"}, client.Last().Returning)
}

func TestTranslateAndExecute_Concurrent(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client)

	const goroutines = 50
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tr.TranslateAndExecute(context.Background(),
				"SELECT * FROM leads WHERE owner_id = $1", []any{i})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, goroutines, client.Calls())

	seen := map[int64]bool{}
	for _, req := range client.Requests() {
		require.Len(t, req.Conditions, 1)
		n, ok := ir.AsInt(req.Conditions[0].Value)
		require.True(t, ok)
		seen[n] = true
	}
	assert.Len(t, seen, goroutines, "each call keeps its own parameters")
	assert.Equal(t, int64(goroutines), tr.Stats().Calls)
}

func TestPrepare_PlanIsDeterministic(t *testing.T) {
	tr := newTestTranslator(t, testutil.NewRecordingClient())
	sql := "SELECT id FROM leads WHERE status IN ($1, $2) ORDER BY created_at DESC LIMIT 5"

	p1, err := tr.Prepare(sql, []any{"new", "won"})
	require.NoError(t, err)
	p2, err := tr.Prepare(sql, []any{"new", "won"})
	require.NoError(t, err)
	p3, err := tr.Prepare(sql, []any{"new", "lost"})
	require.NoError(t, err)

	assert.Equal(t, p1.ID, p2.ID)
	assert.NotEqual(t, p1.ID, p3.ID)
	assert.NotNil(t, p1.Request)
}

func TestExecute_CompiledStatement(t *testing.T) {
	client := testutil.NewRecordingClient()
	tr := newTestTranslator(t, client)

	stmt := &queryir.CompiledStatement{
		Kind:    queryir.KindDelete,
		Table:   "tasks",
		Filters: []queryir.Filter{{Column: queryir.Col("id"), Op: queryir.OpEq, Value: ir.String("t1")}},
	}
	_, err := tr.Execute(context.Background(), stmt)
	require.NoError(t, err)
	assert.Equal(t, postgrest.ActionDelete, client.Last().Action)

	_, err = tr.Execute(context.Background(), &queryir.CompiledStatement{Kind: queryir.KindDelete, Table: "tasks"})
	assert.True(t, queryir.IsSafetyError(err))
	assert.Equal(t, 1, client.Calls())
}
