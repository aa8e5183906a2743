package harness

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/sqlrest/internal/engine"
	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/postgrest"
)

// validIdentifier matches plain table and column names.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// statNames maps stats assertion keys to translator counters.
var statNames = map[string]func(engine.Stats) int64{
	"calls":    func(s engine.Stats) int64 { return s.Calls },
	"executed": func(s engine.Stats) int64 { return s.Executed },
	"retries":  func(s engine.Stats) int64 { return s.Retries },
	"dropped":  func(s engine.Stats) int64 { return s.Dropped },
	"failures": func(s engine.Stats) int64 { return s.Failures },
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluateAssertions runs every assertion and returns one message per
// failure.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertFinalState:
			err = h.assertFinalState(ctx, a)
		case AssertStats:
			err = assertStats(h.translator.Stats(), a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return errs
}

// assertFinalState reads rows straight from the store, bypassing the
// translator, and checks each against the expected subset.
func (h *Harness) assertFinalState(ctx context.Context, a Assertion) error {
	if h.store == nil {
		return fmt.Errorf("final_state requires the %s backend", BackendSQLite)
	}
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q", a.Table)
	}

	b := postgrest.From(a.Table).Select()
	keys := make([]string, 0, len(a.Where))
	for k := range a.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !validIdentifier.MatchString(k) {
			return fmt.Errorf("invalid column name %q", k)
		}
		v, err := ir.FromGo(a.Where[k])
		if err != nil {
			return fmt.Errorf("where %s: %w", k, err)
		}
		if ir.IsNull(v) {
			b.Is(postgrest.Column(k), ir.Null{})
		} else {
			b.Eq(postgrest.Column(k), v)
		}
	}

	resp, err := h.store.Execute(ctx, b.Request())
	if err != nil {
		return fmt.Errorf("query %s: %w", a.Table, err)
	}

	where := formatWhere(a.Where, keys)
	if a.Count != nil && len(resp.Rows) != *a.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d rows in %s where %s", *a.Count, a.Table, where),
			Actual:   fmt.Sprintf("%d rows", len(resp.Rows)),
		}
	}
	if len(a.Expect) == 0 {
		return nil
	}
	if len(resp.Rows) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("rows in %s where %s", a.Table, where),
			Actual:   "no rows found",
		}
	}

	for i, row := range resp.Rows {
		for field, want := range a.Expect {
			got, ok := row[field]
			if !ok {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("field %s in %s", field, a.Table),
					Actual:   "field not found",
				}
			}
			if !sameValue(want, got) {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("%s.%s = %v (row %d where %s)", a.Table, field, want, i, where),
					Actual:   fmt.Sprintf("%v", got),
				}
			}
		}
	}
	return nil
}

func assertStats(stats engine.Stats, a Assertion) error {
	names := make([]string, 0, len(a.Stats))
	for name := range a.Stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		get, ok := statNames[name]
		if !ok {
			return fmt.Errorf("unknown stat %q", name)
		}
		if got := get(stats); got != a.Stats[name] {
			return &AssertionError{
				Type:     AssertStats,
				Expected: fmt.Sprintf("%s = %d", name, a.Stats[name]),
				Actual:   fmt.Sprintf("%s = %d", name, got),
			}
		}
	}
	return nil
}

func formatWhere(where map[string]any, keys []string) string {
	if len(keys) == 0 {
		return "true"
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s = %v", k, where[k])
	}
	return strings.Join(parts, " AND ")
}

// sameValue compares a YAML value with a result value through their
// canonical JSON forms, so 10, int64(10) and json.Number("10") agree.
func sameValue(want, got any) bool {
	a, err := canonical(want)
	if err != nil {
		return false
	}
	b, err := canonical(got)
	if err != nil {
		return false
	}
	return a == b
}

func canonical(v any) (string, error) {
	val, err := ir.FromGo(v)
	if err != nil {
		return "", err
	}
	data, err := ir.MarshalCanonical(val)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func canonicalRows(rows []map[string]any) (string, error) {
	list := make([]any, len(rows))
	for i, r := range rows {
		list[i] = r
	}
	return canonical(list)
}
