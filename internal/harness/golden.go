package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sqlrest/internal/ir"
)

// snapshot converts a result into the map serialized for golden files.
// Plan ids and error messages are left out so that golden files only
// change when the compiled requests or results do.
func snapshot(name string, result *Result) (map[string]any, error) {
	steps := make([]any, len(result.Trace))
	for i, tr := range result.Trace {
		step := map[string]any{
			"step":      tr.Step,
			"sql":       tr.SQL,
			"requests":  tr.Requests,
			"row_count": tr.RowCount,
		}
		if len(tr.Calls) > 0 {
			step["calls"] = tr.Calls
		}
		if tr.Error != "" {
			step["error"] = tr.Error
		}
		if len(tr.Rows) > 0 {
			rows := make([]any, len(tr.Rows))
			for j, r := range tr.Rows {
				rows[j] = r
			}
			v, err := ir.FromGo(rows)
			if err != nil {
				return nil, err
			}
			step["rows"] = v
		}
		steps[i] = step
	}
	return map[string]any{
		"scenario": name,
		"steps":    steps,
	}, nil
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snap, err := snapshot(name, result)
	if err != nil {
		return err
	}
	data, err := ir.MarshalCanonical(snap)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
