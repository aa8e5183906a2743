package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names a scenario can run against.
const (
	// BackendSQLite runs every step against a fresh in-memory SQLite
	// database carrying the CRM fixture schema.
	BackendSQLite = "sqlite"

	// BackendRecording answers every backend call from the step's
	// scripted replies.
	BackendRecording = "recording"
)

// Scenario is a YAML test case: a sequence of SQL statements run through
// a Translator, each with expectations on the compiled request and the
// normalized result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend is sqlite (default) or recording.
	Backend string `yaml:"backend,omitempty"`

	// Catalog is an optional CUE catalog path, relative to the scenario
	// file, supplying volatile columns for the schema-cache retry.
	Catalog string `yaml:"catalog,omitempty"`

	// Now pins the compiler clock (RFC 3339). Defaults to
	// testutil.DefaultTime.
	Now string `yaml:"now,omitempty"`

	Options Options `yaml:"options,omitempty"`

	// Setup statements run before Steps and must succeed.
	Setup []Statement `yaml:"setup,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions validate state after every step has run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Options tunes the translator under test.
type Options struct {
	Strict          bool `yaml:"strict,omitempty"`
	StrictMutations bool `yaml:"strict_mutations,omitempty"`
	DefaultLimit    int  `yaml:"default_limit,omitempty"`
	MaxRows         int  `yaml:"max_rows,omitempty"`
}

// Statement is SQL text with positional parameters ($1 is Params[0]).
type Statement struct {
	SQL    string `yaml:"sql"`
	Params []any  `yaml:"params,omitempty"`
}

// Step runs one statement and checks the outcome.
type Step struct {
	Statement `yaml:",inline"`

	// Replies script the backend for the recording backend, one per
	// backend call the step makes.
	Replies []Reply `yaml:"replies,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Reply is one scripted backend response.
type Reply struct {
	Rows     []map[string]any `yaml:"rows,omitempty"`
	Count    *int64           `yaml:"count,omitempty"`
	Affected int64            `yaml:"affected,omitempty"`
	Error    *ReplyError      `yaml:"error,omitempty"`
}

// ReplyError is a scripted PostgREST error body.
type ReplyError struct {
	Status  int    `yaml:"status,omitempty"`
	Code    string `yaml:"code"`
	Message string `yaml:"message"`
	Details string `yaml:"details,omitempty"`
	Hint    string `yaml:"hint,omitempty"`
}

// Expect lists the checks for one step. Unset fields are not checked.
type Expect struct {
	// Error is the expected SQLSTATE-style code. Empty expects success.
	Error string `yaml:"error,omitempty"`

	// Rows must equal the result rows exactly, in order.
	Rows []map[string]any `yaml:"rows,omitempty"`

	RowCount *int `yaml:"row_count,omitempty"`

	// Calls is the builder call sequence of the first request, e.g.
	// eq("status", "new"). An empty list expects no backend call.
	Calls []string `yaml:"calls,omitempty"`

	// Requests is the number of backend calls the step made.
	Requests *int `yaml:"requests,omitempty"`

	// Dropped is the number of WHERE fragments the compiler dropped.
	Dropped *int `yaml:"dropped,omitempty"`
}

// Assertion validates state after the steps.
type Assertion struct {
	// Type is final_state or stats.
	Type string `yaml:"type"`

	// Table and Where select rows for final_state (column equality).
	Table string         `yaml:"table,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// Expect is the subset every selected row must match (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of selected rows (final_state).
	Count *int `yaml:"count,omitempty"`

	// Stats are expected translator counters by name (stats).
	Stats map[string]int64 `yaml:"stats,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState = "final_state"
	AssertStats      = "stats"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly. A relative catalog
// path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Backend == "" {
		scenario.Backend = BackendSQLite
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Backend != BackendSQLite && s.Backend != BackendRecording {
		return fmt.Errorf("unknown backend %q: must be %s or %s", s.Backend, BackendSQLite, BackendRecording)
	}
	if s.Now != "" {
		if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
			return fmt.Errorf("now: %w", err)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, st := range s.Setup {
		if st.SQL == "" {
			return fmt.Errorf("setup[%d]: sql is required", i)
		}
	}
	if s.Backend == BackendRecording && len(s.Setup) > 0 {
		return fmt.Errorf("setup is not supported on the %s backend", BackendRecording)
	}

	for i, step := range s.Steps {
		if step.SQL == "" {
			return fmt.Errorf("steps[%d]: sql is required", i)
		}
		if len(step.Replies) > 0 && s.Backend != BackendRecording {
			return fmt.Errorf("steps[%d]: replies require the %s backend", i, BackendRecording)
		}
		for j, r := range step.Replies {
			if r.Error != nil && (r.Error.Code == "" && r.Error.Message == "") {
				return fmt.Errorf("steps[%d].replies[%d]: error needs a code or message", i, j)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s.Backend); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, backend string) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 && a.Count == nil {
			return fmt.Errorf("assertions[%d]: expect or count is required for final_state", index)
		}
		if backend != BackendSQLite {
			return fmt.Errorf("assertions[%d]: final_state requires the %s backend", index, BackendSQLite)
		}
	case AssertStats:
		if len(a.Stats) == 0 {
			return fmt.Errorf("assertions[%d]: stats is required for stats", index)
		}
		for name := range a.Stats {
			if _, ok := statNames[name]; !ok {
				return fmt.Errorf("assertions[%d]: unknown stat %q", index, name)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
