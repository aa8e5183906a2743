package harness

// StepTrace records what one step compiled to and what it returned.
type StepTrace struct {
	Step int    `json:"step"`
	SQL  string `json:"sql"`

	// PlanID fingerprints the compiled statement. Empty on parse and
	// safety errors.
	PlanID string `json:"plan_id,omitempty"`

	// Calls is the builder call sequence of the first request.
	Calls []string `json:"calls,omitempty"`

	// Requests is the number of backend calls made.
	Requests int `json:"requests"`

	Dropped int `json:"dropped,omitempty"`

	Rows     []map[string]any `json:"rows,omitempty"`
	RowCount int              `json:"row_count"`

	// Error is the SQLSTATE-style code of a failed step.
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []StepTrace `json:"trace"`

	// Errors holds one message per failed check. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
