package engine

import "sync/atomic"

// Stats is a snapshot of a Translator's counters.
type Stats struct {
	Calls    int64 `json:"calls"`
	Executed int64 `json:"executed"`
	Retries  int64 `json:"retries"`
	Dropped  int64 `json:"dropped"`
	Failures int64 `json:"failures"`
}

// counters tracks call outcomes.
//
// Thread-safety: counters is safe for concurrent use (atomic operations).
// Values only ever increase.
type counters struct {
	calls    atomic.Int64
	executed atomic.Int64
	retries  atomic.Int64
	dropped  atomic.Int64
	failures atomic.Int64
}

// snapshot reads every counter. Counters are read independently, so a
// snapshot taken under concurrent load is not a single point in time.
func (c *counters) snapshot() Stats {
	return Stats{
		Calls:    c.calls.Load(),
		Executed: c.executed.Load(),
		Retries:  c.retries.Load(),
		Dropped:  c.dropped.Load(),
		Failures: c.failures.Load(),
	}
}
