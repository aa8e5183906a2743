// Package harness runs YAML conformance scenarios through the translator.
//
// # Scenario Format
//
//	name: select_new_leads
//	description: "What this scenario validates"
//	backend: sqlite            # or recording
//	catalog: crm.cue           # optional volatile-column catalog
//	now: 2024-01-15T12:00:00Z  # optional compiler clock
//	options:
//	  strict_mutations: true
//	setup:
//	  - sql: INSERT INTO leads (id, name) VALUES ($1, $2)
//	    params: [l1, Ada]
//	steps:
//	  - sql: SELECT id FROM leads WHERE status = $1 LIMIT 5
//	    params: [new]
//	    expect:
//	      rows: [{id: l1}]
//	      calls: ['from("leads")', 'select("id")', 'eq("status", "new")', 'range(0, 4)']
//	assertions:
//	  - type: final_state
//	    table: leads
//	    where: {id: l1}
//	    expect: {status: new}
//	  - type: stats
//	    stats: {retries: 0}
//
// On the recording backend each step scripts its backend replies:
//
//	  - sql: UPDATE leads SET enriched_at = $1 WHERE id = $2
//	    replies:
//	      - error: {code: PGRST204, message: "Could not find the 'enriched_at' column"}
//	      - affected: 1
//
// # Expectations
//
//   - error: expected SQLSTATE-style code (42601, 0A000, 55000, 57014, ...)
//   - rows: exact rows in order, compared as canonical JSON
//   - row_count, requests, dropped: exact counts
//   - calls: builder call sequence of the first request
//
// # Determinism
//
// Every run uses a fixed compiler clock, a fixed call id and a fresh
// backend, so traces are stable for golden comparison (RunWithGolden).
package harness
