// Package postgrest models the structured query API the translator
// targets: a table-scoped, chainable filter builder in the style of
// PostgREST.
//
// A QueryBuilder records calls such as Eq, In, Order and Range and
// produces a Request. A Client executes a Request. Two clients exist:
// HTTPClient speaks the PostgREST wire protocol, and store.Store renders
// the same Request as SQL against database/sql.
//
// The package depends only on internal/ir so that backends never see the
// SQL front end.
package postgrest
