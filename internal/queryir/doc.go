// Package queryir defines the structured form a SQL statement compiles to.
//
// A CompiledStatement names a table, a statement kind and a conjunction of
// Filters, plus the payload, projection, ordering and row window that the
// execution adapter needs to drive a structured query API. Nothing in this
// package performs I/O.
//
// Filter operators form a closed set (Operator). Backends switch over it
// exhaustively; an operator they do not know is a programming error, not
// a user error.
//
// The package also owns the error contract every caller observes (Error,
// with Kind Parse, Safety or Execution) and the mutation safety guard
// (Guard), which runs before any network call.
package queryir
