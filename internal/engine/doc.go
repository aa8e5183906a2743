// Package engine runs SQL statements against a structured query backend.
//
// Translator is the single entry point: TranslateAndExecute parses and
// compiles a statement, enforces the mutation guard, builds a
// postgrest.Request, executes it through the injected postgrest.Client and
// normalizes the outcome.
//
// Pipeline:
//
//  1. compiler.Translate: classify, extract clauses, compile WHERE, bind
//     parameters, resolve the row window
//  2. queryir.Guard: UPDATE/DELETE without a usable filter never reach
//     the backend
//  3. buildRequest: one builder call per filter
//  4. Client.Execute, with one schema-cache retry for UPDATE
//  5. normalize: queryir.Result, or *queryir.Error of kind execution
//
// Every error returned is a *queryir.Error, so callers see one error
// shape whichever stage failed.
//
// Translator holds no per-call state and is safe for concurrent use. The
// backend client is injected; there is no process-wide connection.
package engine
