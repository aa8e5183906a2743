package engine

import (
	"context"
	"errors"

	"github.com/roach88/sqlrest/internal/postgrest"
	"github.com/roach88/sqlrest/internal/queryir"
)

// executionError wraps a backend failure into the single error contract.
//
// Backend codes are kept as-is (PostgREST code, SQLSTATE or driver error
// number). Cancellation maps to 57014 and anything without a code to
// XX000. An error that already is a *queryir.Error is returned unchanged.
func executionError(err error) *queryir.Error {
	var qe *queryir.Error
	if errors.As(err, &qe) {
		return qe
	}

	if pe, ok := postgrest.AsError(err); ok {
		return queryir.NewExecutionError(pe.Code, pe.Message, joinDetail(pe.Details, pe.Hint), err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return queryir.NewExecutionError(queryir.CodeQueryCanceled, "query canceled", err.Error(), err)
	}

	return queryir.NewExecutionError("", err.Error(), "", err)
}

func joinDetail(details, hint string) string {
	switch {
	case details == "":
		return hint
	case hint == "":
		return details
	default:
		return details + " (hint: " + hint + ")"
	}
}

// compileError makes sure translation failures carry the error contract.
func compileError(err error) *queryir.Error {
	var qe *queryir.Error
	if errors.As(err, &qe) {
		return qe
	}
	return &queryir.Error{
		Kind:    queryir.KindParse,
		Code:    queryir.CodeSyntaxError,
		Message: err.Error(),
		Err:     err,
	}
}
