// Package handlers implements the reconciliation HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/api/middleware"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/explain"
	"github.com/dvloznov/bank-reconciliation/internal/jobs"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/reconcile"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
)

const dateLayout = "2006-01-02"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// SuggestionGenerator produces suggestion batches.
type SuggestionGenerator interface {
	Generate(ctx context.Context, scope domain.Scope, filter store.TransactionFilter) (*suggest.Batch, error)
}

// Explainer describes a suggestion in prose.
type Explainer interface {
	Explain(ctx context.Context, s suggest.Suggestion) (*explain.Explanation, error)
}

// Committer writes reconciliations.
type Committer interface {
	Commit(ctx context.Context, scope domain.Scope, req reconcile.CommitRequest) (string, error)
	Preview(ctx context.Context, scope domain.Scope, transactionID string, refs []domain.EntryRef) (*reconcile.Preview, error)
	ConfirmBatch(ctx context.Context, scope domain.Scope, suggestions []suggest.Suggestion, actor string) reconcile.BatchResult
}

// Reverser undoes reconciliations.
type Reverser interface {
	Reverse(ctx context.Context, scope domain.Scope, reconciliationID string, reason *string, actor string) error
}

var (
	_ SuggestionGenerator = (*suggest.Engine)(nil)
	_ Explainer           = (*explain.Explainer)(nil)
	_ Committer           = (*reconcile.Committer)(nil)
	_ Reverser            = (*reconcile.Reverser)(nil)
)

// StatusForCode maps a stable error code to its HTTP status.
func StatusForCode(code string) int {
	switch code {
	case reconcile.CodeTransactionNotFound, reconcile.CodeEntryNotFound, reconcile.CodeReconciliationNotFound, codeNotFound:
		return http.StatusNotFound
	case reconcile.CodeAlreadyReconciled, reconcile.CodeAlreadyReversed, reconcile.CodeEntryAlreadySettled, reconcile.CodeConflict:
		return http.StatusConflict
	case reconcile.CodeAmountMismatch, reconcile.CodeInvalidSelection:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

const (
	codeNotFound    = "not_found"
	codeBadRequest  = "bad_request"
	codeUnavailable = "unavailable"
)

// writeDomainError replies with the status matching err. Internal errors are
// logged and their message hidden.
func writeDomainError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	code := reconcile.Code(err)
	if code == reconcile.CodeInternal && (errors.Is(err, store.ErrNotFound) || errors.Is(err, jobs.ErrJobNotFound)) {
		code = codeNotFound
	}
	status := StatusForCode(code)

	log := logger.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, status, code, msg)
		return
	}
	log.Warn().Err(err).Str("code", code).Msg(msg)
	middleware.WriteError(w, status, code, err.Error())
}

func badRequest(w http.ResponseWriter, message string) {
	middleware.WriteError(w, http.StatusBadRequest, codeBadRequest, message)
}

// scopeOf returns the request scope set by middleware.Scope.
func scopeOf(r *http.Request) domain.Scope {
	scope, _ := middleware.ScopeFromContext(r.Context())
	return scope
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseDate parses an optional YYYY-MM-DD value. Empty means unbounded.
func parseDate(value, name string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format, want YYYY-MM-DD", name)
	}
	return t, nil
}

func parseDateRange(r *http.Request) (start, end time.Time, err error) {
	query := r.URL.Query()
	if start, err = parseDate(query.Get("start_date"), "start_date"); err != nil {
		return
	}
	if end, err = parseDate(query.Get("end_date"), "end_date"); err != nil {
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		err = fmt.Errorf("end_date is before start_date")
	}
	return
}

// endOfDay turns a date-only upper bound into an inclusive timestamp bound.
func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// parseInt parses an optional non-negative integer query parameter.
func parseInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

// actorOf prefers the body's actor, then the X-Actor header.
func actorOf(r *http.Request, bodyActor string) string {
	if bodyActor != "" {
		return bodyActor
	}
	return r.Header.Get("X-Actor")
}
