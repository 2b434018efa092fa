package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/store"
)

const abortTimeout = 30 * time.Second

// RunInTxWithClient opens a session, begins a multi-statement transaction
// and hands fn a store.Tx bound to it. The transaction is committed when fn
// returns nil and rolled back otherwise. The session is always aborted
// afterwards so it does not linger.
func RunInTxWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, scope domain.Scope, fn func(ctx context.Context, tx store.Tx) error) error {
	begin := client.Query("BEGIN TRANSACTION;")
	begin.CreateSession = true
	job, err := begin.Run(ctx)
	if err != nil {
		return fmt.Errorf("RunInTx: begin: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("RunInTx: begin: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("RunInTx: begin: %w", err)
	}
	if status.Statistics == nil || status.Statistics.SessionInfo == nil {
		return errors.New("RunInTx: begin: no session returned")
	}

	r := runner{client: client, ds: ds, sessionID: status.Statistics.SessionInfo.SessionID}
	defer func() {
		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
		defer cancel()
		_, _ = r.exec(abortCtx, "CALL BQ.ABORT_SESSION();")
	}()

	tx := &sessionTx{r: r, companyID: scope.CompanyID}
	if err := fn(ctx, tx); err != nil {
		rollback(ctx, r)
		return err
	}
	if _, err := r.exec(ctx, "COMMIT TRANSACTION;"); err != nil {
		rollback(ctx, r)
		return fmt.Errorf("RunInTx: commit: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, r runner) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	_, _ = r.exec(rbCtx, "ROLLBACK TRANSACTION;")
}

// sessionTx implements store.Tx on top of a BigQuery session.
type sessionTx struct {
	r         runner
	companyID string
}

var _ store.Tx = (*sessionTx)(nil)

func (t *sessionTx) GetTransaction(ctx context.Context, id string) (*domain.BankTransaction, error) {
	row, err := getTransaction(ctx, t.r, t.companyID, id)
	if err != nil {
		return nil, err
	}
	tx := row.ToDomain()
	return &tx, nil
}

func (t *sessionTx) GetEntry(ctx context.Context, ref domain.EntryRef) (*domain.FinancialEntry, error) {
	row, err := getEntry(ctx, t.r, t.companyID, ref)
	if err != nil {
		return nil, err
	}
	e := row.ToDomain(ref.Kind)
	return &e, nil
}

func (t *sessionTx) GetReconciliation(ctx context.Context, id string) (*domain.Reconciliation, error) {
	return getReconciliation(ctx, t.r, t.companyID, id)
}

func (t *sessionTx) InsertReconciliation(ctx context.Context, rec domain.ReconciliationRecord, items []domain.ReconciliationItem) error {
	_, err := t.r.exec(ctx, `
		INSERT INTO `+t.r.ds.table(reconciliationsTable)+` (`+reconciliationColumns+`
		) VALUES (
			@id, @company_id, @bank_transaction_id, @total_amount, @method,
			@notes, @match_type, @confidence_score, @difference,
			@created_at, @created_by,
			FALSE, NULL, NULL, NULL
		)
	`,
		bigquery.QueryParameter{Name: "id", Value: rec.ID},
		bigquery.QueryParameter{Name: "company_id", Value: t.companyID},
		bigquery.QueryParameter{Name: "bank_transaction_id", Value: rec.BankTransactionID},
		bigquery.QueryParameter{Name: "total_amount", Value: decimalToRat(rec.TotalAmount)},
		bigquery.QueryParameter{Name: "method", Value: string(rec.Method)},
		bigquery.QueryParameter{Name: "notes", Value: nullString(rec.Notes)},
		bigquery.QueryParameter{Name: "match_type", Value: nullString(string(rec.MatchType))},
		bigquery.QueryParameter{Name: "confidence_score", Value: nullFloat(rec.ConfidenceScore)},
		bigquery.QueryParameter{Name: "difference", Value: decimalToRat(rec.Difference)},
		bigquery.QueryParameter{Name: "created_at", Value: rec.CreatedAt},
		bigquery.QueryParameter{Name: "created_by", Value: nullString(rec.CreatedBy)},
	)
	if err != nil {
		return fmt.Errorf("InsertReconciliation: inserting record: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	sql, params := itemsInsert(t.r.ds, t.companyID, rec.ID, items)
	if _, err := t.r.exec(ctx, sql, params...); err != nil {
		return fmt.Errorf("InsertReconciliation: inserting items: %w", err)
	}
	return nil
}

// itemsInsert builds one multi-row INSERT with indexed parameters.
func itemsInsert(ds Dataset, companyID, recID string, items []domain.ReconciliationItem) (string, []bigquery.QueryParameter) {
	params := []bigquery.QueryParameter{
		{Name: "reconciliation_id", Value: recID},
		{Name: "company_id", Value: companyID},
	}
	values := make([]string, len(items))
	for i, item := range items {
		n := strconv.Itoa(i)
		values[i] = "(@id_" + n + ", @reconciliation_id, @company_id, " + n +
			", @kind_" + n + ", @entry_" + n + ", @used_" + n + ", @original_" + n +
			", @name_" + n + ", @due_" + n + ")"
		params = append(params,
			bigquery.QueryParameter{Name: "id_" + n, Value: item.ID},
			bigquery.QueryParameter{Name: "kind_" + n, Value: string(item.Entry.Kind)},
			bigquery.QueryParameter{Name: "entry_" + n, Value: item.Entry.ID},
			bigquery.QueryParameter{Name: "used_" + n, Value: decimalToRat(item.AmountUsed)},
			bigquery.QueryParameter{Name: "original_" + n, Value: decimalToRat(item.OriginalAmount)},
			bigquery.QueryParameter{Name: "name_" + n, Value: nullString(item.CounterpartyName)},
			bigquery.QueryParameter{Name: "due_" + n, Value: nullDate(item.DueDate)},
		)
	}
	sql := "INSERT INTO " + ds.table(itemsTable) + " (" + itemColumns + "\n\t) VALUES\n\t" +
		strings.Join(values, ",\n\t")
	return sql, params
}

func (t *sessionTx) MarkTransactionReconciled(ctx context.Context, id, reconciliationID string, at time.Time) error {
	return t.update(ctx, "MarkTransactionReconciled", `
		UPDATE `+t.r.ds.table(transactionsTable)+`
		SET is_reconciled = TRUE,
		    reconciled_with = @reconciliation_id,
		    reconciled_at = @at
		WHERE id = @id AND company_id = @company_id
		  AND COALESCE(is_reconciled, FALSE) = FALSE
		  AND reconciled_with IS NULL
	`,
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "reconciliation_id", Value: reconciliationID},
		bigquery.QueryParameter{Name: "at", Value: at},
	)
}

func (t *sessionTx) SettleEntry(ctx context.Context, ref domain.EntryRef, s store.Settlement) error {
	table, err := entryTable(ref.Kind)
	if err != nil {
		return fmt.Errorf("SettleEntry: %w", err)
	}
	return t.update(ctx, "SettleEntry", `
		UPDATE `+t.r.ds.table(table)+`
		SET is_paid = TRUE,
		    paid_at = @paid_at,
		    paid_amount = @paid_amount,
		    reconciliation_id = @reconciliation_id
		WHERE id = @id AND company_id = @company_id
		  AND COALESCE(is_paid, FALSE) = FALSE
		  AND reconciliation_id IS NULL
	`,
		bigquery.QueryParameter{Name: "id", Value: ref.ID},
		bigquery.QueryParameter{Name: "paid_at", Value: s.PaidAt},
		bigquery.QueryParameter{Name: "paid_amount", Value: decimalToRat(s.PaidAmount)},
		bigquery.QueryParameter{Name: "reconciliation_id", Value: s.ReconciliationID},
	)
}

func (t *sessionTx) MarkReversed(ctx context.Context, id string, at time.Time, by string, notes *string) error {
	return t.update(ctx, "MarkReversed", `
		UPDATE `+t.r.ds.table(reconciliationsTable)+`
		SET is_reversed = TRUE,
		    reversed_at = @at,
		    reversed_by = @by,
		    reversal_notes = @notes
		WHERE id = @id AND company_id = @company_id
		  AND COALESCE(is_reversed, FALSE) = FALSE
	`,
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "at", Value: at},
		bigquery.QueryParameter{Name: "by", Value: nullString(by)},
		bigquery.QueryParameter{Name: "notes", Value: nullStringPtr(notes)},
	)
}

func (t *sessionTx) UnlinkTransaction(ctx context.Context, id, reconciliationID string) error {
	return t.update(ctx, "UnlinkTransaction", `
		UPDATE `+t.r.ds.table(transactionsTable)+`
		SET is_reconciled = FALSE,
		    reconciled_with = NULL,
		    reconciled_at = NULL
		WHERE id = @id AND company_id = @company_id
		  AND reconciled_with = @reconciliation_id
	`,
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "reconciliation_id", Value: reconciliationID},
	)
}

func (t *sessionTx) ReopenEntry(ctx context.Context, ref domain.EntryRef, reconciliationID string) error {
	table, err := entryTable(ref.Kind)
	if err != nil {
		return fmt.Errorf("ReopenEntry: %w", err)
	}
	return t.update(ctx, "ReopenEntry", `
		UPDATE `+t.r.ds.table(table)+`
		SET is_paid = FALSE,
		    paid_at = NULL,
		    paid_amount = NULL,
		    reconciliation_id = NULL
		WHERE id = @id AND company_id = @company_id
		  AND reconciliation_id = @reconciliation_id
	`,
		bigquery.QueryParameter{Name: "id", Value: ref.ID},
		bigquery.QueryParameter{Name: "reconciliation_id", Value: reconciliationID},
	)
}

// update runs a conditional UPDATE scoped to the company. Touching no row
// means the guard failed, so it reports store.ErrConflict.
func (t *sessionTx) update(ctx context.Context, op, sql string, params ...bigquery.QueryParameter) error {
	params = append(params, bigquery.QueryParameter{Name: "company_id", Value: t.companyID})
	n, err := t.r.exec(ctx, sql, params...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	}
	return nil
}
