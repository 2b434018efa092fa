package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bank-reconciliation/internal/store"
)

const transactionsTable = "bank_transactions"

// unreconciledQuery builds the SELECT for ListUnreconciledTransactions.
func unreconciledQuery(ds Dataset, companyID string, filter store.TransactionFilter) (string, []bigquery.QueryParameter) {
	where := []string{
		"company_id = @company_id",
		"COALESCE(is_reconciled, FALSE) = FALSE",
		"reconciled_with IS NULL",
	}
	params := []bigquery.QueryParameter{{Name: "company_id", Value: companyID}}

	if !filter.StartDate.IsZero() {
		where = append(where, "transaction_date >= @start_date")
		params = append(params, bigquery.QueryParameter{Name: "start_date", Value: civil.DateOf(filter.StartDate)})
	}
	if !filter.EndDate.IsZero() {
		where = append(where, "transaction_date <= @end_date")
		params = append(params, bigquery.QueryParameter{Name: "end_date", Value: civil.DateOf(filter.EndDate)})
	}
	if len(filter.IDs) > 0 {
		where = append(where, "id IN UNNEST(@ids)")
		params = append(params, bigquery.QueryParameter{Name: "ids", Value: filter.IDs})
	}

	sql := "SELECT" + bankTransactionColumns + "\n\tFROM " + ds.table(transactionsTable) +
		"\n\tWHERE " + strings.Join(where, "\n\t  AND ") +
		"\n\tORDER BY transaction_date, id"
	if filter.Limit > 0 {
		sql += "\n\tLIMIT @limit"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: filter.Limit})
	}
	return sql, params
}

// ListUnreconciledTransactionsWithClient returns the company's bank
// transactions that are not linked to a reconciliation.
func ListUnreconciledTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, companyID string, filter store.TransactionFilter) ([]*BankTransactionRow, error) {
	sql, params := unreconciledQuery(ds, companyID, filter)
	rows, err := readRows[BankTransactionRow](ctx, runner{client: client, ds: ds}.query(sql, params...))
	if err != nil {
		return nil, fmt.Errorf("ListUnreconciledTransactions: %w", err)
	}
	return rows, nil
}

// getTransaction reads one transaction of the company, inside the runner's
// session when it has one.
func getTransaction(ctx context.Context, r runner, companyID, id string) (*BankTransactionRow, error) {
	q := r.query(
		"SELECT"+bankTransactionColumns+"\n\tFROM "+r.ds.table(transactionsTable)+
			"\n\tWHERE id = @id AND company_id = @company_id\n\tLIMIT 1",
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "company_id", Value: companyID},
	)
	rows, err := readRows[BankTransactionRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("getTransaction: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}
