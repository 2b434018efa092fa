package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/normalize"
	"github.com/dvloznov/bank-reconciliation/internal/store"
)

// ListOpenEntriesWithClient returns the unpaid, unlinked entries of one
// ledger. A non-empty counterparty keeps only entries whose normalized name
// equals it; the comparison runs here because it folds diacritics.
func ListOpenEntriesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, companyID string, kind domain.EntryKind, counterparty string) ([]*EntryRow, error) {
	table, err := entryTable(kind)
	if err != nil {
		return nil, fmt.Errorf("ListOpenEntries: %w", err)
	}

	q := runner{client: client, ds: ds}.query(
		"SELECT"+entryColumns+"\n\tFROM "+ds.table(table)+`
	WHERE company_id = @company_id
	  AND COALESCE(is_paid, FALSE) = FALSE
	  AND reconciliation_id IS NULL
	ORDER BY id`,
		bigquery.QueryParameter{Name: "company_id", Value: companyID},
	)
	rows, err := readRows[EntryRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListOpenEntries: %w", err)
	}

	if counterparty == "" {
		return rows, nil
	}
	want := normalize.Text(counterparty)
	filtered := rows[:0]
	for _, r := range rows {
		if normalize.Text(r.CounterpartyName.StringVal) == want {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func getEntry(ctx context.Context, r runner, companyID string, ref domain.EntryRef) (*EntryRow, error) {
	table, err := entryTable(ref.Kind)
	if err != nil {
		return nil, fmt.Errorf("getEntry: %w", err)
	}
	q := r.query(
		"SELECT"+entryColumns+"\n\tFROM "+r.ds.table(table)+
			"\n\tWHERE id = @id AND company_id = @company_id\n\tLIMIT 1",
		bigquery.QueryParameter{Name: "id", Value: ref.ID},
		bigquery.QueryParameter{Name: "company_id", Value: companyID},
	)
	rows, err := readRows[EntryRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("getEntry: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}
