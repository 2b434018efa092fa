package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/store"
)

// GetReconciliationWithClient loads one record of the company with its items.
func GetReconciliationWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, companyID, id string) (*domain.Reconciliation, error) {
	rec, err := getReconciliation(ctx, runner{client: client, ds: ds}, companyID, id)
	if err != nil {
		return nil, fmt.Errorf("GetReconciliation: %w", err)
	}
	return rec, nil
}

func getReconciliation(ctx context.Context, r runner, companyID, id string) (*domain.Reconciliation, error) {
	q := r.query(
		"SELECT"+reconciliationColumns+"\n\tFROM "+r.ds.table(reconciliationsTable)+
			"\n\tWHERE id = @id AND company_id = @company_id\n\tLIMIT 1",
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "company_id", Value: companyID},
	)
	rows, err := readRows[ReconciliationRow](ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}

	items, err := listItems(ctx, r, companyID, []string{id})
	if err != nil {
		return nil, err
	}
	return &domain.Reconciliation{Record: rows[0].ToDomain(), Items: items[id]}, nil
}

// ListReconciliationsWithClient returns records created within the filter's
// window, newest last, each with its items.
func ListReconciliationsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, companyID string, filter store.ReconciliationFilter) ([]domain.Reconciliation, error) {
	r := runner{client: client, ds: ds}
	sql, params := reconciliationsQuery(ds, companyID, filter)
	rows, err := readRows[ReconciliationRow](ctx, r.query(sql, params...))
	if err != nil {
		return nil, fmt.Errorf("ListReconciliations: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	items, err := listItems(ctx, r, companyID, ids)
	if err != nil {
		return nil, fmt.Errorf("ListReconciliations: %w", err)
	}

	result := make([]domain.Reconciliation, len(rows))
	for i, row := range rows {
		result[i] = domain.Reconciliation{Record: row.ToDomain(), Items: items[row.ID]}
	}
	return result, nil
}

func reconciliationsQuery(ds Dataset, companyID string, filter store.ReconciliationFilter) (string, []bigquery.QueryParameter) {
	where := []string{"company_id = @company_id"}
	params := []bigquery.QueryParameter{{Name: "company_id", Value: companyID}}

	if !filter.IncludeReversed {
		where = append(where, "COALESCE(is_reversed, FALSE) = FALSE")
	}
	if !filter.StartDate.IsZero() {
		where = append(where, "created_at >= @start_ts")
		params = append(params, bigquery.QueryParameter{Name: "start_ts", Value: filter.StartDate})
	}
	if !filter.EndDate.IsZero() {
		where = append(where, "created_at <= @end_ts")
		params = append(params, bigquery.QueryParameter{Name: "end_ts", Value: filter.EndDate})
	}

	sql := "SELECT" + reconciliationColumns + "\n\tFROM " + ds.table(reconciliationsTable) +
		"\n\tWHERE " + strings.Join(where, "\n\t  AND ") +
		"\n\tORDER BY created_at, id"
	if filter.Limit > 0 {
		sql += "\n\tLIMIT @limit"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: filter.Limit})
	}
	return sql, params
}

// listItems loads the items of several records keyed by record ID.
func listItems(ctx context.Context, r runner, companyID string, ids []string) (map[string][]domain.ReconciliationItem, error) {
	q := r.query(
		"SELECT"+itemColumns+"\n\tFROM "+r.ds.table(itemsTable)+`
	WHERE company_id = @company_id
	  AND reconciliation_id IN UNNEST(@ids)
	ORDER BY reconciliation_id, line_no`,
		bigquery.QueryParameter{Name: "company_id", Value: companyID},
		bigquery.QueryParameter{Name: "ids", Value: ids},
	)
	rows, err := readRows[ReconciliationItemRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listItems: %w", err)
	}

	items := make(map[string][]domain.ReconciliationItem, len(ids))
	for _, row := range rows {
		items[row.ReconciliationID] = append(items[row.ReconciliationID], row.ToDomain())
	}
	return items, nil
}
