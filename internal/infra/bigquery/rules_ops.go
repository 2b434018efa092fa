package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// ListActiveRulesWithClient returns the company's active alias rules.
func ListActiveRulesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, companyID string) ([]*RuleRow, error) {
	q := runner{client: client, ds: ds}.query(`
		SELECT id, company_id, search_text, counterparty_name, kind, active
		FROM `+ds.table(rulesTable)+`
		WHERE company_id = @company_id
		  AND COALESCE(active, TRUE)
		ORDER BY id
	`,
		bigquery.QueryParameter{Name: "company_id", Value: companyID},
	)
	rows, err := readRows[RuleRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListActiveRules: %w", err)
	}
	return rows, nil
}
