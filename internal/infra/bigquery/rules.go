package bigquery

import (
	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
)

const rulesTable = "reconciliation_rules"

// RuleRow mirrors a row of reconciliation_rules.
type RuleRow struct {
	ID               string              `bigquery:"id"`
	CompanyID        string              `bigquery:"company_id"`
	SearchText       string              `bigquery:"search_text"`
	CounterpartyName string              `bigquery:"counterparty_name"`
	Kind             bigquery.NullString `bigquery:"kind"` // NULL applies to both ledgers
	Active           bigquery.NullBool   `bigquery:"active"`
}

// ToDomain converts the row.
func (r *RuleRow) ToDomain() domain.MatchingRule {
	return domain.MatchingRule{
		ID:               r.ID,
		CompanyID:        r.CompanyID,
		SearchText:       r.SearchText,
		CounterpartyName: r.CounterpartyName,
		Kind:             domain.EntryKind(r.Kind.StringVal),
		Active:           !r.Active.Valid || r.Active.Bool,
	}
}
