// Package bigquery implements store.Store on Google BigQuery. Commits and
// reversals run inside BigQuery multi-statement transactions bound to a
// session; every mutating statement is a conditional UPDATE whose affected row
// count is checked.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"google.golang.org/api/iterator"
)

// numericScale is the fractional precision of BigQuery NUMERIC.
const numericScale = 9

var utc = time.UTC

// Dataset names where the reconciliation tables live.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// table returns the backtick-quoted, fully qualified name of a table.
func (d Dataset) table(name string) string {
	return "`" + d.ProjectID + "." + d.DatasetID + "." + name + "`"
}

// runner issues queries, optionally inside a session.
type runner struct {
	client    *bigquery.Client
	ds        Dataset
	sessionID string
}

func (r runner) query(sql string, params ...bigquery.QueryParameter) *bigquery.Query {
	q := r.client.Query(sql)
	q.Parameters = params
	if r.sessionID != "" {
		q.ConnectionProperties = []*bigquery.ConnectionProperty{
			{Key: "session_id", Value: r.sessionID},
		}
	}
	return q
}

// exec runs a statement to completion and returns the number of rows a DML
// statement touched.
func (r runner) exec(ctx context.Context, sql string, params ...bigquery.QueryParameter) (int64, error) {
	job, err := r.query(sql, params...).Run(ctx)
	if err != nil {
		return 0, classify(err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if err := status.Err(); err != nil {
		return 0, classify(err)
	}
	if status.Statistics == nil {
		return 0, nil
	}
	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return qs.NumDMLAffectedRows, nil
	}
	return 0, nil
}

// readRows runs a SELECT and decodes every row into T.
func readRows[T any](ctx context.Context, q *bigquery.Query) ([]*T, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, classify(err)
	}

	var rows []*T
	for {
		var row T
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating rows: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// classify maps BigQuery transaction aborts onto store.ErrConflict.
func classify(err error) error {
	if err == nil || errors.Is(err, store.ErrConflict) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "concurrent update") || strings.Contains(msg, "transaction is aborted") {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}
