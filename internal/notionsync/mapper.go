package notionsync

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/audit"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the reconciliations database.
const (
	propReconciliationID = "Reconciliation ID"
	propStatus           = "Status"
)

// Status options.
const (
	StatusActive   = "Active"
	StatusReversed = "Reversed"
)

// Notion rejects rich text longer than this.
const maxRichTextLen = 2000

func title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Title: []notionapi.RichText{{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		}},
	}
}

func richText(s string) notionapi.RichTextProperty {
	if len(s) > maxRichTextLen {
		s = s[:maxRichTextLen]
	}
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		}},
	}
}

func selectOption(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Select: notionapi.Option{Name: name}}
}

func date(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
}

// ReconciliationToNotionProperties maps a reconciliation to a page of the
// reconciliations database.
func ReconciliationToNotionProperties(r domain.Reconciliation) notionapi.Properties {
	rec := r.Record
	total, _ := rec.TotalAmount.Float64()
	diff, _ := rec.Difference.Float64()

	props := notionapi.Properties{
		propReconciliationID: title(rec.ID),
		"Company":            selectOption(rec.CompanyID),
		"Bank Transaction":   richText(rec.BankTransactionID),
		"Total Amount":       notionapi.NumberProperty{Number: total},
		"Difference":         notionapi.NumberProperty{Number: diff},
		"Method":             selectOption(string(rec.Method)),
		"Items":              notionapi.NumberProperty{Number: float64(len(r.Items))},
		"Created":            date(rec.CreatedAt),
		propStatus:           selectOption(StatusActive),
	}

	if rec.MatchType != "" {
		props["Match Type"] = selectOption(string(rec.MatchType))
	}
	if rec.ConfidenceScore != nil {
		props["Confidence"] = notionapi.NumberProperty{Number: *rec.ConfidenceScore}
	}
	if rec.CreatedBy != "" {
		props["Created By"] = richText(rec.CreatedBy)
	}
	if rec.Notes != "" {
		props["Notes"] = richText(rec.Notes)
	}
	if entries := itemSummary(r.Items); entries != "" {
		props["Entries"] = richText(entries)
	}

	if rec.IsReversed {
		props[propStatus] = selectOption(StatusReversed)
		if rec.ReversedAt != nil {
			props["Reversed"] = date(*rec.ReversedAt)
		}
		if rec.ReversedBy != "" {
			props["Reversed By"] = richText(rec.ReversedBy)
		}
	}
	return props
}

// itemSummary renders one "kind:id amount" token per item.
func itemSummary(items []domain.ReconciliationItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s:%s %s", it.Entry.Kind, it.Entry.ID, it.AmountUsed.StringFixed(2)))
	}
	return strings.Join(parts, ", ")
}

// AuditEventToNotionProperties maps an audit event to a page of the audit
// database.
func AuditEventToNotionProperties(e audit.Event) notionapi.Properties {
	props := notionapi.Properties{
		"Event ID":          title(e.ID),
		"Type":              selectOption(string(e.Type)),
		"Company":           selectOption(e.CompanyID),
		"Reconciliation ID": richText(e.ReconciliationID),
		"Bank Transaction":  richText(e.BankTransactionID),
		"Occurred":          date(e.OccurredAt),
	}
	if e.Actor != "" {
		props["Actor"] = richText(e.Actor)
	}
	if len(e.Data) > 0 {
		if b, err := json.Marshal(e.Data); err == nil {
			props["Data"] = richText(string(b))
		}
	}
	return props
}

// extractReconciliationID reads the title of a reconciliations page.
// Returns empty string if not found.
func extractReconciliationID(page notionapi.Page) string {
	if prop, ok := page.Properties[propReconciliationID]; ok {
		if t, ok := prop.(*notionapi.TitleProperty); ok && len(t.Title) > 0 {
			return t.Title[0].PlainText
		}
	}
	return ""
}

// extractStatus reads the Status select of a reconciliations page.
func extractStatus(page notionapi.Page) string {
	if prop, ok := page.Properties[propStatus]; ok {
		if s, ok := prop.(*notionapi.SelectProperty); ok {
			return s.Select.Name
		}
	}
	return ""
}
