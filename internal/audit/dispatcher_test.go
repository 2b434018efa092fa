package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/logger"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
	fails  int
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Write(ctx context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails > 0 {
		m.fails--
		return errors.New("transient")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestDispatcher_DeliversAndFlushesOnStop(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(10, logger.NewWithWriter(&bytes.Buffer{}), sink)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 5; i++ {
		d.Record(context.Background(), Event{Type: EventCommitted, ReconciliationID: "rec"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := sink.count(); got != 5 {
		t.Fatalf("delivered %d events, want 5", got)
	}
	for _, e := range sink.events {
		if e.ID == "" || e.OccurredAt.IsZero() {
			t.Errorf("event not stamped: %+v", e)
		}
	}
}

func TestDispatcher_RetriesFailingSink(t *testing.T) {
	sink := &memorySink{fails: 2}
	d := NewDispatcher(1, logger.NewWithWriter(&bytes.Buffer{}), sink)
	d.backoff = time.Millisecond
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	d.Record(context.Background(), Event{Type: EventReversed})

	if err := d.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 1 {
		t.Errorf("expected event delivered after retries, got %d", sink.count())
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	sink := &memorySink{}
	// Not started, so nothing drains the buffer.
	d := NewDispatcher(1, logger.NewWithWriter(&buf), sink)

	d.Record(context.Background(), Event{Type: EventCommitted})
	d.Record(context.Background(), Event{Type: EventCommitted})

	if !strings.Contains(buf.String(), "Audit buffer full") {
		t.Errorf("expected drop to be logged, got %q", buf.String())
	}
}

func TestDispatcher_RecordAfterStop(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(1, logger.NewWithWriter(&buf))
	if err := d.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	d.Record(context.Background(), Event{Type: EventCommitted})

	if !strings.Contains(buf.String(), "dropping event") {
		t.Errorf("expected closed drop to be logged, got %q", buf.String())
	}
	if err := d.Start(context.Background()); err == nil {
		t.Error("expected Start on closed dispatcher to fail")
	}
}

func TestLogSink_Write(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(logger.NewWithWriter(&buf))

	err := s.Write(context.Background(), Event{
		ID:               "ev1",
		Type:             EventCommitted,
		ReconciliationID: "rec1",
		Actor:            "ana",
		Data:             map[string]interface{}{"method": "manual"},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	for _, want := range []string{"rec1", "reconciliation.committed", "ana", "manual"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output missing %q: %s", want, buf.String())
		}
	}
}
