package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("New() level = %v, want info", log.GetLevel())
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", buf.String())
	}
}

func TestNewWithLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"upper case", "WARN", zerolog.WarnLevel},
		{"padded", " error ", zerolog.ErrorLevel},
		{"empty falls back", "", zerolog.InfoLevel},
		{"unknown falls back", "verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewWithLevel(tt.level)
			if log.GetLevel() != tt.want {
				t.Errorf("NewWithLevel(%q) level = %v, want %v", tt.level, log.GetLevel(), tt.want)
			}
		})
	}
}

func TestNewWithOptions_Format(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		wantJSON bool
	}{
		{"json", FormatJSON, true},
		{"json any case", "JSON", true},
		{"console", FormatConsole, false},
		{"default", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := NewWithOptions(Options{Format: tt.format, Out: buf})
			log.Info().Str("reconciliation_id", "rec-1").Msg("committed")

			var decoded map[string]interface{}
			isJSON := json.Unmarshal(buf.Bytes(), &decoded) == nil
			if isJSON != tt.wantJSON {
				t.Fatalf("JSON output = %v, want %v: %s", isJSON, tt.wantJSON, buf.String())
			}
			if !strings.Contains(buf.String(), "rec-1") {
				t.Errorf("Expected field in output, got: %s", buf.String())
			}
		})
	}
}

func TestNewWithOptions_LevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithOptions(Options{Level: "warn", Format: FormatJSON, Out: buf})

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestWithCompanyAndJob(t *testing.T) {
	buf := &bytes.Buffer{}
	WithCompany(NewWithWriter(buf), "acme").Info().Msg("scoped")
	WithJob(NewWithWriter(buf), "job-1", "beta").Info().Msg("run")

	for _, want := range []string{`"company_id":"acme"`, `"job_id":"job-1"`, `"company_id":"beta"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Expected %s in output, got: %s", want, buf.String())
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"transaction_id": "tx-9",
		"items":          2,
	})
	log.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"transaction_id":"tx-9"`) || !strings.Contains(output, `"items":2`) {
		t.Errorf("Expected output to contain fields, got: %s", output)
	}
}
