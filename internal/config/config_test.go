package config

import (
	"flag"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"RECON_PROJECT_ID", "RECON_DATASET_ID", "RECON_STORE", "GCS_BUCKET",
		"RECON_MAX_SUGGESTIONS", "RECON_WORKERS", "RECON_COMPANIES", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}

	c := FromEnv()
	if c.DatasetID != "reconciliation" || c.StoreBackend != StoreBigQuery {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.LogFormat != "console" {
		t.Errorf("log format = %q, want console", c.LogFormat)
	}
	if c.MaxSuggestions != 10 || c.MaxAggregationSize != 10 || c.MaxCandidates != 50 || c.Workers != 4 {
		t.Errorf("unexpected numeric defaults: %+v", c)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("RECON_PROJECT_ID", "proj")
	t.Setenv("RECON_STORE", "memory")
	t.Setenv("RECON_MAX_SUGGESTIONS", "25")
	t.Setenv("RECON_WORKERS", "not-a-number")
	t.Setenv("RECON_COMPANIES", " acme, beta ,,")

	c := FromEnv()
	if c.ProjectID != "proj" || c.StoreBackend != StoreMemory || c.MaxSuggestions != 25 {
		t.Errorf("overrides not applied: %+v", c)
	}
	if c.Workers != 4 {
		t.Errorf("malformed int should fall back, got %d", c.Workers)
	}
	if diff := cmp.Diff([]string{"acme", "beta"}, c.Companies); diff != "" {
		t.Errorf("companies mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterFlags_FlagWins(t *testing.T) {
	t.Setenv("RECON_PROJECT_ID", "from-env")
	c := FromEnv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse([]string{"-project", "from-flag", "-max-suggestions", "3"}); err != nil {
		t.Fatal(err)
	}
	if c.ProjectID != "from-flag" || c.MaxSuggestions != 3 {
		t.Errorf("flags not applied: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		ProjectID:          "p",
		DatasetID:          "d",
		StoreBackend:       StoreBigQuery,
		MaxSuggestions:     10,
		MaxAggregationSize: 10,
		MaxCandidates:      50,
		Workers:            4,
		AuditBuffer:        16,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"memory without project", func(c *Config) { c.StoreBackend = StoreMemory; c.ProjectID = "" }, false},
		{"bigquery without project", func(c *Config) { c.ProjectID = "" }, true},
		{"unknown backend", func(c *Config) { c.StoreBackend = "postgres" }, true},
		{"seed with bigquery", func(c *Config) { c.SeedFile = "seed.json" }, true},
		{"seed with memory", func(c *Config) { c.StoreBackend = StoreMemory; c.SeedFile = "seed.json" }, false},
		{"zero suggestions", func(c *Config) { c.MaxSuggestions = 0 }, true},
		{"aggregation of one", func(c *Config) { c.MaxAggregationSize = 1 }, true},
		{"too many workers", func(c *Config) { c.Workers = 1000 }, true},
		{"json logs", func(c *Config) { c.LogFormat = "json" }, false},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngineConfig(t *testing.T) {
	c := Config{MaxSuggestions: 7, Workers: 2, MaxAggregationSize: 5, MaxCandidates: 9}
	ec := c.EngineConfig()
	if ec.MaxSuggestions != 7 || ec.Workers != 2 || ec.Finder.MaxAggregationSize != 5 || ec.Finder.MaxCandidates != 9 {
		t.Errorf("unexpected engine config: %+v", ec)
	}
}
