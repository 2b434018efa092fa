// Package config loads service settings from the environment and command-line
// flags. Flags registered with RegisterFlags default to the environment value,
// so an explicit flag always wins.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dvloznov/bank-reconciliation/internal/audit"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/matching"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
)

// Store backends.
const (
	StoreBigQuery = "bigquery"
	StoreMemory   = "memory"
)

const (
	defaultDataset     = "reconciliation"
	defaultGeminiModel = "gemini-2.5-flash"
	maxWorkers         = 64
)

// Config holds every tunable of the reconciliation services.
type Config struct {
	ProjectID    string
	DatasetID    string
	StoreBackend string
	// SeedFile is a JSON document loaded into the memory backend at start.
	SeedFile string

	ReportBucket string

	NotionToken     string
	NotionAuditDBID string
	NotionRecDBID   string

	GeminiModel string

	MaxSuggestions     int
	MaxAggregationSize int
	MaxCandidates      int
	Workers            int
	AuditBuffer        int

	// Companies lists the scopes the worker schedules periodic runs for.
	Companies []string

	LogLevel  string
	LogFormat string
}

// FromEnv builds a Config from environment variables, falling back to
// defaults for anything unset or malformed.
func FromEnv() Config {
	return Config{
		ProjectID:          os.Getenv("RECON_PROJECT_ID"),
		DatasetID:          envString("RECON_DATASET_ID", defaultDataset),
		StoreBackend:       envString("RECON_STORE", StoreBigQuery),
		SeedFile:           os.Getenv("RECON_SEED_FILE"),
		ReportBucket:       os.Getenv("GCS_BUCKET"),
		NotionToken:        os.Getenv("NOTION_TOKEN"),
		NotionAuditDBID:    os.Getenv("NOTION_AUDIT_DB_ID"),
		NotionRecDBID:      os.Getenv("NOTION_RECONCILIATIONS_DB_ID"),
		GeminiModel:        envString("GEMINI_MODEL", defaultGeminiModel),
		MaxSuggestions:     envInt("RECON_MAX_SUGGESTIONS", suggest.DefaultMaxSuggestions),
		MaxAggregationSize: envInt("RECON_MAX_AGGREGATION_SIZE", matching.DefaultMaxAggregationSize),
		MaxCandidates:      envInt("RECON_MAX_CANDIDATES", matching.DefaultMaxCandidates),
		Workers:            envInt("RECON_WORKERS", suggest.DefaultWorkers),
		AuditBuffer:        envInt("RECON_AUDIT_BUFFER", audit.DefaultBufferSize),
		Companies:          splitList(os.Getenv("RECON_COMPANIES")),
		LogLevel:           envString("LOG_LEVEL", "info"),
		LogFormat:          envString("LOG_FORMAT", logger.FormatConsole),
	}
}

// RegisterFlags binds the shared flags to c on fs. Call after FromEnv so the
// environment supplies the defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ProjectID, "project", c.ProjectID, "GCP project ID (or set RECON_PROJECT_ID env)")
	fs.StringVar(&c.DatasetID, "dataset", c.DatasetID, "BigQuery dataset ID (or set RECON_DATASET_ID env)")
	fs.StringVar(&c.StoreBackend, "store", c.StoreBackend, "Store backend: bigquery or memory (or set RECON_STORE env)")
	fs.StringVar(&c.SeedFile, "seed", c.SeedFile, "JSON seed file for the memory store (or set RECON_SEED_FILE env)")
	fs.StringVar(&c.ReportBucket, "bucket", c.ReportBucket, "GCS bucket for run reports (or set GCS_BUCKET env)")
	fs.IntVar(&c.MaxSuggestions, "max-suggestions", c.MaxSuggestions, "Maximum suggestions per batch")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Transactions scored concurrently")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: console or json (or set LOG_FORMAT env)")
}

// LoggerOptions returns the logger settings for c.
func (c Config) LoggerOptions() logger.Options {
	return logger.Options{Level: c.LogLevel, Format: c.LogFormat}
}

// Validate checks ranges and required settings.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreBigQuery:
		if c.ProjectID == "" {
			return fmt.Errorf("Validate: project ID is required for the bigquery store")
		}
		if c.DatasetID == "" {
			return fmt.Errorf("Validate: dataset ID is required for the bigquery store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("Validate: unknown store backend %q", c.StoreBackend)
	}
	if c.SeedFile != "" && c.StoreBackend != StoreMemory {
		return fmt.Errorf("Validate: a seed file requires the memory store")
	}
	if c.MaxSuggestions < 1 {
		return fmt.Errorf("Validate: max suggestions must be at least 1, got %d", c.MaxSuggestions)
	}
	if c.MaxAggregationSize < 2 {
		return fmt.Errorf("Validate: max aggregation size must be at least 2, got %d", c.MaxAggregationSize)
	}
	if c.MaxCandidates < 1 {
		return fmt.Errorf("Validate: max candidates must be at least 1, got %d", c.MaxCandidates)
	}
	if c.Workers < 1 || c.Workers > maxWorkers {
		return fmt.Errorf("Validate: workers must be between 1 and %d, got %d", maxWorkers, c.Workers)
	}
	switch c.LogFormat {
	case "", logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("Validate: unknown log format %q", c.LogFormat)
	}
	if c.AuditBuffer < 1 {
		return fmt.Errorf("Validate: audit buffer must be positive, got %d", c.AuditBuffer)
	}
	return nil
}

// EngineConfig derives the suggestion engine settings.
func (c Config) EngineConfig() suggest.Config {
	return suggest.Config{
		MaxSuggestions: c.MaxSuggestions,
		Workers:        c.Workers,
		Finder: matching.FinderConfig{
			MaxAggregationSize: c.MaxAggregationSize,
			MaxCandidates:      c.MaxCandidates,
		},
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
