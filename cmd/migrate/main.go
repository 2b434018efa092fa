package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bank-reconciliation/internal/config"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	cfg := config.FromEnv()
	cfg.RegisterFlags(flag.CommandLine)
	appliedBy := flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir := flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
	dryRun := flag.Bool("dry-run", false, "List pending migrations without applying them")
	flag.Parse()

	log := logger.NewWithOptions(cfg.LoggerOptions())
	ctx := logger.WithContext(context.Background(), log)

	if cfg.ProjectID == "" {
		log.Fatal().Msg("Error: -project flag is required. Please specify your GCP project ID.")
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().Str("project", cfg.ProjectID).Str("dataset", cfg.DatasetID).Msg("Connected to BigQuery")

	m := &migrator{client: client, project: cfg.ProjectID, dataset: cfg.DatasetID, appliedBy: *appliedBy, log: log}

	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	dir, err := resolveDir(*migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to locate migrations")
	}
	migrations, err := readMigrations(dir, cfg.ProjectID, cfg.DatasetID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get applied migrations")
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	pending, drifted := planMigrations(migrations, applied)
	for _, d := range drifted {
		log.Warn().Int("version", d.Version).Str("name", d.Name).Msg("Applied migration file has changed since it was applied")
	}

	appliedCount := 0
	for _, migration := range pending {
		if *dryRun {
			log.Info().Msgf("  [PENDING] %04d_%s", migration.Version, migration.Name)
			continue
		}

		log.Info().Msgf("  [RUN]  %04d_%s", migration.Version, migration.Name)

		if err := m.executeMigration(ctx, migration); err != nil {
			log.Fatal().Err(err).Msgf("Failed to execute migration %04d_%s", migration.Version, migration.Name)
		}

		if err := m.recordMigration(ctx, migration); err != nil {
			log.Fatal().Err(err).Msgf("Failed to record migration %04d_%s", migration.Version, migration.Name)
		}

		log.Info().Msgf("  [OK]   %04d_%s", migration.Version, migration.Name)
		appliedCount++
	}

	switch {
	case *dryRun:
		log.Info().Int("pending", len(pending)).Msg("[DRY RUN] No changes applied")
	case appliedCount == 0:
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	default:
		log.Info().Int("applied", appliedCount).Msg("Successfully applied migrations")
	}
}

// resolveDir finds the migrations directory from the repo root or cmd/migrate.
func resolveDir(dir string) (string, error) {
	for _, d := range []string{dir, filepath.Join("..", "..", dir)} {
		if _, err := os.Stat(d); err == nil {
			return d, nil
		}
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}

// parseMigrationFilename splits 0001_name.sql into its version and name.
func parseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// readMigrations reads all migration files in dir, sorted by version.
func readMigrations(dir, project, dataset string, log zerolog.Logger) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid format")
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		// Checksums cover the file before placeholder substitution, so the
		// same migration applied to another dataset keeps its checksum.
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      renderSQL(string(content), project, dataset),
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func renderSQL(sql, project, dataset string) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", project)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", dataset)
}

func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// planMigrations returns the migrations not yet applied and the applied ones
// whose file content no longer matches the recorded checksum.
func planMigrations(all []Migration, applied []AppliedMigration) (pending, drifted []Migration) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}
	for _, m := range all {
		am, ok := byVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			drifted = append(drifted, m)
		}
	}
	return pending, drifted
}

type migrator struct {
	client    *bigquery.Client
	project   string
	dataset   string
	appliedBy string
	log       zerolog.Logger
}

func (m *migrator) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", m.project, m.dataset, name)
}

// ensureSchemaMigrationsTable creates the dataset's schema_migrations table if it doesn't exist
func (m *migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	return m.run(ctx, m.client.Query(`
		CREATE TABLE IF NOT EXISTS `+m.table("schema_migrations")+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`))
}

// getAppliedMigrations retrieves the list of already applied migrations
func (m *migrator) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	it, err := m.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + m.table("schema_migrations") + `
		ORDER BY version ASC
	`).Read(ctx)
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

// executeMigration executes a single migration SQL
func (m *migrator) executeMigration(ctx context.Context, migration Migration) error {
	return m.run(ctx, m.client.Query(migration.SQL))
}

// recordMigration records a successfully applied migration in schema_migrations
func (m *migrator) recordMigration(ctx context.Context, migration Migration) error {
	query := m.client.Query(`
		INSERT INTO ` + m.table("schema_migrations") + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`)
	query.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	}
	return m.run(ctx, query)
}

func (m *migrator) run(ctx context.Context, query *bigquery.Query) error {
	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
