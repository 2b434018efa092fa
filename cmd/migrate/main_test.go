package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, 1, "init_schema_migrations"},
		{"0008_create_reconcile_jobs.sql", true, 8, "create_reconcile_jobs"},
		{"001_invalid.sql", false, 0, ""},        // wrong number format
		{"0001_test", false, 0, ""},              // missing .sql
		{"0001.sql", false, 0, ""},               // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.valid || version != tt.version || name != tt.name {
				t.Errorf("parseMigrationFilename(%q) = %d, %q, %v; want %d, %q, %v",
					tt.filename, version, name, ok, tt.version, tt.name, tt.valid)
			}
		})
	}
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_second.sql": "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.b` (id STRING);",
		"0001_first.sql":  "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.a` (id STRING);",
		"README.md":       "not a migration",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := readMigrations(dir, "proj", "recon", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Version != 1 || got[1].Version != 2 {
		t.Fatalf("unexpected migrations: %+v", got)
	}
	if got[0].SQL != "CREATE TABLE `proj.recon.a` (id STRING);" {
		t.Errorf("placeholders not replaced: %q", got[0].SQL)
	}
	if got[0].Checksum != checksum([]byte(files["0001_first.sql"])) {
		t.Error("checksum should cover the raw file content")
	}

	other, err := readMigrations(dir, "other", "dataset", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if other[0].Checksum != got[0].Checksum {
		t.Error("checksum should not depend on project or dataset")
	}
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0001_a.sql", "0001_b.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	_, err := readMigrations(dir, "p", "d", zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "duplicate migration version") {
		t.Errorf("expected duplicate version error, got %v", err)
	}
}

func TestPlanMigrations(t *testing.T) {
	all := []Migration{
		{Version: 1, Name: "a", Checksum: "c1"},
		{Version: 2, Name: "b", Checksum: "c2-edited"},
		{Version: 3, Name: "c", Checksum: "c3"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "c1"},
		{Version: 2, Checksum: "c2"},
	}

	pending, drifted := planMigrations(all, applied)

	if diff := cmp.Diff([]Migration{all[2]}, pending); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Migration{all[1]}, drifted); diff != "" {
		t.Errorf("drifted mismatch (-want +got):\n%s", diff)
	}
}

func TestRepositoryMigrations(t *testing.T) {
	migrations, err := readMigrations(filepath.Join("..", "..", "migrations", "bigquery"), "p", "d", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %s has version %d, want %d", m.Filename, m.Version, i+1)
		}
		if strings.Contains(m.SQL, "{{") {
			t.Errorf("migration %s has unreplaced placeholders", m.Filename)
		}
	}
}
