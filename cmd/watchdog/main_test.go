package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docutag/watchdog/db"
	"github.com/docutag/watchdog/models"
)

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name   string
		result models.AnalysisResult
		want   string
	}{
		{"flagged", models.AnalysisResult{Status: models.StatusScanned, Flagged: true, Label: "sexual"}, "Flagged (18+)"},
		{"clear", models.AnalysisResult{Status: models.StatusScanned, Label: models.LabelSafe}, "Clear"},
		{"skipped", models.AnalysisResult{Status: models.StatusSkipped}, "Disabled"},
		{"no content", models.AnalysisResult{Status: models.StatusNoContent}, "No content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusLine(&tt.result); got != tt.want {
				t.Errorf("statusLine() = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "scan", "watch", "classify", "migrate"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected %s command, got %v (%v)", name, cmd, err)
		}
	}
}

func TestMigrateSubcommands(t *testing.T) {
	for _, args := range [][]string{{"migrate", "status"}, {"migrate", "rollback"}} {
		cmd, _, err := rootCmd.Find(args)
		if err != nil || cmd.Name() != args[1] {
			t.Errorf("Expected %v command, got %v (%v)", args, cmd, err)
		}
	}
}

func TestMigrationStatusAndRollback(t *testing.T) {
	d, err := db.New(db.Config{Driver: db.DriverSQLite, DSN: filepath.Join(t.TempDir(), "watchdog.db")})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer d.Close()

	var out bytes.Buffer
	if err := migrationStatus(d, &out); err != nil {
		t.Fatalf("migrationStatus() error: %v", err)
	}
	if strings.Contains(out.String(), "pending") || !strings.Contains(out.String(), "create_watchdog_scans_table") {
		t.Errorf("Expected every migration applied, got:\n%s", out.String())
	}

	out.Reset()
	if err := rollbackMigrations(d, 1, &out); err != nil {
		t.Fatalf("rollbackMigrations() error: %v", err)
	}

	out.Reset()
	if err := migrationStatus(d, &out); err != nil {
		t.Fatalf("migrationStatus() error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	last := lines[len(lines)-1]
	if !strings.Contains(last, "pending") || !strings.Contains(last, "add_archive_key_and_flagged_index") {
		t.Errorf("Expected newest migration pending after rollback, got %q", last)
	}
	if strings.Count(out.String(), "applied") != len(lines)-1 {
		t.Errorf("Expected only the newest migration rolled back, got:\n%s", out.String())
	}

	if err := rollbackMigrations(d, 0, &out); err == nil {
		t.Error("Expected error for zero steps")
	}
}
