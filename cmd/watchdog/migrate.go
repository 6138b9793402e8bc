package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/docutag/watchdog/db"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or roll back the database schema",
		Long: "Opening the database applies pending migrations, so status reports the " +
			"schema the server would run against.",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			d := openDB()
			defer d.Close()
			if err := migrationStatus(d, os.Stdout); err != nil {
				exitErr("migration status", err)
			}
		},
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Undo the most recent migrations",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			steps, _ := cmd.Flags().GetInt("steps")
			d := openDB()
			defer d.Close()
			if err := rollbackMigrations(d, steps, os.Stdout); err != nil {
				exitErr("rollback", err)
			}
		},
	}
	rollbackCmd.Flags().Int("steps", 1, "Number of migrations to undo")

	cmd.AddCommand(statusCmd, rollbackCmd)
	rootCmd.AddCommand(cmd)
}

func openDB() *db.DB {
	cfg := loadConfig()
	d, err := db.New(cfg.DB)
	if err != nil {
		exitErr("open database", err)
	}
	return d
}

func migrationStatus(d *db.DB, w io.Writer) error {
	status, err := db.GetMigrationStatus(d.DB())
	if err != nil {
		return err
	}
	for _, m := range status {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%3d  %-8s %s\n", m.Version, state, m.Name)
	}
	return nil
}

func rollbackMigrations(d *db.DB, steps int, w io.Writer) error {
	if steps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", steps)
	}
	for i := 0; i < steps; i++ {
		if err := db.Rollback(d.DB(), d.Driver()); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "rolled back %d migration(s)\n", steps)
	return nil
}
