package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nurse-handover/backend/internal/config"
	"nurse-handover/backend/internal/database"
	"nurse-handover/backend/internal/mcpserver"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "handover-server",
		Short:        "Nursing handover recording API server",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, gRPC health server and processing pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			db, err := database.Open(ctx, database.Dialect(cfg.DBDriver), cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Printf("Running migrations on %s\n", cfg.DSNForLog())
			count, err := db.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			db, err := database.Open(ctx, database.Dialect(cfg.DBDriver), cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			statuses, err := db.MigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.State == goose.StateApplied {
					status = "applied"
					appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Source.Version, filepath.Base(s.Source.Path), status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample patients (existing patient ids are skipped)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stdout)

			ctx := context.Background()
			db, err := database.Open(ctx, database.Dialect(cfg.DBDriver), cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()
			if _, err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			created, err := seedPatients(ctx, database.NewPatientStore(db), logger)
			if err != nil {
				return err
			}
			fmt.Printf("Created %d patient(s).\n", created)
			return nil
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve read-only handover tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol
			logger := newLogger(cfg, os.Stderr)

			ctx := context.Background()
			db, err := database.Open(ctx, database.Dialect(cfg.DBDriver), cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			tools := mcpserver.NewTools(database.NewPatientStore(db), database.NewHandoverStore(db), logger)
			logger.Info().Msg("serving MCP on stdio")
			return mcpserver.ServeStdio(mcpserver.NewServer(tools, version))
		},
	}
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
