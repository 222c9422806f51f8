package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nlstn/go-odata-forms/internal/store"
)

func newImportCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "import <fixture.json>",
		Short: "Load forms and submissions from a JSON fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cfg.Dialect, cfg.DSN)
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					slog.Error("Failed to close database connection", "error", err)
				}
			}()
			st.SetLogger(slog.Default())

			summary, err := importFixture(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			cmd.Printf("imported %d forms and %d submissions\n", summary.Forms, summary.Submissions)
			return nil
		},
	}
}

func importFixture(ctx context.Context, st *store.Store, path string) (store.ImportSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return store.ImportSummary{}, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	return st.ImportFixture(ctx, f)
}
