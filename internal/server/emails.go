// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/database"
	"github.com/gonziita68/restaurante-gyz/internal/models"
	"github.com/gonziita68/restaurante-gyz/internal/repository"
)

// EmailFlags are the filters of the emails command.
func EmailFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "status", Usage: "Only entries with this status (queued, sent, error)"},
		&cli.StringFlag{Name: "purpose", Usage: "Only entries with this purpose"},
		&cli.StringFlag{Name: "to", Usage: "Only entries sent to this address"},
		&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum number of entries, 0 for all"},
	}
}

// ListEmails prints the delivery log, newest first.
func ListEmails(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	filter := repository.EmailLogFilter{
		Status:  models.EmailStatus(cmd.String("status")),
		Purpose: models.Purpose(cmd.String("purpose")),
		ToEmail: cmd.String("to"),
		Limit:   int(cmd.Int("limit")),
	}

	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}
	return listEmails(ctx, w, repository.New(db), filter)
}

func listEmails(ctx context.Context, out io.Writer, repo *repository.Repository, filter repository.EmailLogFilter) error {
	entries, err := repo.ListEmailLogs(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list email logs: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tPURPOSE\tTO\tSUBJECT\tERROR")
	for _, e := range entries {
		detail := ""
		if e.ErrorMessage != nil {
			detail = *e.ErrorMessage
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.CreatedAt.Format(time.DateTime), e.Status, e.Purpose, e.ToEmail, e.Subject, detail)
	}
	return tw.Flush()
}
