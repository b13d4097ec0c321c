// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/server"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	cmd := &cli.Command{
		Name:    "app",
		Usage:   "Restaurante GYZ accounts and notification emails",
		Version: Version + " (" + BuildTime + ")",
		Flags:   config.Flags(),
		Action:  server.Run,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the web application",
				Action: server.Run,
			},
			{
				Name:   "worker",
				Usage:  "Deliver queued emails from Redis",
				Action: server.RunWorker,
			},
			{
				Name:   "emails",
				Usage:  "List the email delivery log",
				Flags:  server.EmailFlags(),
				Action: server.ListEmails,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
