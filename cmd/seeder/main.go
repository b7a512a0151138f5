// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/unclebandit/pushleopard-backend/internal/config"
	"github.com/unclebandit/pushleopard-backend/internal/db"
	"github.com/unclebandit/pushleopard-backend/internal/logging"
)

// Usage: seeder [flags] [seed.sql ...]
// The embedded schema is applied first, then each file in order.
func main() {
	cfg, err := config.Load("seeder", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "seeder:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxOpenConns: 1}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	log.Info().Msg("schema applied")

	for _, file := range cfg.Args {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal().Err(errors.Wrapf(err, "read %s", file)).Msg("seed")
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.Fatal().Err(errors.Wrapf(err, "execute %s", file)).Msg("seed")
		}
		log.Info().Str("file", file).Msg("seeded")
	}

	log.Info().Msg("database seeding completed")
}
