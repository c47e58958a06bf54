package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"adaptrix/internal/db"
	"adaptrix/internal/infra"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [up|down|status|version]\n")
	}
	flag.Parse()
	command := db.CommandUp
	if flag.NArg() > 0 {
		command = strings.ToLower(flag.Arg(0))
	}

	_ = godotenv.Load()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	logger := infra.NewLogger(os.Getenv("APP_ENV")).With().Str("cmd", "migrate").Str("command", command).Logger()

	conn, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	if err := db.Migrate(ctx, conn, command); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Msg("migration finished")
}
