package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"

	"inventory-ledger/internal/adapters/cli"
	"inventory-ledger/internal/adapters/repl"
	"inventory-ledger/internal/app"
	"inventory-ledger/internal/config"
	"inventory-ledger/internal/core"
	"inventory-ledger/internal/db"
	"inventory-ledger/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.WithMaxConns(cfg.DBMaxConns))
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer pool.Close()

	svc := app.New(db.NewStore(pool), cfg.CostPrecision, cfg.ValuePrecision, logger.WithComponent("app"))
	sess := core.Session{
		ActorID:     cfg.DefaultActorID,
		CompanyID:   cfg.CompanyID,
		WarehouseID: cfg.WarehouseID,
	}

	if len(os.Args) == 1 {
		if err := repl.Run(ctx, svc, sess, os.Stdin, os.Stdout); err != nil {
			log.Error().Err(err).Msg("shell exited")
		}
		return
	}

	if err := cli.Run(ctx, svc, sess, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		pool.Close()
		os.Exit(1)
	}
}
