package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"worksdesk.io/internal/migrate"
	"worksdesk.io/internal/obs"
	"worksdesk.io/internal/store/pg"
	"worksdesk.io/migrations"
)

func main() {
	var (
		dsn     = flag.String("dsn", os.Getenv("WORKSDESK_PG_DSN"), "PostgreSQL DSN")
		timeout = flag.Duration("timeout", 2*time.Minute, "Overall deadline")
		level   = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	log, err := obs.NewLogger(*level, "development")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or WORKSDESK_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), migrations.FS, migrations.SQLDir, migrations.SeedsDir, migrate.WithLogger(log))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatal("unknown command", zap.String("command", cmd))
	}
	if err != nil {
		log.Fatal("migrate failed", zap.String("command", cmd), zap.Error(err))
	}
}
