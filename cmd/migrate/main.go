package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"sapl.leg.br/lexml/internal/migrate"
	"sapl.leg.br/lexml/internal/store/pg"
	"sapl.leg.br/lexml/internal/store/sqlite"
)

func main() {
	log.SetFlags(0)
	var (
		driver = flag.String("driver", envOr("SAPL_LEXML_DB_DRIVER", "postgres"), "Database driver: postgres or sqlite")
		dsn    = flag.String("dsn", os.Getenv("SAPL_LEXML_DB_DSN"), "PostgreSQL DSN or SQLite file path")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or SAPL_LEXML_DB_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		mgr     *migrate.Manager
		closeDB func() error
	)
	switch *driver {
	case "postgres":
		s, err := pg.Open(*dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		mgr, closeDB = s.Migrator(), s.Close
	case "sqlite":
		s, err := sqlite.Open(ctx, *dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		mgr, closeDB = s.Migrator(), s.Close
	default:
		log.Fatalf("unknown driver %q", *driver)
	}
	defer closeDB()

	var err error
	switch flag.Arg(0) {
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
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
