// Command migrate applies or rolls back the Postgres schema backing the
// Tenant Registry (C1) and Vector Store Adapter (C3).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/devmesh/retrieval-orchestrator/internal/config"
	"github.com/devmesh/retrieval-orchestrator/internal/migration"
)

func main() {
	direction := flag.String("direction", "up", "up|down|version")
	path := flag.String("path", "migrations/sql", "path to migration files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: config error:", err)
		os.Exit(1)
	}

	db, err := sqlx.Connect("pgx", cfg.VectorDSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: db connect error:", err)
		os.Exit(1)
	}
	defer db.Close()

	mgr, err := migration.NewManager(db, migration.Config{MigrationsPath: *path})
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: manager error:", err)
		os.Exit(1)
	}
	defer mgr.Close()

	ctx := context.Background()
	switch *direction {
	case "up":
		if err := mgr.Up(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "migrate: up error:", err)
			os.Exit(1)
		}
		fmt.Println("migrate: up complete")
	case "down":
		if err := mgr.Down(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "migrate: down error:", err)
			os.Exit(1)
		}
		fmt.Println("migrate: rolled back one step")
	case "version":
		v, dirty, err := mgr.Version()
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate: version error:", err)
			os.Exit(1)
		}
		fmt.Printf("migrate: version=%d dirty=%v\n", v, dirty)
	default:
		fmt.Fprintln(os.Stderr, "migrate: unknown -direction", *direction)
		os.Exit(1)
	}
}
