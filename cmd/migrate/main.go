// Command migrate applies the SQL schema migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"crewdock.org/internal/migrate"
	"crewdock.org/internal/store/pg"
)

func main() {
	var (
		dsn = flag.String("dsn", os.Getenv("CREWDOCK_PG_DSN"), "postgres connection string")
		dir = flag.String("dir", "migrations", "migrations directory")
	)
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}
	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "migrate: -dsn or CREWDOCK_PG_DSN is required")
		os.Exit(2)
	}

	store, err := pg.Open(*dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), *dir)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch cmd {
	case "up":
		n, err := mgr.Up(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s)\n", n)
	case "down":
		ok, err := mgr.Down(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		if ok {
			fmt.Println("rolled back 1 migration")
		} else {
			fmt.Println("nothing to roll back")
		}
	case "status":
		entries, err := mgr.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		for _, e := range entries {
			state := "pending"
			if e.Applied {
				state = "applied"
			}
			fmt.Printf("%04d %-30s %s\n", e.Version, e.Name, state)
		}
	default:
		fmt.Fprintf(os.Stderr, "migrate: unknown command %q (want up, down or status)\n", cmd)
		os.Exit(2)
	}
}
