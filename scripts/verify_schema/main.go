package main

import (
	"flag"
	"fmt"
	"os"

	"backtest-core/pkg/db"
)

// verify_schema/main.go
//
// Applies migrations to a database file and reports the tables and columns
// the service relies on.
//
//	go run ./scripts/verify_schema -db ./data/backtest.db
func main() {
	path := flag.String("db", "./data/backtest.db", "sqlite database path")
	flag.Parse()

	fmt.Printf("Verifying database at: %s\n", *path)
	database, err := db.New(*path)
	if err != nil {
		fail("open: %v", err)
	}
	defer database.Close()

	if err := db.ApplyMigrations(database); err != nil {
		fail("migrate: %v", err)
	}

	missing := 0
	for table, columns := range db.RequiredColumns {
		for _, col := range columns {
			ok, err := db.ColumnExists(database, table, col)
			if err != nil {
				fail("inspect %s: %v", table, err)
			}
			if ok {
				fmt.Printf("✓ %s.%s\n", table, col)
			} else {
				fmt.Printf("❌ %s.%s MISSING\n", table, col)
				missing++
			}
		}
	}
	if missing > 0 {
		os.Exit(1)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
