package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	// The sqlite driver is registered by golang-migrate's sqlite package
	// (modernc.org/sqlite).
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/hashicorp-forge/collab/internal/migrate"
)

func main() {
	// Command-line flags
	driver := flag.String("driver", "postgres", "Database driver (postgres|sqlite)")
	dsn := flag.String("dsn", "", "Database connection string")
	showVersion := flag.Bool("version", false, "Print the current schema version and exit")
	help := flag.Bool("help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Collab Database Migration Tool\n\n")
		fmt.Fprintf(os.Stderr, "This binary applies the schema of the collab document store.\n")
		fmt.Fprintf(os.Stderr, "Set skip_auto_migrate in the database block when using it.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n\n")
		fmt.Fprintf(os.Stderr, "  PostgreSQL:\n")
		fmt.Fprintf(os.Stderr, "    %s -driver=postgres -dsn=\"host=localhost user=postgres password=postgres dbname=collab port=5432 sslmode=disable\"\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  SQLite:\n")
		fmt.Fprintf(os.Stderr, "    %s -driver=sqlite -dsn=\".collab/collab.db\"\n\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	// Validate required flags
	if *dsn == "" {
		log.Fatal("Error: -dsn flag is required\n\nRun with -help for usage information.")
	}

	sqlDriver, err := migrate.SQLDriverName(*driver)
	if err != nil {
		log.Fatalf("Error: %v\n", err)
	}

	// Connect to database
	log.Printf("Connecting to %s database...\n", *driver)
	sqlDB, err := sql.Open(sqlDriver, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v\n", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v\n", err)
	}

	if *showVersion {
		version, dirty, err := migrate.GetMigrationVersion(sqlDB, *driver)
		if err != nil {
			log.Fatalf("Failed to read schema version: %v\n", err)
		}
		log.Printf("Schema version %d (dirty: %t)\n", version, dirty)
		return
	}

	log.Printf("Running migrations...\n")
	if err := migrate.RunMigrations(sqlDB, *driver); err != nil {
		log.Fatalf("Migration failed: %v\n", err)
	}

	log.Printf("All migrations completed successfully\n")
}
