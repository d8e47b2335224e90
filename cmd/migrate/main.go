package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// migrator is the part of *migrate.Migrate the runner drives.
type migrator interface {
	Up() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
}

func main() {
	_ = godotenv.Load()

	mode := flag.String("mode", "up", "migration mode: up, down or version")
	dir := flag.String("dir", "./migrations", "migrations directory")
	flag.Parse()

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		log.Fatal("DB_URL not set in environment")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("could not create migration driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+*dir, "postgres", driver)
	if err != nil {
		log.Fatalf("could not create migrate instance: %v", err)
	}

	if err := run(m, *mode); err != nil {
		log.Fatal(err)
	}
}

// run applies every pending migration on "up" and rolls back only the
// latest one on "down".
func run(m migrator, mode string) error {
	switch mode {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not run migrations: %w", err)
		}
	case "down":
		err := m.Steps(-1)
		if errors.Is(err, migrate.ErrNilVersion) || errors.Is(err, os.ErrNotExist) {
			fmt.Println("no migrations to roll back")
			return nil
		}
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	case "version":
	default:
		return fmt.Errorf("unknown mode: %s (use 'up', 'down' or 'version')", mode)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("schema has no migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Printf("schema at version %d (dirty=%t)\n", version, dirty)
	return nil
}
