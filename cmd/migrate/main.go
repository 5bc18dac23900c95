// Command migrate applies the engine schema. It runs every *.sql file in
// the migrations directory in lexical order, each inside its own
// transaction, and can verify the resulting schema afterwards. The DDL is
// idempotent, so re-running the command against a migrated database is
// safe.
package main

import (
	"database/sql"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

// engineTables is the full schema the migrations are expected to produce.
var engineTables = []string{
	"email_bounces",
	"engine_settings",
	"followup_attempts",
	"followup_templates",
	"manual_followups",
	"tracked_emails",
}

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql migration files")
	list := flag.Bool("list", false, "list engine tables already present and exit")
	verify := flag.Bool("verify", true, "check the engine schema after applying")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("[Migrate] DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("[Migrate] Connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("[Migrate] Ping: %v", err)
	}

	if *list {
		present, err := presentTables(db)
		if err != nil {
			log.Fatalf("[Migrate] List tables: %v", err)
		}
		for _, t := range engineTables {
			mark := "missing"
			if present[t] {
				mark = "ok"
			}
			log.Printf("[Migrate]   %-20s %s", t, mark)
		}
		return
	}

	files, err := migrationFiles(*dir)
	if err != nil {
		log.Fatalf("[Migrate] Read %s: %v", *dir, err)
	}
	if len(files) == 0 {
		log.Fatalf("[Migrate] No migration files in %s", *dir)
	}

	applied := 0
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(*dir, f))
		if err != nil {
			log.Fatalf("[Migrate] Read %s: %v", f, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			log.Fatalf("[Migrate] Begin for %s: %v", f, err)
		}
		if _, err := tx.Exec(string(data)); err != nil {
			tx.Rollback()
			log.Fatalf("[Migrate] Apply %s: %v", f, err)
		}
		if err := tx.Commit(); err != nil {
			log.Fatalf("[Migrate] Commit %s: %v", f, err)
		}
		log.Printf("[Migrate] Applied %s", f)
		applied++
	}
	log.Printf("[Migrate] %d migration(s) applied", applied)

	if *verify {
		if err := verifySchema(db); err != nil {
			log.Fatalf("[Migrate] Schema verification failed: %v", err)
		}
		log.Println("[Migrate] Schema verified")
	}
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func presentTables(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(
		"SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename = ANY($1)",
		pq.Array(engineTables))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		present[t] = true
	}
	return present, rows.Err()
}

// verifySchema confirms every engine table exists and that the partial
// unique index guarding duplicate attempts survived the run. The index is
// the scheduler's idempotence backstop, so a migration that silently
// dropped it must fail loudly here.
func verifySchema(db *sql.DB) error {
	present, err := presentTables(db)
	if err != nil {
		return err
	}
	for _, t := range engineTables {
		if !present[t] {
			return &missingObjectError{kind: "table", name: t}
		}
	}

	var exists bool
	err = db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = 'public' AND indexname = $1)",
		"followup_attempts_email_sequence_active").Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return &missingObjectError{kind: "index", name: "followup_attempts_email_sequence_active"}
	}
	return nil
}

type missingObjectError struct {
	kind string
	name string
}

func (e *missingObjectError) Error() string {
	return "missing " + e.kind + " " + e.name
}
