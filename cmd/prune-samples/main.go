package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// CLI flags
var (
	dsn       = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default: env DATABASE_URL)")
	olderThan = flag.Duration("older-than", 30*24*time.Hour, "Delete samples older than this (e.g. 720h)")
	subject   = flag.String("subject", "", "Limit the sweep to one subject id")
	owner     = flag.String("owner", "", "Limit the sweep to one employer id")
	dryRun    = flag.Bool("dry-run", false, "Count only; no deletes")
	confirm   = flag.Bool("confirm", false, "Required to perform the delete")
)

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	cutoff := time.Now().Add(-*olderThan)
	fmt.Printf("Cutoff: samples captured before %s\n", cutoff.Format(time.RFC3339))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	where := "captured_at < $1"
	args := []any{cutoff}
	if *subject != "" {
		args = append(args, *subject)
		where += fmt.Sprintf(" AND subject_id = $%d", len(args))
	}
	if *owner != "" {
		args = append(args, *owner)
		where += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}

	var count int64
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM locations.samples WHERE "+where, args...).Scan(&count)
	if err != nil {
		fatalf("count: %v", err)
	}
	fmt.Printf("%d samples match\n", count)

	if *dryRun {
		fmt.Println("Dry run complete. No changes made.")
		return
	}
	if !*confirm {
		fatalf("Refusing to delete without --confirm. Add --dry-run to preview.")
	}

	res, err := db.ExecContext(ctx, "DELETE FROM locations.samples WHERE "+where, args...)
	if err != nil {
		fatalf("delete: %v", err)
	}
	deleted, _ := res.RowsAffected()
	fmt.Printf("Deleted %d samples\n", deleted)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
