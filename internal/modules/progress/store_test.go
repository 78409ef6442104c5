package progress

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"flashfood/internal/storage"
)

func TestStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	run := NewRun("FF_DRI_store1", "FF_ORD_store1", now)
	if err := store.Create(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	got, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.CurrentState != StateDriverReady {
		t.Fatalf("current state = %s, want driver_ready", got.CurrentState)
	}
	if len(got.Stages) != 5 || len(got.OrderIDs) != 1 || len(got.Events) != 1 {
		t.Fatalf("round trip lost data: %d stages, %d orders, %d events",
			len(got.Stages), len(got.OrderIDs), len(got.Events))
	}

	if err := got.Advance(now.Add(90 * time.Second)); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update run: %v", err)
	}

	again, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if again.CurrentState != StateWaitingForPickup {
		t.Fatalf("current state = %s, want waiting_for_pickup", again.CurrentState)
	}
	if again.PreviousState == nil || *again.PreviousState != StateDriverReady {
		t.Fatalf("previous state = %v, want driver_ready", again.PreviousState)
	}
	if again.Stages[0].DurationSec != 90 {
		t.Fatalf("stage duration = %d, want 90", again.Stages[0].DurationSec)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.Get(context.Background(), "FF_DPS_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestActiveByDriver(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.ActiveByDriver(ctx, "FF_DRI_store1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound before any run", err)
	}

	run := NewRun("FF_DRI_store1", "FF_ORD_store1", time.Now())
	if err := store.Create(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	active, err := store.ActiveByDriver(ctx, "FF_DRI_store1")
	if err != nil {
		t.Fatalf("active by driver: %v", err)
	}
	if active.ID != run.ID {
		t.Fatalf("active run = %s, want %s", active.ID, run.ID)
	}

	// the partial unique index blocks a second active run for the same driver
	dup := NewRun("FF_DRI_store1", "FF_ORD_store2", time.Now())
	if err := store.Create(ctx, dup); err == nil {
		t.Fatal("second active run for the same driver must violate the unique index")
	}

	// a terminal run no longer counts as active
	for i := 0; i < 4; i++ {
		if err := run.Advance(time.Now()); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("update to terminal: %v", err)
	}
	if _, err := store.ActiveByDriver(ctx, "FF_DRI_store1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after completion", err)
	}
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("FLASHFOOD_TEST_DSN")
	if dsn == "" {
		t.Skip("FLASHFOOD_TEST_DSN not set; skipping DB-backed store tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE driver_progress_runs, driver_current_orders, drivers CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	if _, err := db.Exec(ctx,
		"INSERT INTO drivers (id) VALUES ('FF_DRI_store1')",
	); err != nil {
		t.Fatalf("seed driver: %v", err)
	}

	return NewStore(storage.NewTxManager(db))
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
