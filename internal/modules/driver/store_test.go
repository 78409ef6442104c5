package driver

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"flashfood/internal/storage"
	"flashfood/internal/types"
)

func TestAddCurrentOrderIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	drv := types.ID("FF_DRI_store1")
	ord := types.ID("FF_ORD_store1")
	if err := store.AddCurrentOrder(ctx, drv, ord); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := store.AddCurrentOrder(ctx, drv, ord); err != nil {
		t.Fatalf("repeated insert: %v", err)
	}

	ids, err := store.CurrentOrderIDs(ctx, drv)
	if err != nil {
		t.Fatalf("current order ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != ord {
		t.Fatalf("associations = %v, want exactly one %s", ids, ord)
	}

	if err := store.RemoveCurrentOrders(ctx, drv, []types.ID{ord}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ids, err = store.CurrentOrderIDs(ctx, drv)
	if err != nil {
		t.Fatalf("current order ids after remove: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("associations = %v, want none after remove", ids)
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

	if _, err := db.Exec(ctx, "TRUNCATE TABLE driver_current_orders, orders, drivers, restaurants, customers CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	seed := []string{
		"INSERT INTO customers (id) VALUES ('FF_CUS_store1')",
		"INSERT INTO restaurants (id, owner_id) VALUES ('FF_RES_store1', 'FF_USR_store1')",
		"INSERT INTO drivers (id) VALUES ('FF_DRI_store1')",
		`INSERT INTO orders (id, customer_id, restaurant_id, status, tracking_info,
		     payment_method, customer_location, restaurant_location)
		 VALUES ('FF_ORD_store1', 'FF_CUS_store1', 'FF_RES_store1', 'PENDING',
		     'ORDER_PLACED', 'COD', 'FF_ADR_c1', 'FF_ADR_r1')`,
	}
	for _, stmt := range seed {
		if _, err := db.Exec(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
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
