package repository

import (
	"context"
	"testing"

	"github.com/byosamah/volteria-sub006/internal/testutil"
)

func TestPreparedStatementCache(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestPreparedStatementCache")
	defer cleanup()

	cache := NewPreparedStatementCache(db)
	defer cache.Close()

	query := "SELECT COUNT(*) FROM sites WHERE name = ?"

	stmt1, err := cache.Get(query)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Second lookup returns the same prepared statement
	stmt2, err := cache.Get(query)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if stmt1 != stmt2 {
		t.Error("Expected the cached statement to be reused")
	}
	if cache.Size() != 1 {
		t.Errorf("Expected cache size 1, got %d", cache.Size())
	}

	row, err := cache.QueryRowContext(context.Background(), query, "nope")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var count int
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0, got %d", count)
	}

	if err := cache.Clear(query); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cache.Size() != 0 {
		t.Errorf("Expected cache size 0 after clear, got %d", cache.Size())
	}
}

func TestPreparedStatementCache_ExecContext(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestPreparedStatementCache_ExecContext")
	defer cleanup()

	cache := NewPreparedStatementCache(db)
	defer cache.Close()

	insert := "INSERT INTO sites (name, location, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	ts := "2026-01-01T00:00:00.000000000Z"

	for _, name := range []string{"one", "two"} {
		result, err := cache.ExecContext(context.Background(), insert, name, "", "", ts, ts)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if affected, _ := result.RowsAffected(); affected != 1 {
			t.Errorf("Expected 1 row affected, got %d", affected)
		}
	}

	rows, err := cache.QueryContext(context.Background(), "SELECT name FROM sites ORDER BY name")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		names = append(names, name)
	}
	if len(names) != 2 || names[0] != "one" || names[1] != "two" {
		t.Errorf("Unexpected names: %v", names)
	}
}
