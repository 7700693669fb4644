package ormkit

import (
	"context"
	"testing"

	"github.com/fernandezvara/ormkit/meta"
)

// TestUser is the model used by the pipeline tests.
type TestUser struct {
	meta.Table `orm:"table:users"`
	ID         int64  `orm:"id,pk,autoincrement"`
	Name       string `orm:"name,notnull"`
	Email      string `orm:"email,unique"`
	Age        int    `orm:"age"`
	Active     bool   `orm:"active"`
}

// TestDocument exercises the embedded base models.
type TestDocument struct {
	meta.Table `orm:"table:documents"`
	FullModel
	Title string `orm:"title,notnull"`
}

// getTestDB opens an in-memory sqlite database. ":memory:" pins the pool to
// one connection, so every command in a test sees the same database.
func getTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(DefaultConfig("sqlite", ":memory:"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// getUsersDB returns a test database with the users table and three rows.
func getUsersDB(t *testing.T) *DB {
	t.Helper()

	db := getTestDB(t)
	ctx := context.Background()
	if err := CreateTable[TestUser](ctx, db, false); err != nil {
		t.Fatalf("Failed to create test table: %v", err)
	}
	for _, u := range []TestUser{
		{Name: "Alice", Email: "alice@example.com", Age: 30, Active: true},
		{Name: "Bob", Email: "bob@example.com", Age: 25, Active: false},
		{Name: "Carol", Email: "carol@example.com", Age: 35, Active: true},
	} {
		if err := Insert(ctx, db, &u); err != nil {
			t.Fatalf("Failed to insert %s: %v", u.Name, err)
		}
	}
	return db
}
