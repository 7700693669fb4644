package ormkit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{Dialect: "sqlite"})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNew_UnknownDialect(t *testing.T) {
	_, err := New(DefaultConfig("oracle", "whatever"))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNew_Serializer(t *testing.T) {
	cfg := DefaultConfig("sqlite", ":memory:")
	cfg.Serializer = "msgpack"
	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, "sqlite", db.Provider().Name())
	assert.NotNil(t, db.Models())

	cfg.Serializer = "xml"
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestOpen_WrapsExistingPool(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := Open(sqlDB, DefaultConfig("postgres", ""))
	require.NoError(t, err)
	assert.Same(t, sqlDB, db.SQL())
	assert.Equal(t, "postgres", db.Config().Dialect)

	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := db.Exec(context.Background(), "DELETE FROM users")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWatch_NoPaths(t *testing.T) {
	db := getTestDB(t)
	assert.NoError(t, db.Watch(context.Background()))
}
