package convert

import (
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedRow(t *testing.T) {
	row := NewBufferedRow([]string{"id", "name"}, []any{int64(1), "a"})
	v, err := row.Value(1)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = row.Value(2)
	assert.Error(t, err)
}

func TestCursorRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "alice").
			AddRow(int64(2), nil))

	rows, err := db.Query("SELECT id, name FROM users")
	require.NoError(t, err)
	defer rows.Close()

	row, err := NewCursorRow(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, row.Columns())

	reg := NewRegistry(nil)
	stringType := reflect.TypeFor[string]()
	intType := reflect.TypeFor[int]()

	require.True(t, rows.Next())
	row.Reset()
	id, err := reg.Lookup(intType).GetValue(row, 0, intType)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	name, err := reg.Lookup(stringType).GetValue(row, 1, stringType)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	buf, err := row.Buffer()
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), "alice"}, buf.Values())

	require.True(t, rows.Next())
	row.Reset()
	v, err := row.Value(1)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.False(t, rows.Next())
	require.NoError(t, rows.Err())
	require.NoError(t, mock.ExpectationsWereMet())
}
