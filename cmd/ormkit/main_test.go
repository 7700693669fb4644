package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDialects(t *testing.T) {
	out, err := run(t, "dialects")
	require.NoError(t, err)
	assert.Contains(t, out, "postgres")
	assert.Contains(t, out, "$1")
	assert.Contains(t, out, "sqlite")
	assert.Contains(t, out, "mysql")
}

func TestExecAndPing(t *testing.T) {
	url := filepath.Join(t.TempDir(), "cli.db")
	conn := []string{"-d", "sqlite", "-u", url}

	out, err := run(t, append([]string{"exec"}, append(conn, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "row(s) affected")

	out, err = run(t, append([]string{"exec", "--tx"}, append(conn, "INSERT INTO items (name) VALUES (?), (?)", "a", "b")...)...)
	require.NoError(t, err)
	assert.Equal(t, "2 row(s) affected\n", out)

	out, err = run(t, append([]string{"exec", "--json"}, append(conn, "SELECT id, name FROM items ORDER BY id")...)...)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[1]["name"])

	out, err = run(t, append([]string{"exec"}, append(conn, "SELECT name FROM items WHERE name = ?", "a")...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "(1 rows)")

	out, err = run(t, append([]string{"ping"}, conn...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"healthy": true`)
}

func TestExec_RequiresURL(t *testing.T) {
	_, err := run(t, "exec", "-d", "sqlite", "SELECT 1")
	assert.Error(t, err)
}

func TestIsQuery(t *testing.T) {
	assert.True(t, isQuery("  select 1"))
	assert.True(t, isQuery("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.True(t, isQuery("DELETE FROM t RETURNING id"))
	assert.False(t, isQuery("UPDATE t SET x = 1"))
}
