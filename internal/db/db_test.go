package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNCarriesPragmas(t *testing.T) {
	dsn := Config{Workspace: "/srv/agency", BusyTimeout: 2 * time.Second}.DSN()
	assert.Contains(t, dsn, "file:/srv/agency/.agency/agency.db?")
	assert.Contains(t, dsn, "foreign_keys%281%29")
	assert.Contains(t, dsn, "busy_timeout%282000%29")

	assert.Contains(t, Config{}.DSN(), "busy_timeout%285000%29")
}

func TestOpenCreatesStateDir(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	_, err = os.Stat(filepath.Join(dir, ".agency"))
	assert.NoError(t, err)

	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpenHonorsFileOverride(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "portal.db")
	conn, err := Open(Config{File: file})
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(`CREATE TABLE probe(id INTEGER)`)
	require.NoError(t, err)
	_, err = os.Stat(file)
	assert.NoError(t, err)
}
