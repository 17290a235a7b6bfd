package db

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	stateDir      = ".agency"
	defaultDBName = "agency.db"
)

// Config locates the portal database. File overrides the workspace default when set.
type Config struct {
	Workspace   string
	File        string
	BusyTimeout time.Duration
}

func (c Config) file() string {
	if c.File != "" {
		return c.File
	}
	return Path(c.Workspace)
}

// DSN renders the modernc.org/sqlite connection string. Foreign keys are always on.
func (c Config) DSN() string {
	busy := c.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Set("cache", "shared")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(busy.Milliseconds(), 10)+")")
	return "file:" + c.file() + "?" + q.Encode()
}

// EnsureWorkspace creates the state directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, stateDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", errors.Wrapf(err, "create state dir %s", path)
	}
	return path, nil
}

// Open opens the database and checks it answers.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.File == "" {
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
	} else if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create db dir for %s", cfg.File)
	}
	conn, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ping %s", cfg.file())
	}
	return conn, nil
}

// Path returns the default db path for the workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir, defaultDBName)
}
