package activity_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyops/internal/activity"
	"agencyops/internal/db"
	"agencyops/internal/migrate"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return conn
}

func TestLogCommitsWithTransaction(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	w := activity.Writer{Now: func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600)) }}

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.Log(ctx, tx, activity.Entry{
		EntityType: "task", EntityID: "t1", Action: "task_assigned",
		Details: activity.Details{"assignedTo": "a1"},
	}))
	require.NoError(t, tx.Commit())

	var userID sql.NullString
	var details, ts string
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT user_id, details_json, timestamp FROM activity_logs WHERE entity_id='t1'`).Scan(&userID, &details, &ts))
	assert.False(t, userID.Valid)
	assert.JSONEq(t, `{"assignedTo":"a1"}`, details)
	assert.Equal(t, "2024-01-01T08:00:00Z", ts)
}

func TestLogRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, activity.Writer{}.Log(ctx, tx, activity.Entry{EntityType: "client", EntityID: "c1", UserID: "u1", Action: "client_created"}))
	require.NoError(t, tx.Rollback())

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_logs`).Scan(&n))
	assert.Zero(t, n)
}

func TestLogRequiresEntityAndAction(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	assert.Error(t, activity.Writer{}.Log(ctx, tx, activity.Entry{EntityType: "task", Action: "task_assigned"}))
	assert.Error(t, activity.Writer{}.Log(ctx, tx, activity.Entry{EntityType: "task", EntityID: "t1"}))
}
