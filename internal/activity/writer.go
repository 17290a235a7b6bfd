package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends activity log rows inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

type Details map[string]any

// Entry is one activity log row to append.
type Entry struct {
	EntityType string
	EntityID   string
	UserID     string
	Action     string
	Details    Details
}

// Log appends e. The row commits or rolls back together with tx.
func (w Writer) Log(ctx context.Context, tx *sql.Tx, e Entry) error {
	if e.EntityType == "" || e.EntityID == "" || e.Action == "" {
		return fmt.Errorf("activity entry needs entity type, entity id and action")
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if e.Details == nil {
		e.Details = Details{}
	}
	data, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO activity_logs(entity_type,entity_id,user_id,action,details_json,timestamp) VALUES (?,?,?,?,?,?)`,
		e.EntityType, e.EntityID, nullable(e.UserID), e.Action, string(data), ts)
	if err != nil {
		return fmt.Errorf("append activity %s: %w", e.Action, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
