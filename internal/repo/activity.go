package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"agencyops/internal/domain"
)

type ActivityFilters struct {
	EntityType string
	EntityID   string
	Action     string
}

// RecentActivity returns the newest limit entries first, joined with the acting user's
// name and email. Entries whose user is gone are still returned.
func (r Repo) RecentActivity(ctx context.Context, limit int, f ActivityFilters) ([]domain.ActivityLog, error) {
	var clauses []string
	var args []any
	if f.EntityType != "" {
		clauses = append(clauses, "a.entity_type=?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "a.entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		clauses = append(clauses, "a.action=?")
		args = append(args, f.Action)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT a.id,a.entity_type,a.entity_id,a.user_id,a.action,a.details_json,a.timestamp,COALESCE(u.name,''),COALESCE(u.email,'')
FROM activity_logs a LEFT JOIN users u ON u.id=a.user_id ` + where + ` ORDER BY a.id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "recent activity")
	}
	defer rows.Close()
	var res []domain.ActivityLog
	for rows.Next() {
		var a domain.ActivityLog
		var userID sql.NullString
		var details string
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &userID, &a.Action, &details, &a.Timestamp, &a.UserName, &a.UserEmail); err != nil {
			return nil, errors.Wrap(err, "scan activity")
		}
		a.UserID = userID.String
		if details != "" {
			if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
				return nil, errors.Wrapf(err, "decode activity %d details", a.ID)
			}
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountActivity counts entries for an action, optionally narrowed to one entity.
func (r Repo) CountActivity(ctx context.Context, action, entityID string) (int, error) {
	query := `SELECT COUNT(*) FROM activity_logs WHERE action=?`
	args := []any{action}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, errors.Wrap(err, "count activity")
}
