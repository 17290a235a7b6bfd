package repo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"agencyops/internal/domain"
)

const maxNotifications = 100

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,user_id,type,title,message,task_id,is_read,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, nullableStringPtr(n.TaskID), boolToInt(n.IsRead), n.CreatedAt)
	return errors.Wrap(err, "insert notification")
}

// ListNotifications returns a user's notifications, newest first, capped at 100.
func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > maxNotifications {
		limit = maxNotifications
	}
	query := `SELECT id,user_id,type,title,message,task_id,is_read,created_at FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND is_read=0`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var taskID sql.NullString
		var read int
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &taskID, &read, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		n.TaskID = strPtr(taskID)
		n.IsRead = read != 0
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead flags one of the user's notifications as read.
func (r Repo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	return requireAffected(res, "notification", id)
}
