package repo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"agencyops/internal/domain"
)

func (r Repo) InsertSession(ctx context.Context, s domain.Session) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO sessions(token,user_id,expires_at,created_at) VALUES (?,?,?,?)`,
		s.Token, s.UserID, s.ExpiresAt, s.CreatedAt)
	return errors.Wrap(err, "insert session")
}

// GetSession looks a session up by token. Expiry is checked by the caller.
func (r Repo) GetSession(ctx context.Context, token string) (domain.Session, error) {
	var s domain.Session
	err := r.DB.QueryRowContext(ctx, `SELECT token,user_id,expires_at,created_at FROM sessions WHERE token=?`, token).
		Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, errors.Wrap(ErrNotFound, "session")
	}
	return s, errors.Wrap(err, "get session")
}

func (r Repo) DeleteSession(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token)
	return errors.Wrap(err, "delete session")
}

// DeleteExpiredSessions removes sessions whose expiry is before now and reports how many.
func (r Repo) DeleteExpiredSessions(ctx context.Context, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now)
	if err != nil {
		return 0, errors.Wrap(err, "delete expired sessions")
	}
	return res.RowsAffected()
}
