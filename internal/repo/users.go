package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"agencyops/internal/domain"
)

const userColumns = `u.id,u.name,u.email,COALESCE(u.password_hash,''),u.role_id,COALESCE(r.name,''),u.status,u.created_at,u.updated_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var roleID sql.NullString
	if err := scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &roleID, &u.RoleName, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return u, err
	}
	u.RoleID = strPtr(roleID)
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO users(id,name,email,password_hash,role_id,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.Name, strings.ToLower(u.Email), nullable(u.PasswordHash), nullableStringPtr(u.RoleID), u.Status, u.CreatedAt, u.UpdatedAt)
	return errors.Wrapf(err, "insert user %s", u.Email)
}

func (r Repo) SetUserRole(ctx context.Context, tx *sql.Tx, userID, roleID, now string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE users SET role_id=?, updated_at=? WHERE id=?`, roleID, now, userID)
	if err != nil {
		return errors.Wrap(err, "set user role")
	}
	return requireAffected(res, "user", userID)
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.GetUserTx(ctx, nil, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u LEFT JOIN roles r ON r.id=u.role_id WHERE u.id=?`, id)
	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return u, notFound("user", id)
	}
	return u, errors.Wrap(err, "get user")
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u LEFT JOIN roles r ON r.id=u.role_id WHERE u.email=?`, strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return u, notFound("user", email)
	}
	return u, errors.Wrap(err, "get user by email")
}

// ListUsers lists users, optionally only those holding roleName.
func (r Repo) ListUsers(ctx context.Context, roleName string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u LEFT JOIN roles r ON r.id=u.role_id`
	var args []any
	if roleName != "" {
		query += ` WHERE r.name=?`
		args = append(args, roleName)
	}
	query += ` ORDER BY u.name`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
