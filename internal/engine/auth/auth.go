package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"agencyops/internal/repo"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// ErrBadCredentials is returned when an email/password pair does not match.
var ErrBadCredentials = errors.New("invalid email or password")

// Service provides RBAC helpers backed by SQL.
type Service struct {
	DB *sql.DB
}

// HasPermission reports whether the user's role grants permission. It walks
// users -> role_permissions -> permissions on every call; nothing is cached.
func (s Service) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT 1 FROM users u
JOIN role_permissions rp ON rp.role_id=u.role_id
JOIN permissions p ON p.id=rp.permission_id
WHERE u.id=? AND u.status='active' AND p.name=? LIMIT 1`, userID, permission)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// Require returns ForbiddenError when the user lacks permission.
func (s Service) Require(ctx context.Context, userID, permission string) error {
	ok, err := s.HasPermission(ctx, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Permission: permission}
	}
	return nil
}

// UserPermissions lists the permission names granted by the user's role.
func (s Service) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT p.name FROM users u
JOIN role_permissions rp ON rp.role_id=u.role_id
JOIN permissions p ON p.id=rp.permission_id
WHERE u.id=? ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ResolveRoleID maps a role name to its id. Callers creating or re-roling users invoke it
// explicitly before writing the user row.
func (s Service) ResolveRoleID(ctx context.Context, tx *sql.Tx, roleName string) (string, error) {
	name := strings.TrimSpace(roleName)
	if name == "" {
		return "", errors.New("role name required")
	}
	var id string
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, `SELECT id FROM roles WHERE name=?`, name).Scan(&id)
	} else {
		err = s.DB.QueryRowContext(ctx, `SELECT id FROM roles WHERE name=?`, name).Scan(&id)
	}
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("role %s: %w", name, repo.ErrNotFound)
	}
	return id, err
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares password against a stored bcrypt hash.
func CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// NewToken returns 32 random bytes, hex encoded. Used for session tokens and API keys.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
