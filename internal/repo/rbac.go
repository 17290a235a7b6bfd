package repo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"agencyops/internal/domain"
)

// InsertRole creates a role unless one with the same name exists.
func (r Repo) InsertRole(ctx context.Context, tx *sql.Tx, role domain.Role, now string) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT OR IGNORE INTO roles(id, name, description, created_at) VALUES (?,?,?,?)`,
		role.ID, role.Name, nullable(role.Description), now)
	return errors.Wrapf(err, "insert role %s", role.Name)
}

// InsertPermission creates a permission unless one with the same name exists.
func (r Repo) InsertPermission(ctx context.Context, tx *sql.Tx, p domain.Permission, now string) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT OR IGNORE INTO permissions(id, name, description, created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), now)
	return errors.Wrapf(err, "insert permission %s", p.Name)
}

func (r Repo) AddRolePermission(ctx context.Context, tx *sql.Tx, roleID, permID string) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT OR IGNORE INTO role_permissions(role_id, permission_id) VALUES (?,?)`, roleID, permID)
	return errors.Wrap(err, "add role permission")
}

func (r Repo) GetRoleByNameTx(ctx context.Context, tx *sql.Tx, name string) (domain.Role, error) {
	var role domain.Role
	err := r.on(tx).QueryRowContext(ctx, `SELECT id,name,COALESCE(description,'') FROM roles WHERE name=?`, name).
		Scan(&role.ID, &role.Name, &role.Description)
	if err == sql.ErrNoRows {
		return role, notFound("role", name)
	}
	return role, errors.Wrap(err, "get role")
}

func (r Repo) GetRoleTx(ctx context.Context, tx *sql.Tx, id string) (domain.Role, error) {
	var role domain.Role
	err := r.on(tx).QueryRowContext(ctx, `SELECT id,name,COALESCE(description,'') FROM roles WHERE id=?`, id).
		Scan(&role.ID, &role.Name, &role.Description)
	if err == sql.ErrNoRows {
		return role, notFound("role", id)
	}
	return role, errors.Wrap(err, "get role")
}

func (r Repo) GetPermissionByNameTx(ctx context.Context, tx *sql.Tx, name string) (domain.Permission, error) {
	var p domain.Permission
	err := r.on(tx).QueryRowContext(ctx, `SELECT id,name,COALESCE(description,'') FROM permissions WHERE name=?`, name).
		Scan(&p.ID, &p.Name, &p.Description)
	if err == sql.ErrNoRows {
		return p, notFound("permission", name)
	}
	return p, errors.Wrap(err, "get permission")
}

// ListRoles returns every role with its permission names.
func (r Repo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,'') FROM roles ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list roles")
	}
	var res []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan role")
		}
		res = append(res, role)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		perms, err := r.RolePermissionNames(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Permissions = perms
	}
	return res, nil
}

func (r Repo) RolePermissionNames(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT p.name FROM role_permissions rp JOIN permissions p ON p.id=rp.permission_id
WHERE rp.role_id=? ORDER BY p.name`, roleID)
	if err != nil {
		return nil, errors.Wrap(err, "list role permissions")
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan role permission")
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

func (r Repo) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,'') FROM permissions ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list permissions")
	}
	defer rows.Close()
	var res []domain.Permission
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, errors.Wrap(err, "scan permission")
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
