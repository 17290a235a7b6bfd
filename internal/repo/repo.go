package repo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"agencyops/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// on returns tx when set, the pool otherwise.
func (r Repo) on(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func notFound(kind, id string) error {
	return errors.Wrapf(ErrNotFound, "%s %s", kind, id)
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

const packageColumns = `id,name,COALESCE(description,''),price,created_at,updated_at`

func scanPackage(scan func(dest ...any) error) (domain.Package, error) {
	var p domain.Package
	var price sql.NullFloat64
	if err := scan(&p.ID, &p.Name, &p.Description, &price, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	if price.Valid {
		v := price.Float64
		p.Price = &v
	}
	return p, nil
}

func (r Repo) InsertPackage(ctx context.Context, tx *sql.Tx, p domain.Package) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO packages(id,name,description,price,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), nullableFloatPtr(p.Price), p.CreatedAt, p.UpdatedAt)
	return errors.Wrap(err, "insert package")
}

func (r Repo) UpdatePackage(ctx context.Context, tx *sql.Tx, p domain.Package) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE packages SET name=?, description=?, price=?, updated_at=? WHERE id=?`,
		p.Name, nullable(p.Description), nullableFloatPtr(p.Price), p.UpdatedAt, p.ID)
	if err != nil {
		return errors.Wrap(err, "update package")
	}
	return requireAffected(res, "package", p.ID)
}

func (r Repo) DeletePackage(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM packages WHERE id=?`, id)
	if err != nil {
		return errors.Wrap(err, "delete package")
	}
	return requireAffected(res, "package", id)
}

func (r Repo) GetPackage(ctx context.Context, id string) (domain.Package, error) {
	return r.GetPackageTx(ctx, nil, id)
}

func (r Repo) GetPackageTx(ctx context.Context, tx *sql.Tx, id string) (domain.Package, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE id=?`, id)
	p, err := scanPackage(row.Scan)
	if err == sql.ErrNoRows {
		return p, notFound("package", id)
	}
	return p, errors.Wrap(err, "get package")
}

func (r Repo) ListPackages(ctx context.Context) ([]domain.Package, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+packageColumns+` FROM packages ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list packages")
	}
	defer rows.Close()
	var res []domain.Package
	for rows.Next() {
		p, err := scanPackage(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan package")
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CountClientsForPackage reports how many clients reference a package.
func (r Repo) CountClientsForPackage(ctx context.Context, tx *sql.Tx, packageID string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM clients WHERE package_id=?`, packageID).Scan(&n)
	return n, errors.Wrap(err, "count package clients")
}
