package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"agencyops/internal/domain"
)

const clientColumns = `id,name,COALESCE(company,''),COALESCE(email,''),package_id,status,created_at,updated_at`

func scanClient(scan func(dest ...any) error) (domain.Client, error) {
	var c domain.Client
	var pkg sql.NullString
	if err := scan(&c.ID, &c.Name, &c.Company, &c.Email, &pkg, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	c.PackageID = strPtr(pkg)
	return c, nil
}

type ClientFilters struct {
	Status    string
	PackageID string
	Limit     int
}

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO clients(id,name,company,email,package_id,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Company), nullable(c.Email), nullableStringPtr(c.PackageID), c.Status, c.CreatedAt, c.UpdatedAt)
	return errors.Wrap(err, "insert client")
}

func (r Repo) UpdateClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE clients SET name=?, company=?, email=?, package_id=?, status=?, updated_at=? WHERE id=?`,
		c.Name, nullable(c.Company), nullable(c.Email), nullableStringPtr(c.PackageID), c.Status, c.UpdatedAt, c.ID)
	if err != nil {
		return errors.Wrap(err, "update client")
	}
	return requireAffected(res, "client", c.ID)
}

func (r Repo) DeleteClient(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM clients WHERE id=?`, id)
	if err != nil {
		return errors.Wrap(err, "delete client")
	}
	return requireAffected(res, "client", id)
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	return r.GetClientTx(ctx, nil, id)
}

func (r Repo) GetClientTx(ctx context.Context, tx *sql.Tx, id string) (domain.Client, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=?`, id)
	c, err := scanClient(row.Scan)
	if err == sql.ErrNoRows {
		return c, notFound("client", id)
	}
	if err != nil {
		return c, errors.Wrap(err, "get client")
	}
	c.SocialLinks, err = r.listSocialLinks(ctx, tx, id)
	return c, err
}

func (r Repo) ListClients(ctx context.Context, f ClientFilters) ([]domain.Client, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.PackageID != "" {
		clauses = append(clauses, "package_id=?")
		args = append(args, f.PackageID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + clientColumns + ` FROM clients ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list clients")
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		c, err := scanClient(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan client")
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ReplaceSocialLinks swaps the client's links for links.
func (r Repo) ReplaceSocialLinks(ctx context.Context, tx *sql.Tx, clientID string, links []domain.SocialLink) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM social_links WHERE client_id=?`, clientID); err != nil {
		return errors.Wrap(err, "clear social links")
	}
	for _, l := range links {
		if _, err := tx.ExecContext(ctx, `INSERT INTO social_links(id,client_id,platform,url,created_at) VALUES (?,?,?,?,?)`,
			l.ID, clientID, l.Platform, l.URL, l.CreatedAt); err != nil {
			return errors.Wrap(err, "insert social link")
		}
	}
	return nil
}

func (r Repo) listSocialLinks(ctx context.Context, tx *sql.Tx, clientID string) ([]domain.SocialLink, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT id,client_id,platform,url,created_at FROM social_links WHERE client_id=? ORDER BY platform`, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "list social links")
	}
	defer rows.Close()
	var res []domain.SocialLink
	for rows.Next() {
		var l domain.SocialLink
		if err := rows.Scan(&l.ID, &l.ClientID, &l.Platform, &l.URL, &l.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan social link")
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
