package repo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"agencyops/internal/domain"
)

const templateColumns = `id,package_id,name,COALESCE(description,''),status,created_at,updated_at`

func scanTemplate(scan func(dest ...any) error) (domain.Template, error) {
	var t domain.Template
	err := scan(&t.ID, &t.PackageID, &t.Name, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r Repo) InsertTemplate(ctx context.Context, tx *sql.Tx, t domain.Template) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO templates(id,package_id,name,description,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.PackageID, t.Name, nullable(t.Description), t.Status, t.CreatedAt, t.UpdatedAt)
	return errors.Wrap(err, "insert template")
}

func (r Repo) DeleteTemplate(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM templates WHERE id=?`, id)
	if err != nil {
		return errors.Wrap(err, "delete template")
	}
	return requireAffected(res, "template", id)
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	return r.GetTemplateTx(ctx, nil, id)
}

// GetTemplateTx loads a template with its site assets and team roster.
func (r Repo) GetTemplateTx(ctx context.Context, tx *sql.Tx, id string) (domain.Template, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id=?`, id)
	t, err := scanTemplate(row.Scan)
	if err == sql.ErrNoRows {
		return t, notFound("template", id)
	}
	if err != nil {
		return t, errors.Wrap(err, "get template")
	}
	if t.SiteAssets, err = r.ListSiteAssetsTx(ctx, tx, id); err != nil {
		return t, err
	}
	if t.TeamMembers, err = r.ListTemplateTeamTx(ctx, tx, id); err != nil {
		return t, err
	}
	return t, nil
}

func (r Repo) ListTemplates(ctx context.Context, packageID string) ([]domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates`
	var args []any
	if packageID != "" {
		query += ` WHERE package_id=?`
		args = append(args, packageID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list templates")
	}
	defer rows.Close()
	var res []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan template")
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertSiteAsset(ctx context.Context, tx *sql.Tx, a domain.TemplateSiteAsset) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO template_site_assets(id,template_id,type,name,url,description,default_posting_frequency,default_ideal_duration_minutes,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.TemplateID, a.Type, a.Name, nullable(a.URL), nullable(a.Description), a.DefaultPostingFrequency, nullableIntPtr(a.DefaultIdealDurationMinutes), a.CreatedAt)
	return errors.Wrap(err, "insert site asset")
}

// DeleteSiteAsset hard-deletes an asset. Tasks generated from it keep existing.
func (r Repo) DeleteSiteAsset(ctx context.Context, tx *sql.Tx, templateID, assetID string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM template_site_assets WHERE id=? AND template_id=?`, assetID, templateID)
	if err != nil {
		return errors.Wrap(err, "delete site asset")
	}
	return requireAffected(res, "site asset", assetID)
}

func (r Repo) ListSiteAssetsTx(ctx context.Context, tx *sql.Tx, templateID string) ([]domain.TemplateSiteAsset, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT id,template_id,type,name,COALESCE(url,''),COALESCE(description,''),default_posting_frequency,default_ideal_duration_minutes,created_at
FROM template_site_assets WHERE template_id=? ORDER BY created_at, rowid`, templateID)
	if err != nil {
		return nil, errors.Wrap(err, "list site assets")
	}
	defer rows.Close()
	var res []domain.TemplateSiteAsset
	for rows.Next() {
		var a domain.TemplateSiteAsset
		var dur sql.NullInt64
		if err := rows.Scan(&a.ID, &a.TemplateID, &a.Type, &a.Name, &a.URL, &a.Description, &a.DefaultPostingFrequency, &dur, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan site asset")
		}
		a.DefaultIdealDurationMinutes = intPtr(dur)
		res = append(res, a)
	}
	return res, rows.Err()
}

// ReplaceTemplateTeam swaps the template roster for members.
func (r Repo) ReplaceTemplateTeam(ctx context.Context, tx *sql.Tx, templateID string, members []domain.TemplateTeamMember) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM template_team_members WHERE template_id=?`, templateID); err != nil {
		return errors.Wrap(err, "clear template team")
	}
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO template_team_members(template_id,agent_id,role,team_id) VALUES (?,?,?,?)`,
			templateID, m.AgentID, m.Role, nullableStringPtr(m.TeamID)); err != nil {
			return errors.Wrapf(err, "insert template member %s", m.AgentID)
		}
	}
	return nil
}

func (r Repo) ListTemplateTeamTx(ctx context.Context, tx *sql.Tx, templateID string) ([]domain.TemplateTeamMember, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT template_id,agent_id,role,team_id FROM template_team_members WHERE template_id=? ORDER BY agent_id`, templateID)
	if err != nil {
		return nil, errors.Wrap(err, "list template team")
	}
	defer rows.Close()
	var res []domain.TemplateTeamMember
	for rows.Next() {
		var m domain.TemplateTeamMember
		var team sql.NullString
		if err := rows.Scan(&m.TemplateID, &m.AgentID, &m.Role, &team); err != nil {
			return nil, errors.Wrap(err, "scan template member")
		}
		m.TeamID = strPtr(team)
		res = append(res, m)
	}
	return res, rows.Err()
}
