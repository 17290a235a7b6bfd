package engine

import (
	"context"
	"database/sql"
	"strings"

	"agencyops/internal/activity"
	"agencyops/internal/domain"
)

type PackageInput struct {
	Name        string
	Description string
	Price       *float64
}

type PackageUpdate struct {
	Name        *string
	Description *string
	Price       *float64
}

func validPrice(p *float64) error {
	if p != nil && *p < 0 {
		return domain.Invalidf("price must not be negative")
	}
	return nil
}

func (e Engine) CreatePackage(ctx context.Context, in PackageInput, actorID string) (domain.Package, error) {
	name, err := requireText("name", in.Name)
	if err != nil {
		return domain.Package{}, err
	}
	if err := validPrice(in.Price); err != nil {
		return domain.Package{}, err
	}
	now := e.stamp()
	p := domain.Package{
		ID:          newID(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Package{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPackage(ctx, tx, p); err != nil {
		if isUniqueViolation(err) {
			return domain.Package{}, domain.Conflictf("package %q already exists", name)
		}
		return domain.Package{}, err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "package", EntityID: p.ID, UserID: actorID, Action: "package_created",
		Details: activity.Details{"name": p.Name},
	}); err != nil {
		return domain.Package{}, err
	}
	return p, tx.Commit()
}

func (e Engine) UpdatePackage(ctx context.Context, id string, in PackageUpdate, actorID string) (domain.Package, error) {
	if err := validPrice(in.Price); err != nil {
		return domain.Package{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Package{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetPackageTx(ctx, tx, id)
	if err != nil {
		return domain.Package{}, err
	}
	changed := []string{}
	if in.Name != nil {
		name, err := requireText("name", *in.Name)
		if err != nil {
			return domain.Package{}, err
		}
		p.Name = name
		changed = append(changed, "name")
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
		changed = append(changed, "description")
	}
	if in.Price != nil {
		p.Price = in.Price
		changed = append(changed, "price")
	}
	p.UpdatedAt = e.stamp()
	if err := e.Repo.UpdatePackage(ctx, tx, p); err != nil {
		if isUniqueViolation(err) {
			return domain.Package{}, domain.Conflictf("package %q already exists", p.Name)
		}
		return domain.Package{}, err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "package", EntityID: p.ID, UserID: actorID, Action: "package_updated",
		Details: activity.Details{"fields": changed},
	}); err != nil {
		return domain.Package{}, err
	}
	return p, tx.Commit()
}

// DeletePackage removes a package and its templates. Packages still referenced by a client
// are refused with a conflict and nothing changes.
func (e Engine) DeletePackage(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetPackageTx(ctx, tx, id)
	if err != nil {
		return err
	}
	n, err := e.Repo.CountClientsForPackage(ctx, tx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.Conflictf("package %s is used by %d client(s)", id, n)
	}
	if err := e.Repo.DeletePackage(ctx, tx, id); err != nil {
		return err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "package", EntityID: id, UserID: actorID, Action: "package_deleted",
		Details: activity.Details{"name": p.Name},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetPackage returns the package with its templates.
func (e Engine) GetPackage(ctx context.Context, id string) (domain.Package, error) {
	p, err := e.Repo.GetPackage(ctx, id)
	if err != nil {
		return p, err
	}
	p.Templates, err = e.Repo.ListTemplates(ctx, id)
	return p, err
}

type SiteAssetInput struct {
	Type                        string
	Name                        string
	URL                         string
	Description                 string
	DefaultPostingFrequency     int
	DefaultIdealDurationMinutes *int
}

type TemplateCreateOptions struct {
	PackageID   string
	Name        string
	Description string
	SiteAssets  []SiteAssetInput
	TeamMembers []domain.TemplateTeamMember
	ActorID     string
}

// siteAsset validates in and fills defaults. A posting frequency below one is stored as one.
func (e Engine) siteAsset(templateID string, in SiteAssetInput) (domain.TemplateSiteAsset, error) {
	name, err := requireText("siteAsset.name", in.Name)
	if err != nil {
		return domain.TemplateSiteAsset{}, err
	}
	typ := strings.TrimSpace(in.Type)
	if typ == "" {
		typ = domain.AssetOther
	}
	if err := oneOf("siteAsset.type", typ, domain.AssetSocial, domain.AssetWeb2, domain.AssetOther); err != nil {
		return domain.TemplateSiteAsset{}, err
	}
	freq := in.DefaultPostingFrequency
	if freq < 1 {
		freq = 1
	}
	if in.DefaultIdealDurationMinutes != nil && *in.DefaultIdealDurationMinutes <= 0 {
		return domain.TemplateSiteAsset{}, domain.Invalidf("siteAsset.defaultIdealDurationMinutes must be positive")
	}
	return domain.TemplateSiteAsset{
		ID:                          newID(),
		TemplateID:                  templateID,
		Type:                        typ,
		Name:                        name,
		URL:                         strings.TrimSpace(in.URL),
		Description:                 strings.TrimSpace(in.Description),
		DefaultPostingFrequency:     freq,
		DefaultIdealDurationMinutes: in.DefaultIdealDurationMinutes,
		CreatedAt:                   e.stamp(),
	}, nil
}

func (e Engine) CreateTemplate(ctx context.Context, opts TemplateCreateOptions) (domain.Template, error) {
	name, err := requireText("name", opts.Name)
	if err != nil {
		return domain.Template{}, err
	}
	packageID, err := requireText("packageId", opts.PackageID)
	if err != nil {
		return domain.Template{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Template{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetPackageTx(ctx, tx, packageID); err != nil {
		return domain.Template{}, err
	}
	now := e.stamp()
	t := domain.Template{
		ID:          newID(),
		PackageID:   packageID,
		Name:        name,
		Description: strings.TrimSpace(opts.Description),
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertTemplate(ctx, tx, t); err != nil {
		return domain.Template{}, err
	}
	for _, in := range opts.SiteAssets {
		a, err := e.siteAsset(t.ID, in)
		if err != nil {
			return domain.Template{}, err
		}
		if err := e.Repo.InsertSiteAsset(ctx, tx, a); err != nil {
			return domain.Template{}, err
		}
	}
	if len(opts.TeamMembers) > 0 {
		if err := e.replaceTeam(ctx, tx, t.ID, opts.TeamMembers); err != nil {
			return domain.Template{}, err
		}
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "template", EntityID: t.ID, UserID: opts.ActorID, Action: "template_created",
		Details: activity.Details{"packageId": packageID, "name": name, "siteAssets": len(opts.SiteAssets)},
	}); err != nil {
		return domain.Template{}, err
	}
	created, err := e.Repo.GetTemplateTx(ctx, tx, t.ID)
	if err != nil {
		return domain.Template{}, err
	}
	return created, tx.Commit()
}

func (e Engine) DeleteTemplate(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTemplate(ctx, tx, id); err != nil {
		return err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "template", EntityID: id, UserID: actorID, Action: "template_deleted",
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AddSiteAsset(ctx context.Context, templateID string, in SiteAssetInput, actorID string) (domain.TemplateSiteAsset, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TemplateSiteAsset{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetTemplateTx(ctx, tx, templateID); err != nil {
		return domain.TemplateSiteAsset{}, err
	}
	a, err := e.siteAsset(templateID, in)
	if err != nil {
		return domain.TemplateSiteAsset{}, err
	}
	if err := e.Repo.InsertSiteAsset(ctx, tx, a); err != nil {
		return domain.TemplateSiteAsset{}, err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "template", EntityID: templateID, UserID: actorID, Action: "site_asset_added",
		Details: activity.Details{"assetId": a.ID, "name": a.Name, "frequency": a.DefaultPostingFrequency},
	}); err != nil {
		return domain.TemplateSiteAsset{}, err
	}
	return a, tx.Commit()
}

// DeleteSiteAsset removes an asset from a template. Tasks already generated from it stay.
func (e Engine) DeleteSiteAsset(ctx context.Context, templateID, assetID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteSiteAsset(ctx, tx, templateID, assetID); err != nil {
		return err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "template", EntityID: templateID, UserID: actorID, Action: "site_asset_deleted",
		Details: activity.Details{"assetId": assetID},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// SetTemplateTeam replaces the template's default roster.
func (e Engine) SetTemplateTeam(ctx context.Context, templateID string, members []domain.TemplateTeamMember, actorID string) (domain.Template, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Template{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetTemplateTx(ctx, tx, templateID); err != nil {
		return domain.Template{}, err
	}
	if err := e.replaceTeam(ctx, tx, templateID, members); err != nil {
		return domain.Template{}, err
	}
	t, err := e.Repo.GetTemplateTx(ctx, tx, templateID)
	if err != nil {
		return domain.Template{}, err
	}
	return t, tx.Commit()
}

func (e Engine) replaceTeam(ctx context.Context, tx *sql.Tx, templateID string, members []domain.TemplateTeamMember) error {
	seen := map[string]bool{}
	clean := make([]domain.TemplateTeamMember, 0, len(members))
	for i, m := range members {
		agentID := strings.TrimSpace(m.AgentID)
		if agentID == "" {
			return domain.Invalidf("teamMembers[%d].agentId is required", i)
		}
		if seen[agentID] {
			continue
		}
		seen[agentID] = true
		if _, err := e.Repo.GetUserTx(ctx, tx, agentID); err != nil {
			return err
		}
		role := strings.TrimSpace(m.Role)
		if role == "" {
			role = "agent"
		}
		clean = append(clean, domain.TemplateTeamMember{TemplateID: templateID, AgentID: agentID, Role: role, TeamID: m.TeamID})
	}
	return e.Repo.ReplaceTemplateTeam(ctx, tx, templateID, clean)
}
