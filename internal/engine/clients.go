package engine

import (
	"context"
	"database/sql"
	"strings"

	"golang.org/x/sync/errgroup"

	"agencyops/internal/activity"
	"agencyops/internal/domain"
)

var clientStatuses = []string{"active", "inactive", "onboarding"}

type SocialLinkInput struct {
	Platform string
	URL      string
}

type ClientInput struct {
	Name        string
	Company     string
	Email       string
	PackageID   string
	Status      string
	SocialLinks []SocialLinkInput
}

// ClientUpdate carries optional changes. SocialLinks replaces the whole set when non-nil.
type ClientUpdate struct {
	Name        *string
	Company     *string
	Email       *string
	PackageID   *string
	Status      *string
	SocialLinks []SocialLinkInput
}

func (e Engine) socialLinks(clientID string, in []SocialLinkInput) ([]domain.SocialLink, error) {
	links := make([]domain.SocialLink, 0, len(in))
	now := e.stamp()
	for i, l := range in {
		platform := strings.TrimSpace(l.Platform)
		url := strings.TrimSpace(l.URL)
		if platform == "" || url == "" {
			return nil, domain.Invalidf("socialLinks[%d] needs platform and url", i)
		}
		links = append(links, domain.SocialLink{ID: newID(), ClientID: clientID, Platform: platform, URL: url, CreatedAt: now})
	}
	return links, nil
}

func (e Engine) checkPackage(ctx context.Context, tx *sql.Tx, id *string) error {
	if id == nil {
		return nil
	}
	_, err := e.Repo.GetPackageTx(ctx, tx, *id)
	return err
}

func (e Engine) CreateClient(ctx context.Context, in ClientInput, actorID string) (domain.Client, error) {
	name, err := requireText("name", in.Name)
	if err != nil {
		return domain.Client{}, err
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = "active"
	}
	if err := oneOf("status", status, clientStatuses...); err != nil {
		return domain.Client{}, err
	}
	now := e.stamp()
	c := domain.Client{
		ID:        newID(),
		Name:      name,
		Company:   strings.TrimSpace(in.Company),
		Email:     strings.TrimSpace(in.Email),
		PackageID: optionalString(in.PackageID),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	links, err := e.socialLinks(c.ID, in.SocialLinks)
	if err != nil {
		return domain.Client{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()
	if err := e.checkPackage(ctx, tx, c.PackageID); err != nil {
		return domain.Client{}, err
	}
	if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
		return domain.Client{}, err
	}
	if err := e.Repo.ReplaceSocialLinks(ctx, tx, c.ID, links); err != nil {
		return domain.Client{}, err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "client", EntityID: c.ID, UserID: actorID, Action: "client_created",
		Details: activity.Details{"name": c.Name, "packageId": derefOr(c.PackageID, "")},
	}); err != nil {
		return domain.Client{}, err
	}
	c.SocialLinks = links
	return c, tx.Commit()
}

func (e Engine) UpdateClient(ctx context.Context, id string, in ClientUpdate, actorID string) (domain.Client, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetClientTx(ctx, tx, id)
	if err != nil {
		return domain.Client{}, err
	}
	var changed []string
	if in.Name != nil {
		if c.Name, err = requireText("name", *in.Name); err != nil {
			return domain.Client{}, err
		}
		changed = append(changed, "name")
	}
	if in.Company != nil {
		c.Company = strings.TrimSpace(*in.Company)
		changed = append(changed, "company")
	}
	if in.Email != nil {
		c.Email = strings.TrimSpace(*in.Email)
		changed = append(changed, "email")
	}
	if in.PackageID != nil {
		c.PackageID = optionalString(*in.PackageID)
		if err := e.checkPackage(ctx, tx, c.PackageID); err != nil {
			return domain.Client{}, err
		}
		changed = append(changed, "packageId")
	}
	if in.Status != nil {
		if err := oneOf("status", *in.Status, clientStatuses...); err != nil {
			return domain.Client{}, err
		}
		c.Status = *in.Status
		changed = append(changed, "status")
	}
	c.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateClient(ctx, tx, c); err != nil {
		return domain.Client{}, err
	}
	if in.SocialLinks != nil {
		links, err := e.socialLinks(c.ID, in.SocialLinks)
		if err != nil {
			return domain.Client{}, err
		}
		if err := e.Repo.ReplaceSocialLinks(ctx, tx, c.ID, links); err != nil {
			return domain.Client{}, err
		}
		c.SocialLinks = links
		changed = append(changed, "socialLinks")
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "client", EntityID: c.ID, UserID: actorID, Action: "client_updated",
		Details: activity.Details{"fields": changed},
	}); err != nil {
		return domain.Client{}, err
	}
	return c, tx.Commit()
}

// DeleteClient removes the client with its assignments, tasks and team rows.
func (e Engine) DeleteClient(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetClientTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteClient(ctx, tx, id); err != nil {
		return err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "client", EntityID: id, UserID: actorID, Action: "client_deleted",
		Details: activity.Details{"name": c.Name},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

type Overview struct {
	Client      domain.Client             `json:"client"`
	Team        []domain.ClientTeamMember `json:"team"`
	TaskCounts  map[string]int            `json:"taskCounts"`
	Assignments []domain.Assignment       `json:"assignments"`
}

// ClientOverview loads the client dashboard. The four reads run concurrently.
func (e Engine) ClientOverview(ctx context.Context, clientID string) (Overview, error) {
	var ov Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := e.Repo.GetClient(gctx, clientID)
		ov.Client = c
		return err
	})
	g.Go(func() error {
		team, err := e.Repo.ListClientTeam(gctx, clientID)
		ov.Team = team
		return err
	})
	g.Go(func() error {
		counts, err := e.Repo.CountTasksByStatus(gctx, clientID)
		ov.TaskCounts = counts
		return err
	})
	g.Go(func() error {
		as, err := e.Repo.ListAssignments(gctx, clientID)
		ov.Assignments = as
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return ov, nil
}
