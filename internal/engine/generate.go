package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"agencyops/internal/activity"
	"agencyops/internal/config"
	"agencyops/internal/domain"
	"agencyops/internal/repo"
)

var assignmentStatuses = []string{"pending", "active", "in_progress", "completed", "cancelled"}

type AssignmentCreateOptions struct {
	ClientID   string
	TemplateID string
	Status     string
	AgentIDs   []string
	ActorID    string
}

// CreateAssignment inserts the assignment and expands it into tasks. The assignment row, both
// generation paths and the team memberships share one transaction.
func (e Engine) CreateAssignment(ctx context.Context, opts AssignmentCreateOptions) (domain.Assignment, error) {
	clientID, err := requireText("clientId", opts.ClientID)
	if err != nil {
		return domain.Assignment{}, err
	}
	status := strings.TrimSpace(opts.Status)
	if status == "" {
		status = "pending"
	}
	if err := oneOf("status", status, assignmentStatuses...); err != nil {
		return domain.Assignment{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetClientTx(ctx, tx, clientID); err != nil {
		return domain.Assignment{}, err
	}
	var tmpl *domain.Template
	if id := strings.TrimSpace(opts.TemplateID); id != "" {
		t, err := e.Repo.GetTemplateTx(ctx, tx, id)
		if err != nil {
			return domain.Assignment{}, err
		}
		tmpl = &t
	}
	agents := make([]domain.User, 0, len(opts.AgentIDs))
	for _, id := range opts.AgentIDs {
		u, err := e.Repo.GetUserTx(ctx, tx, strings.TrimSpace(id))
		if err != nil {
			return domain.Assignment{}, err
		}
		agents = append(agents, u)
	}

	now := e.stamp()
	a := domain.Assignment{
		ID:         newID(),
		ClientID:   clientID,
		Status:     status,
		AssignedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if tmpl != nil {
		a.TemplateID = &tmpl.ID
	}
	if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, err
	}

	var assetTasks []domain.Task
	if tmpl != nil {
		assetTasks, err = e.GenerateAssetTasks(ctx, tx, a, tmpl.SiteAssets)
		if err != nil {
			return domain.Assignment{}, err
		}
	}
	agentTasks, err := e.GenerateAgentTasks(ctx, tx, a, agents)
	if err != nil {
		return domain.Assignment{}, err
	}

	agentIDs := make([]string, 0, len(agents))
	for _, u := range agents {
		agentIDs = append(agentIDs, u.ID)
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "assignment",
		EntityID:   a.ID,
		UserID:     opts.ActorID,
		Action:     "assignment_created",
		Details: activity.Details{
			"clientId":   clientID,
			"templateId": derefOr(a.TemplateID, ""),
			"assetTasks": len(assetTasks),
			"agentTasks": len(agentTasks),
			"agentIds":   agentIDs,
		},
	}); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}

	a.Template = tmpl
	a.Tasks = append(assetTasks, agentTasks...)
	e.logger().Info("assignment created",
		zap.String("assignment", a.ID),
		zap.String("client", clientID),
		zap.Int("asset_tasks", len(assetTasks)),
		zap.Int("agent_tasks", len(agentTasks)))
	return a, nil
}

// GenerateAssetTasks writes one task per (site asset, occurrence) pair.
func (e Engine) GenerateAssetTasks(ctx context.Context, tx *sql.Tx, a domain.Assignment, assets []domain.TemplateSiteAsset) ([]domain.Task, error) {
	tasks := PlanAssetTasks(e.cfg().Generation, a, assets, e.now())
	for _, t := range tasks {
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// GenerateAgentTasks writes one task per agent and makes sure each agent has a team
// membership for the client. Existing memberships keep their counters.
func (e Engine) GenerateAgentTasks(ctx context.Context, tx *sql.Tx, a domain.Assignment, agents []domain.User) ([]domain.Task, error) {
	now := e.now()
	tasks := PlanAgentTasks(e.cfg().Generation, a, agents, now)
	for _, t := range tasks {
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return nil, err
		}
	}
	stamp := now.UTC().Format(time.RFC3339)
	for _, u := range agents {
		err := e.Repo.EnsureClientTeamMember(ctx, tx, domain.ClientTeamMember{
			ClientID:     a.ClientID,
			AgentID:      u.ID,
			Role:         "agent",
			AssignedDate: stamp,
			IsActive:     true,
		})
		if err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// PlanAssetTasks expands site assets into pending, unassigned tasks. Occurrence k of an asset
// is due at now + DueOffsetDays + k*CadenceDays. Frequencies below one count as one.
func PlanAssetTasks(gen config.Generation, a domain.Assignment, assets []domain.TemplateSiteAsset, now time.Time) []domain.Task {
	gen = withGenerationDefaults(gen)
	base := now.UTC().AddDate(0, 0, gen.DueOffsetDays)
	stamp := now.UTC().Format(time.RFC3339)
	var tasks []domain.Task
	for _, asset := range assets {
		freq := asset.DefaultPostingFrequency
		if freq < 1 {
			freq = 1
		}
		ideal := gen.DefaultIdealDurationMinutes
		if asset.DefaultIdealDurationMinutes != nil {
			ideal = *asset.DefaultIdealDurationMinutes
		}
		assetID := asset.ID
		for k := 0; k < freq; k++ {
			due := base.AddDate(0, 0, k*gen.CadenceDays).Format(time.RFC3339)
			tasks = append(tasks, domain.Task{
				ID:                   newID(),
				Name:                 fmt.Sprintf("%s Task %d", asset.Name, k+1),
				Description:          asset.Description,
				ClientID:             a.ClientID,
				AssignmentID:         &a.ID,
				TemplateSiteAssetID:  &assetID,
				Status:               domain.TaskPending,
				Priority:             "medium",
				DueDate:              &due,
				IdealDurationMinutes: optionalInt(ideal),
				CreatedAt:            stamp,
				UpdatedAt:            stamp,
			})
		}
	}
	return tasks
}

// PlanAgentTasks creates one task per agent, assigned to that agent and due at the baseline.
func PlanAgentTasks(gen config.Generation, a domain.Assignment, agents []domain.User, now time.Time) []domain.Task {
	gen = withGenerationDefaults(gen)
	due := now.UTC().AddDate(0, 0, gen.DueOffsetDays).Format(time.RFC3339)
	stamp := now.UTC().Format(time.RFC3339)
	tasks := make([]domain.Task, 0, len(agents))
	for _, u := range agents {
		agentID := u.ID
		dueDate := due
		tasks = append(tasks, domain.Task{
			ID:                   newID(),
			Name:                 "Task for " + u.Name,
			ClientID:             a.ClientID,
			AssignmentID:         &a.ID,
			AssignedToID:         &agentID,
			Status:               domain.TaskPending,
			Priority:             "medium",
			DueDate:              &dueDate,
			IdealDurationMinutes: optionalInt(gen.DefaultIdealDurationMinutes),
			CreatedAt:            stamp,
			UpdatedAt:            stamp,
		})
	}
	return tasks
}

func withGenerationDefaults(gen config.Generation) config.Generation {
	if gen.DueOffsetDays <= 0 {
		gen.DueOffsetDays = 7
	}
	if gen.CadenceDays <= 0 {
		gen.CadenceDays = 7
	}
	if gen.DefaultIdealDurationMinutes <= 0 {
		gen.DefaultIdealDurationMinutes = 30
	}
	return gen
}

// GetAssignment returns an assignment with its template and tasks.
func (e Engine) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, id)
	if err != nil {
		return a, err
	}
	if a.TemplateID != nil {
		t, err := e.Repo.GetTemplate(ctx, *a.TemplateID)
		switch {
		case err == nil:
			a.Template = &t
		case !errors.Is(err, repo.ErrNotFound):
			return a, err
		}
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{AssignmentID: a.ID})
	if err != nil {
		return a, err
	}
	a.Tasks = tasks
	return a, nil
}
