package engine

import (
	"context"
	"strings"

	"agencyops/internal/activity"
	"agencyops/internal/domain"
)

var (
	taskPriorities = []string{"low", "medium", "high"}
	taskRatings    = []string{"excellent", "good", "average", "poor"}
)

// TaskUpdateOptions carries optional changes; nil fields are left as they are.
type TaskUpdateOptions struct {
	ID                    string
	Status                *string
	Priority              *string
	DueDate               *string
	CategoryID            *string
	ActualDurationMinutes *int
	PerformanceRating     *string
	CompletionLink        *string
	ActorID               string
}

// UpdateTask writes status and performance fields. Any status may follow any other. Moving to
// completed stamps completedAt when it is not already set.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.stamp()
	changes := activity.Details{}
	if opts.Status != nil {
		if err := oneOf("status", *opts.Status, domain.TaskStatuses...); err != nil {
			return domain.Task{}, err
		}
		changes["status"] = map[string]string{"from": t.Status, "to": *opts.Status}
		t.Status = *opts.Status
		if t.Status == domain.TaskCompleted && t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	}
	if opts.Priority != nil {
		if err := oneOf("priority", *opts.Priority, taskPriorities...); err != nil {
			return domain.Task{}, err
		}
		t.Priority = *opts.Priority
		changes["priority"] = t.Priority
	}
	if opts.DueDate != nil {
		t.DueDate = optionalString(*opts.DueDate)
		changes["dueDate"] = derefOr(t.DueDate, "")
	}
	if opts.CategoryID != nil {
		t.CategoryID = optionalString(*opts.CategoryID)
		if t.CategoryID != nil {
			if _, err := e.Repo.GetCategory(ctx, *t.CategoryID); err != nil {
				return domain.Task{}, err
			}
		}
		changes["categoryId"] = derefOr(t.CategoryID, "")
	}
	if opts.ActualDurationMinutes != nil {
		if *opts.ActualDurationMinutes < 0 {
			return domain.Task{}, domain.Invalidf("actualDurationMinutes must not be negative")
		}
		t.ActualDurationMinutes = opts.ActualDurationMinutes
		changes["actualDurationMinutes"] = *opts.ActualDurationMinutes
	}
	if opts.PerformanceRating != nil {
		rating := strings.TrimSpace(*opts.PerformanceRating)
		if rating != "" {
			if err := oneOf("performanceRating", rating, taskRatings...); err != nil {
				return domain.Task{}, err
			}
		}
		t.PerformanceRating = optionalString(rating)
		changes["performanceRating"] = rating
	}
	if opts.CompletionLink != nil {
		t.CompletionLink = optionalString(*opts.CompletionLink)
		changes["completionLink"] = derefOr(t.CompletionLink, "")
	}
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "task", EntityID: t.ID, UserID: opts.ActorID, Action: "task_updated",
		Details: activity.Details{"clientId": t.ClientID, "changes": changes},
	}); err != nil {
		return domain.Task{}, err
	}
	return t, tx.Commit()
}

func (e Engine) CreateCategory(ctx context.Context, name, description string) (domain.TaskCategory, error) {
	name, err := requireText("name", name)
	if err != nil {
		return domain.TaskCategory{}, err
	}
	c := domain.TaskCategory{ID: newID(), Name: name, Description: strings.TrimSpace(description), CreatedAt: e.stamp()}
	if err := e.Repo.InsertCategory(ctx, c); err != nil {
		if isUniqueViolation(err) {
			return domain.TaskCategory{}, domain.Conflictf("category %q already exists", name)
		}
		return domain.TaskCategory{}, err
	}
	return c, nil
}
