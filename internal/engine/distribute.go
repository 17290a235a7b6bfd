package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"agencyops/internal/activity"
	"agencyops/internal/domain"
)

const distributedMessage = "Tasks distributed successfully"

type TaskAgent struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
}

type DistributeOptions struct {
	ClientID    string
	Assignments []TaskAgent
	ActorID     string
}

type DistributedTask struct {
	TaskID  string      `json:"taskId"`
	AgentID string      `json:"agentId"`
	Task    domain.Task `json:"task"`
}

type DistributeResult struct {
	Message       string            `json:"message"`
	AssignedTasks int               `json:"assignedTasks"`
	Assignments   []DistributedTask `json:"assignments"`
}

// Distribute hands tasks to agents. Task updates, activity rows and workload counters commit
// together. Notifications follow the commit; a failure there is returned as *NotificationError
// alongside the committed result.
//
// Counters are incremented on every call, so repeating a batch counts it twice.
func (e Engine) Distribute(ctx context.Context, opts DistributeOptions) (DistributeResult, error) {
	clientID, err := requireText("clientId", opts.ClientID)
	if err != nil {
		return DistributeResult{}, err
	}
	if len(opts.Assignments) == 0 {
		return DistributeResult{}, domain.Invalidf("assignments must not be empty")
	}
	pairs := make([]TaskAgent, 0, len(opts.Assignments))
	for i, p := range opts.Assignments {
		p.TaskID = strings.TrimSpace(p.TaskID)
		p.AgentID = strings.TrimSpace(p.AgentID)
		if p.TaskID == "" || p.AgentID == "" {
			return DistributeResult{}, domain.Invalidf("assignments[%d] needs taskId and agentId", i)
		}
		pairs = append(pairs, p)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return DistributeResult{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetClientTx(ctx, tx, clientID); err != nil {
		return DistributeResult{}, err
	}

	// per-agent counts in first-seen order
	var agentOrder []string
	counts := map[string]int{}
	for _, p := range pairs {
		if _, seen := counts[p.AgentID]; !seen {
			if _, err := e.Repo.GetUserTx(ctx, tx, p.AgentID); err != nil {
				return DistributeResult{}, err
			}
			agentOrder = append(agentOrder, p.AgentID)
		}
		counts[p.AgentID]++
	}

	ts := e.stamp()
	result := DistributeResult{
		Message:       distributedMessage,
		AssignedTasks: len(pairs),
		Assignments:   make([]DistributedTask, 0, len(pairs)),
	}
	for _, p := range pairs {
		if err := e.Repo.ReassignTask(ctx, tx, p.TaskID, p.AgentID, ts); err != nil {
			return DistributeResult{}, err
		}
		if err := e.logActivity(ctx, tx, activity.Entry{
			EntityType: "task",
			EntityID:   p.TaskID,
			UserID:     opts.ActorID,
			Action:     domain.ActionTaskAssigned,
			Details: activity.Details{
				"clientId":  clientID,
				"agentId":   p.AgentID,
				"timestamp": ts,
			},
		}); err != nil {
			return DistributeResult{}, err
		}
	}
	for _, agentID := range agentOrder {
		if err := e.Repo.IncrementAssignedTasks(ctx, tx, clientID, agentID, counts[agentID], ts); err != nil {
			return DistributeResult{}, err
		}
	}
	for _, p := range pairs {
		t, err := e.Repo.GetTaskTx(ctx, tx, p.TaskID)
		if err != nil {
			return DistributeResult{}, err
		}
		result.Assignments = append(result.Assignments, DistributedTask{TaskID: p.TaskID, AgentID: p.AgentID, Task: t})
	}
	if err := tx.Commit(); err != nil {
		return DistributeResult{}, err
	}
	e.logger().Info("tasks distributed",
		zap.String("client", clientID),
		zap.Int("tasks", len(pairs)),
		zap.Int("agents", len(agentOrder)))

	if err := e.notifyAssigned(ctx, result.Assignments); err != nil {
		return result, err
	}
	return result, nil
}

func (e Engine) notifyAssigned(ctx context.Context, assigned []DistributedTask) error {
	if e.Notifier == nil {
		return nil
	}
	for i, a := range assigned {
		taskID := a.TaskID
		err := e.Notifier.Notify(ctx, domain.Notification{
			ID:        newID(),
			UserID:    a.AgentID,
			Type:      domain.NotifyTaskAssigned,
			Title:     "New task assigned",
			Message:   fmt.Sprintf("You have been assigned the task %q", a.Task.Name),
			TaskID:    &taskID,
			CreatedAt: e.stamp(),
		})
		if err != nil {
			e.logger().Error("notification failed", zap.String("task", taskID), zap.String("agent", a.AgentID), zap.Error(err))
			return &NotificationError{Delivered: i, Err: err}
		}
	}
	return nil
}
