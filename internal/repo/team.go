package repo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"agencyops/internal/domain"
)

// EnsureClientTeamMember inserts the membership unless the (client, agent) row already exists.
// Existing counters are left untouched.
func (r Repo) EnsureClientTeamMember(ctx context.Context, tx *sql.Tx, m domain.ClientTeamMember) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO client_team_members(client_id,agent_id,role,assigned_date,assigned_tasks,completed_tasks,late_tasks,is_active)
VALUES (?,?,?,?,?,?,?,?) ON CONFLICT(client_id,agent_id) DO NOTHING`,
		m.ClientID, m.AgentID, m.Role, m.AssignedDate, m.AssignedTasks, m.CompletedTasks, m.LateTasks, boolToInt(m.IsActive))
	return errors.Wrapf(err, "ensure team member %s/%s", m.ClientID, m.AgentID)
}

// IncrementAssignedTasks adds n to the member's assigned counter, creating the row when absent.
// The counter never decreases.
func (r Repo) IncrementAssignedTasks(ctx context.Context, tx *sql.Tx, clientID, agentID string, n int, now string) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO client_team_members(client_id,agent_id,role,assigned_date,assigned_tasks,is_active)
VALUES (?,?,'agent',?,?,1)
ON CONFLICT(client_id,agent_id) DO UPDATE SET assigned_tasks = assigned_tasks + excluded.assigned_tasks`,
		clientID, agentID, now, n)
	return errors.Wrapf(err, "increment assigned tasks %s/%s", clientID, agentID)
}

// SetAssignedTasks overwrites the counter. Used by seeding and tests.
func (r Repo) SetAssignedTasks(ctx context.Context, clientID, agentID string, n int) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE client_team_members SET assigned_tasks=? WHERE client_id=? AND agent_id=?`, n, clientID, agentID)
	if err != nil {
		return errors.Wrap(err, "set assigned tasks")
	}
	return requireAffected(res, "team member", clientID+"/"+agentID)
}

const teamColumns = `m.client_id,m.agent_id,COALESCE(u.name,''),m.role,m.assigned_date,m.assigned_tasks,m.completed_tasks,m.late_tasks,m.is_active`

func scanTeamMember(scan func(dest ...any) error) (domain.ClientTeamMember, error) {
	var m domain.ClientTeamMember
	var active int
	if err := scan(&m.ClientID, &m.AgentID, &m.AgentName, &m.Role, &m.AssignedDate, &m.AssignedTasks, &m.CompletedTasks, &m.LateTasks, &active); err != nil {
		return m, err
	}
	m.IsActive = active != 0
	return m, nil
}

func (r Repo) GetClientTeamMember(ctx context.Context, clientID, agentID string) (domain.ClientTeamMember, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM client_team_members m LEFT JOIN users u ON u.id=m.agent_id
WHERE m.client_id=? AND m.agent_id=?`, clientID, agentID)
	m, err := scanTeamMember(row.Scan)
	if err == sql.ErrNoRows {
		return m, notFound("team member", clientID+"/"+agentID)
	}
	return m, errors.Wrap(err, "get team member")
}

func (r Repo) ListClientTeam(ctx context.Context, clientID string) ([]domain.ClientTeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+teamColumns+` FROM client_team_members m LEFT JOIN users u ON u.id=m.agent_id
WHERE m.client_id=? ORDER BY m.assigned_date, m.agent_id`, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "list client team")
	}
	defer rows.Close()
	var res []domain.ClientTeamMember
	for rows.Next() {
		m, err := scanTeamMember(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan team member")
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) CountClientTeamRows(ctx context.Context, clientID, agentID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM client_team_members WHERE client_id=? AND agent_id=?`, clientID, agentID).Scan(&n)
	return n, errors.Wrap(err, "count team rows")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
