package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"agencyops/internal/domain"
)

const taskColumns = `id,name,COALESCE(description,''),client_id,assignment_id,template_site_asset_id,category_id,assigned_to_id,status,priority,due_date,ideal_duration_minutes,actual_duration_minutes,performance_rating,completion_link,completed_at,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var assignmentID, assetID, categoryID, assignedTo, dueDate, rating, link, completedAt sql.NullString
	var ideal, actual sql.NullInt64
	if err := scan(&t.ID, &t.Name, &t.Description, &t.ClientID, &assignmentID, &assetID, &categoryID, &assignedTo,
		&t.Status, &t.Priority, &dueDate, &ideal, &actual, &rating, &link, &completedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	t.AssignmentID = strPtr(assignmentID)
	t.TemplateSiteAssetID = strPtr(assetID)
	t.CategoryID = strPtr(categoryID)
	t.AssignedToID = strPtr(assignedTo)
	t.DueDate = strPtr(dueDate)
	t.IdealDurationMinutes = intPtr(ideal)
	t.ActualDurationMinutes = intPtr(actual)
	t.PerformanceRating = strPtr(rating)
	t.CompletionLink = strPtr(link)
	t.CompletedAt = strPtr(completedAt)
	return t, nil
}

type TaskFilters struct {
	ClientID     string
	AssignmentID string
	AssignedToID string
	Status       string
	Limit        int
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO tasks(id,name,description,client_id,assignment_id,template_site_asset_id,category_id,assigned_to_id,status,priority,due_date,ideal_duration_minutes,actual_duration_minutes,performance_rating,completion_link,completed_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, nullable(t.Description), t.ClientID, nullableStringPtr(t.AssignmentID), nullableStringPtr(t.TemplateSiteAssetID),
		nullableStringPtr(t.CategoryID), nullableStringPtr(t.AssignedToID), t.Status, t.Priority, nullableStringPtr(t.DueDate),
		nullableIntPtr(t.IdealDurationMinutes), nullableIntPtr(t.ActualDurationMinutes), nullableStringPtr(t.PerformanceRating),
		nullableStringPtr(t.CompletionLink), nullableStringPtr(t.CompletedAt), t.CreatedAt, t.UpdatedAt)
	return errors.Wrapf(err, "insert task %s", t.Name)
}

// UpdateTask writes the mutable task fields.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE tasks SET name=?, description=?, category_id=?, assigned_to_id=?, status=?, priority=?, due_date=?,
ideal_duration_minutes=?, actual_duration_minutes=?, performance_rating=?, completion_link=?, completed_at=?, updated_at=? WHERE id=?`,
		t.Name, nullable(t.Description), nullableStringPtr(t.CategoryID), nullableStringPtr(t.AssignedToID), t.Status, t.Priority,
		nullableStringPtr(t.DueDate), nullableIntPtr(t.IdealDurationMinutes), nullableIntPtr(t.ActualDurationMinutes),
		nullableStringPtr(t.PerformanceRating), nullableStringPtr(t.CompletionLink), nullableStringPtr(t.CompletedAt), t.UpdatedAt, t.ID)
	if err != nil {
		return errors.Wrap(err, "update task")
	}
	return requireAffected(res, "task", t.ID)
}

// ReassignTask points a task at agentID and resets it to pending.
func (r Repo) ReassignTask(ctx context.Context, tx *sql.Tx, taskID, agentID, updatedAt string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE tasks SET assigned_to_id=?, status=?, updated_at=? WHERE id=?`,
		agentID, domain.TaskPending, updatedAt, taskID)
	if err != nil {
		return errors.Wrapf(err, "reassign task %s", taskID)
	}
	return requireAffected(res, "task", taskID)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.GetTaskTx(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, notFound("task", id)
	}
	return t, errors.Wrap(err, "get task")
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	return r.ListTasksTx(ctx, nil, f)
}

// ListTasksTx orders by due date so generated occurrences come back in cadence order.
func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.AssignmentID != "" {
		clauses = append(clauses, "assignment_id=?")
		args = append(args, f.AssignmentID)
	}
	if f.AssignedToID != "" {
		clauses = append(clauses, "assigned_to_id=?")
		args = append(args, f.AssignedToID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY COALESCE(due_date,''), name, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan task")
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountTasksByStatus returns task counts for a client keyed by status.
func (r Repo) CountTasksByStatus(ctx context.Context, clientID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE client_id=? GROUP BY status`, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "count tasks")
	}
	defer rows.Close()
	counts := map[string]int{}
	for _, s := range domain.TaskStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan task count")
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

const assignmentColumns = `id,client_id,template_id,status,assigned_at,created_at,updated_at`

func scanAssignment(scan func(dest ...any) error) (domain.Assignment, error) {
	var a domain.Assignment
	var tmpl sql.NullString
	if err := scan(&a.ID, &a.ClientID, &tmpl, &a.Status, &a.AssignedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return a, err
	}
	a.TemplateID = strPtr(tmpl)
	return a, nil
}

func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO assignments(id,client_id,template_id,status,assigned_at,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.ClientID, nullableStringPtr(a.TemplateID), a.Status, a.AssignedAt, a.CreatedAt, a.UpdatedAt)
	return errors.Wrap(err, "insert assignment")
}

func (r Repo) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	return r.GetAssignmentTx(ctx, nil, id)
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Assignment, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id=?`, id)
	a, err := scanAssignment(row.Scan)
	if err == sql.ErrNoRows {
		return a, notFound("assignment", id)
	}
	return a, errors.Wrap(err, "get assignment")
}

func (r Repo) ListAssignments(ctx context.Context, clientID string) ([]domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments`
	var args []any
	if clientID != "" {
		query += ` WHERE client_id=?`
		args = append(args, clientID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list assignments")
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan assignment")
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) InsertCategory(ctx context.Context, c domain.TaskCategory) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO task_categories(id,name,description,created_at) VALUES (?,?,?,?)`,
		c.ID, c.Name, nullable(c.Description), c.CreatedAt)
	return errors.Wrap(err, "insert category")
}

func (r Repo) GetCategory(ctx context.Context, id string) (domain.TaskCategory, error) {
	var c domain.TaskCategory
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(description,''),created_at FROM task_categories WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, notFound("category", id)
	}
	return c, errors.Wrap(err, "get category")
}

func (r Repo) ListCategories(ctx context.Context) ([]domain.TaskCategory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),created_at FROM task_categories ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	defer rows.Close()
	var res []domain.TaskCategory
	for rows.Next() {
		var c domain.TaskCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan category")
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
