package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chepyr/task-manager/internal/models"
	"github.com/google/uuid"
)

// defines methods for task db operations
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
	CountGrouped(ctx context.Context, filter TaskFilter) ([]GroupCount, error)
	CountByAssignee(ctx context.Context) ([]AssigneeCount, error)
}

type GroupCount struct {
	Status   models.TaskStatus
	Priority models.TaskPriority
	N        int
}

type AssigneeCount struct {
	UserID uuid.UUID
	Status models.TaskStatus
	N      int
}

// TaskFilter narrows List and CountGrouped. Zero fields match everything.
type TaskFilter struct {
	Status     models.TaskStatus
	NotStatus  models.TaskStatus
	Priority   models.TaskPriority
	AssignedTo uuid.UUID
}

func (f TaskFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("t.status = $%d", f.Status)
	}
	if f.NotStatus != "" {
		add("t.status <> $%d", f.NotStatus)
	}
	if f.Priority != "" {
		add("t.priority = $%d", f.Priority)
	}
	if f.AssignedTo != uuid.Nil {
		add("EXISTS (SELECT 1 FROM task_assignees a WHERE a.task_id = t.id AND a.user_id = $%d)", f.AssignedTo)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `t.id, t.title, t.description, t.priority, t.status, t.due_date,
 t.created_by, t.progress, t.created_at, t.updated_at`

// Create inserts the task together with its assignees, attachments and checklist.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO tasks (id, title, description, priority, status, due_date,
		 created_by, progress, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		_, err := tx.ExecContext(
			ctx, query, task.ID, task.Title, task.Description, task.Priority, task.Status,
			task.DueDate.UTC(), task.CreatedBy, task.Progress,
			task.CreatedAt.UTC(), task.UpdatedAt.UTC())
		if err != nil {
			return err
		}
		return insertChildren(ctx, tx, task)
	})
}

func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = $1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, r.db, []*models.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

// Update replaces the stored task, children included. created_by and created_at are kept.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE tasks SET title = $1, description = $2, priority = $3, status = $4,
		 due_date = $5, progress = $6, updated_at = $7 WHERE id = $8`
		res, err := tx.ExecContext(
			ctx, query, task.Title, task.Description, task.Priority, task.Status,
			task.DueDate.UTC(), task.Progress, task.UpdatedAt.UTC(), task.ID)
		if err != nil {
			return err
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		if err := deleteChildren(ctx, tx, task.ID); err != nil {
			return err
		}
		return insertChildren(ctx, tx, task)
	})
}

func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		return deleteChildren(ctx, tx, id)
	})
}

// List returns matching tasks newest-created first.
func (r *TaskRepository) List(ctx context.Context, filter TaskFilter) ([]*models.Task, error) {
	where, args := filter.where()
	query := `SELECT ` + taskColumns + ` FROM tasks t` + where + ` ORDER BY t.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// children are loaded after the cursor is released so a single connection suffices
	rows.Close()

	if err := loadChildren(ctx, r.db, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CountGrouped counts the matching tasks per (status, priority) pair.
func (r *TaskRepository) CountGrouped(ctx context.Context, filter TaskFilter) ([]GroupCount, error) {
	where, args := filter.where()
	query := `SELECT t.status, t.priority, COUNT(*) FROM tasks t` + where + ` GROUP BY t.status, t.priority`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []GroupCount{}
	for rows.Next() {
		var c GroupCount
		if err := rows.Scan(&c.Status, &c.Priority, &c.N); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// CountByAssignee counts assigned tasks per (assignee, status) pair.
func (r *TaskRepository) CountByAssignee(ctx context.Context) ([]AssigneeCount, error) {
	query := `SELECT a.user_id, t.status, COUNT(*)
	 FROM task_assignees a JOIN tasks t ON t.id = a.task_id
	 GROUP BY a.user_id, t.status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []AssigneeCount{}
	for rows.Next() {
		var c AssigneeCount
		if err := rows.Scan(&c.UserID, &c.Status, &c.N); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *TaskRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	task := &models.Task{}
	err := row.Scan(
		&task.ID, &task.Title, &task.Description, &task.Priority, &task.Status,
		&task.DueDate, &task.CreatedBy, &task.Progress, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func insertChildren(ctx context.Context, q queryer, task *models.Task) error {
	for i, userID := range task.AssignedTo {
		_, err := q.ExecContext(ctx,
			`INSERT INTO task_assignees (task_id, user_id, position) VALUES ($1, $2, $3)`,
			task.ID, userID, i)
		if err != nil {
			return err
		}
	}
	for i, ref := range task.Attachments {
		_, err := q.ExecContext(ctx,
			`INSERT INTO task_attachments (task_id, position, ref) VALUES ($1, $2, $3)`,
			task.ID, i, ref)
		if err != nil {
			return err
		}
	}
	for i, item := range task.TodoChecklist {
		_, err := q.ExecContext(ctx,
			`INSERT INTO task_todos (id, task_id, position, text, completed) VALUES ($1, $2, $3, $4, $5)`,
			item.ID, task.ID, i, item.Text, item.Completed)
		if err != nil {
			return err
		}
	}
	return nil
}

func deleteChildren(ctx context.Context, q queryer, taskID uuid.UUID) error {
	for _, table := range []string{"task_assignees", "task_attachments", "task_todos"} {
		if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE task_id = $1`, taskID); err != nil {
			return err
		}
	}
	return nil
}

// loadChildren fills assignees, attachments and checklists for all tasks with
// one query per child table.
func loadChildren(ctx context.Context, q queryer, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Task, len(tasks))
	args := make([]any, len(tasks))
	for i, task := range tasks {
		task.AssignedTo = []uuid.UUID{}
		task.Attachments = []string{}
		task.TodoChecklist = []models.ChecklistItem{}
		byID[task.ID] = task
		args[i] = task.ID
	}
	in := `task_id IN (` + placeholders(1, len(tasks)) + `)`

	rows, err := q.QueryContext(ctx,
		`SELECT task_id, user_id FROM task_assignees WHERE `+in+` ORDER BY task_id, position`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var taskID, userID uuid.UUID
		if err := rows.Scan(&taskID, &userID); err != nil {
			rows.Close()
			return err
		}
		task := byID[taskID]
		task.AssignedTo = append(task.AssignedTo, userID)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT task_id, ref FROM task_attachments WHERE `+in+` ORDER BY task_id, position`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var taskID uuid.UUID
		var ref string
		if err := rows.Scan(&taskID, &ref); err != nil {
			rows.Close()
			return err
		}
		task := byID[taskID]
		task.Attachments = append(task.Attachments, ref)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT task_id, id, text, completed FROM task_todos WHERE `+in+` ORDER BY task_id, position`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var taskID uuid.UUID
		var item models.ChecklistItem
		if err := rows.Scan(&taskID, &item.ID, &item.Text, &item.Completed); err != nil {
			rows.Close()
			return err
		}
		task := byID[taskID]
		task.TodoChecklist = append(task.TodoChecklist, item)
	}
	return closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	rows.Close()
	return err
}
