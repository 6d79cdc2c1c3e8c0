// Package service holds the task and reporting operations behind the HTTP handlers.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chepyr/task-manager/internal/db"
	"github.com/chepyr/task-manager/internal/models"
	"github.com/google/uuid"
)

// Actor is the authenticated identity issuing a request.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

type NewTask struct {
	Title       string
	Description string
	Priority    models.TaskPriority // empty means Medium
	DueDate     time.Time
	AssignedTo  []uuid.UUID
	Attachments []string
}

// TaskUpdate carries the fields of a partial update. Fields that are not Set are left alone.
type TaskUpdate struct {
	Title       models.Optional[string]
	Description models.Optional[string]
	Priority    models.Optional[models.TaskPriority]
	Status      models.Optional[models.TaskStatus]
	DueDate     models.Optional[time.Time]
	AssignedTo  models.Optional[[]uuid.UUID]
	Attachments models.Optional[[]string]
	Progress    models.Optional[int]
}

func (u TaskUpdate) empty() bool {
	return !u.Title.Set && !u.Description.Set && !u.Priority.Set && !u.Status.Set &&
		!u.DueDate.Set && !u.AssignedTo.Set && !u.Attachments.Set && !u.Progress.Set
}

type TaskService struct {
	tasks db.TaskRepositoryInterface
	users db.UserRepositoryInterface
	now   func() time.Time
}

func NewTaskService(tasks db.TaskRepositoryInterface, users db.UserRepositoryInterface) *TaskService {
	return &TaskService{tasks: tasks, users: users, now: time.Now}
}

func (s *TaskService) Create(ctx context.Context, actor Actor, input NewTask) (*models.ResolvedTask, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalid("title", "title is required")
	}
	if input.DueDate.IsZero() {
		return nil, invalid("dueDate", "dueDate is required")
	}
	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, invalid("priority", "priority must be one of Low, Medium, High")
	}

	now := s.now().UTC()
	task := &models.Task{
		ID:            uuid.New(),
		Title:         title,
		Description:   strings.TrimSpace(input.Description),
		Priority:      priority,
		Status:        models.TaskStatusPending,
		DueDate:       input.DueDate,
		AssignedTo:    dedupeIDs(input.AssignedTo),
		CreatedBy:     actor.ID,
		Attachments:   nonNil(input.Attachments),
		TodoChecklist: []models.ChecklistItem{},
		Progress:      0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return resolveTask(ctx, s.users, task)
}

// List returns all tasks, or only those in status when it is non-nil, newest first.
func (s *TaskService) List(ctx context.Context, status *models.TaskStatus) ([]*models.ResolvedTask, error) {
	var filter db.TaskFilter
	if status != nil {
		filter.Status = *status
	}
	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return resolveTasks(ctx, s.users, tasks)
}

func (s *TaskService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.ResolvedTask, error) {
	tasks, err := s.tasks.List(ctx, db.TaskFilter{AssignedTo: userID})
	if err != nil {
		return nil, fmt.Errorf("list tasks for user: %w", err)
	}
	return resolveTasks(ctx, s.users, tasks)
}

func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*models.ResolvedTask, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return resolveTask(ctx, s.users, task)
}

// Update applies the fields present in upd. No ownership check is made: any
// authenticated actor may edit any task.
func (s *TaskService) Update(ctx context.Context, id uuid.UUID, upd TaskUpdate) (*models.ResolvedTask, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.empty() {
		return resolveTask(ctx, s.users, task)
	}

	if upd.Title.Set {
		title := strings.TrimSpace(upd.Title.Value)
		if upd.Title.Null || title == "" {
			return nil, invalid("title", "title cannot be empty")
		}
		task.Title = title
	}
	if upd.Description.Set {
		task.Description = strings.TrimSpace(upd.Description.Value)
	}
	if upd.Priority.Set {
		if !upd.Priority.Value.Valid() {
			return nil, invalid("priority", "priority must be one of Low, Medium, High")
		}
		task.Priority = upd.Priority.Value
	}
	if upd.Status.Set {
		if !upd.Status.Value.Valid() {
			return nil, invalid("status", "status must be one of Pending, In Progress, Completed")
		}
		task.Status = upd.Status.Value
	}
	if upd.DueDate.Set {
		if upd.DueDate.Null || upd.DueDate.Value.IsZero() {
			return nil, invalid("dueDate", "dueDate cannot be cleared")
		}
		task.DueDate = upd.DueDate.Value
	}
	if upd.AssignedTo.Set {
		task.AssignedTo = dedupeIDs(upd.AssignedTo.Value)
	}
	if upd.Attachments.Set {
		task.Attachments = nonNil(upd.Attachments.Value)
	}
	if upd.Progress.Set {
		if upd.Progress.Null {
			return nil, invalid("progress", "progress must be a number")
		}
		task.Progress = models.ClampProgress(upd.Progress.Value)
	}
	task.UpdatedAt = s.now().UTC()

	if err := s.save(ctx, task); err != nil {
		return nil, err
	}
	return resolveTask(ctx, s.users, task)
}

// Delete removes the task and its checklist. Only the creator or an admin may delete.
func (s *TaskService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	task, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if task.CreatedBy != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *TaskService) AddChecklistItem(ctx context.Context, taskID uuid.UUID, text string) (*models.ResolvedTask, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text", "text is required")
	}
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task.TodoChecklist = append(task.TodoChecklist, models.ChecklistItem{
		ID:   uuid.New(),
		Text: text,
	})
	task.UpdatedAt = s.now().UTC()

	if err := s.save(ctx, task); err != nil {
		return nil, err
	}
	return resolveTask(ctx, s.users, task)
}

// SetChecklistItem sets the completion flag of one checklist item to completed.
func (s *TaskService) SetChecklistItem(ctx context.Context, taskID, itemID uuid.UUID, completed bool) (*models.ResolvedTask, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	item := task.ChecklistItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	item.Completed = completed
	task.UpdatedAt = s.now().UTC()

	if err := s.save(ctx, task); err != nil {
		return nil, err
	}
	return resolveTask(ctx, s.users, task)
}

func (s *TaskService) load(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *TaskService) save(ctx context.Context, task *models.Task) error {
	err := s.tasks.Update(ctx, task)
	if errors.Is(err, sql.ErrNoRows) {
		// deleted between load and save
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
