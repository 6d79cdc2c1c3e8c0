package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "Low"
	PriorityMedium TaskPriority = "Medium"
	PriorityHigh   TaskPriority = "High"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "Pending"
	TaskStatusInProgress TaskStatus = "In Progress"
	TaskStatusCompleted  TaskStatus = "Completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts various user inputs to a canonical status.
// It reports false for anything it does not recognise.
func ParseStatus(s string) (TaskStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "todo":
		return TaskStatusPending, true
	case "in progress", "in-progress", "in_progress", "inprogress":
		return TaskStatusInProgress, true
	case "completed", "done":
		return TaskStatusCompleted, true
	default:
		return "", false
	}
}

func ParsePriority(s string) (TaskPriority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, true
	case "medium":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	default:
		return "", false
	}
}

type ChecklistItem struct {
	ID        uuid.UUID `json:"_id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
}

type Task struct {
	ID            uuid.UUID       `json:"_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Priority      TaskPriority    `json:"priority"`
	Status        TaskStatus      `json:"status"`
	DueDate       time.Time       `json:"dueDate"`
	AssignedTo    []uuid.UUID     `json:"assignedTo"`
	CreatedBy     uuid.UUID       `json:"createdBy"`
	Attachments   []string        `json:"attachments"`
	TodoChecklist []ChecklistItem `json:"todoChecklist"`
	Progress      int             `json:"progress"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ChecklistItem returns a pointer into the task's checklist, or nil.
func (t *Task) ChecklistItem(id uuid.UUID) *ChecklistItem {
	for i := range t.TodoChecklist {
		if t.TodoChecklist[i].ID == id {
			return &t.TodoChecklist[i]
		}
	}
	return nil
}

func (t *Task) IsAssignedTo(userID uuid.UUID) bool {
	for _, id := range t.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// ResolvedTask is a task with its user references replaced by public projections.
// CreatedBy is nil when the creator no longer exists; missing assignees are dropped.
type ResolvedTask struct {
	Task
	CreatedBy  *PublicUser  `json:"createdBy"`
	AssignedTo []PublicUser `json:"assignedTo"`
}

func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
