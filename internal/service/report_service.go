package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/chepyr/task-manager/internal/db"
	"github.com/chepyr/task-manager/internal/models"
	"github.com/google/uuid"
)

type TaskStats struct {
	TotalTasks          int  `json:"totalTasks"`
	PendingTasks        int  `json:"pendingTasks"`
	InProgressTasks     int  `json:"inProgressTasks"`
	CompletedTasks      int  `json:"completedTasks"`
	HighPriorityTasks   int  `json:"highPriorityTasks"`
	MediumPriorityTasks int  `json:"mediumPriorityTasks"`
	LowPriorityTasks    int  `json:"lowPriorityTasks"`
	CompletionRate      Rate `json:"completionRate"`
}

type UserTaskStats struct {
	TotalUserTasks          int  `json:"totalUserTasks"`
	PendingUserTasks        int  `json:"pendingUserTasks"`
	InProgressUserTasks     int  `json:"inProgressUserTasks"`
	CompletedUserTasks      int  `json:"completedUserTasks"`
	HighPriorityUserTasks   int  `json:"highPriorityUserTasks"`
	MediumPriorityUserTasks int  `json:"mediumPriorityUserTasks"`
	LowPriorityUserTasks    int  `json:"lowPriorityUserTasks"`
	UserCompletionRate      Rate `json:"userCompletionRate"`
}

type OverdueReport struct {
	OverdueCount int                    `json:"overdueCount"`
	Tasks        []*models.ResolvedTask `json:"tasks"`
}

type PriorityReport struct {
	High   []*models.ResolvedTask `json:"high"`
	Medium []*models.ResolvedTask `json:"medium"`
	Low    []*models.ResolvedTask `json:"low"`
}

type StatusReport struct {
	Pending    []*models.ResolvedTask `json:"pending"`
	InProgress []*models.ResolvedTask `json:"inProgress"`
	Completed  []*models.ResolvedTask `json:"completed"`
}

// ReportService answers read-only aggregate queries. Nothing is cached;
// every call goes to the store.
type ReportService struct {
	tasks db.TaskRepositoryInterface
	users db.UserRepositoryInterface
	// Now decides what "today" is for the overdue report.
	Now func() time.Time
}

func NewReportService(tasks db.TaskRepositoryInterface, users db.UserRepositoryInterface) *ReportService {
	return &ReportService{tasks: tasks, users: users, Now: time.Now}
}

type counts struct {
	total, pending, inProgress, completed, high, medium, low int
}

func (s *ReportService) count(ctx context.Context, base db.TaskFilter) (counts, error) {
	groups, err := s.tasks.CountGrouped(ctx, base)
	if err != nil {
		return counts{}, fmt.Errorf("count tasks: %w", err)
	}
	var c counts
	for _, g := range groups {
		c.total += g.N
		switch g.Status {
		case models.TaskStatusPending:
			c.pending += g.N
		case models.TaskStatusInProgress:
			c.inProgress += g.N
		case models.TaskStatusCompleted:
			c.completed += g.N
		}
		switch g.Priority {
		case models.PriorityHigh:
			c.high += g.N
		case models.PriorityMedium:
			c.medium += g.N
		case models.PriorityLow:
			c.low += g.N
		}
	}
	return c, nil
}

func (s *ReportService) GlobalStats(ctx context.Context) (*TaskStats, error) {
	c, err := s.count(ctx, db.TaskFilter{})
	if err != nil {
		return nil, err
	}
	return &TaskStats{
		TotalTasks:          c.total,
		PendingTasks:        c.pending,
		InProgressTasks:     c.inProgress,
		CompletedTasks:      c.completed,
		HighPriorityTasks:   c.high,
		MediumPriorityTasks: c.medium,
		LowPriorityTasks:    c.low,
		CompletionRate:      completionRate(c.completed, c.total),
	}, nil
}

func (s *ReportService) UserStats(ctx context.Context, userID uuid.UUID) (*UserTaskStats, error) {
	c, err := s.count(ctx, db.TaskFilter{AssignedTo: userID})
	if err != nil {
		return nil, err
	}
	return &UserTaskStats{
		TotalUserTasks:          c.total,
		PendingUserTasks:        c.pending,
		InProgressUserTasks:     c.inProgress,
		CompletedUserTasks:      c.completed,
		HighPriorityUserTasks:   c.high,
		MediumPriorityUserTasks: c.medium,
		LowPriorityUserTasks:    c.low,
		UserCompletionRate:      completionRate(c.completed, c.total),
	}, nil
}

// Overdue lists unfinished tasks due before the start of today, in the clock's location.
func (s *ReportService) Overdue(ctx context.Context) (*OverdueReport, error) {
	now := s.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	open, err := s.tasks.List(ctx, db.TaskFilter{NotStatus: models.TaskStatusCompleted})
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	var overdue []*models.Task
	for _, task := range open {
		if task.DueDate.Before(startOfDay) {
			overdue = append(overdue, task)
		}
	}
	resolved, err := resolveTasks(ctx, s.users, overdue)
	if err != nil {
		return nil, err
	}
	return &OverdueReport{OverdueCount: len(resolved), Tasks: resolved}, nil
}

func (s *ReportService) ByPriority(ctx context.Context) (*PriorityReport, error) {
	buckets, err := s.buckets(ctx, []db.TaskFilter{
		{Priority: models.PriorityHigh},
		{Priority: models.PriorityMedium},
		{Priority: models.PriorityLow},
	})
	if err != nil {
		return nil, err
	}
	return &PriorityReport{High: buckets[0], Medium: buckets[1], Low: buckets[2]}, nil
}

func (s *ReportService) ByStatus(ctx context.Context) (*StatusReport, error) {
	buckets, err := s.buckets(ctx, []db.TaskFilter{
		{Status: models.TaskStatusPending},
		{Status: models.TaskStatusInProgress},
		{Status: models.TaskStatusCompleted},
	})
	if err != nil {
		return nil, err
	}
	return &StatusReport{Pending: buckets[0], InProgress: buckets[1], Completed: buckets[2]}, nil
}

func (s *ReportService) buckets(ctx context.Context, filters []db.TaskFilter) ([][]*models.ResolvedTask, error) {
	out := make([][]*models.ResolvedTask, len(filters))
	for i, filter := range filters {
		tasks, err := s.tasks.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		if out[i], err = resolveTasks(ctx, s.users, tasks); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// StatusCounts is the per-status breakdown of the tasks assigned to one user.
type StatusCounts struct {
	Pending    int
	InProgress int
	Completed  int
}

// StatusCountsByAssignee returns the breakdown for every user with at least one
// assigned task. Users without tasks are absent from the map.
func (s *ReportService) StatusCountsByAssignee(ctx context.Context) (map[uuid.UUID]StatusCounts, error) {
	rows, err := s.tasks.CountByAssignee(ctx)
	if err != nil {
		return nil, fmt.Errorf("count tasks by assignee: %w", err)
	}
	out := make(map[uuid.UUID]StatusCounts)
	for _, row := range rows {
		c := out[row.UserID]
		switch row.Status {
		case models.TaskStatusPending:
			c.Pending += row.N
		case models.TaskStatusInProgress:
			c.InProgress += row.N
		case models.TaskStatusCompleted:
			c.Completed += row.N
		}
		out[row.UserID] = c
	}
	return out, nil
}

// Rate is a completion percentage. It encodes as the number 0 when there are no
// tasks and as a two-decimal string such as "25.00" otherwise.
type Rate string

func (r Rate) MarshalJSON() ([]byte, error) {
	if r == "" || r == "0" {
		return []byte("0"), nil
	}
	return json.Marshal(string(r))
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = Rate(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = Rate(n)
	return nil
}

// completionRate is completed/total as a percentage with two decimals, or 0 with no tasks.
func completionRate(completed, total int) Rate {
	if total == 0 {
		return "0"
	}
	rate := float64(completed) / float64(total) * 100
	return Rate(strconv.FormatFloat(rate, 'f', 2, 64))
}
