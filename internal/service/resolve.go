package service

import (
	"context"
	"fmt"

	"github.com/chepyr/task-manager/internal/db"
	"github.com/chepyr/task-manager/internal/models"
	"github.com/google/uuid"
)

// resolveTasks swaps the user ids of each task for public user projections,
// loading every referenced user with one query.
func resolveTasks(ctx context.Context, users db.UserRepositoryInterface, tasks []*models.Task) ([]*models.ResolvedTask, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, task := range tasks {
		for _, id := range append([]uuid.UUID{task.CreatedBy}, task.AssignedTo...) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	byID, err := users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}

	resolved := make([]*models.ResolvedTask, 0, len(tasks))
	for _, task := range tasks {
		rt := &models.ResolvedTask{Task: *task, AssignedTo: []models.PublicUser{}}
		if u, ok := byID[task.CreatedBy]; ok {
			pub := u.Public()
			rt.CreatedBy = &pub
		}
		for _, id := range task.AssignedTo {
			if u, ok := byID[id]; ok {
				rt.AssignedTo = append(rt.AssignedTo, u.Public())
			}
		}
		resolved = append(resolved, rt)
	}
	return resolved, nil
}

func resolveTask(ctx context.Context, users db.UserRepositoryInterface, task *models.Task) (*models.ResolvedTask, error) {
	resolved, err := resolveTasks(ctx, users, []*models.Task{task})
	if err != nil {
		return nil, err
	}
	return resolved[0], nil
}
