package service

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/chepyr/task-manager/internal/db"
	"github.com/chepyr/task-manager/internal/models"
	"github.com/chepyr/task-manager/internal/testutil"
	"github.com/google/uuid"
)

// stepClock advances one second per call so creation order is unambiguous.
type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	svc    *TaskService
	dbx    *sql.DB
	admin  *models.User
	member *models.User
	other  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dbx := testutil.NewTestDB(t)
	svc := NewTaskService(db.NewTaskRepository(dbx), db.NewUserRepository(dbx))
	clock := &stepClock{t: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)}
	svc.now = clock.now
	return &fixture{
		svc:    svc,
		dbx:    dbx,
		admin:  testutil.CreateUser(t, dbx, "Ada Admin", "admin@example.com", models.RoleAdmin),
		member: testutil.CreateUser(t, dbx, "Max Member", "max@example.com", models.RoleMember),
		other:  testutil.CreateUser(t, dbx, "Olga Other", "olga@example.com", models.RoleMember),
	}
}

func (f *fixture) actor(u *models.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

func (f *fixture) create(t *testing.T, title string, assignees ...uuid.UUID) *models.ResolvedTask {
	t.Helper()
	task, err := f.svc.Create(context.Background(), f.actor(f.admin), NewTask{
		Title:      title,
		DueDate:    time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC),
		AssignedTo: assignees,
	})
	if err != nil {
		t.Fatalf("Create %q: %v", title, err)
	}
	return task
}

func TestTaskService_Create_Defaults(t *testing.T) {
	f := newFixture(t)

	task, err := f.svc.Create(context.Background(), f.actor(f.admin), NewTask{
		Title:       "  Write report  ",
		Description: "quarterly",
		DueDate:     time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if task.Title != "Write report" {
		t.Errorf("title not trimmed: %q", task.Title)
	}
	if task.Priority != models.PriorityMedium || task.Status != models.TaskStatusPending || task.Progress != 0 {
		t.Errorf("defaults not applied: priority=%q status=%q progress=%d", task.Priority, task.Status, task.Progress)
	}
	if task.CreatedBy == nil || task.CreatedBy.ID != f.admin.ID || task.CreatedBy.Name != "Ada Admin" {
		t.Errorf("createdBy not resolved to the actor: %+v", task.CreatedBy)
	}
	if len(task.AssignedTo) != 0 || len(task.TodoChecklist) != 0 || len(task.Attachments) != 0 {
		t.Errorf("expected empty collections, got %+v", task)
	}

	// omitted assignment never shows up in any user's list
	for _, u := range []*models.User{f.admin, f.member} {
		list, err := f.svc.ListForUser(context.Background(), u.ID)
		if err != nil {
			t.Fatalf("ListForUser: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("ListForUser(%s) = %d tasks, want 0", u.Name, len(list))
		}
	}
}

func TestTaskService_Create_Validation(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input NewTask
		field string
	}{
		{"blank title", NewTask{Title: "   ", DueDate: due}, "title"},
		{"missing due date", NewTask{Title: "x"}, "dueDate"},
		{"invalid priority", NewTask{Title: "x", DueDate: due, Priority: "Urgent"}, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), f.actor(f.member), tt.input)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestTaskService_Create_ResolvesAssigneesInOrder(t *testing.T) {
	f := newFixture(t)
	ghost := uuid.New()

	task := f.create(t, "pair", f.other.ID, ghost, f.member.ID, f.other.ID)

	if len(task.Task.AssignedTo) != 3 {
		t.Fatalf("duplicates should be dropped, stored ids: %v", task.Task.AssignedTo)
	}
	if len(task.AssignedTo) != 2 || task.AssignedTo[0].ID != f.other.ID || task.AssignedTo[1].ID != f.member.ID {
		t.Errorf("resolved assignees = %+v", task.AssignedTo)
	}
}

func TestTaskService_List(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "first")
	second := f.create(t, "second")
	third := f.create(t, "third")

	completed := models.TaskStatusCompleted
	if _, err := f.svc.Update(context.Background(), second.ID, TaskUpdate{Status: models.Some(completed)}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	all, err := f.svc.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	gotIDs := []uuid.UUID{}
	for _, task := range all {
		gotIDs = append(gotIDs, task.ID)
	}
	wantIDs := []uuid.UUID{third.ID, second.ID, first.ID}
	if !reflect.DeepEqual(gotIDs, wantIDs) {
		t.Errorf("List order = %v, want newest first %v", gotIDs, wantIDs)
	}

	done, err := f.svc.List(context.Background(), &completed)
	if err != nil {
		t.Fatalf("List(Completed): %v", err)
	}
	if len(done) != 1 || done[0].ID != second.ID {
		t.Errorf("List(Completed) = %+v", done)
	}
}

func TestTaskService_Get_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("want ErrTaskNotFound, got %v", err)
	}
}

func TestTaskService_Update_ProgressClamp(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "clamp")

	tests := []struct {
		in, want int
	}{
		{-5, 0},
		{150, 100},
		{60, 60},
		{0, 0},
	}
	for _, tt := range tests {
		updated, err := f.svc.Update(context.Background(), task.ID, TaskUpdate{Progress: models.Some(tt.in)})
		if err != nil {
			t.Fatalf("Update(progress=%d): %v", tt.in, err)
		}
		if updated.Progress != tt.want {
			t.Errorf("progress %d stored as %d, want %d", tt.in, updated.Progress, tt.want)
		}
	}
}

func TestTaskService_Update_EmptyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "steady", f.member.ID)

	once, err := f.svc.Update(context.Background(), task.ID, TaskUpdate{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	twice, err := f.svc.Update(context.Background(), task.ID, TaskUpdate{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	stored, err := f.svc.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, got := range []*models.ResolvedTask{once, twice, stored} {
		if got.Title != task.Title || got.Priority != task.Priority || got.Status != task.Status ||
			!got.DueDate.Equal(task.DueDate) || !got.UpdatedAt.Equal(task.UpdatedAt) ||
			len(got.AssignedTo) != 1 || got.AssignedTo[0].ID != f.member.ID {
			t.Errorf("empty update changed the task: got %+v, want %+v", got.Task, task.Task)
		}
	}
}

func TestTaskService_Update_Fields(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "draft", f.member.ID)
	newDue := time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)

	updated, err := f.svc.Update(context.Background(), task.ID, TaskUpdate{
		Title:       models.Some(" final "),
		Description: models.Optional[string]{Set: true, Null: true},
		Priority:    models.Some(models.PriorityHigh),
		Status:      models.Some(models.TaskStatusInProgress),
		DueDate:     models.Some(newDue),
		AssignedTo:  models.Some([]uuid.UUID{}),
		Attachments: models.Some([]string{"https://files.example/brief.pdf"}),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "final" || updated.Description != "" || updated.Priority != models.PriorityHigh ||
		updated.Status != models.TaskStatusInProgress || !updated.DueDate.Equal(newDue) {
		t.Errorf("fields not applied: %+v", updated.Task)
	}
	if len(updated.AssignedTo) != 0 {
		t.Errorf("explicit empty assignment should clear assignees, got %+v", updated.AssignedTo)
	}
	if len(updated.Attachments) != 1 {
		t.Errorf("attachments not replaced: %v", updated.Attachments)
	}
	if updated.CreatedBy == nil || updated.CreatedBy.ID != f.admin.ID {
		t.Errorf("createdBy must never change, got %+v", updated.CreatedBy)
	}
}

func TestTaskService_Update_Validation(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "keep")

	tests := []struct {
		name string
		upd  TaskUpdate
	}{
		{"blank title", TaskUpdate{Title: models.Some("  ")}},
		{"null title", TaskUpdate{Title: models.Optional[string]{Set: true, Null: true}}},
		{"bad status", TaskUpdate{Status: models.Some(models.TaskStatus("Archived"))}},
		{"bad priority", TaskUpdate{Priority: models.Some(models.TaskPriority("Urgent"))}},
		{"null due date", TaskUpdate{DueDate: models.Optional[time.Time]{Set: true, Null: true}}},
		{"null progress", TaskUpdate{Progress: models.Optional[int]{Set: true, Null: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Update(context.Background(), task.ID, tt.upd)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
		})
	}

	stored, err := f.svc.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Title != "keep" {
		t.Errorf("rejected update must not be persisted, title=%q", stored.Title)
	}
}

func TestTaskService_Update_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Update(context.Background(), uuid.New(), TaskUpdate{}); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("want ErrTaskNotFound, got %v", err)
	}
}

func TestTaskService_Delete(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "doomed")

	if err := f.svc.Delete(context.Background(), f.actor(f.member), task.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member who did not create the task: want ErrForbidden, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), f.actor(f.admin), task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Get after Delete: want ErrTaskNotFound, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), f.actor(f.admin), task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("second Delete: want ErrTaskNotFound, got %v", err)
	}
}

func TestTaskService_Delete_ByCreator(t *testing.T) {
	f := newFixture(t)
	task, err := f.svc.Create(context.Background(), f.actor(f.member), NewTask{
		Title:   "mine",
		DueDate: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.svc.Delete(context.Background(), f.actor(f.member), task.ID); err != nil {
		t.Fatalf("creator Delete: %v", err)
	}
}

func TestTaskService_ListForUser(t *testing.T) {
	f := newFixture(t)
	mine := f.create(t, "mine", f.member.ID)
	f.create(t, "theirs", f.other.ID)
	shared := f.create(t, "shared", f.other.ID, f.member.ID)

	list, err := f.svc.ListForUser(context.Background(), f.member.ID)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(list) != 2 || list[0].ID != shared.ID || list[1].ID != mine.ID {
		t.Errorf("ListForUser = %+v", list)
	}
}

func TestTaskService_Checklist(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "with todos", f.member.ID)

	withItem, err := f.svc.AddChecklistItem(context.Background(), task.ID, "  buy milk ")
	if err != nil {
		t.Fatalf("AddChecklistItem: %v", err)
	}
	if len(withItem.TodoChecklist) != 1 {
		t.Fatalf("checklist = %+v", withItem.TodoChecklist)
	}
	item := withItem.TodoChecklist[0]
	if item.Text != "buy milk" || item.Completed || item.ID == uuid.Nil {
		t.Errorf("new item = %+v", item)
	}
	if withItem.CreatedBy == nil || len(withItem.AssignedTo) != 1 {
		t.Errorf("checklist mutations return resolved references, got %+v / %+v", withItem.CreatedBy, withItem.AssignedTo)
	}

	// setting, not toggling: the last value wins
	for _, completed := range []bool{true, true, false, true} {
		got, err := f.svc.SetChecklistItem(context.Background(), task.ID, item.ID, completed)
		if err != nil {
			t.Fatalf("SetChecklistItem(%v): %v", completed, err)
		}
		if got.TodoChecklist[0].Completed != completed {
			t.Errorf("completed = %v, want %v", got.TodoChecklist[0].Completed, completed)
		}
	}

	second, err := f.svc.AddChecklistItem(context.Background(), task.ID, "second")
	if err != nil {
		t.Fatalf("AddChecklistItem: %v", err)
	}
	if len(second.TodoChecklist) != 2 || second.TodoChecklist[1].Text != "second" || !second.TodoChecklist[0].Completed {
		t.Errorf("append must keep earlier items: %+v", second.TodoChecklist)
	}
}

func TestTaskService_Checklist_Errors(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "todos")

	if _, err := f.svc.AddChecklistItem(context.Background(), uuid.New(), "x"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("AddChecklistItem on missing task: want ErrTaskNotFound, got %v", err)
	}
	var verr *ValidationError
	if _, err := f.svc.AddChecklistItem(context.Background(), task.ID, "   "); !errors.As(err, &verr) {
		t.Errorf("AddChecklistItem blank text: want ValidationError, got %v", err)
	}
	if _, err := f.svc.SetChecklistItem(context.Background(), uuid.New(), uuid.New(), true); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("SetChecklistItem on missing task: want ErrTaskNotFound, got %v", err)
	}
	if _, err := f.svc.SetChecklistItem(context.Background(), task.ID, uuid.New(), true); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("SetChecklistItem on missing item: want ErrItemNotFound, got %v", err)
	}
}

type failingTaskRepo struct {
	db.TaskRepositoryInterface
	err error
}

func (r *failingTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return nil, r.err
}

func TestTaskService_StoreErrorsAreWrapped(t *testing.T) {
	storeErr := errors.New("connection reset")
	svc := NewTaskService(&failingTaskRepo{err: storeErr}, nil)

	_, err := svc.Get(context.Background(), uuid.New())
	if !errors.Is(err, storeErr) {
		t.Fatalf("want wrapped store error, got %v", err)
	}
	if errors.Is(err, ErrTaskNotFound) {
		t.Fatal("store failure must not look like NotFound")
	}
}
