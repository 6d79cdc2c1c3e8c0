package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/chepyr/task-manager/internal/models"
	"github.com/chepyr/task-manager/internal/service"
	"github.com/google/uuid"
)

// parseDueDate accepts a calendar date (local midnight) or a full RFC 3339 timestamp.
func parseDueDate(s string) (time.Time, bool) {
	if d, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return d, true
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d, true
	}
	return time.Time{}, false
}

// parsePriority keeps unknown values as-is so the service reports them.
func parsePriority(s string) models.TaskPriority {
	if p, ok := models.ParsePriority(s); ok {
		return p
	}
	return models.TaskPriority(s)
}

func parseStatus(s string) models.TaskStatus {
	if st, ok := models.ParseStatus(s); ok {
		return st
	}
	return models.TaskStatus(s)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		sendError(w, name+" must be a valid uuid", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var input struct {
		Title       string      `json:"title"`
		Description string      `json:"description"`
		Priority    string      `json:"priority"`
		DueDate     string      `json:"dueDate"`
		AssignedTo  []uuid.UUID `json:"assignedTo"`
		Attachments []string    `json:"attachments"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	var dueDate time.Time
	if input.DueDate != "" {
		d, ok := parseDueDate(input.DueDate)
		if !ok {
			sendError(w, "dueDate must be YYYY-MM-DD or RFC 3339", http.StatusBadRequest)
			return
		}
		dueDate = d
	}
	var priority models.TaskPriority
	if input.Priority != "" {
		priority = parsePriority(input.Priority)
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.Create(ctx, actor, service.NewTask{
		Title:       input.Title,
		Description: input.Description,
		Priority:    priority,
		DueDate:     dueDate,
		AssignedTo:  input.AssignedTo,
		Attachments: input.Attachments,
	})
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, task)
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var status *models.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := models.ParseStatus(raw)
		if !ok {
			sendError(w, "status must be one of Pending, In Progress, Completed", http.StatusBadRequest)
			return
		}
		status = &st
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	tasks, err := h.Tasks.List(ctx, status)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, tasks)
}

func (h *Handler) ListUserTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	tasks, err := h.Tasks.ListForUser(ctx, userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, tasks)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.Get(ctx, id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, task)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var input struct {
		Title       models.Optional[string]      `json:"title"`
		Description models.Optional[string]      `json:"description"`
		Priority    models.Optional[string]      `json:"priority"`
		Status      models.Optional[string]      `json:"status"`
		DueDate     models.Optional[string]      `json:"dueDate"`
		AssignedTo  models.Optional[[]uuid.UUID] `json:"assignedTo"`
		Attachments models.Optional[[]string]    `json:"attachments"`
		Progress    models.Optional[int]         `json:"progress"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	upd := service.TaskUpdate{
		Title:       input.Title,
		Description: input.Description,
		AssignedTo:  input.AssignedTo,
		Attachments: input.Attachments,
		Progress:    input.Progress,
	}
	if input.Priority.Set {
		upd.Priority = models.Optional[models.TaskPriority]{
			Value: parsePriority(input.Priority.Value), Set: true, Null: input.Priority.Null,
		}
	}
	if input.Status.Set {
		upd.Status = models.Optional[models.TaskStatus]{
			Value: parseStatus(input.Status.Value), Set: true, Null: input.Status.Null,
		}
	}
	if input.DueDate.Set {
		upd.DueDate = models.Optional[time.Time]{Set: true, Null: input.DueDate.Null}
		if !input.DueDate.Null {
			d, ok := parseDueDate(input.DueDate.Value)
			if !ok {
				sendError(w, "dueDate must be YYYY-MM-DD or RFC 3339", http.StatusBadRequest)
				return
			}
			upd.DueDate.Value = d
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.Update(ctx, id, upd)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, task)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.Tasks.Delete(ctx, actor, id); err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, messageResponse{Message: "Task deleted successfully"})
}

func (h *Handler) AddTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var input struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.AddChecklistItem(ctx, id, input.Text)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, task)
}

// SetTodo sets the completed flag to the value sent; it does not flip it.
func (h *Handler) SetTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	todoID, ok := pathID(w, r, "todoId")
	if !ok {
		return
	}

	var input struct {
		Completed models.Optional[bool] `json:"completed"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if !input.Completed.Set || input.Completed.Null {
		sendError(w, "completed is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.SetChecklistItem(ctx, id, todoID, input.Completed.Value)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, task)
}
