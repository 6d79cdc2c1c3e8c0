package handlers

import (
	"net/http"
	"strings"
)

// Routes mounts the API under /api and the stored avatars under /uploads.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	protect := h.AuthMiddleware
	adminOnly := func(next http.HandlerFunc) http.HandlerFunc {
		return h.AuthMiddleware(h.AdminOnly(next))
	}

	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("GET /api/auth/profile", protect(h.GetProfile))
	mux.HandleFunc("PUT /api/auth/profile", protect(h.UpdateProfile))

	mux.HandleFunc("POST /api/tasks", protect(h.CreateTask))
	mux.HandleFunc("GET /api/tasks", protect(h.ListTasks))
	mux.HandleFunc("GET /api/tasks/user/{userId}", protect(h.ListUserTasks))
	mux.HandleFunc("GET /api/tasks/{id}", protect(h.GetTask))
	mux.HandleFunc("PUT /api/tasks/{id}", protect(h.UpdateTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", protect(h.DeleteTask))
	mux.HandleFunc("POST /api/tasks/{id}/todos", protect(h.AddTodo))
	mux.HandleFunc("PUT /api/tasks/{id}/todos/{todoId}", protect(h.SetTodo))

	mux.HandleFunc("GET /api/reports/stats", adminOnly(h.GlobalStats))
	mux.HandleFunc("GET /api/reports/user-stats/{userId}", protect(h.UserStats))
	mux.HandleFunc("GET /api/reports/overdue", protect(h.OverdueTasks))
	mux.HandleFunc("GET /api/reports/by-priority", protect(h.TasksByPriority))
	mux.HandleFunc("GET /api/reports/by-status", protect(h.TasksByStatus))

	mux.HandleFunc("GET /api/users", adminOnly(h.ListUsers))
	mux.HandleFunc("GET /api/users/{id}", protect(h.GetUser))
	mux.HandleFunc("DELETE /api/users/{id}", adminOnly(h.DeleteUser))
	mux.HandleFunc("POST /api/users/{id}/upload-avatar", protect(h.UploadAvatar))

	files := http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.UploadDir)))
	mux.Handle("GET /uploads/", noDirListing(files))

	return mux
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
