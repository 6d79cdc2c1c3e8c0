package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chepyr/task-manager/internal/models"
	"github.com/google/uuid"
)

const maxAvatarSize = 5 << 20 // 5MB

var avatarExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type memberSummary struct {
	models.PublicUser
	PendingTasks    int `json:"pendingTasks"`
	InProgressTasks int `json:"inProgressTasks"`
	CompletedTasks  int `json:"completedTasks"`
}

// ListUsers returns every member together with the counts of tasks assigned to them.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	users, err := h.UserRepo.ListByRole(ctx, models.RoleMember)
	if err != nil {
		sendServerError(w, err)
		return
	}

	counts, err := h.Reports.StatusCountsByAssignee(ctx)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	out := make([]memberSummary, 0, len(users))
	for _, u := range users {
		c := counts[u.ID]
		out = append(out, memberSummary{
			PublicUser:      u.Public(),
			PendingTasks:    c.Pending,
			InProgressTasks: c.InProgress,
			CompletedTasks:  c.Completed,
		})
	}
	sendJSON(w, http.StatusOK, out)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := h.UserRepo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		sendError(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		sendServerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, user.Public())
}

// DeleteUser removes the account only. Tasks referencing it are left in place.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	err := h.UserRepo.Delete(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		sendError(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		sendServerError(w, err)
		return
	}
	log.Printf("User deleted: %s", id)
	sendJSON(w, http.StatusOK, messageResponse{Message: "User deleted successfully"})
}

type avatarResponse struct {
	Message  string            `json:"message"`
	ImageURL string            `json:"imageUrl"`
	User     models.PublicUser `json:"user"`
}

// UploadAvatar stores a profile image for the user. Members may only change their own.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if actor.ID != id && !actor.IsAdmin() {
		sendError(w, "Forbidden", http.StatusForbidden)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize+1<<20)
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		sendError(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("profileImage")
	if err != nil {
		sendError(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()
	if header.Size > maxAvatarSize {
		sendError(w, "File too large, max 5MB", http.StatusBadRequest)
		return
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		sendError(w, "Cannot read file", http.StatusBadRequest)
		return
	}
	ext, ok := avatarExtensions[http.DetectContentType(head[:n])]
	if !ok {
		sendError(w, "Only .jpeg, .png and .webp images are allowed", http.StatusBadRequest)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		sendServerError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := h.UserRepo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		sendError(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		sendServerError(w, err)
		return
	}

	name := uuid.NewString() + ext
	if err := saveUpload(h.UploadDir, name, file); err != nil {
		sendServerError(w, err)
		return
	}

	previous := user.ProfileImageURL
	user.ProfileImageURL = "/uploads/" + name
	user.UpdatedAt = time.Now().UTC()
	if err := h.UserRepo.Update(ctx, user); err != nil {
		removeUpload(h.UploadDir, name)
		sendServerError(w, err)
		return
	}
	if old, ok := strings.CutPrefix(previous, "/uploads/"); ok {
		removeUpload(h.UploadDir, old)
	}
	log.Printf("Avatar stored for user %s: %s", user.ID, name)
	sendJSON(w, http.StatusOK, avatarResponse{
		Message:  "Profile image uploaded successfully",
		ImageURL: user.ProfileImageURL,
		User:     user.Public(),
	})
}

func saveUpload(dir, name string, src io.Reader) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("write upload file: %w", err)
	}
	return dst.Close()
}

// removeUpload deletes a stored file. Names that are not plain file names are ignored.
func removeUpload(dir, name string) {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return
	}
	if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to remove upload %s: %v", name, err)
	}
}
