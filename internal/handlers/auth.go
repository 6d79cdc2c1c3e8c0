package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/chepyr/task-manager/internal/db"
	"github.com/chepyr/task-manager/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 4

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type authResponse struct {
	models.PublicUser
	Token string `json:"token"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// validateCredentials writes a 400 and returns false when email or password is unusable.
func validateCredentials(w http.ResponseWriter, email, password string) bool {
	if !isValidEmail(email) {
		log.Printf("Invalid email format: %q", email)
		sendError(w, "Invalid email", http.StatusBadRequest)
		return false
	}
	if len(password) < minPasswordLength {
		sendError(w, "Password must be at least 4 characters long", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) sendAuthResponse(w http.ResponseWriter, status int, user *models.User) {
	token, err := h.generateToken(user)
	if err != nil {
		log.Printf("Error generating token: %v", err)
		sendError(w, "Cannot create token", http.StatusInternalServerError)
		return
	}
	sendJSON(w, status, authResponse{PublicUser: user.Public(), Token: token})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var input struct {
		Name             string `json:"name"`
		Email            string `json:"email"`
		Password         string `json:"password"`
		ProfileImageURL  string `json:"profileImageUrl"`
		AdminInviteToken string `json:"adminInviteToken"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		sendError(w, "Name is required", http.StatusBadRequest)
		return
	}
	email := normalizeEmail(input.Email)
	if !validateCredentials(w, email, input.Password) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if _, err := h.UserRepo.GetByEmail(ctx, email); err == nil {
		sendError(w, "User already exists", http.StatusBadRequest)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		sendServerError(w, err)
		return
	}

	role := models.RoleMember
	if h.AdminInviteToken != "" && input.AdminInviteToken == h.AdminInviteToken {
		role = models.RoleAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Error hashing password: %v", err)
		sendError(w, "Cannot hash password", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:              uuid.New(),
		Name:            name,
		Email:           email,
		PasswordHash:    string(hash),
		ProfileImageURL: strings.TrimSpace(input.ProfileImageURL),
		Role:            role,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.UserRepo.Create(ctx, user); err != nil {
		// lost a race with a concurrent registration of the same email
		if errors.Is(err, db.ErrDuplicateEmail) {
			sendError(w, "User already exists", http.StatusBadRequest)
			return
		}
		sendServerError(w, err)
		return
	}

	log.Printf("User registered: %s (%s)", user.Email, user.Role)
	h.sendAuthResponse(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	email := normalizeEmail(input.Email)
	if !validateCredentials(w, email, input.Password) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := h.UserRepo.GetByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("Login for unknown email: %s", email)
		sendError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		sendServerError(w, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		log.Printf("Invalid password for email: %s", email)
		sendError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	log.Printf("User logged in: %s", email)
	h.sendAuthResponse(w, http.StatusOK, user)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := h.UserRepo.GetByID(ctx, actor.ID)
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

// UpdateProfile changes the caller's own name, email or password. The role never changes here.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var input struct {
		Name     models.Optional[string] `json:"name"`
		Email    models.Optional[string] `json:"email"`
		Password models.Optional[string] `json:"password"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := h.UserRepo.GetByID(ctx, actor.ID)
	if errors.Is(err, sql.ErrNoRows) {
		sendError(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		sendServerError(w, err)
		return
	}

	if input.Name.Set {
		name := strings.TrimSpace(input.Name.Value)
		if name == "" {
			sendError(w, "Name is required", http.StatusBadRequest)
			return
		}
		user.Name = name
	}
	if input.Email.Set {
		email := normalizeEmail(input.Email.Value)
		if !isValidEmail(email) {
			sendError(w, "Invalid email", http.StatusBadRequest)
			return
		}
		if email != user.Email {
			if _, err := h.UserRepo.GetByEmail(ctx, email); err == nil {
				sendError(w, "Email already in use", http.StatusBadRequest)
				return
			} else if !errors.Is(err, sql.ErrNoRows) {
				sendServerError(w, err)
				return
			}
			user.Email = email
		}
	}
	if input.Password.Set {
		if len(input.Password.Value) < minPasswordLength {
			sendError(w, "Password must be at least 4 characters long", http.StatusBadRequest)
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password.Value), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("Error hashing password: %v", err)
			sendError(w, "Cannot hash password", http.StatusInternalServerError)
			return
		}
		user.PasswordHash = string(hash)
	}

	user.UpdatedAt = time.Now().UTC()
	if err := h.UserRepo.Update(ctx, user); err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			sendError(w, "Email already in use", http.StatusBadRequest)
			return
		}
		sendServerError(w, err)
		return
	}
	h.sendAuthResponse(w, http.StatusOK, user)
}
