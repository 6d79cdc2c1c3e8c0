package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/chepyr/task-manager/internal/models"
	"github.com/chepyr/task-manager/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ctxKey int

const actorKey ctxKey = iota

func WithActor(ctx context.Context, actor service.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (service.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(service.Actor)
	return actor, ok
}

/*
Verify the bearer JWT, load the user it names and
put the actor (id + role) into the request context
*/
func (h *Handler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			sendError(w, "Not authorized, no token", http.StatusUnauthorized)
			return
		}
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			sendError(w, "Not authorized, no token", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			return h.JWTSecret, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		)
		if err != nil || !token.Valid {
			sendError(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			sendError(w, "Invalid token claims", http.StatusUnauthorized)
			return
		}
		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			sendError(w, "Invalid token claims", http.StatusUnauthorized)
			return
		}
		userID, err := uuid.Parse(sub)
		if err != nil {
			sendError(w, "Invalid token claims", http.StatusUnauthorized)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		user, err := h.UserRepo.GetByID(ctx, userID)
		cancel()
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("Token for unknown user %s", userID)
			sendError(w, "Not authorized, user not found", http.StatusUnauthorized)
			return
		}
		if err != nil {
			sendServerError(w, err)
			return
		}

		actor := service.Actor{ID: user.ID, Role: user.Role}
		next(w, r.WithContext(WithActor(r.Context(), actor)))
	}
}

// AdminOnly must run behind AuthMiddleware.
func (h *Handler) AdminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			sendError(w, "Not authorized", http.StatusUnauthorized)
			return
		}
		if !actor.IsAdmin() {
			sendError(w, "Access denied, admin only", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (h *Handler) generateToken(user *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": string(user.Role),
		"exp":  now.Add(h.TokenTTL).Unix(),
		"iat":  now.Unix(),
	})
	return token.SignedString(h.JWTSecret)
}
