package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chepyr/task-manager/internal/db"
	"github.com/chepyr/task-manager/internal/service"
)

type Handler struct {
	Tasks            *service.TaskService
	Reports          *service.ReportService
	UserRepo         db.UserRepositoryInterface
	RateLimiter      *RateLimiter
	JWTSecret        []byte
	TokenTTL         time.Duration
	AdminInviteToken string
	UploadDir        string
}

// per-request budget for store calls
const requestTimeout = 5 * time.Second

type messageResponse struct {
	Message string `json:"message"`
}

type serverErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func sendError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, messageResponse{Message: message})
}

func sendServerError(w http.ResponseWriter, err error) {
	log.Printf("Server error: %v", err)
	sendJSON(w, http.StatusInternalServerError, serverErrorResponse{Message: "Server error", Error: err.Error()})
}

// sendServiceError maps the service error taxonomy onto HTTP responses.
func sendServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		sendError(w, verr.Message, http.StatusBadRequest)
	case errors.Is(err, service.ErrTaskNotFound):
		sendError(w, "Task not found", http.StatusNotFound)
	case errors.Is(err, service.ErrItemNotFound):
		sendError(w, "Todo not found", http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		sendError(w, "Forbidden", http.StatusForbidden)
	default:
		sendServerError(w, err)
	}
}

func isJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(strings.ToLower(ct), "application/json")
}

// decodeJSON enforces the content type and a 1MB body limit before decoding into v.
// It writes the 400 response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// clientIP prefers the first X-Forwarded-For hop and falls back to the remote host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimiter allows up to limit attempts per key within each fixed window.
// Counters for every key are cleared together when the window ends.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string]int
	limit    int
	window   time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		attempts: make(map[string]int),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go rl.resetLoop()
	return rl
}

func (rl *RateLimiter) resetLoop() {
	defer close(rl.done)
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			rl.attempts = make(map[string]int)
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Close stops the window reset goroutine and waits for it to exit.
// It may be called more than once.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	<-rl.done
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.attempts[key] >= rl.limit {
		return false
	}
	rl.attempts[key]++
	return true
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.RateLimiter == nil {
		return true
	}
	ip := clientIP(r)
	if !h.RateLimiter.Allow(ip) {
		log.Printf("Rate limit exceeded for IP: %s", ip)
		sendError(w, "Too many attempts. Please try again later.", http.StatusTooManyRequests)
		return false
	}
	return true
}
