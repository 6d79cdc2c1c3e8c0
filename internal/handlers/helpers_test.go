package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chepyr/task-manager/internal/db"
	"github.com/chepyr/task-manager/internal/models"
	"github.com/chepyr/task-manager/internal/service"
	"github.com/chepyr/task-manager/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	h      *Handler
	mux    http.Handler
	db     *sql.DB
	admin  *models.User
	member *models.User
	other  *models.User
}

func setupHTTP(t *testing.T) *testEnv {
	t.Helper()

	dbx := testutil.NewTestDB(t)
	users := db.NewUserRepository(dbx)
	tasks := db.NewTaskRepository(dbx)

	h := &Handler{
		Tasks:            service.NewTaskService(tasks, users),
		Reports:          service.NewReportService(tasks, users),
		UserRepo:         users,
		RateLimiter:      NewRateLimiter(100, time.Minute),
		JWTSecret:        []byte(testSecret),
		TokenTTL:         time.Hour,
		AdminInviteToken: "let-me-in",
		UploadDir:        t.TempDir(),
	}
	t.Cleanup(h.RateLimiter.Close)

	return &testEnv{
		h:      h,
		mux:    h.Routes(),
		db:     dbx,
		admin:  testutil.CreateUser(t, dbx, "Ada Admin", "ada@example.com", models.RoleAdmin),
		member: testutil.CreateUser(t, dbx, "Mia Member", "mia@example.com", models.RoleMember),
		other:  testutil.CreateUser(t, dbx, "Otto Other", "otto@example.com", models.RoleMember),
	}
}

func bearerForUser(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return "Bearer " + signed
}

// do sends body as JSON unless it is already a string, which is sent verbatim.
func (e *testEnv) do(t *testing.T, method, path string, as *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			buf, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			reader = bytes.NewBuffer(buf)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("Authorization", bearerForUser(t, as.ID))
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body: %v; body=%s", err, rec.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("want %d, got %d body=%s", want, rec.Code, rec.Body.String())
	}
}

// createTask posts a task as user and returns the decoded response.
func (e *testEnv) createTask(t *testing.T, as *models.User, body map[string]any) models.ResolvedTask {
	t.Helper()
	if _, ok := body["dueDate"]; !ok {
		body["dueDate"] = time.Now().AddDate(0, 0, 7).Format(time.DateOnly)
	}
	rec := e.do(t, http.MethodPost, "/api/tasks", as, body)
	expectStatus(t, rec, http.StatusCreated)
	return decodeBody[models.ResolvedTask](t, rec)
}
