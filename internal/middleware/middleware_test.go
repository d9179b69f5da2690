package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"curanova-server/internal/apperrors"
	"curanova-server/internal/models"
	"curanova-server/internal/services"
	"curanova-server/internal/utils"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubResolver struct {
	calls int
	err   error
}

func (r *stubResolver) Resolve(_ context.Context, profile services.Profile) (*models.Patient, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &models.Patient{BaseModel: models.BaseModel{ID: "patient-" + profile.ExternalID}, ExternalID: profile.ExternalID, Email: profile.Email}, nil
}

func token(t *testing.T, role models.Role) string {
	t.Helper()
	tok, err := utils.GenerateToken(utils.TokenSubject{ExternalID: "user_1", Email: "a@b.com", Role: role}, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func newRouter(resolver PatientResolver, roles ...models.Role) *gin.Engine {
	r := gin.New()
	handlers := []gin.HandlerFunc{AuthMiddleware(secret)}
	if resolver != nil {
		handlers = append(handlers, PatientMiddleware(resolver))
	}
	if len(roles) > 0 {
		handlers = append(handlers, RoleAuthMiddleware(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		id, _ := GetUserIDFromContext(c)
		if p, ok := GetPatientFromContext(c); ok && p.ID != id {
			c.String(http.StatusInternalServerError, "patient and user id disagree")
			return
		}
		c.String(http.StatusOK, id)
	})
	r.GET("/", handlers...)
	return r
}

func do(r http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_RejectsBadCredentials(t *testing.T) {
	r := newRouter(nil)
	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc",
		"garbage":      "Bearer not-a-token",
	} {
		if w := do(r, header); w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, w.Code)
		}
	}

	other, _ := utils.GenerateToken(utils.TokenSubject{ExternalID: "user_1"}, "other-secret", time.Hour)
	if w := do(r, "Bearer "+other); w.Code != http.StatusUnauthorized {
		t.Errorf("foreign signature: expected 401, got %d", w.Code)
	}
}

func TestPatientMiddleware_ResolvesPrincipal(t *testing.T) {
	resolver := &stubResolver{}
	w := do(newRouter(resolver), "Bearer "+token(t, models.RolePatient))
	if w.Code != http.StatusOK || w.Body.String() != "patient-user_1" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
	if resolver.calls != 1 {
		t.Errorf("expected one resolve, got %d", resolver.calls)
	}
}

func TestPatientMiddleware_IdentityUnavailable(t *testing.T) {
	resolver := &stubResolver{err: apperrors.IdentityUnavailable(nil, "identity store down")}
	w := do(newRouter(resolver), "Bearer "+token(t, models.RolePatient))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), string(apperrors.KindIdentityUnavailable)) {
		t.Errorf("error code missing from body %s", w.Body.String())
	}
}

func TestRoleAuthMiddleware(t *testing.T) {
	r := newRouter(nil, models.RoleProvider)
	if w := do(r, "Bearer "+token(t, models.RolePatient)); w.Code != http.StatusForbidden {
		t.Errorf("patient on provider route: expected 403, got %d", w.Code)
	}
	if w := do(r, "Bearer "+token(t, models.RoleProvider)); w.Code != http.StatusOK {
		t.Errorf("provider: expected 200, got %d", w.Code)
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestID(), Logger(zerolog.New(&buf)))
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get(RequestIDHeader) != "req-42" {
		t.Errorf("request id not echoed: %q", w.Header().Get(RequestIDHeader))
	}
	line := buf.String()
	for _, want := range []string{`"level":"error"`, `"request_id":"req-42"`, `"status":500`, `"path":"/boom"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %s missing %s", line, want)
		}
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("a request id should be generated")
	}
}
