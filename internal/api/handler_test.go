//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/acbuy/internal/connection"
	"github.com/ashureev/acbuy/internal/domain"
	"github.com/ashureev/acbuy/internal/identity"
	"github.com/ashureev/acbuy/internal/session"
	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc/connectivity"
)

type fakeBackend struct {
	mu          sync.Mutex
	submissions []domain.Submission
	submitted   []domain.SubmissionRequest
}

func (b *fakeBackend) SubmitAC(_ context.Context, req domain.SubmissionRequest) (domain.SubmissionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, req)
	return domain.SubmissionResult{Kind: domain.ResultSuccess, Message: "Submission received"}, nil
}

func (b *fakeBackend) ListSubmissions(context.Context) ([]domain.Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submissions, nil
}

func (b *fakeBackend) GetSubmission(_ context.Context, id string) (*domain.Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.submissions {
		if b.submissions[i].ID == id {
			s := b.submissions[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (b *fakeBackend) ListCustomerContacts(context.Context) ([]domain.Contact, error) {
	return []domain.Contact{{SubmissionID: "a", CustomerName: "A", Phone: "1234567890", Email: "a@b.com"}}, nil
}

// fakeConn shares one backend across every dial.
type fakeConn struct{ *fakeBackend }

func (fakeConn) WaitForReady(context.Context) error { return nil }
func (fakeConn) State() connectivity.State          { return connectivity.Ready }
func (fakeConn) Close()                             {}

type verifier map[string]string

func (v verifier) Whoami(_ context.Context, token string) (string, error) {
	if p, ok := v[token]; ok {
		return p, nil
	}
	return "", errors.New("anonymous caller: admin identity required")
}

type testEnv struct {
	router   http.Handler
	backend  *fakeBackend
	sessions *session.Registry
	deviceID string
}

func newTestEnv(t *testing.T, deviceID string, ratePerMinute int) *testEnv {
	t.Helper()
	be := &fakeBackend{submissions: []domain.Submission{
		{ID: "old", Brand: "LG", Timestamp: 1},
		{ID: "new", Brand: "Daikin", Timestamp: 3},
		{ID: "mid", Brand: "Voltas", Timestamp: 2},
	}}
	dial := func(string) (connection.Conn, error) { return fakeConn{be}, nil }
	reg := session.NewRegistry(session.Config{
		Schema:              domain.SchemaEnum,
		ConnectTimeout:      time.Second,
		LoginTimeout:        5 * time.Second,
		SubmitRatePerMinute: ratePerMinute,
	}, dial, verifier{"secret": "ops"}, nil)
	t.Cleanup(reg.Close)

	h := NewHandler(reg, domain.SchemaEnum, "*", true, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.WithDeviceID(req.Context(), deviceID)))
		})
	})
	h.RegisterRoutes(r)
	return &testEnv{router: r, backend: be, sessions: reg, deviceID: deviceID}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return got
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

const validForm = `{"brand":"LG","model":"X1","age":3,"condition":"good","customer_name":"A","phone":"1234567890","email":"a@b.com"}`

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t, "dev_config", 0)
	w := env.do(http.MethodGet, "/api/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	got := decode(t, w)
	if got["schema"] != "enum" {
		t.Errorf("Expected schema enum, got %v", got["schema"])
	}
	if levels, _ := got["condition_levels"].([]interface{}); len(levels) != 5 {
		t.Errorf("Expected 5 condition levels, got %v", got["condition_levels"])
	}
}

func TestGetEstimate(t *testing.T) {
	env := newTestEnv(t, "dev_estimate", 0)
	w := env.do(http.MethodGet, "/api/pricing/estimate?range=3-5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if got := decode(t, w); got["min"] != float64(2500) {
		t.Errorf("Expected min 2500, got %v", got["min"])
	}

	if w := env.do(http.MethodGet, "/api/pricing/estimate?range=99", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown range, got %d", w.Code)
	}
}

func TestSubmit_Success(t *testing.T) {
	env := newTestEnv(t, "dev_submit_ok", 0)
	w := env.do(http.MethodPost, "/api/submissions", validForm)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decode(t, w)
	outcome, _ := got["outcome"].(map[string]interface{})
	if outcome["kind"] != "success" {
		t.Errorf("Expected success outcome, got %v", got)
	}
	if got["redirect"] != SuccessPath {
		t.Errorf("Expected redirect %s, got %v", SuccessPath, got["redirect"])
	}

	env.backend.mu.Lock()
	defer env.backend.mu.Unlock()
	if len(env.backend.submitted) != 1 {
		t.Fatalf("Expected 1 remote call, got %d", len(env.backend.submitted))
	}
	req := env.backend.submitted[0]
	if req.Brand != "LG" || req.Age != 3 || req.Condition.Level != domain.ConditionGood {
		t.Errorf("Unexpected request %+v", req)
	}
}

func TestSubmit_ValidationFailure(t *testing.T) {
	env := newTestEnv(t, "dev_submit_bad", 0)
	body := strings.Replace(validForm, `"1234567890"`, `"12345"`, 1)
	w := env.do(http.MethodPost, "/api/submissions", body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", w.Code)
	}
	fields, _ := decode(t, w)["fields"].(map[string]interface{})
	if _, ok := fields["phone"]; !ok {
		t.Errorf("Expected a phone field error, got %v", fields)
	}

	if w := env.do(http.MethodPost, "/api/submissions", "{"); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", w.Code)
	}
}

func TestSubmit_Conflict(t *testing.T) {
	env := newTestEnv(t, "dev_submit_busy", 0)
	release, ok := env.sessions.Get("dev_submit_busy").BeginSubmit()
	if !ok {
		t.Fatal("Expected the submit slot to be free")
	}

	if w := env.do(http.MethodPost, "/api/submissions", validForm); w.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", w.Code)
	}

	release()
	if w := env.do(http.MethodPost, "/api/submissions", validForm); w.Code != http.StatusOK {
		t.Errorf("Expected 200 once the slot is released, got %d", w.Code)
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	env := newTestEnv(t, "dev_submit_rate", 1)
	if w := env.do(http.MethodPost, "/api/submissions", validForm); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/submissions", validForm); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
}

func TestAdmin_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t, "dev_admin_anon", 0)
	for _, path := range []string{"/api/admin/submissions", "/api/admin/contacts", "/api/admin/submissions/old"} {
		if w := env.do(http.MethodGet, path, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestAdmin_LoginFlow(t *testing.T) {
	env := newTestEnv(t, "dev_admin_login", 0)

	if w := env.do(http.MethodPost, "/api/auth/complete", `{"token":"secret"}`); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 without a running login, got %d", w.Code)
	}

	w := env.do(http.MethodPost, "/api/admin/open", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if got := decode(t, w); got["pending"] != true {
		t.Errorf("Expected pending navigation, got %v", got)
	}

	s := env.sessions.Get(env.deviceID)
	waitUntil(t, s.Prompt.Pending)
	if w := env.do(http.MethodPost, "/api/auth/complete", `{"token":"secret"}`); w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	waitUntil(t, func() bool { return s.Auth().Authenticated })

	var list map[string]interface{}
	waitUntil(t, func() bool {
		w := env.do(http.MethodGet, "/api/admin/submissions", "")
		if w.Code != http.StatusOK {
			return false
		}
		list = decode(t, w)
		return true
	})
	if list["count"] != float64(3) {
		t.Fatalf("Expected 3 submissions, got %v", list["count"])
	}
	rows, _ := list["submissions"].([]interface{})
	var ids []string
	for _, row := range rows {
		ids = append(ids, row.(map[string]interface{})["id"].(string))
	}
	if strings.Join(ids, ",") != "new,mid,old" {
		t.Errorf("Expected newest first, got %v", ids)
	}

	if w := env.do(http.MethodGet, "/api/admin/submissions/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/admin/submissions/mid", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/admin/contacts", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for contacts, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/admin/refresh?key=bogus", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown key, got %d", w.Code)
	}

	w = env.do(http.MethodPost, "/api/auth/logout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if got := decode(t, w); got["navigate"] != "/" {
		t.Errorf("Expected navigate home, got %v", got)
	}
	if w := env.do(http.MethodGet, "/api/admin/submissions", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 after logout, got %d", w.Code)
	}
}

func TestCancelLogin(t *testing.T) {
	env := newTestEnv(t, "dev_cancel", 0)
	if w := env.do(http.MethodPost, "/api/auth/cancel", ""); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 without a running login, got %d", w.Code)
	}

	env.do(http.MethodPost, "/api/admin/open", "")
	s := env.sessions.Get(env.deviceID)
	waitUntil(t, s.Prompt.Pending)
	if w := env.do(http.MethodPost, "/api/auth/cancel", ""); w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	waitUntil(t, func() bool { return !s.Nav.Pending() })
	if s.Auth().Authenticated {
		t.Error("Expected unauthenticated after cancel")
	}
}
