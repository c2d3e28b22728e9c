package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n1dhiparate/admit-assist/internal/assistant"
	"github.com/n1dhiparate/admit-assist/internal/brochure"
	"github.com/n1dhiparate/admit-assist/internal/llm"
	"github.com/n1dhiparate/admit-assist/internal/metrics"
	"github.com/n1dhiparate/admit-assist/internal/onboarding"
	"github.com/n1dhiparate/admit-assist/internal/progress"
)

type fakeAssistant struct {
	mu         sync.Mutex
	messages   []string
	students   []string
	resetCalls [][]onboarding.Milestone
}

func (f *fakeAssistant) SubmitMessage(_ context.Context, studentID, text string) assistant.ComposedAnswer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	f.students = append(f.students, studentID)
	return assistant.ComposedAnswer{
		Reply:    "echo: " + text,
		Status:   onboarding.DefaultStatus(),
		Strategy: assistant.StrategyUngrounded,
	}
}

func (f *fakeAssistant) Status(context.Context, string) onboarding.Status {
	s := onboarding.DefaultStatus()
	s[onboarding.FeePayment] = true
	return s
}

func (f *fakeAssistant) AggregateStats(context.Context) onboarding.AggregateStats {
	return onboarding.Aggregate(map[string]onboarding.Status{"a": onboarding.DefaultStatus()})
}

func (f *fakeAssistant) Reset(_ context.Context, _ string, ms ...onboarding.Milestone) onboarding.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls = append(f.resetCalls, ms)
	return onboarding.DefaultStatus()
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate() { f.calls++ }

func newTestServer(t *testing.T, cfg Config) (*fakeAssistant, *fakeInvalidator, http.Handler) {
	t.Helper()
	fa := &fakeAssistant{}
	fi := &fakeInvalidator{}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"*"}
	}
	return fa, fi, NewServer(cfg, fa, fi, metrics.New(), nil).Handler()
}

func do(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat(t *testing.T) {
	fa, _, h := newTestServer(t, Config{StudentID: "alice"})

	rec := do(h, "POST", "/chat", `{"message": "when is the fee deadline"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "echo: when is the fee deadline", resp["reply"])
	assert.Equal(t, "ungrounded", resp["strategy"])
	assert.NotEmpty(t, resp["request_id"])
	assert.NotContains(t, resp, "source", "source omitted when not grounded")
	assert.Len(t, resp["status"], 5)
	assert.Equal(t, []string{"alice"}, fa.students)
}

func TestChat_MalformedBodyIsEmptyMessage(t *testing.T) {
	bodies := map[string]string{
		"not json":   `{"message": `,
		"empty":      ``,
		"wrong type": `{"message": 42}`,
		"missing":    `{}`,
		"json array": `["hello"]`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			fa, _, h := newTestServer(t, Config{})
			rec := do(h, "POST", "/chat", body, nil)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []string{""}, fa.messages)
		})
	}
}

func TestChat_DefaultStudent(t *testing.T) {
	fa, _, h := newTestServer(t, Config{})
	do(h, "POST", "/chat", `{"message":"hi"}`, nil)

	assert.Equal(t, []string{assistant.DefaultStudentID}, fa.students)
}

func TestRequestID(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	rec := do(h, "GET", "/health", "", map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	rec = do(h, "GET", "/health", "", nil)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36, "generated IDs are UUIDs")

	rec = do(h, "POST", "/chat", `{"message":"hi"}`, map[string]string{RequestIDHeader: "req-456"})
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-456", resp.RequestID)
}

func TestStatus(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	rec := do(h, "GET", "/status", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status["fee_payment"])
	assert.False(t, status["lms_onboarding"])
}

func TestAdminStats(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	rec := do(h, "GET", "/admin/stats", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"total": 1,
		"completed": 0,
		"pending_by_milestone": {
			"document_verification": 1,
			"fee_payment": 1,
			"course_registration": 1,
			"hostel_allocation": 1,
			"lms_onboarding": 1
		}
	}`, rec.Body.String())
}

func TestAdminReset(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMs   []onboarding.Milestone
	}{
		{"named milestones", `{"milestones":["fee_payment","lms_onboarding"]}`, 200, []onboarding.Milestone{onboarding.FeePayment, onboarding.LMSOnboarding}},
		{"empty list resets all", `{"milestones":[]}`, 200, []onboarding.Milestone{}},
		{"no body resets all", ``, 200, []onboarding.Milestone{}},
		{"unknown milestone", `{"milestones":["fees"]}`, 400, nil},
		{"bad json", `{"milestones":`, 400, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa, _, h := newTestServer(t, Config{})
			rec := do(h, "POST", "/admin/reset", tt.body, nil)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != 200 {
				assert.Empty(t, fa.resetCalls)
				assert.Contains(t, rec.Body.String(), "error")
				return
			}
			require.Len(t, fa.resetCalls, 1)
			assert.Equal(t, tt.wantMs, fa.resetCalls[0])
		})
	}
}

func TestBrochureReload(t *testing.T) {
	_, fi, h := newTestServer(t, Config{})

	rec := do(h, "POST", "/admin/brochure/reload", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fi.calls)
}

func TestBrochureReload_NoBrochure(t *testing.T) {
	h := NewServer(Config{}, &fakeAssistant{}, nil, nil, nil).Handler()

	rec := do(h, "POST", "/admin/brochure/reload", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth_Dependencies(t *testing.T) {
	srv := NewServer(Config{}, &fakeAssistant{}, nil, nil, nil)
	deps := map[string]DependencyStatus{
		"store": {Name: "store", Ready: true, LastCheck: "2025-03-01T10:00:00Z"},
	}
	srv.SetDependencies(func() map[string]DependencyStatus { return deps })
	h := srv.Handler()

	rec := do(h, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"status": "healthy",
		"dependencies": {"store": {"name": "store", "ready": true, "last_check": "2025-03-01T10:00:00Z"}}
	}`, rec.Body.String())

	deps["generation"] = DependencyStatus{Name: "generation", LastError: "connection refused"}
	rec = do(h, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "connection refused", body.Dependencies["generation"].LastError)
}

func TestHealthVersionIndexMetrics(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	rec := do(h, "GET", "/health", "", nil)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = do(h, "GET", "/version", "", nil)
	var info map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "uptime")

	rec = do(h, "GET", "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Admit-Assist")

	do(h, "POST", "/chat", `{"message":"hi"}`, nil)
	rec = do(h, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMethodNotAllowed(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	rec := do(h, "GET", "/chat", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	t.Run("wildcard", func(t *testing.T) {
		_, _, h := newTestServer(t, Config{AllowedOrigins: []string{"*"}})
		rec := do(h, "POST", "/chat", `{"message":"hi"}`, map[string]string{"Origin": "https://portal.example.edu"})

		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))
	})

	t.Run("preflight", func(t *testing.T) {
		fa, _, h := newTestServer(t, Config{AllowedOrigins: []string{"*"}})
		rec := do(h, "OPTIONS", "/chat", "", map[string]string{
			"Origin":                        "https://portal.example.edu",
			"Access-Control-Request-Method": "POST",
		})

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Empty(t, fa.messages, "preflight must not reach the handler")
	})

	t.Run("listed origin", func(t *testing.T) {
		_, _, h := newTestServer(t, Config{AllowedOrigins: []string{"https://portal.example.edu"}})

		rec := do(h, "GET", "/status", "", map[string]string{"Origin": "https://portal.example.edu"})
		assert.Equal(t, "https://portal.example.edu", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))

		rec = do(h, "GET", "/status", "", map[string]string{"Origin": "https://evil.example.com"})
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimit(t *testing.T) {
	fa, _, h := newTestServer(t, Config{RequestsPerSecond: 0.001, Burst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(h, "POST", "/chat", `{"message":"hi"}`, nil).Code)
	}

	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.Len(t, fa.messages, 2)

	rec := do(h, "GET", "/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "only /chat is limited")
}

func TestRateLimit_Disabled(t *testing.T) {
	_, _, h := newTestServer(t, Config{RequestsPerSecond: 0})

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, do(h, "POST", "/chat", `{"message":"hi"}`, nil).Code)
	}
}

// End to end through a real service: classification, retrieval and
// the retrieved-passage fallback when generation fails.
func TestChat_EndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brochure.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("Fees must be paid by March 1st.\n\nHostel allotment begins in April."), 0o644))

	failing := llm.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", context.DeadlineExceeded
	})
	docs := brochure.NewStore(path, nil)
	svc := assistant.NewService(assistant.ServiceConfig{
		Brochure: docs,
		Composer: assistant.NewComposer(failing, 0, nil, nil),
		Store:    progress.NewMemoryStore(),
	})
	h := NewServer(Config{StudentID: "s1"}, svc, docs, nil, nil).Handler()

	rec := do(h, "POST", "/chat", `{"message":"my fee is paid, when is the fee deadline"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Fees must be paid by March 1st.", resp.Reply)
	assert.Equal(t, assistant.SourceBrochure, resp.Source)
	assert.Equal(t, assistant.StrategyRetrieved, resp.Strategy)
	assert.True(t, resp.Status[onboarding.FeePayment])

	rec = do(h, "GET", "/admin/stats", "", nil)
	var stats onboarding.AggregateStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.PendingByMilestone[onboarding.FeePayment])
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv := NewServer(Config{Address: "127.0.0.1"}, &fakeAssistant{}, nil, nil, nil)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.ErrorIs(t, srv.Start(context.Background()), http.ErrServerClosed)
}

func TestServer_ShutdownRacesStart(t *testing.T) {
	srv := NewServer(Config{Address: "127.0.0.1"}, &fakeAssistant{}, nil, nil, nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, http.ErrServerClosed), "Start() = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
