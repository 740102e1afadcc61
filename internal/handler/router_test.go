package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/handler"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/observability"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/whatsapp"
	"github.com/boddenberg/pqrs-intake-bot/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- Fakes ---

type fakeInbox struct {
	mu       sync.Mutex
	payloads []*domain.WebhookPayload
}

func (f *fakeInbox) ProcessPayload(_ context.Context, p *domain.WebhookPayload) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return len(p.Messages())
}

func (f *fakeInbox) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type fakeSender struct {
	lastTo       string
	lastTemplate *domain.SendTemplateRequest
	err          error
}

func (f *fakeSender) SendTextMessage(_ context.Context, to, body string, _ bool) (*domain.SendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastTo = to
	return &domain.SendResult{MessagingProduct: "whatsapp"}, nil
}

func (f *fakeSender) SendTemplate(_ context.Context, req *domain.SendTemplateRequest) (*domain.SendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastTemplate = req
	return &domain.SendResult{MessagingProduct: "whatsapp"}, nil
}

type fakeRecords struct {
	records []domain.ComplaintRecord
}

func (f *fakeRecords) List(_ context.Context, dept string, page, pageSize int) (*domain.ListResponse[domain.ComplaintRecord], error) {
	if dept == "XYZ" {
		return nil, &domain.ErrValidation{Field: "departamento", Message: "unknown department code"}
	}
	return &domain.ListResponse[domain.ComplaintRecord]{Data: f.records, Total: len(f.records), Page: page, PageSize: pageSize}, nil
}

func (f *fakeRecords) Pending(context.Context) []domain.ComplaintRecord { return nil }

func (f *fakeRecords) Stats(context.Context) domain.PQRSStats {
	return service.ComputeStats(f.records)
}

type fakeSweeper struct{ runs int }

func (f *fakeSweeper) SweepPending(context.Context) service.SweepReport {
	f.runs++
	return service.SweepReport{Checked: 2, Alerted: 1, Marked: 1}
}

// --- Setup ---

const (
	verifyToken   = "mi_token"
	appSecret     = "app-secret"
	adminPassword = "s3creta"
)

type testEnv struct {
	router  http.Handler
	inbox   *fakeInbox
	sender  *fakeSender
	sweeper *fakeSweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{inbox: &fakeInbox{}, sender: &fakeSender{}, sweeper: &fakeSweeper{}}
	env.router = handler.NewRouter(handler.Dependencies{
		AppName: "PQRS Bot",
		Version: "test",
		Webhook: handler.WebhookConfig{VerifyToken: verifyToken, AppSecret: appSecret},
		Inbox:   env.inbox,
		Sender:  env.sender,
		Records: &fakeRecords{records: []domain.ComplaintRecord{{RecordID: "PQRS-TEC-1", DepartmentName: "Tecnología", DepartmentCode: "TEC"}}},
		Sweeper: env.sweeper,
		Auth:    service.NewAuthService(string(hash), "jwt-secret", time.Hour, zap.NewNop()),
		Metrics: observability.NewMetrics(),
		Logger:  zap.NewNop(),
	})
	return env
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	rec := e.do(http.MethodPost, "/v1/auth/token", `{"password":"`+adminPassword+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("token: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.AccessToken
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// --- Probes ---

func TestProbes(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/", "/health", "/healthz", "/readyz", "/ping", "/metrics", "/v1/metrics/bot"} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(http.MethodGet, path, "", nil)
			if rec.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rec.Code)
			}
		})
	}
}

func TestHealthz_UnhealthyProbe(t *testing.T) {
	router := handler.NewRouter(handler.Dependencies{
		AppName: "PQRS Bot",
		Probes: []handler.HealthProbe{
			{Name: "telegram", Check: func(context.Context) (string, string) { return "degraded", "circuit open" }},
			{Name: "store", Check: func(context.Context) (string, string) { return "unhealthy", "unreadable" }},
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var status domain.HealthStatus
	_ = json.Unmarshal(rec.Body.Bytes(), &status)
	if status.Status != "unhealthy" || len(status.Services) != 3 {
		t.Errorf("unexpected status %+v", status)
	}
}

// --- Webhook ---

func TestVerifyWebhook(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=mi_token&hub.challenge=12345", http.StatusOK},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=otro&hub.challenge=12345", http.StatusForbidden},
		{"missing mode", "hub.verify_token=mi_token&hub.challenge=12345", http.StatusBadRequest},
		{"missing token", "hub.mode=subscribe&hub.challenge=12345", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/webhook?"+tc.query, "", nil)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if tc.code == http.StatusOK && rec.Body.String() != "12345" {
				t.Errorf("expected challenge echo, got %q", rec.Body.String())
			}
		})
	}
}

const webhookBody = `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"messages":[{"from":"573001112233","id":"wamid.1","type":"text","text":{"body":"hola"}}]}}]}]}`

func TestReceiveWebhook_SignedPayload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/webhook", webhookBody, map[string]string{
		whatsapp.SignatureHeader: whatsapp.Sign(appSecret, []byte(webhookBody)),
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.inbox.calls() != 1 {
		t.Fatalf("expected payload to reach the inbox")
	}
	if msgs := env.inbox.payloads[0].Messages(); len(msgs) != 1 || msgs[0].Text != "hola" {
		t.Errorf("unexpected messages %+v", msgs)
	}
	if !strings.Contains(rec.Body.String(), `"success"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestReceiveWebhook_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header string
		status string
	}{
		{"bad signature", webhookBody, whatsapp.Sign("other", []byte(webhookBody)), "ignored"},
		{"missing signature", webhookBody, "", "ignored"},
		{"malformed json", `{"object":`, whatsapp.Sign(appSecret, []byte(`{"object":`)), "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(http.MethodPost, "/webhook", tc.body, map[string]string{whatsapp.SignatureHeader: tc.header})

			if rec.Code != http.StatusOK {
				t.Fatalf("provider must always get 200, got %d", rec.Code)
			}
			if env.inbox.calls() != 0 {
				t.Error("rejected payload must not be processed")
			}
			var body map[string]any
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			if body["status"] != tc.status {
				t.Errorf("expected status %q, got %v", tc.status, body["status"])
			}
		})
	}
}

func TestReceiveWebhook_NoSecretSkipsVerification(t *testing.T) {
	inbox := &fakeInbox{}
	router := handler.NewRouter(handler.Dependencies{Inbox: inbox, Logger: zap.NewNop()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(webhookBody)))

	if rec.Code != http.StatusOK || inbox.calls() != 1 {
		t.Fatalf("expected unsigned payload to be processed, code=%d calls=%d", rec.Code, inbox.calls())
	}
}

// --- Admin ---

func TestAdminRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/v1/pqrs"},
		{http.MethodGet, "/v1/pqrs/pending"},
		{http.MethodGet, "/v1/pqrs/stats"},
		{http.MethodPost, "/v1/pqrs/sweep"},
		{http.MethodPost, "/send-message"},
		{http.MethodPost, "/send-template"},
	} {
		t.Run(route.path, func(t *testing.T) {
			if rec := env.do(route.method, route.path, "{}", nil); rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 without token, got %d", rec.Code)
			}
			if rec := env.do(route.method, route.path, "{}", bearer("garbage")); rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 with bad token, got %d", rec.Code)
			}
		})
	}
}

func TestIssueToken_WrongPassword(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(http.MethodPost, "/v1/auth/token", `{"password":"nope"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/v1/auth/token", `not json`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRecords_WithToken(t *testing.T) {
	env := newTestEnv(t)
	auth := bearer(env.token(t))

	rec := env.do(http.MethodGet, "/v1/pqrs?page=1&page_size=10", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list domain.ListResponse[domain.ComplaintRecord]
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Total != 1 || list.PageSize != 10 || list.Data[0].RecordID != "PQRS-TEC-1" {
		t.Errorf("unexpected list %+v", list)
	}

	if rec := env.do(http.MethodGet, "/v1/pqrs?departamento=XYZ", "", auth); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown department, got %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/v1/pqrs/pending", "", auth)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("unexpected pending response %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/v1/pqrs/stats", "", auth)
	var stats domain.PQRSStats
	_ = json.Unmarshal(rec.Body.Bytes(), &stats)
	if rec.Code != http.StatusOK || stats.Total != 1 || stats.ByDepartment["Tecnología"] != 1 {
		t.Errorf("unexpected stats %d %+v", rec.Code, stats)
	}

	rec = env.do(http.MethodPost, "/v1/pqrs/sweep", "", auth)
	if rec.Code != http.StatusOK || env.sweeper.runs != 1 || !strings.Contains(rec.Body.String(), `"markedWithoutAlert":1`) {
		t.Errorf("unexpected sweep response %d %s", rec.Code, rec.Body.String())
	}
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	auth := bearer(env.token(t))

	rec := env.do(http.MethodPost, "/send-message", `{"to":"+57 300 111 2233","message":"hola"}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.sender.lastTo != "+57 300 111 2233" {
		t.Errorf("unexpected recipient %q", env.sender.lastTo)
	}

	if rec := env.do(http.MethodPost, "/send-message", `{"to":"","message":"hola"}`, auth); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing recipient, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/send-message", `{"to":"57300","message":"  "}`, auth); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty message, got %d", rec.Code)
	}

	env.sender.err = &domain.ErrExternalService{Service: "whatsapp", Err: errors.New("boom")}
	if rec := env.do(http.MethodPost, "/send-message", `{"to":"57300","message":"hola"}`, auth); rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 on provider failure, got %d", rec.Code)
	}

	env.sender.err = &domain.ErrExternalService{Service: "whatsapp", Err: &domain.ErrCircuitOpen{Service: "whatsapp"}}
	if rec := env.do(http.MethodPost, "/send-message", `{"to":"57300","message":"hola"}`, auth); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when circuit is open, got %d", rec.Code)
	}
}

func TestSendTemplate_DefaultsName(t *testing.T) {
	env := newTestEnv(t)
	auth := bearer(env.token(t))

	rec := env.do(http.MethodPost, "/send-template", `{"to":"573001112233"}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.sender.lastTemplate == nil || env.sender.lastTemplate.TemplateName != "hello_world" {
		t.Errorf("expected default template, got %+v", env.sender.lastTemplate)
	}
}

func TestAdminRoutes_NoAuthority(t *testing.T) {
	router := handler.NewRouter(handler.Dependencies{Logger: zap.NewNop()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pqrs", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
