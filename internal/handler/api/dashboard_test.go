package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"OptionPulse/internal/domain/models"
	"OptionPulse/internal/service/ws"
	"OptionPulse/internal/services/analytics"
	"OptionPulse/internal/usecase"
	"OptionPulse/pkg/logger"
)

type memCreds struct {
	mu    sync.Mutex
	creds map[string]*models.Credential
}

func newMemCreds() *memCreds { return &memCreds{creds: make(map[string]*models.Credential)} }

func (s *memCreds) Get(_ context.Context, username string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds[username], nil
}

func (s *memCreds) Put(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.Username] = cred
	return nil
}

func (s *memCreds) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, username)
	return nil
}

func (s *memCreds) Users(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.creds))
	for u := range s.creds {
		users = append(users, u)
	}
	return users, nil
}

type memSettings struct {
	mu   sync.Mutex
	rows map[string]*models.Settings
}

func newMemSettings() *memSettings { return &memSettings{rows: make(map[string]*models.Settings)} }

func (s *memSettings) Get(_ context.Context, username string) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[username], nil
}

func (s *memSettings) Put(_ context.Context, row *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.rows[row.Username] = &cp
	return nil
}

type memBaselines struct{}

func (memBaselines) Get(context.Context, string, string) (*models.BaselineSnapshot, error) {
	return nil, nil
}
func (memBaselines) Put(context.Context, *models.BaselineSnapshot) error { return nil }
func (memBaselines) Delete(context.Context, string, string) error       { return nil }

type memSignalLog struct {
	mu     sync.Mutex
	events []*models.SignalEvent
}

func (l *memSignalLog) Append(_ context.Context, ev *models.SignalEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *memSignalLog) List(_ context.Context, username string, from, to time.Time, _ int) ([]*models.SignalEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.SignalEvent
	for _, ev := range l.events {
		if ev.Username == username && !ev.Timestamp.Before(from) && !ev.Timestamp.After(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (l *memSignalLog) Health(context.Context) error { return nil }
func (l *memSignalLog) Close() error                 { return nil }

type memSnapLog struct {
	mu    sync.Mutex
	snaps []*models.PublishedSnapshot
}

func (l *memSnapLog) Init(context.Context) error { return nil }

func (l *memSnapLog) Store(ctx context.Context, snap *models.PublishedSnapshot) error {
	return l.StoreBatch(ctx, []*models.PublishedSnapshot{snap})
}

func (l *memSnapLog) StoreBatch(_ context.Context, snaps []*models.PublishedSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, snaps...)
	return nil
}

func (l *memSnapLog) Query(_ context.Context, username string, _, _ time.Time, _ int) ([]*models.PublishedSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.PublishedSnapshot
	for _, snap := range l.snaps {
		if snap.Username == username {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (l *memSnapLog) Health(context.Context) error { return nil }
func (l *memSnapLog) Close() error                 { return nil }

func apiLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type handlerFixture struct {
	echo      *echo.Echo
	handler   *DashboardHandler
	orch      *usecase.Orchestrator
	creds     *memCreds
	settings  *memSettings
	signalLog *memSignalLog
	snapLog   *memSnapLog
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	log := apiLogger(t)

	creds := newMemCreds()
	settings := newMemSettings()
	signalLog := &memSignalLog{}
	snapLog := &memSnapLog{}
	hub := ws.NewHub(log)
	t.Cleanup(hub.Close)

	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Logger:     log,
		Creds:      creds,
		Baselines:  memBaselines{},
		Settings:   settings,
		SignalLog:  signalLog,
		Broadcast:  hub,
		Aggregator: analytics.NewAggregator(),
		Volatility: analytics.NewVolEngine(),
		Direction:  analytics.NewDirEngine(),
		Signals:    analytics.NewSignalEngine(),
	})

	h := NewDashboardHandler(log, orch, creds, settings, signalLog, snapLog, hub)
	e := echo.New()
	h.RegisterRoutes(e)

	return &handlerFixture{
		echo:      e,
		handler:   h,
		orch:      orch,
		creds:     creds,
		settings:  settings,
		signalLog: signalLog,
		snapLog:   snapLog,
	}
}

func (f *handlerFixture) do(method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

// envelope mirrors the standard response wrapper; the HTTP status is always
// 200 and the logical status travels in the body.
type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("http status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func TestDashboardWithoutSessionReturnsWaitingMessage(t *testing.T) {
	f := newHandlerFixture(t)

	env := decodeEnvelope(t, f.do(http.MethodGet, "/api/dashboard", ""))
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d", env.Status)
	}
	if !strings.Contains(string(env.Data), "Waiting for login") {
		t.Fatalf("data = %s", env.Data)
	}
}

func TestStoreTokenSeedsCredentialAndSettings(t *testing.T) {
	f := newHandlerFixture(t)

	env := decodeEnvelope(t, f.do(http.MethodPost, "/api/auth/token", `{"username":"alice","access_token":"tok"}`))
	if env.Status != http.StatusCreated {
		t.Fatalf("status = %d", env.Status)
	}

	cred, _ := f.creds.Get(context.Background(), "alice")
	if cred == nil || cred.AccessToken != "tok" || cred.IssuedAt.IsZero() {
		t.Fatalf("credential = %+v", cred)
	}

	s, _ := f.settings.Get(context.Background(), "alice")
	if s == nil || s.DeltaThreshold != 0.20 || s.ConsecutiveConfirmations != 2 {
		t.Fatalf("seeded settings = %+v", s)
	}
}

func TestStoreTokenRejectsMissingFields(t *testing.T) {
	f := newHandlerFixture(t)

	env := decodeEnvelope(t, f.do(http.MethodPost, "/api/auth/token", `{"username":"alice"}`))
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d", env.Status)
	}
	if cred, _ := f.creds.Get(context.Background(), "alice"); cred != nil {
		t.Fatal("invalid request must not store a credential")
	}
}

func TestRevokeTokenDeletesCredential(t *testing.T) {
	f := newHandlerFixture(t)
	_ = f.creds.Put(context.Background(), &models.Credential{Username: "alice", AccessToken: "tok", IssuedAt: time.Now()})

	rec := f.do(http.MethodDelete, "/api/auth/alice", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if cred, _ := f.creds.Get(context.Background(), "alice"); cred != nil {
		t.Fatal("credential survived revoke")
	}
}

func TestUpdateSettingsAppliesPartialPatch(t *testing.T) {
	f := newHandlerFixture(t)

	env := decodeEnvelope(t, f.do(http.MethodPut, "/api/settings/alice", `{"delta_threshold":0.35}`))
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d", env.Status)
	}

	s, _ := f.settings.Get(context.Background(), "alice")
	if s == nil {
		t.Fatal("settings row not stored")
	}
	if s.DeltaThreshold != 0.35 {
		t.Fatalf("delta threshold = %v", s.DeltaThreshold)
	}
	// Untouched knobs keep their defaults.
	if s.VegaThreshold != 0.10 || s.ConsecutiveConfirmations != 2 {
		t.Fatalf("defaults lost: %+v", s)
	}
}

func TestUpdateSettingsRejectsNegativeThreshold(t *testing.T) {
	f := newHandlerFixture(t)

	env := decodeEnvelope(t, f.do(http.MethodPut, "/api/settings/alice", `{"delta_threshold":-1}`))
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d", env.Status)
	}
	if s, _ := f.settings.Get(context.Background(), "alice"); s != nil {
		t.Fatal("invalid patch must not be stored")
	}
}

func TestGetSettingsMaterializesDefaults(t *testing.T) {
	f := newHandlerFixture(t)

	env := decodeEnvelope(t, f.do(http.MethodGet, "/api/settings/bob", ""))
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d", env.Status)
	}

	var s models.Settings
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Username != "bob" || s.DeltaThreshold != 0.20 {
		t.Fatalf("settings = %+v", s)
	}
}

func TestSignalLogsFiltersByUser(t *testing.T) {
	f := newHandlerFixture(t)
	now := time.Now()

	_ = f.signalLog.Append(context.Background(), &models.SignalEvent{
		Timestamp: now, Username: "alice", Position: models.LongCall, StrikePrice: 24500,
	})
	_ = f.signalLog.Append(context.Background(), &models.SignalEvent{
		Timestamp: now, Username: "bob", Position: models.LongPut, StrikePrice: 24400,
	})

	env := decodeEnvelope(t, f.do(http.MethodGet, "/api/logs/alice", ""))
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d", env.Status)
	}
	var list struct {
		Rows  []models.SignalEvent `json:"rows"`
		Total int64                `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || len(list.Rows) != 1 || list.Rows[0].Position != models.LongCall {
		t.Fatalf("logs = %+v", list)
	}
}

func TestPollingToggleEndpoints(t *testing.T) {
	f := newHandlerFixture(t)

	env := decodeEnvelope(t, f.do(http.MethodPost, "/api/admin/polling/disable", ""))
	if env.Status != http.StatusOK {
		t.Fatalf("disable status = %d", env.Status)
	}
	if f.orch.Enabled() {
		t.Fatal("polling still enabled")
	}

	env = decodeEnvelope(t, f.do(http.MethodPost, "/api/admin/polling/enable", ""))
	if env.Status != http.StatusOK {
		t.Fatalf("enable status = %d", env.Status)
	}
	if !f.orch.Enabled() {
		t.Fatal("polling still disabled")
	}
}

func TestResetBaselineWithoutSession(t *testing.T) {
	f := newHandlerFixture(t)

	env := decodeEnvelope(t, f.do(http.MethodPost, "/api/admin/reset-baseline", ""))
	if env.Status != http.StatusNotFound {
		t.Fatalf("status = %d", env.Status)
	}
}

func TestExportDataProducesCSV(t *testing.T) {
	f := newHandlerFixture(t)
	now := time.Now()

	rv := 1.2
	_ = f.snapLog.Store(context.Background(), &models.PublishedSnapshot{
		Sequence:        3,
		PollTimestamp:   now,
		Timestamp:       now,
		Username:        "alice",
		UnderlyingPrice: 24512.4,
		OpenPrice:       24480,
		ATMStrike:       24500,
		ExpiryDate:      "2026-09-01",
		Aggregated: &models.AggregatedGreeks{
			Call: models.GreekSide{Delta: 5.5, Vega: 1.1},
		},
		Volatility: &models.VolatilityMetrics{RVCurrent: 0.8, RVRatio: &rv, State: models.VolExpansion},
		Direction:  &models.DirectionMetrics{Gap: 30, DirectionalState: models.DirectionalBull},
		Signals:    []models.SignalResult{{Position: models.LongCall, Fired: true}},
	})

	rec := f.do(http.MethodGet, "/api/export-data?username=alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.Contains(ct, "text/csv") {
		t.Fatalf("content type = %s", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "poll_ts,seq,underlying") {
		t.Fatalf("header = %s", lines[0])
	}
	row := lines[1]
	for _, want := range []string{",3,", "24512.4", "EXPANSION", "DIRECTIONAL_BULL", "Long Call"} {
		if !strings.Contains(row, want) {
			t.Fatalf("row missing %q: %s", want, row)
		}
	}
}

func TestExportDataRequiresUser(t *testing.T) {
	f := newHandlerFixture(t)

	env := decodeEnvelope(t, f.do(http.MethodGet, "/api/export-data", ""))
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d", env.Status)
	}
}

func TestHealthCheckReportsState(t *testing.T) {
	f := newHandlerFixture(t)
	f.orch.Activate(&models.Credential{Username: "alice", AccessToken: "tok", IssuedAt: time.Now()}, time.Now())

	env := decodeEnvelope(t, f.do(http.MethodGet, "/health-check", ""))
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d", env.Status)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health["status"] != "ok" || health["current_user"] != "alice" {
		t.Fatalf("health = %+v", health)
	}
}
