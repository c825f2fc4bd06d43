package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrSnakeDoc/ipwatch/internal/domain"
	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ipwatch/internal/logger"
	"github.com/MrSnakeDoc/ipwatch/internal/monitor"
	"github.com/MrSnakeDoc/ipwatch/internal/notify"
	"github.com/MrSnakeDoc/ipwatch/internal/scheduler"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fixture struct {
	mon     *monitor.Monitor
	sampler *scheduler.Sampler
	deps    deps.Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mon, err := monitor.New(monitor.FetcherFunc(func(context.Context) (string, error) {
		return "", errors.New("unused")
	}), monitor.Options{HistoryCapacity: 10}, logger.NewNop())
	if err != nil {
		t.Fatalf("monitor.New() err = %v", err)
	}

	sampler, err := scheduler.New(scheduler.Options{Interval: 5 * time.Minute}, func(context.Context) {}, logger.NewNop())
	if err != nil {
		t.Fatalf("scheduler.New() err = %v", err)
	}
	t.Cleanup(sampler.Stop)

	return &fixture{
		mon:     mon,
		sampler: sampler,
		deps: deps.Deps{
			Logger:      logger.NewNop(),
			StartTime:   t0,
			Version:     "test",
			TimeNow:     func() time.Time { return t0.Add(time.Minute) },
			CORSOrigins: []string{"*"},
			Monitor:     mon,
			Sampler:     sampler,
			Notifier:    notify.NewDispatcher(4, time.Second, logger.NewNop()),
		},
	}
}

func (f *fixture) serve(t *testing.T, method, target string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	NewRouter(f.deps.Logger, f.deps).ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode body %q: %v", rec.Body.String(), err)
	}
}

func TestHome(t *testing.T) {
	f := newFixture(t)
	rec := f.serve(t, http.MethodGet, "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["message"] != "ipwatch is running" {
		t.Errorf("message = %q", body["message"])
	}
}

func TestCurrentIPBeforeFirstSample(t *testing.T) {
	f := newFixture(t)
	rec := f.serve(t, http.MethodGet, "/api/current-ip")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] != "No IP found" {
		t.Errorf("error = %q, want No IP found", body["error"])
	}
}

func TestCurrentIPAfterTransition(t *testing.T) {
	f := newFixture(t)
	f.mon.Apply(domain.Succeeded("203.0.113.1", t0))
	f.mon.Apply(domain.Succeeded("203.0.113.2", t0.Add(5*time.Minute)))

	rec := f.serve(t, http.MethodGet, "/api/current-ip")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		CurrentIP   string  `json:"current_ip"`
		PreviousIP  *string `json:"previous_ip"`
		LastUpdated string  `json:"last_updated"`
	}
	decode(t, rec, &body)
	if body.CurrentIP != "203.0.113.2" {
		t.Errorf("current_ip = %s", body.CurrentIP)
	}
	if body.PreviousIP == nil || *body.PreviousIP != "203.0.113.1" {
		t.Errorf("previous_ip = %v, want 203.0.113.1", body.PreviousIP)
	}
	if body.LastUpdated != "2026-03-01T12:05:00Z" {
		t.Errorf("last_updated = %s", body.LastUpdated)
	}
}

func TestCurrentIPKeepsChangeTimeOnUnchangedSamples(t *testing.T) {
	f := newFixture(t)
	f.mon.Apply(domain.Succeeded("203.0.113.1", t0))
	f.mon.Apply(domain.Succeeded("203.0.113.1", t0.Add(5*time.Minute)))
	f.mon.Apply(domain.Succeeded("203.0.113.1", t0.Add(10*time.Minute)))

	var body struct {
		LastUpdated string `json:"last_updated"`
	}
	decode(t, f.serve(t, http.MethodGet, "/api/current-ip"), &body)
	if body.LastUpdated != "2026-03-01T12:00:00Z" {
		t.Errorf("last_updated = %s, want time of the change 2026-03-01T12:00:00Z", body.LastUpdated)
	}
}

func TestCurrentIPWithoutPrevious(t *testing.T) {
	f := newFixture(t)
	f.mon.Apply(domain.Succeeded("203.0.113.1", t0))

	rec := f.serve(t, http.MethodGet, "/api/current-ip")
	var body map[string]any
	decode(t, rec, &body)
	if v, ok := body["previous_ip"]; !ok || v != nil {
		t.Errorf("previous_ip = %v, want explicit null", v)
	}
}

func TestCurrentStaleness(t *testing.T) {
	f := newFixture(t)
	f.mon.Apply(domain.Succeeded("203.0.113.1", t0))

	var body struct {
		Value        string  `json:"value"`
		Stale        bool    `json:"stale"`
		AgeSeconds   float64 `json:"age_seconds"`
		PollInterval string  `json:"poll_interval"`
		LastError    string  `json:"last_error"`
	}
	decode(t, f.serve(t, http.MethodGet, "/api/current"), &body)
	if body.Value != "203.0.113.1" || body.Stale || body.AgeSeconds != 60 || body.PollInterval != "5m0s" {
		t.Errorf("unexpected body %+v", body)
	}

	f.mon.Apply(domain.Failed(context.DeadlineExceeded, t0.Add(time.Minute)))
	decode(t, f.serve(t, http.MethodGet, "/api/current"), &body)
	if !body.Stale || body.LastError != string(domain.ErrKindTimeout) {
		t.Errorf("after failure: stale = %v, last_error = %s", body.Stale, body.LastError)
	}
	if body.Value != "203.0.113.1" {
		t.Errorf("value = %s, last known value must be kept", body.Value)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	for i, v := range []string{"A", "B", "C"} {
		f.mon.Apply(domain.Succeeded(v, t0.Add(time.Duration(i)*time.Minute)))
	}

	var body struct {
		Order    string                `json:"order"`
		Capacity int                   `json:"capacity"`
		Count    int                   `json:"count"`
		Entries  []domain.HistoryEntry `json:"entries"`
	}

	decode(t, f.serve(t, http.MethodGet, "/api/history"), &body)
	if body.Order != "newest" || body.Capacity != 10 || body.Count != 3 || body.Entries[0].Value != "C" {
		t.Errorf("default history = %+v", body)
	}

	decode(t, f.serve(t, http.MethodGet, "/api/history?order=oldest&limit=2"), &body)
	if body.Count != 2 || body.Entries[0].Value != "A" || body.Entries[1].Value != "B" {
		t.Errorf("oldest/limit history = %+v", body)
	}

	for _, target := range []string{"/api/history?order=sideways", "/api/history?limit=0", "/api/history?limit=x"} {
		if rec := f.serve(t, http.MethodGet, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, rec.Code)
		}
	}
}

func TestHistoryEmpty(t *testing.T) {
	f := newFixture(t)
	rec := f.serve(t, http.MethodGet, "/api/history")

	var body map[string]any
	decode(t, rec, &body)
	entries, ok := body["entries"].([]any)
	if !ok || len(entries) != 0 {
		t.Errorf("entries = %v, want empty array", body["entries"])
	}
}

func TestIPHistory(t *testing.T) {
	f := newFixture(t)
	f.mon.Apply(domain.Succeeded("A", t0))
	f.mon.Apply(domain.Succeeded("A", t0.Add(time.Minute)))
	f.mon.Apply(domain.Succeeded("B", t0.Add(2*time.Minute)))

	var body []struct {
		IP        string `json:"ip"`
		Timestamp string `json:"timestamp"`
	}
	decode(t, f.serve(t, http.MethodGet, "/api/ip-history"), &body)
	if len(body) != 2 {
		t.Fatalf("len = %d, want 2 transitions", len(body))
	}
	if body[0].IP != "B" || body[0].Timestamp != "2026-03-01T12:02:00Z" || body[1].IP != "A" {
		t.Errorf("ip-history = %+v", body)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)

	if rec := f.serve(t, http.MethodPost, "/api/refresh"); rec.Code != http.StatusAccepted {
		t.Fatalf("first refresh status = %d, want 202", rec.Code)
	}
	// sampler loop is not running, so the first request stays pending
	if rec := f.serve(t, http.MethodPost, "/api/refresh"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second refresh status = %d, want 429", rec.Code)
	}
	if rec := f.serve(t, http.MethodGet, "/api/refresh"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET refresh status = %d, want 405", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	f := newFixture(t)

	if rec := f.serve(t, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before first tick = %d, want 503", rec.Code)
	}

	f.mon.Apply(domain.Failed(errors.New("boom"), t0))
	rec := f.serve(t, http.MethodGet, "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz after first tick = %d, want 200", rec.Code)
	}
	var body map[string]bool
	decode(t, rec, &body)
	if !body["ready"] || body["has_value"] {
		t.Errorf("readyz body = %v", body)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	var body struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Version       string  `json:"version"`
	}
	decode(t, f.serve(t, http.MethodGet, "/healthz"), &body)
	if body.Status != "ok" || body.UptimeSeconds != 60 || body.Version != "test" {
		t.Errorf("healthz = %+v", body)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	var body struct {
		State      string `json:"state"`
		Components map[string]struct {
			OK   bool   `json:"ok"`
			Mode string `json:"mode"`
		} `json:"components"`
	}

	decode(t, f.serve(t, http.MethodGet, "/api/status"), &body)
	if body.State != "critical" || body.Components["sampler"].OK {
		t.Errorf("stopped sampler status = %+v", body)
	}

	if err := f.sampler.Start(context.Background()); err != nil {
		t.Fatalf("Start() err = %v", err)
	}
	decode(t, f.serve(t, http.MethodGet, "/api/status"), &body)
	if body.State != "operational" || body.Components["redis"].Mode != "disabled" {
		t.Errorf("running sampler status = %+v", body)
	}

	f.deps.Redis = fakePinger{err: errors.New("down")}
	decode(t, f.serve(t, http.MethodGet, "/api/status"), &body)
	if body.State != "degraded" || body.Components["redis"].OK {
		t.Errorf("redis down status = %+v", body)
	}
}

func TestOperationalRoutesRestricted(t *testing.T) {
	f := newFixture(t)
	f.deps.AllowedCIDRS = []string{"10.0.0.0/8"}
	f.deps.AllowedHosts = []string{"ip.example.com"}

	outside := func(r *http.Request) { r.RemoteAddr = "203.0.113.9:4444" }
	inside := func(r *http.Request) {
		r.RemoteAddr = "10.1.1.1:4444"
		r.Host = "ip.example.com:8080"
	}
	wrongHost := func(r *http.Request) {
		r.RemoteAddr = "10.1.1.1:4444"
		r.Host = "evil.example.net"
	}

	if rec := f.serve(t, http.MethodGet, "/api/status", outside); rec.Code != http.StatusForbidden {
		t.Errorf("status from outside = %d, want 403", rec.Code)
	}
	if rec := f.serve(t, http.MethodGet, "/api/status", wrongHost); rec.Code != http.StatusForbidden {
		t.Errorf("status with wrong host = %d, want 403", rec.Code)
	}
	if rec := f.serve(t, http.MethodGet, "/api/status", inside); rec.Code != http.StatusOK {
		t.Errorf("status from inside = %d, want 200", rec.Code)
	}
	if rec := f.serve(t, http.MethodGet, "/readyz", outside); rec.Code != http.StatusForbidden {
		t.Errorf("readyz from outside = %d, want 403", rec.Code)
	}
	// public read routes stay open
	if rec := f.serve(t, http.MethodGet, "/api/history", outside); rec.Code != http.StatusOK {
		t.Errorf("history from outside = %d, want 200", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	f.deps.CORSOrigins = []string{"https://dash.example.com"}

	rec := f.serve(t, http.MethodOptions, "/api/current-ip", func(r *http.Request) {
		r.Header.Set("Origin", "https://dash.example.com")
		r.Header.Set("Access-Control-Request-Method", "GET")
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	rec = f.serve(t, http.MethodGet, "/api/history", func(r *http.Request) {
		r.Header.Set("Origin", "https://other.example.com")
	})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unknown origin = %q, want none", got)
	}
}

func TestAPIRateLimit(t *testing.T) {
	f := newFixture(t)
	f.deps.RateBurst = 2
	f.deps.RatePerMin = 1

	// one router so the limiter state is shared between requests
	router := NewRouter(f.deps.Logger, f.deps)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	// root routes are not rate limited
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("home request %d = %d, want 200", i, rec.Code)
		}
	}
}
