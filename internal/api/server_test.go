package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-cloud/internal/accessory"
	"github.com/nerrad567/gray-logic-cloud/internal/audit"
	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/devicesync"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cloud/internal/platform"
)

const testSecret = "test-secret-0123456789abcdef0123"

// ============================================================================
// Test doubles
// ============================================================================

type fakeRemote struct {
	mu         sync.Mutex
	health     string
	statusErr  error
	commandErr error
	commands   []cloud.Command
}

func (f *fakeRemote) GetDeviceStatus(context.Context, string) (cloud.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return cloud.DeviceStatus{}, f.statusErr
	}
	return cloud.DeviceStatus{Components: map[string]cloud.ComponentStatus{
		"main": {"switch": {"switch": {Value: "on"}}},
	}}, nil
}

func (f *fakeRemote) GetDeviceHealth(_ context.Context, id string) (cloud.Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.health
	if state == "" {
		state = cloud.HealthOnline
	}
	return cloud.Health{DeviceID: id, State: state}, nil
}

func (f *fakeRemote) ExecuteCommands(_ context.Context, _ string, cmds []cloud.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commandErr != nil {
		return f.commandErr
	}
	f.commands = append(f.commands, cmds...)
	return nil
}

type fakePlatform struct {
	mu          sync.Mutex
	accessories map[string]*accessory.Accessory
	remotes     map[string]*fakeRemote

	discoverCalls int
	discoverGate  chan struct{}
	discoverErr   error

	lastActor audit.Actor
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	p := &fakePlatform{
		accessories: make(map[string]*accessory.Accessory),
		remotes:     make(map[string]*fakeRemote),
	}
	p.add(t, "d-1", "Kitchen Light")
	p.add(t, "d-2", "Hall Light")
	return p
}

func (p *fakePlatform) add(t *testing.T, id, name string) {
	t.Helper()
	remote := &fakeRemote{}
	engine := devicesync.New(id, name, remote, devicesync.Options{PushEnabled: true})
	acc := accessory.New(engine, nil)
	acc.AddComponent("main", []string{"switch"})
	t.Cleanup(acc.Close)

	p.accessories[id] = acc
	p.remotes[id] = remote
}

func (p *fakePlatform) Accessory(id string) (*accessory.Accessory, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accessories[id]
	return acc, ok
}

func (p *fakePlatform) Accessories() []*accessory.Accessory {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*accessory.Accessory, 0, len(p.accessories))
	for _, acc := range p.accessories {
		out = append(out, acc)
	}
	slices.SortFunc(out, func(a, b *accessory.Accessory) int {
		return strings.Compare(a.DeviceID(), b.DeviceID())
	})
	return out
}

func (p *fakePlatform) Counts() (managed, online, offline int) {
	for _, acc := range p.Accessories() {
		managed++
		if acc.IsOnline() {
			online++
		} else {
			offline++
		}
	}
	return managed, online, offline
}

func (p *fakePlatform) HandleCommand(ctx context.Context, id string, cmd accessory.Command) error {
	p.mu.Lock()
	p.lastActor = audit.ActorFrom(ctx)
	p.mu.Unlock()
	acc, ok := p.Accessory(id)
	if !ok {
		return fmt.Errorf("%w: %s", platform.ErrUnknownDevice, id)
	}
	return acc.HandleCommand(ctx, cmd)
}

func (p *fakePlatform) Discover(ctx context.Context) (platform.Result, error) {
	p.mu.Lock()
	p.discoverCalls++
	p.lastActor = audit.ActorFrom(ctx)
	gate := p.discoverGate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return platform.Result{Registered: 1, Restored: 2}, p.discoverErr
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

// newTestServer returns a running httptest server for s's router.
func newTestServer(t *testing.T, plat Platform, opts ...func(*Deps)) (*Server, *httptest.Server) {
	t.Helper()
	deps := Deps{
		Config:   config.APIConfig{Auth: config.APIAuthConfig{JWTSecret: testSecret}},
		Logger:   testLogger(),
		Platform: plat,
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.hub = NewHub(config.WebSocketConfig{}, s.logger)
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.buildRouter(ctx))
	t.Cleanup(func() {
		ts.Close()
		cancel()
		s.bgWG.Wait()
	})
	return s, ts
}

// issueToken signs an HS256 token the way the upstream issuer does.
func issueToken(secret, subject string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func token(t *testing.T, role Role) string {
	t.Helper()
	tok, err := issueToken(testSecret, "tester", role, time.Hour)
	if err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	return tok
}

func do(t *testing.T, method, url, tok, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, data
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Platform: &fakePlatform{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without platform should fail")
	}
}

func TestServer_StartClose(t *testing.T) {
	s, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0, Auth: config.APIAuthConfig{JWTSecret: testSecret}},
		Logger:   testLogger(),
		Platform: newFakePlatform(t),
		Version:  "1.0.0",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, body := do(t, http.MethodGet, "http://"+s.Addr()+"/api/v1/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, body %s", resp.StatusCode, body)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestServer_CloseWithoutStart(t *testing.T) {
	s, err := New(Deps{Logger: testLogger(), Platform: &fakePlatform{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// ============================================================================
// Authentication
// ============================================================================

func TestAuth(t *testing.T) {
	_, ts := newTestServer(t, newFakePlatform(t))

	expired, err := issueToken(testSecret, "tester", RoleAdmin, -time.Minute)
	if err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	wrongKey, err := issueToken("another-secret-0123456789abcdef", "tester", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	badRole, err := issueToken(testSecret, "tester", Role("root"), time.Hour)
	if err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong key", wrongKey, http.StatusUnauthorized},
		{"unknown role", badRole, http.StatusUnauthorized},
		{"viewer", token(t, RoleViewer), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/devices", tt.token, "")
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.status, body)
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	tok := token(t, RoleOperator)
	claims, err := ParseToken(tok, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "tester" || claims.Role != RoleOperator || claims.ID == "" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := ParseToken(tok, "wrong"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken(wrong secret) error = %v, want ErrTokenInvalid", err)
	}
}

// ============================================================================
// Endpoints
// ============================================================================

func TestHandleHealth(t *testing.T) {
	_, ts := newTestServer(t, newFakePlatform(t))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got struct {
		Status  string         `json:"status"`
		Version string         `json:"version"`
		Devices map[string]int `json:"devices"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Status != "ok" || got.Version != "test" || got.Devices["managed"] != 2 || got.Devices["online"] != 2 {
		t.Errorf("health = %+v", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestHandleListDevices(t *testing.T) {
	plat := newFakePlatform(t)
	plat.remotes["d-2"].health = cloud.HealthOffline
	acc, _ := plat.Accessory("d-2")
	acc.Engine().CheckHealth(context.Background())

	_, ts := newTestServer(t, plat)
	tok := token(t, RoleViewer)

	tests := []struct {
		query   string
		status  int
		wantIDs []string
	}{
		{"", http.StatusOK, []string{"d-1", "d-2"}},
		{"?online=true", http.StatusOK, []string{"d-1"}},
		{"?online=false", http.StatusOK, []string{"d-2"}},
		{"?online=maybe", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/devices"+tt.query, tok, "")
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var got struct {
				Devices []deviceResponse `json:"devices"`
				Count   int              `json:"count"`
			}
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			var ids []string
			for _, d := range got.Devices {
				ids = append(ids, d.DeviceID)
			}
			if !slices.Equal(ids, tt.wantIDs) || got.Count != len(tt.wantIDs) {
				t.Errorf("ids = %v (count %d), want %v", ids, got.Count, tt.wantIDs)
			}
		})
	}
}

func TestHandleGetDevice(t *testing.T) {
	_, ts := newTestServer(t, newFakePlatform(t))
	tok := token(t, RoleViewer)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/devices/d-1", tok, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got deviceResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Name != "Kitchen Light" || !got.Online {
		t.Errorf("device = %+v", got)
	}
	if len(got.Services) != 1 || got.Services[0].Kind != "switch" || got.Services[0].ComponentID != "main" {
		t.Errorf("services = %+v, want one switch on main", got.Services)
	}

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/devices/nope", tok, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleGetDeviceState(t *testing.T) {
	plat := newFakePlatform(t)
	plat.remotes["d-2"].statusErr = cloud.ErrRequestFailed
	_, ts := newTestServer(t, plat)
	tok := token(t, RoleViewer)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/devices/d-1/state", tok, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var got stateResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if v, ok := got.Components["main"].Attribute("switch", "switch"); !ok || v != "on" {
		t.Errorf("main switch.switch = %v (%v), want on", v, ok)
	}

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/devices/d-2/state", tok, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("failing status read = %d, want 503", resp.StatusCode)
	}
}

func TestHandleDeviceCommand(t *testing.T) {
	plat := newFakePlatform(t)
	plat.remotes["d-2"].commandErr = cloud.ErrRequestFailed
	_, ts := newTestServer(t, plat)

	tests := []struct {
		name   string
		role   Role
		device string
		body   string
		status int
	}{
		{"sent", RoleOperator, "d-1", `{"capability":"switch","command":"on"}`, http.StatusAccepted},
		{"viewer forbidden", RoleViewer, "d-1", `{"capability":"switch","command":"on"}`, http.StatusForbidden},
		{"invalid json", RoleAdmin, "d-1", `{`, http.StatusBadRequest},
		{"missing command", RoleAdmin, "d-1", `{"capability":"switch"}`, http.StatusBadRequest},
		{"no service", RoleAdmin, "d-1", `{"capability":"lock","command":"lock"}`, http.StatusBadRequest},
		{"unknown device", RoleAdmin, "d-9", `{"capability":"switch","command":"on"}`, http.StatusNotFound},
		{"cloud failure", RoleAdmin, "d-2", `{"capability":"switch","command":"on"}`, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := ts.URL + "/api/v1/devices/" + tt.device + "/commands"
			resp, body := do(t, http.MethodPost, url, token(t, tt.role), tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.status, body)
			}
		})
	}

	remote := plat.remotes["d-1"]
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.commands) != 1 || remote.commands[0].Command != "on" || remote.commands[0].Component != "main" {
		t.Errorf("commands = %+v, want one main/switch/on", remote.commands)
	}
}

func TestHandleDeviceCommand_Offline(t *testing.T) {
	plat := newFakePlatform(t)
	plat.remotes["d-1"].health = cloud.HealthOffline
	acc, _ := plat.Accessory("d-1")
	acc.Engine().CheckHealth(context.Background())
	_, ts := newTestServer(t, plat)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/devices/d-1/commands", token(t, RoleAdmin),
		`{"capability":"switch","command":"on"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHandleDiscovery(t *testing.T) {
	plat := newFakePlatform(t)
	plat.discoverGate = make(chan struct{})
	_, ts := newTestServer(t, plat)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/discovery", token(t, RoleOperator), "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("operator status = %d, want 403", resp.StatusCode)
	}

	admin := token(t, RoleAdmin)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/discovery", admin, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first run status = %d, want 202", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/discovery", admin, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("overlapping run status = %d, want 409", resp.StatusCode)
	}

	close(plat.discoverGate)

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/discovery", admin, "")
		if resp.StatusCode == http.StatusAccepted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("discovery flag never cleared")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, newFakePlatform(t), func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	})

	tests := []struct {
		origin string
		want   string
	}{
		{"http://panel.local", "http://panel.local"},
		{"http://evil.example", ""},
	}

	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/devices", nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Origin", tt.origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", resp.StatusCode)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: Allow-Origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}
