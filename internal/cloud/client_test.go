package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
)

// recordedRequest captures what the fake API received.
type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   []byte
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	mux      *http.ServeMux
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{mux: http.NewServeMux()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		f.mu.Unlock()
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(config.CloudConfig{
		BaseURL:        srv.URL + "/v1",
		AccessToken:    "secret-token",
		RequestTimeout: 2,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.CloudConfig
	}{
		{"empty token", config.CloudConfig{BaseURL: "https://api.example.com/v1/"}},
		{"relative url", config.CloudConfig{BaseURL: "v1/", AccessToken: "t"}},
		{"empty url", config.CloudConfig{AccessToken: "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestListDevices_FollowsPagination(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.mux.HandleFunc("/v1/devices", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			writeJSON(w, map[string]any{
				"items": []Device{{DeviceID: "d2", Label: "Kitchen Light"}},
			})
			return
		}
		writeJSON(w, map[string]any{
			"items": []Device{{
				DeviceID: "d1",
				Label:    "Front Door",
				Components: []Component{{
					ID:           "main",
					Capabilities: []CapabilityRef{{ID: "lock"}, {ID: "battery"}},
				}},
			}},
			"_links": map[string]any{"next": map[string]string{"href": srv.URL + "/v1/devices?page=1"}},
		})
	})

	c := newTestClient(t, srv)
	devices, err := c.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("ListDevices() returned %d devices, want 2", len(devices))
	}
	if got := devices[0].Components[0].CapabilityIDs(); len(got) != 2 || got[0] != "lock" || got[1] != "battery" {
		t.Errorf("CapabilityIDs() = %v, want [lock battery]", got)
	}

	for _, req := range f.Requests() {
		if req.Auth != "Bearer secret-token" {
			t.Errorf("Authorization = %q, want bearer token", req.Auth)
		}
	}
}

func TestListDevices_NextLinkShapes(t *testing.T) {
	tests := []struct {
		name  string
		links func(next string) string
		want  int
	}{
		{"href object", func(next string) string { return `{"next":{"href":"` + next + `"}}` }, 2},
		{"bare string", func(next string) string { return `{"next":"` + next + `"}` }, 2},
		{"null next", func(string) string { return `{"next":null}` }, 1},
		{"no next", func(string) string { return `{}` }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFakeAPI(t)
			f.mux.HandleFunc("/v1/devices", func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("page") == "1" {
					_, _ = io.WriteString(w, `{"items":[{"deviceId":"d2"}]}`)
					return
				}
				_, _ = io.WriteString(w, `{"items":[{"deviceId":"d1"}],"_links":`+tt.links(srv.URL+"/v1/devices?page=1")+`}`)
			})

			c := newTestClient(t, srv)
			devices, err := c.ListDevices(context.Background())
			if err != nil {
				t.Fatalf("ListDevices() error = %v", err)
			}
			if len(devices) != tt.want {
				t.Errorf("ListDevices() returned %d devices, want %d", len(devices), tt.want)
			}
		})
	}
}

func TestListDevices_IgnoresForeignNextLink(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.mux.HandleFunc("/v1/devices", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"items":  []Device{{DeviceID: "d1"}},
			"_links": map[string]string{"next": "https://elsewhere.example.com/devices?page=1"},
		})
	})

	c := newTestClient(t, srv)
	devices, err := c.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("ListDevices() returned %d devices, want 1", len(devices))
	}
	if n := len(f.Requests()); n != 1 {
		t.Errorf("made %d requests, want 1", n)
	}
}

func TestGetDeviceStatus(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.mux.HandleFunc("/v1/devices/abc/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"components":{"main":{"switch":{"switch":{"value":"on","timestamp":"2026-01-01T00:00:00Z"}},"switchLevel":{"level":{"value":42,"unit":"%"}}}}}`)
	})

	c := newTestClient(t, srv)
	status, err := c.GetDeviceStatus(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetDeviceStatus() error = %v", err)
	}

	main, ok := status.Components["main"]
	if !ok {
		t.Fatal("status missing main component")
	}
	if v, ok := main.Attribute("switch", "switch"); !ok || v != "on" {
		t.Errorf("switch.switch = %v (%v), want on", v, ok)
	}
	if v, ok := main.Attribute("switchLevel", "level"); !ok || v != float64(42) {
		t.Errorf("switchLevel.level = %v (%v), want 42", v, ok)
	}
	if _, ok := main.Attribute("switchLevel", "missing"); ok {
		t.Error("Attribute() found a missing attribute")
	}
}

func TestGetDeviceHealth(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.mux.HandleFunc("/v1/devices/abc/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, Health{DeviceID: "abc", State: HealthOnline})
	})

	c := newTestClient(t, srv)
	health, err := c.GetDeviceHealth(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetDeviceHealth() error = %v", err)
	}
	if !health.Online() {
		t.Errorf("Online() = false for state %q", health.State)
	}
}

func TestExecuteCommands_SendsArrayBody(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.mux.HandleFunc("/v1/devices/abc/commands", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"results":[{"status":"ACCEPTED"}]}`)
	})

	c := newTestClient(t, srv)
	err := c.ExecuteCommands(context.Background(), "abc", []Command{
		{Capability: "switchLevel", Command: "setLevel", Arguments: []any{50}},
	})
	if err != nil {
		t.Fatalf("ExecuteCommands() error = %v", err)
	}

	reqs := f.Requests()
	if len(reqs) != 1 || reqs[0].Method != http.MethodPost {
		t.Fatalf("requests = %+v, want one POST", reqs)
	}

	var body []map[string]any
	if err := json.Unmarshal(reqs[0].Body, &body); err != nil {
		t.Fatalf("body is not a JSON array: %v (%s)", err, reqs[0].Body)
	}
	if len(body) != 1 {
		t.Fatalf("body has %d elements, want 1", len(body))
	}
	if body[0]["capability"] != "switchLevel" || body[0]["command"] != "setLevel" {
		t.Errorf("body[0] = %v", body[0])
	}
	if _, ok := body[0]["component"]; ok {
		t.Error("empty component should be omitted")
	}
}

func TestExecuteCommands_OmitsEmptyArguments(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.mux.HandleFunc("/v1/devices/abc/commands", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, srv)
	if err := c.ExecuteCommands(context.Background(), "abc", []Command{{Capability: "switch", Command: "on"}}); err != nil {
		t.Fatalf("ExecuteCommands() error = %v", err)
	}

	want := `[{"capability":"switch","command":"on"}]`
	if got := string(f.Requests()[0].Body); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestListLocations(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.mux.HandleFunc("/v1/locations", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"items": []Location{
			{LocationID: "l1", Name: "Home"},
			{LocationID: "l2", Name: "Cabin"},
		}})
	})

	c := newTestClient(t, srv)
	locations, err := c.ListLocations(context.Background())
	if err != nil {
		t.Fatalf("ListLocations() error = %v", err)
	}
	if len(locations) != 2 || locations[1].Name != "Cabin" {
		t.Errorf("ListLocations() = %+v", locations)
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrRequestFailed},
		{http.StatusBadGateway, ErrRequestFailed},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			f, srv := newFakeAPI(t)
			f.mux.HandleFunc("/v1/devices/abc/status", func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			c := newTestClient(t, srv)
			_, err := c.GetDeviceStatus(context.Background(), "abc")
			if !errors.Is(err, tt.want) {
				t.Errorf("GetDeviceStatus() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.GetDeviceHealth(context.Background(), "abc")
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("GetDeviceHealth() error = %v, want ErrRequestFailed", err)
	}
}

func TestMalformedResponse(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.mux.HandleFunc("/v1/devices/abc/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	})

	c := newTestClient(t, srv)
	_, err := c.GetDeviceHealth(context.Background(), "abc")
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("GetDeviceHealth() error = %v, want ErrRequestFailed", err)
	}
}
