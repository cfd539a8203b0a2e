package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
)

const (
	defaultRequestTimeout = 15 * time.Second

	// maxPages bounds pagination so a misbehaving cursor cannot loop forever.
	maxPages = 100

	// maxErrorBody is how much of an error response is kept for diagnostics.
	maxErrorBody = 512
)

// Client talks to the cloud device REST API.
//
// Every request carries the configured bearer token. Timeouts are enforced
// by the underlying http.Client; callers may additionally bound requests
// through the context.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

// New creates a client from the cloud configuration.
//
// Parameters:
//   - cfg: Cloud configuration from config.yaml
//
// Returns:
//   - *Client: Client ready for use (no request is made)
//   - error: ErrInvalidConfig if the base URL or token is unusable
func New(cfg config.CloudConfig) (*Client, error) {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return NewWithHTTPClient(cfg, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient is New with a caller-supplied http.Client.
func NewWithHTTPClient(cfg config.CloudConfig, hc *http.Client) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: access token is empty", ErrInvalidConfig)
	}

	raw := cfg.BaseURL
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, cfg.BaseURL)
	}

	return &Client{
		baseURL:    base,
		token:      cfg.AccessToken,
		httpClient: hc,
	}, nil
}

// ListDevices returns the full device inventory, following pagination links.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	next := c.resolve("devices")
	for page := 0; next != "" && page < maxPages; page++ {
		var resp deviceList
		if err := c.do(ctx, http.MethodGet, next, nil, &resp); err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		devices = append(devices, resp.Items...)
		next = c.followLink(resp.Links.Next.Href)
	}
	return devices, nil
}

// ListLocations returns all locations visible to the token.
func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	var locations []Location
	next := c.resolve("locations")
	for page := 0; next != "" && page < maxPages; page++ {
		var resp locationList
		if err := c.do(ctx, http.MethodGet, next, nil, &resp); err != nil {
			return nil, fmt.Errorf("listing locations: %w", err)
		}
		locations = append(locations, resp.Items...)
		next = c.followLink(resp.Links.Next.Href)
	}
	return locations, nil
}

// GetDeviceStatus returns the per-component status of a device.
func (c *Client) GetDeviceStatus(ctx context.Context, deviceID string) (DeviceStatus, error) {
	var status DeviceStatus
	if err := c.do(ctx, http.MethodGet, c.devicePath(deviceID, "status"), nil, &status); err != nil {
		return DeviceStatus{}, fmt.Errorf("device %s status: %w", deviceID, err)
	}
	return status, nil
}

// GetDeviceHealth returns the cloud's view of device reachability.
func (c *Client) GetDeviceHealth(ctx context.Context, deviceID string) (Health, error) {
	var health Health
	if err := c.do(ctx, http.MethodGet, c.devicePath(deviceID, "health"), nil, &health); err != nil {
		return Health{}, fmt.Errorf("device %s health: %w", deviceID, err)
	}
	return health, nil
}

// ExecuteCommands submits a command batch. The request body is the bare JSON
// array of commands.
func (c *Client) ExecuteCommands(ctx context.Context, deviceID string, commands []Command) error {
	body, err := json.Marshal(commands)
	if err != nil {
		return fmt.Errorf("encoding commands: %w", err)
	}
	if err := c.do(ctx, http.MethodPost, c.devicePath(deviceID, "commands"), body, nil); err != nil {
		return fmt.Errorf("device %s commands: %w", deviceID, err)
	}
	return nil
}

func (c *Client) devicePath(deviceID, leaf string) string {
	return c.baseURL.JoinPath("devices", deviceID, leaf).String()
}

func (c *Client) resolve(rel string) string {
	return c.baseURL.JoinPath(rel).String()
}

// followLink accepts a pagination link only when it points at the API host,
// so the bearer token is never sent elsewhere.
func (c *Client) followLink(href string) string {
	if href == "" {
		return ""
	}
	u, err := c.baseURL.Parse(href)
	if err != nil || u.Host != c.baseURL.Host || u.Scheme != c.baseURL.Scheme {
		return ""
	}
	return u.String()
}

// do performs one request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return statusError(resp.StatusCode, snippet)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrRequestFailed, err)
	}
	return nil
}

// statusError maps an HTTP status to a sentinel error.
func statusError(code int, body []byte) error {
	var sentinel error
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrUnauthorized
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	default:
		sentinel = ErrRequestFailed
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("%w: HTTP %d", sentinel, code)
	}
	return fmt.Errorf("%w: HTTP %d: %s", sentinel, code, msg)
}
