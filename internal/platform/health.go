package platform

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/mqtt"
)

const defaultHealthInterval = 30 * time.Second

// HealthStatus is the operational status of the bridge.
type HealthStatus string

// Health statuses.
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// DeviceCounts is the device section of a health message.
type DeviceCounts struct {
	Managed int `json:"managed"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// HealthMessage is published retained on graylogic/health/{bridge}.
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Devices       DeviceCounts `json:"devices"`
}

// HealthPublisher publishes health messages. *mqtt.Client satisfies it.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// DeviceCounter reports device counts. *Platform satisfies it.
type DeviceCounter interface {
	Counts() (managed, online, offline int)
}

// HealthMetrics records health counts as time series. *influxdb.Client
// satisfies it.
type HealthMetrics interface {
	WriteBridgeHealth(bridgeID string, managed, online, offline int, at time.Time)
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval defaults to 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Devices   DeviceCounter

	// Metrics is optional.
	Metrics HealthMetrics
}

// HealthReporter periodically publishes bridge health.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	devices   DeviceCounter
	metrics   HealthMetrics

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		devices:   cfg.Devices,
		metrics:   cfg.Metrics,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.logger = logger
}

// Start publishes health now and then every interval until Stop or ctx ends.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // Best-effort during shutdown
		h.publish(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	counts := h.counts()
	if counts.Managed > 0 && counts.Online == 0 {
		return HealthDegraded, "all devices offline"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) counts() DeviceCounts {
	if h.devices == nil {
		return DeviceCounts{}
	}
	managed, online, offline := h.devices.Counts()
	return DeviceCounts{Managed: managed, Online: online, Offline: offline}
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	now := time.Now().UTC()
	counts := h.counts()

	if h.metrics != nil {
		h.metrics.WriteBridgeHealth(h.bridgeID, counts.Managed, counts.Online, counts.Offline, now)
	}
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(HealthMessage{
		Bridge:        h.bridgeID,
		Timestamp:     now,
		Status:        status,
		Reason:        reason,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Devices:       counts,
	})
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.Health(h.bridgeID), payload, 1, true)
}
