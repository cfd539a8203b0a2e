package devicesync

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
)

// Default synchronisation timing.
const (
	DefaultFreshness        = 5 * time.Second
	DefaultFailureThreshold = 5
	DefaultOfflineGrace     = 10 * time.Minute
	DefaultCommandCooldown  = 20 * time.Second
	DefaultMaxJitter        = time.Second
)

const (
	statusFlightKey = "status"
	healthFlightKey = "health"
)

// RemoteDeviceAPI is the subset of the cloud API the engine needs.
// *cloud.Client satisfies it.
type RemoteDeviceAPI interface {
	GetDeviceStatus(ctx context.Context, deviceID string) (cloud.DeviceStatus, error)
	GetDeviceHealth(ctx context.Context, deviceID string) (cloud.Health, error)
	ExecuteCommands(ctx context.Context, deviceID string, commands []cloud.Command) error
}

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options tunes an Engine. Zero fields take the package defaults; a negative
// MaxJitter disables jitter.
type Options struct {
	Freshness        time.Duration
	FailureThreshold int
	OfflineGrace     time.Duration
	CommandCooldown  time.Duration
	MaxJitter        time.Duration

	// PushEnabled disables polling: the push-event channel supersedes it.
	PushEnabled bool

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig builds Options from the sync and events configuration.
func OptionsFromConfig(cfg config.SyncConfig, events config.EventsConfig) Options {
	return Options{
		Freshness:        cfg.Freshness,
		FailureThreshold: cfg.FailureThreshold,
		OfflineGrace:     cfg.OfflineGrace,
		CommandCooldown:  cfg.CommandCooldown,
		MaxJitter:        cfg.MaxJitter,
		PushEnabled:      events.Enabled,
	}
}

func (o Options) withDefaults() Options {
	if o.Freshness <= 0 {
		o.Freshness = DefaultFreshness
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.OfflineGrace <= 0 {
		o.OfflineGrace = DefaultOfflineGrace
	}
	if o.CommandCooldown <= 0 {
		o.CommandCooldown = DefaultCommandCooldown
	}
	switch {
	case o.MaxJitter == 0:
		o.MaxJitter = DefaultMaxJitter
	case o.MaxJitter < 0:
		o.MaxJitter = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// SyncState is the synchronisation state of one device.
type SyncState struct {
	Online                 bool
	FailureCount           int
	GiveUpAt               time.Time
	CommandInProgress      bool
	LastCommandCompletedAt time.Time
	StatusQueryInProgress  bool
	LastStatusResult       bool
	LastStatusAt           time.Time
}

// Engine synchronises one remote device.
//
// All services of a device share one Engine. Commands and status reads are
// mutually exclusive and strictly serialised per device through a weighted
// semaphore of size one; concurrent status reads coalesce into a single
// remote call. The Engine is the only writer of SyncState and StatusCache.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Engine struct {
	deviceID string
	name     string
	api      RemoteDeviceAPI
	opts     Options
	logger   Logger

	// remote serialises commands and status reads.
	remote *semaphore.Weighted
	flight singleflight.Group

	mu         sync.Mutex
	state      SyncState
	cache      StatusCache
	components []string

	pollMu  sync.Mutex
	pollers []*Poller
}

// New creates an engine for one device. The device starts Online.
func New(deviceID, name string, api RemoteDeviceAPI, opts Options) *Engine {
	return &Engine{
		deviceID: deviceID,
		name:     name,
		api:      api,
		opts:     opts.withDefaults(),
		logger:   noopLogger{},
		remote:   semaphore.NewWeighted(1),
		state:    SyncState{Online: true},
		cache:    newStatusCache(),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// DeviceID returns the remote device identifier.
func (e *Engine) DeviceID() string {
	return e.deviceID
}

// Name returns the device display label.
func (e *Engine) Name() string {
	return e.name
}

// PushEnabled reports whether the push channel replaces polling.
func (e *Engine) PushEnabled() bool {
	return e.opts.PushEnabled
}

// TrackComponent registers a component whose status is copied from each
// refresh. Tracking the same component twice is a no-op.
func (e *Engine) TrackComponent(componentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !slices.Contains(e.components, componentID) {
		e.components = append(e.components, componentID)
	}
}

// IsOnline reports whether the device is considered reachable.
func (e *Engine) IsOnline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Online
}

// State returns a copy of the current synchronisation state.
func (e *Engine) State() SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ComponentStatus returns the cached status of a component.
func (e *Engine) ComponentStatus(componentID string) (cloud.ComponentStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Component(componentID)
}

// Attribute returns a cached attribute value.
func (e *Engine) Attribute(componentID, capability, attribute string) (any, bool) {
	status, ok := e.ComponentStatus(componentID)
	if !ok {
		return nil, false
	}
	return status.Attribute(capability, attribute)
}

// ForceNextStatusRefresh makes the next RefreshStatus bypass the freshness window.
func (e *Engine) ForceNextStatusRefresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Invalidate()
}

// RefreshStatus brings the status cache up to date.
//
// It returns true without a remote call while the cache is fresh. Otherwise
// it waits for any in-flight command, reads all components and copies the
// tracked ones into the cache. Concurrent callers share one remote read and
// its result. A device marked offline is not queried.
//
// Transport failures are counted; reaching the failure threshold marks the
// device offline.
func (e *Engine) RefreshStatus(ctx context.Context) bool {
	if e.fresh() {
		return true
	}
	if !e.IsOnline() {
		e.logger.Debug("status refresh skipped, device offline", "device", e.name)
		return false
	}

	// The shared read outlives any single caller; cancellation is not
	// propagated into in-flight remote calls.
	shared := context.WithoutCancel(ctx)
	v, _, _ := e.flight.Do(statusFlightKey, func() (any, error) {
		return e.fetchStatus(shared), nil
	})
	ok, _ := v.(bool)
	return ok
}

func (e *Engine) fresh() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Fresh(e.opts.Now(), e.opts.Freshness)
}

// fetchStatus performs one serialised remote status read.
func (e *Engine) fetchStatus(ctx context.Context) bool {
	// A flight that completed just before this one started may have refreshed.
	if e.fresh() {
		return true
	}

	if err := e.remote.Acquire(ctx, 1); err != nil {
		return false
	}
	defer e.remote.Release(1)

	e.mu.Lock()
	e.state.StatusQueryInProgress = true
	e.mu.Unlock()

	e.logger.Debug("requesting device status", "device", e.name)
	status, err := e.api.GetDeviceStatus(ctx, e.deviceID)
	now := e.opts.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.StatusQueryInProgress = false

	if err != nil {
		e.state.FailureCount++
		e.state.LastStatusResult = false
		e.logger.Error("status request failed",
			"device", e.name,
			"failures", e.state.FailureCount,
			"error", err,
		)
		if e.state.Online && e.state.FailureCount >= e.opts.FailureThreshold {
			e.state.Online = false
			e.state.GiveUpAt = now
			e.logger.Error("exceeded allowed failures, device offline", "device", e.name)
		}
		return false
	}

	e.state.FailureCount = 0
	for _, id := range e.components {
		cs, ok := status.Components[id]
		if !ok {
			e.logger.Error("status missing component", "device", e.name, "component", id)
			continue
		}
		e.cache.Put(id, cs)
	}
	e.cache.Stamp(now)
	e.state.LastStatusAt = now
	e.state.LastStatusResult = true
	return true
}

// SendCommand submits a command to the device's default component.
// See SendComponentCommand.
func (e *Engine) SendCommand(ctx context.Context, capability, command string, args ...any) error {
	return e.SendComponentCommand(ctx, "", capability, command, args...)
}

// SendComponentCommand submits a single-command batch.
//
// Commands are strictly serialised per device and never overlap a status
// read. On success the status cache is invalidated and the completion time
// recorded for the poll cooldown. Failures are not retried and do not
// affect the online state.
//
// Returns:
//   - error: ErrDeviceOffline if the device is offline,
//     ErrCommandFailed (wrapping the cause) if the remote call fails
func (e *Engine) SendComponentCommand(ctx context.Context, componentID, capability, command string, args ...any) error {
	if !e.IsOnline() {
		return fmt.Errorf("%w: %s", ErrDeviceOffline, e.name)
	}

	cmd := cloud.Command{
		Component:  componentID,
		Capability: capability,
		Command:    command,
	}
	if len(args) > 0 {
		cmd.Arguments = args
	}
	commandID := uuid.NewString()

	// Waiting for the device may be abandoned; the call itself may not.
	if err := e.remote.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: waiting for device: %w", ErrCommandFailed, err)
	}
	defer e.remote.Release(1)

	e.mu.Lock()
	e.state.CommandInProgress = true
	e.mu.Unlock()

	e.logger.Debug("sending command",
		"device", e.name,
		"command_id", commandID,
		"capability", capability,
		"command", command,
	)
	err := e.api.ExecuteCommands(context.WithoutCancel(ctx), e.deviceID, []cloud.Command{cmd})
	now := e.opts.Now()

	e.mu.Lock()
	e.state.CommandInProgress = false
	if err == nil {
		e.cache.Invalidate()
		e.state.LastCommandCompletedAt = now
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("command failed",
			"device", e.name,
			"command_id", commandID,
			"command", command,
			"error", err,
		)
		return fmt.Errorf("%w: %s %s.%s: %w", ErrCommandFailed, e.name, capability, command, err)
	}

	e.logger.Debug("command successful", "device", e.name, "command_id", commandID)
	return nil
}

// CheckHealth asks the cloud whether the device is reachable.
//
// An ONLINE answer marks the device online and clears the failure counter.
// Any other answer marks it offline. A failed check of an offline device
// restarts the grace period; a failed check of an online device changes
// nothing. Concurrent checks share one remote call.
func (e *Engine) CheckHealth(ctx context.Context) bool {
	shared := context.WithoutCancel(ctx)
	v, _, _ := e.flight.Do(healthFlightKey, func() (any, error) {
		return e.checkHealth(shared), nil
	})
	ok, _ := v.(bool)
	return ok
}

func (e *Engine) checkHealth(ctx context.Context) bool {
	health, err := e.api.GetDeviceHealth(ctx, e.deviceID)
	now := e.opts.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err == nil && health.Online() {
		if !e.state.Online {
			e.logger.Info("device back online", "device", e.name)
		}
		e.state.Online = true
		e.state.FailureCount = 0
		e.state.GiveUpAt = time.Time{}
		return true
	}

	switch {
	case err != nil && e.state.Online:
		e.logger.Warn("health check failed", "device", e.name, "error", err)
	case err != nil:
		e.logger.Warn("recovery check failed", "device", e.name, "error", err)
		e.state.GiveUpAt = now
	default:
		if e.state.Online {
			e.logger.Warn("device reported not online", "device", e.name, "state", health.State)
		}
		e.state.Online = false
		e.state.GiveUpAt = now
	}
	return false
}

// Stop halts every poller started on this engine and waits for them to exit.
// An in-progress poll iteration is allowed to finish.
func (e *Engine) Stop() {
	e.pollMu.Lock()
	pollers := e.pollers
	e.pollers = nil
	e.pollMu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}
