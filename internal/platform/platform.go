package platform

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/accessory"
	"github.com/nerrad567/gray-logic-cloud/internal/audit"
	"github.com/nerrad567/gray-logic-cloud/internal/capability"
	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/devicesync"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
)

// MissingName labels devices the cloud reports without one.
const MissingName = "Missing Name"

const (
	defaultMaxAttempts = 20
	defaultBaseDelay   = 10 * time.Second

	// maxBackoffShift caps the doubling of the retry delay.
	maxBackoffShift = 16

	// initialHealthTimeout bounds the health check made at registration.
	initialHealthTimeout = 15 * time.Second
)

// CloudAPI is the remote API the platform needs. *cloud.Client satisfies it.
type CloudAPI interface {
	devicesync.RemoteDeviceAPI
	ListDevices(ctx context.Context) ([]cloud.Device, error)
	ListLocations(ctx context.Context) ([]cloud.Location, error)
}

// Logger is the logging interface used by the platform.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateForgetter clears the outward state of a device that is no longer
// managed. A publisher passed to New that implements it (publish.Fanout,
// publish.MQTTPublisher) is called on every unregistration.
type StateForgetter interface {
	Forget(deviceID string) error
}

// Auditor records bridge activity. *audit.SQLiteRepository satisfies it.
type Auditor interface {
	Create(ctx context.Context, e *audit.Entry) error
}

// Config groups the settings the platform reads.
type Config struct {
	Cloud  config.CloudConfig
	Sync   config.SyncConfig
	Events config.EventsConfig
}

// Result summarises one discovery run.
type Result struct {
	Registered   int
	Restored     int
	Unregistered int
	Skipped      int
}

// Platform discovers cloud devices, exposes each supported one as an
// accessory and routes events and commands to them.
type Platform struct {
	cfg       Config
	api       CloudAPI
	store     accessory.Store
	publisher accessory.StatePublisher
	logger    Logger
	auditor   Auditor

	// sleep and jitter are replaceable in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64

	mu          sync.RWMutex
	accessories map[string]*accessory.Accessory
}

// New creates a platform. A nil publisher discards service values.
func New(cfg Config, api CloudAPI, store accessory.Store, publisher accessory.StatePublisher) *Platform {
	return &Platform{
		cfg:         cfg,
		api:         api,
		store:       store,
		publisher:   publisher,
		logger:      noopLogger{},
		sleep:       sleepContext,
		jitter:      rand.Float64,
		accessories: make(map[string]*accessory.Accessory),
	}
}

// SetLogger sets the logger for the platform and the accessories it creates.
func (p *Platform) SetLogger(logger Logger) {
	p.logger = logger
}

// SetAuditor enables the activity trail. Registrations and commands are
// attributed to the actor carried by the call's context (see audit.WithActor).
func (p *Platform) SetAuditor(a Auditor) {
	p.auditor = a
}

// record writes an audit entry. Failures are logged and never surface to
// the caller.
func (p *Platform) record(ctx context.Context, action, deviceID string, opErr error, details map[string]any) {
	if p.auditor == nil {
		return
	}
	actor := audit.ActorFrom(ctx)
	e := &audit.Entry{
		Action:   action,
		DeviceID: deviceID,
		Source:   actor.Source,
		Subject:  actor.Subject,
		Outcome:  audit.OutcomeOK,
		Details:  details,
	}
	if opErr != nil {
		e.Outcome = audit.OutcomeFailed
		if e.Details == nil {
			e.Details = make(map[string]any, 1)
		}
		e.Details["error"] = opErr.Error()
	}
	// The caller's context may already be cancelled when a command fails.
	if err := p.auditor.Create(context.WithoutCancel(ctx), e); err != nil {
		p.logger.Warn("writing audit entry failed", "action", action, "device_id", deviceID, "error", err)
	}
}

// Discover loads the device inventory and reconciles it with the
// registration store.
//
// It follows these steps:
//  1. With unregister_all set, drops every stored registration
//  2. Resolves ignored location names to IDs (failure is logged)
//  3. Fetches the inventory with exponential backoff and jitter
//  4. Skips ignored and unsupported devices
//  5. Restores or registers each remaining device, checks its health and
//     starts polling
//  6. Unregisters stored devices that are no longer present
//
// Returns:
//   - Result: counts of the run
//   - error: ErrDiscoveryFailed if the inventory could not be fetched
func (p *Platform) Discover(ctx context.Context) (Result, error) {
	var res Result

	if p.cfg.Cloud.UnregisterAll {
		n, err := p.unregisterAll(ctx)
		if err != nil {
			return res, err
		}
		res.Unregistered += n
	}

	ignoredLocations := p.ignoredLocationIDs(ctx)

	devices, err := p.fetchDevices(ctx)
	if err != nil {
		return res, err
	}

	stored, err := p.store.List(ctx)
	if err != nil {
		return res, fmt.Errorf("listing registrations: %w", err)
	}
	known := make(map[string]bool, len(stored))
	for _, rec := range stored {
		known[rec.DeviceID] = true
	}

	present := make(map[string]bool, len(devices))
	for _, d := range devices {
		label := d.Label
		if label == "" {
			label = MissingName
		}

		switch {
		case containsFold(p.cfg.Cloud.IgnoreDevices, label):
			p.logger.Info("ignoring device in ignore list", "device", label)
			res.Skipped++
			continue
		case ignoredLocations[d.LocationID]:
			p.logger.Info("ignoring device in ignored location", "device", label, "location_id", d.LocationID)
			res.Skipped++
			continue
		case !capability.IsDeviceSupported(componentCapabilities(d)):
			p.logger.Debug("device has no supported capabilities", "device", label)
			res.Skipped++
			continue
		}

		present[d.DeviceID] = true
		action := audit.ActionRegister
		if known[d.DeviceID] {
			p.logger.Info("restoring accessory", "device", label, "device_id", d.DeviceID)
			res.Restored++
			action = audit.ActionRestore
		} else {
			p.logger.Info("registering accessory", "device", label, "device_id", d.DeviceID)
			res.Registered++
		}

		rec := accessory.RecordFromDevice(d, label)
		if err := p.store.Upsert(ctx, &rec); err != nil {
			p.logger.Error("saving registration failed", "device_id", d.DeviceID, "error", err)
		}
		p.attach(ctx, d, label)
		p.record(ctx, action, d.DeviceID, nil, map[string]any{"name": label})
	}

	for _, rec := range stored {
		if present[rec.DeviceID] || p.cfg.Cloud.UnregisterAll {
			continue
		}
		p.logger.Info("unregistering accessory", "device", rec.Name, "device_id", rec.DeviceID)
		if err := p.store.Delete(ctx, rec.DeviceID); err != nil && !errors.Is(err, accessory.ErrNotFound) {
			p.logger.Error("removing registration failed", "device_id", rec.DeviceID, "error", err)
		}
		p.detach(rec.DeviceID)
		p.record(ctx, audit.ActionUnregister, rec.DeviceID, nil, map[string]any{"name": rec.Name})
		res.Unregistered++
	}

	p.logger.Info("discovery complete",
		"registered", res.Registered,
		"restored", res.Restored,
		"unregistered", res.Unregistered,
		"skipped", res.Skipped,
	)
	return res, nil
}

// attach creates the accessory for d unless it is already managed.
func (p *Platform) attach(ctx context.Context, d cloud.Device, label string) {
	p.mu.RLock()
	_, exists := p.accessories[d.DeviceID]
	p.mu.RUnlock()
	if exists {
		return
	}

	engine := devicesync.New(d.DeviceID, label, p.api, devicesync.OptionsFromConfig(p.cfg.Sync, p.cfg.Events))
	engine.SetLogger(p.logger)

	acc := accessory.New(engine, p.publisher)
	acc.SetLogger(p.logger)
	for _, c := range d.Components {
		acc.AddComponent(c.ID, c.CapabilityIDs())
	}

	healthCtx, cancel := context.WithTimeout(ctx, initialHealthTimeout)
	if !engine.CheckHealth(healthCtx) {
		p.logger.Warn("device is offline at registration", "device", label, "device_id", d.DeviceID)
	}
	cancel()

	acc.StartPolling(p.cfg.Sync.Poll)

	p.mu.Lock()
	p.accessories[d.DeviceID] = acc
	p.mu.Unlock()
}

// detach stops the device's accessory and clears its published state. The
// device may have no accessory yet when it was only known from the store.
func (p *Platform) detach(deviceID string) {
	p.mu.Lock()
	acc, ok := p.accessories[deviceID]
	delete(p.accessories, deviceID)
	p.mu.Unlock()
	if ok {
		acc.Close()
	}

	if f, ok := p.publisher.(StateForgetter); ok {
		if err := f.Forget(deviceID); err != nil {
			p.logger.Warn("clearing device state failed", "device_id", deviceID, "error", err)
		}
	}
}

func (p *Platform) unregisterAll(ctx context.Context) (int, error) {
	stored, err := p.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing registrations: %w", err)
	}
	p.logger.Info("unregistering all accessories", "count", len(stored))
	for _, rec := range stored {
		p.logger.Info("unregistering accessory", "device", rec.Name, "device_id", rec.DeviceID)
		if err := p.store.Delete(ctx, rec.DeviceID); err != nil && !errors.Is(err, accessory.ErrNotFound) {
			return 0, fmt.Errorf("removing registration %s: %w", rec.DeviceID, err)
		}
		p.detach(rec.DeviceID)
		p.record(ctx, audit.ActionUnregister, rec.DeviceID, nil, map[string]any{"name": rec.Name})
	}
	return len(stored), nil
}

// ignoredLocationIDs resolves configured location names to IDs.
func (p *Platform) ignoredLocationIDs(ctx context.Context) map[string]bool {
	ids := make(map[string]bool)
	if len(p.cfg.Cloud.IgnoreLocations) == 0 {
		return ids
	}

	locations, err := p.api.ListLocations(ctx)
	if err != nil {
		p.logger.Error("could not load locations to ignore, check configuration", "error", err)
		return ids
	}
	for _, loc := range locations {
		if containsFold(p.cfg.Cloud.IgnoreLocations, loc.Name) {
			ids[loc.LocationID] = true
		}
	}
	p.logger.Info("resolved locations to ignore", "count", len(ids))
	return ids
}

// fetchDevices retries the inventory fetch with delay
// base × 2^(attempt-1) × (1 + jitter). An unauthorized answer is not retried.
func (p *Platform) fetchDevices(ctx context.Context) ([]cloud.Device, error) {
	attempts := p.cfg.Cloud.Discovery.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	base := p.cfg.Cloud.Discovery.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		devices, err := p.api.ListDevices(ctx)
		if err == nil {
			return devices, nil
		}
		lastErr = err
		if errors.Is(err, cloud.ErrUnauthorized) {
			break
		}
		if attempt == attempts {
			break
		}

		delay := time.Duration(float64(base) * float64(uint64(1)<<min(attempt-1, maxBackoffShift)) * (1 + p.jitter()))
		p.logger.Error("could not load devices, retrying",
			"attempt", attempt,
			"retry_in", delay.Round(10*time.Millisecond).String(),
			"error", err,
		)
		if err := p.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, lastErr)
}

// Accessory returns the managed accessory for deviceID.
func (p *Platform) Accessory(deviceID string) (*accessory.Accessory, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	acc, ok := p.accessories[deviceID]
	return acc, ok
}

// Accessories returns the managed accessories ordered by device ID.
func (p *Platform) Accessories() []*accessory.Accessory {
	p.mu.RLock()
	out := make([]*accessory.Accessory, 0, len(p.accessories))
	for _, acc := range p.accessories {
		out = append(out, acc)
	}
	p.mu.RUnlock()

	slices.SortFunc(out, func(a, b *accessory.Accessory) int {
		return strings.Compare(a.DeviceID(), b.DeviceID())
	})
	return out
}

// Counts returns the number of managed, online and offline devices.
func (p *Platform) Counts() (managed, online, offline int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, acc := range p.accessories {
		managed++
		if acc.IsOnline() {
			online++
		} else {
			offline++
		}
	}
	return managed, online, offline
}

// HandleEvent routes a push event to its device's accessory.
func (p *Platform) HandleEvent(ev accessory.Event) bool {
	acc, ok := p.Accessory(ev.DeviceID)
	if !ok {
		p.logger.Debug("event for unmanaged device dropped", "device_id", ev.DeviceID)
		return false
	}
	return acc.ProcessEvent(ev)
}

// HandleCommand forwards cmd to the accessory of deviceID. Commands for
// managed devices are audited whatever their outcome.
func (p *Platform) HandleCommand(ctx context.Context, deviceID string, cmd accessory.Command) error {
	acc, ok := p.Accessory(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	err := acc.HandleCommand(ctx, cmd)
	p.record(ctx, audit.ActionCommand, deviceID, err, map[string]any{
		"component":  cmd.ComponentID,
		"capability": cmd.Capability,
		"command":    cmd.Command,
	})
	return err
}

// Close stops every accessory's pollers.
func (p *Platform) Close() {
	p.mu.Lock()
	accessories := p.accessories
	p.accessories = make(map[string]*accessory.Accessory)
	p.mu.Unlock()

	for _, acc := range accessories {
		acc.Close()
	}
}

func componentCapabilities(d cloud.Device) [][]string {
	out := make([][]string, 0, len(d.Components))
	for _, c := range d.Components {
		out = append(out, c.CapabilityIDs())
	}
	return out
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(item string) bool {
		return strings.EqualFold(item, s)
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
