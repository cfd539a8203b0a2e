package accessory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-cloud/internal/capability"
	"github.com/nerrad567/gray-logic-cloud/internal/devicesync"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
)

// defaultComponent is used when a command names no component.
const defaultComponent = "main"

// ComponentInfo records the capabilities a component was added with.
type ComponentInfo struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
}

// Accessory is one remote device exposed as a set of services. All services
// share the device's sync engine.
type Accessory struct {
	engine    *devicesync.Engine
	router    *Router
	publisher StatePublisher
	logger    Logger

	mu         sync.Mutex
	services   []Service
	components []ComponentInfo
}

// New creates an accessory around engine. A nil publisher discards updates.
func New(engine *devicesync.Engine, publisher StatePublisher) *Accessory {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Accessory{
		engine:    engine,
		router:    NewRouter(),
		publisher: publisher,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the accessory and the services added after it.
func (a *Accessory) SetLogger(logger Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger = logger
}

// DeviceID returns the remote device identifier.
func (a *Accessory) DeviceID() string { return a.engine.DeviceID() }

// Name returns the display name.
func (a *Accessory) Name() string { return a.engine.Name() }

// Engine returns the shared sync engine.
func (a *Accessory) Engine() *devicesync.Engine { return a.engine }

// IsOnline reports whether the device is online.
func (a *Accessory) IsOnline() bool { return a.engine.IsOnline() }

// AddComponent resolves the component's capabilities and attaches one
// service per resolved kind. When the component already has a service of
// the kind, the resolution's capabilities are merged into it instead, so
// {switch, valve} yields one valve service handling both.
//
// Returns:
//   - []Service: the services added by this call, in resolution order
func (a *Accessory) AddComponent(componentID string, capabilities []string) []Service {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.engine.TrackComponent(componentID)
	a.trackComponentLocked(componentID, capabilities)

	var added []Service
	for _, res := range capability.Resolve(capabilities) {
		if existing := a.serviceLocked(componentID, res.Kind); existing != nil {
			existing.mergeCapabilities(res.Capabilities)
			continue
		}
		desc, ok := DescriptorFor(res.Kind)
		if !ok {
			a.logger.Warn("no descriptor for service kind",
				"device_id", a.engine.DeviceID(),
				"component_id", componentID,
				"kind", string(res.Kind),
			)
			continue
		}

		svc := newAttributeService(res, componentID, desc, a.engine, a.publisher, a.logger)
		a.services = append(a.services, svc)
		a.router.Register(svc)
		added = append(added, svc)

		a.logger.Debug("service attached",
			"device_id", a.engine.DeviceID(),
			"component_id", componentID,
			"kind", string(res.Kind),
		)
	}
	return added
}

func (a *Accessory) serviceLocked(componentID string, kind capability.ServiceKind) *AttributeService {
	for _, s := range a.services {
		if svc, ok := s.(*AttributeService); ok && svc.ComponentID() == componentID && svc.Kind() == kind {
			return svc
		}
	}
	return nil
}

// trackComponentLocked records capabilities under componentID, merging
// with an earlier entry for the same ID.
func (a *Accessory) trackComponentLocked(componentID string, capabilities []string) {
	i := slices.IndexFunc(a.components, func(c ComponentInfo) bool { return c.ID == componentID })
	if i < 0 {
		a.components = append(a.components, ComponentInfo{
			ID:           componentID,
			Capabilities: slices.Clone(capabilities),
		})
		return
	}
	for _, c := range capabilities {
		if !slices.Contains(a.components[i].Capabilities, c) {
			a.components[i].Capabilities = append(a.components[i].Capabilities, c)
		}
	}
}

// Services returns the attached services in attach order.
func (a *Accessory) Services() []Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.services)
}

// Components returns the components added so far.
func (a *Accessory) Components() []ComponentInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.components)
}

// ProcessEvent routes a push event to the matching service.
// It reports whether a service accepted the event.
func (a *Accessory) ProcessEvent(ev Event) bool {
	if a.router.Dispatch(ev) {
		return true
	}
	a.logger.Debug("event dropped, no matching service",
		"device_id", a.engine.DeviceID(),
		"component_id", ev.ComponentID,
		"capability", ev.Capability,
	)
	return false
}

// StartPolling starts one poller per polled service, using the period of
// the service's family. Nothing starts when the push channel is enabled.
//
// Returns:
//   - int: number of pollers started
func (a *Accessory) StartPolling(cfg config.PollConfig) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	started := 0
	for _, s := range a.services {
		svc, ok := s.(*AttributeService)
		if !ok {
			continue
		}
		interval := svc.desc.Family.Interval(cfg)
		if p := a.engine.StartPolling(svc.PollSpec(interval)); p != nil {
			started++
		}
	}
	return started
}

// HandleCommand forwards cmd to the device. The command must target a
// capability one of the services handles.
func (a *Accessory) HandleCommand(ctx context.Context, cmd Command) error {
	componentID := cmd.ComponentID
	if componentID == "" {
		componentID = defaultComponent
	}
	if _, ok := a.router.Lookup(componentID, cmd.Capability); !ok {
		return fmt.Errorf("%w: %s/%s", ErrNoService, componentID, cmd.Capability)
	}
	return a.engine.SendComponentCommand(ctx, componentID, cmd.Capability, cmd.Command, cmd.Arguments...)
}

// Close stops all pollers of the accessory. The engine owns them.
func (a *Accessory) Close() {
	a.engine.Stop()
}
