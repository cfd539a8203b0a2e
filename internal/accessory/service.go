package accessory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/capability"
	"github.com/nerrad567/gray-logic-cloud/internal/devicesync"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
)

// Service is one semantic service attached to a device component.
type Service interface {
	Kind() capability.ServiceKind
	ComponentID() string
	Capabilities() []string
	HandlesCapability(capability string) bool
	ProcessEvent(ev Event)
}

// PollFamily groups services that share a poll period.
type PollFamily int

// Poll families. FamilyNone services are event-only.
const (
	FamilyNone PollFamily = iota
	FamilySensors
	FamilySwitches
	FamilyLocks
	FamilyDoors
	FamilyWindowShades
	FamilyThermostats
)

// Interval returns the family's poll period from cfg.
func (f PollFamily) Interval(cfg config.PollConfig) time.Duration {
	var seconds int
	switch f {
	case FamilySensors:
		seconds = cfg.Sensors
	case FamilySwitches:
		seconds = cfg.Switches
	case FamilyLocks:
		seconds = cfg.Locks
	case FamilyDoors:
		seconds = cfg.Doors
	case FamilyWindowShades:
		seconds = cfg.WindowShades
	case FamilyThermostats:
		seconds = cfg.Thermostats
	default:
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// Descriptor says which attribute a service kind reads and how often.
type Descriptor struct {
	Capability string
	Attribute  string

	// TargetCapability and TargetAttribute are empty when the kind has no
	// target state.
	TargetCapability string
	TargetAttribute  string

	Family PollFamily
}

// HasTarget reports whether the descriptor names a target attribute.
func (d Descriptor) HasTarget() bool {
	return d.TargetCapability != "" && d.TargetAttribute != ""
}

var descriptors = map[capability.ServiceKind]Descriptor{
	capability.KindDoorControl: {
		Capability: capability.DoorControl, Attribute: "door",
		TargetCapability: capability.DoorControl, TargetAttribute: "door",
		Family: FamilyDoors,
	},
	capability.KindLock: {
		Capability: capability.Lock, Attribute: "lock",
		TargetCapability: capability.Lock, TargetAttribute: "lock",
		Family: FamilyLocks,
	},
	capability.KindWindowShade: {
		Capability: capability.WindowShadeLevel, Attribute: "shadeLevel",
		TargetCapability: capability.WindowShadeLevel, TargetAttribute: "shadeLevel",
		Family: FamilyWindowShades,
	},
	capability.KindMotion:          {Capability: capability.MotionSensor, Attribute: "motion", Family: FamilySensors},
	capability.KindLeakSensor:      {Capability: capability.WaterSensor, Attribute: "water", Family: FamilySensors},
	capability.KindSmokeDetector:   {Capability: capability.SmokeDetector, Attribute: "smoke", Family: FamilySensors},
	capability.KindCODetector:      {Capability: capability.CarbonMonoxideDetector, Attribute: "carbonMonoxide", Family: FamilySensors},
	capability.KindOccupancySensor: {Capability: capability.PresenceSensor, Attribute: "presence", Family: FamilySensors},
	capability.KindTemperature:     {Capability: capability.TemperatureMeasurement, Attribute: "temperature", Family: FamilySensors},
	capability.KindHumidity:        {Capability: capability.RelativeHumidityMeasurement, Attribute: "humidity", Family: FamilySensors},
	capability.KindIlluminance:     {Capability: capability.IlluminanceMeasurement, Attribute: "illuminance", Family: FamilySensors},
	capability.KindContactSensor:   {Capability: capability.ContactSensor, Attribute: "contact", Family: FamilySensors},
	capability.KindStatelessButton: {Capability: capability.Button, Attribute: "button", Family: FamilyNone},
	capability.KindBattery:         {Capability: capability.Battery, Attribute: "battery", Family: FamilySensors},
	capability.KindValve:           {Capability: capability.Valve, Attribute: "valve", Family: FamilySwitches},
	capability.KindSwitch:          {Capability: capability.Switch, Attribute: "switch", Family: FamilySwitches},
	capability.KindFanWithLevel: {
		Capability: capability.Switch, Attribute: "switch",
		TargetCapability: capability.SwitchLevel, TargetAttribute: "level",
		Family: FamilySwitches,
	},
	capability.KindFanSpeed: {
		Capability: capability.Switch, Attribute: "switch",
		TargetCapability: capability.FanSpeed, TargetAttribute: "fanSpeed",
		Family: FamilySwitches,
	},
	capability.KindLight: {Capability: capability.Switch, Attribute: "switch", Family: FamilySwitches},
	capability.KindThermostat: {
		Capability: capability.TemperatureMeasurement, Attribute: "temperature",
		TargetCapability: capability.ThermostatMode, TargetAttribute: "thermostatMode",
		Family: FamilyThermostats,
	},
}

// DescriptorFor returns the descriptor of kind.
func DescriptorFor(kind capability.ServiceKind) (Descriptor, bool) {
	d, ok := descriptors[kind]
	return d, ok
}

// AttributeService reads one primary attribute, and optionally a target
// attribute, through the device's sync engine.
type AttributeService struct {
	kind        capability.ServiceKind
	componentID string
	desc        Descriptor

	capsMu sync.RWMutex
	caps   []string

	engine    *devicesync.Engine
	publisher StatePublisher
	logger    Logger
}

func newAttributeService(res capability.Resolution, componentID string, desc Descriptor,
	engine *devicesync.Engine, publisher StatePublisher, logger Logger) *AttributeService {
	return &AttributeService{
		kind:        res.Kind,
		componentID: componentID,
		caps:        slices.Clone(res.Capabilities),
		desc:        desc,
		engine:      engine,
		publisher:   publisher,
		logger:      logger,
	}
}

// Kind returns the service kind.
func (s *AttributeService) Kind() capability.ServiceKind { return s.kind }

// ComponentID returns the component the service is bound to.
func (s *AttributeService) ComponentID() string { return s.componentID }

// Capabilities returns a copy of the capability subset the service handles.
func (s *AttributeService) Capabilities() []string {
	s.capsMu.RLock()
	defer s.capsMu.RUnlock()
	return slices.Clone(s.caps)
}

// HandlesCapability reports whether capability is in the service's subset.
func (s *AttributeService) HandlesCapability(capability string) bool {
	s.capsMu.RLock()
	defer s.capsMu.RUnlock()
	return slices.Contains(s.caps, capability)
}

// mergeCapabilities widens the subset with caps, keeping order and
// skipping capabilities already present.
func (s *AttributeService) mergeCapabilities(caps []string) {
	s.capsMu.Lock()
	defer s.capsMu.Unlock()
	for _, c := range caps {
		if !slices.Contains(s.caps, c) {
			s.caps = append(s.caps, c)
		}
	}
}

// Value refreshes status through the engine and returns the primary attribute.
func (s *AttributeService) Value(ctx context.Context) (any, error) {
	return s.read(ctx, s.desc.Capability, s.desc.Attribute)
}

// TargetValue refreshes status through the engine and returns the target attribute.
func (s *AttributeService) TargetValue(ctx context.Context) (any, error) {
	if !s.desc.HasTarget() {
		return nil, ErrNoTarget
	}
	return s.read(ctx, s.desc.TargetCapability, s.desc.TargetAttribute)
}

func (s *AttributeService) read(ctx context.Context, capabilityID, attribute string) (any, error) {
	if !s.engine.IsOnline() {
		return nil, devicesync.ErrDeviceOffline
	}
	if !s.engine.RefreshStatus(ctx) {
		return nil, ErrStatusUnavailable
	}
	v, ok := s.engine.Attribute(s.componentID, capabilityID, attribute)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s.%s", ErrAttributeMissing, s.componentID, capabilityID, attribute)
	}
	return v, nil
}

// ProcessEvent publishes the event value outward. Events for capabilities
// outside the service's subset are ignored.
func (s *AttributeService) ProcessEvent(ev Event) {
	if !s.HandlesCapability(ev.Capability) {
		return
	}
	target := s.desc.HasTarget() &&
		ev.Capability == s.desc.TargetCapability &&
		ev.Attribute == s.desc.TargetAttribute &&
		(ev.Capability != s.desc.Capability || ev.Attribute != s.desc.Attribute)

	s.publish(ev.Capability, ev.Attribute, ev.Value, target)
}

// PollSpec builds the poll specification for this service.
func (s *AttributeService) PollSpec(interval time.Duration) devicesync.PollSpec {
	spec := devicesync.PollSpec{
		Interval: interval,
		Value:    s.Value,
		OnValue: func(v any) {
			s.publish(s.desc.Capability, s.desc.Attribute, v, false)
		},
	}
	if s.desc.HasTarget() {
		spec.Target = s.TargetValue
		spec.OnTarget = func(v any) {
			s.publish(s.desc.TargetCapability, s.desc.TargetAttribute, v, true)
		}
	}
	return spec
}

func (s *AttributeService) publish(capabilityID, attribute string, value any, target bool) {
	u := Update{
		DeviceID:    s.engine.DeviceID(),
		DeviceName:  s.engine.Name(),
		ComponentID: s.componentID,
		Kind:        string(s.kind),
		Capability:  capabilityID,
		Attribute:   attribute,
		Value:       value,
		Target:      target,
		Online:      s.engine.IsOnline(),
		At:          time.Now(),
	}
	if err := s.publisher.Publish(u); err != nil {
		s.logger.Warn("publishing service state failed",
			"device_id", u.DeviceID,
			"component_id", u.ComponentID,
			"capability", capabilityID,
			"error", err,
		)
	}
}
