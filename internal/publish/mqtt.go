package publish

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/accessory"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/mqtt"
)

// MessagePublisher sends one MQTT message. *mqtt.Client satisfies it.
type MessagePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// DeviceState is the retained state document of one device.
//
// Values are keyed by component, then "capability.attribute".
type DeviceState struct {
	DeviceID  string                    `json:"device_id"`
	Name      string                    `json:"name"`
	Online    bool                      `json:"online"`
	Values    map[string]map[string]any `json:"values"`
	Targets   map[string]map[string]any `json:"targets,omitempty"`
	Timestamp string                    `json:"timestamp"`
}

// MQTTPublisher merges service updates into a per-device state document and
// publishes it retained on graylogic/state/{bridge}/{device}.
type MQTTPublisher struct {
	client   MessagePublisher
	bridgeID string
	qos      byte

	mu     sync.Mutex
	states map[string]*deviceEntry
}

// deviceEntry serialises merge and publish for one device so the retained
// document is always the latest one.
type deviceEntry struct {
	mu      sync.Mutex
	state   DeviceState
	removed bool
}

// NewMQTTPublisher creates a state publisher for bridgeID.
func NewMQTTPublisher(client MessagePublisher, bridgeID string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{
		client:   client,
		bridgeID: bridgeID,
		qos:      qos,
		states:   make(map[string]*deviceEntry),
	}
}

// Publish merges u into the device document and publishes the whole document.
// Updates arriving after Forget for the same device are dropped.
func (p *MQTTPublisher) Publish(u accessory.Update) error {
	entry := p.entry(u.DeviceID)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return nil
	}

	payload, err := entry.merge(u)
	if err != nil {
		return err
	}
	return p.client.Publish(mqtt.Topics{}.State(p.bridgeID, u.DeviceID), payload, p.qos, true)
}

func (p *MQTTPublisher) entry(deviceID string) *deviceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.states[deviceID]
	if !ok {
		e = &deviceEntry{state: DeviceState{
			DeviceID: deviceID,
			Values:   make(map[string]map[string]any),
		}}
		p.states[deviceID] = e
	}
	return e
}

func (e *deviceEntry) merge(u accessory.Update) ([]byte, error) {
	st := &e.state
	st.Name = u.DeviceName
	st.Online = u.Online

	key := u.Capability + "." + u.Attribute
	if u.Target {
		if st.Targets == nil {
			st.Targets = make(map[string]map[string]any)
		}
		setValue(st.Targets, u.ComponentID, key, u.Value)
	} else {
		setValue(st.Values, u.ComponentID, key, u.Value)
	}

	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	st.Timestamp = at.UTC().Format(time.RFC3339)

	payload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshalling state of %s: %w", u.DeviceID, err)
	}
	return payload, nil
}

// Forget drops the cached document of a device that is no longer managed
// and clears its retained state message with an empty payload.
func (p *MQTTPublisher) Forget(deviceID string) error {
	p.mu.Lock()
	e, ok := p.states[deviceID]
	delete(p.states, deviceID)
	p.mu.Unlock()

	if ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.removed = true
	}
	if err := p.client.Publish(mqtt.Topics{}.State(p.bridgeID, deviceID), []byte{}, p.qos, true); err != nil {
		return fmt.Errorf("clearing state of %s: %w", deviceID, err)
	}
	return nil
}

func setValue(m map[string]map[string]any, component, key string, v any) {
	inner, ok := m[component]
	if !ok {
		inner = make(map[string]any)
		m[component] = inner
	}
	inner[key] = v
}
