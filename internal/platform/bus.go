package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/accessory"
	"github.com/nerrad567/gray-logic-cloud/internal/audit"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/mqtt"
)

// defaultComponent is assumed for events that name no component.
const defaultComponent = "main"

// commandTimeout bounds waiting for a device before a bus command runs.
const commandTimeout = 30 * time.Second

// Subscriber registers MQTT message handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// SubscribeEvents routes push events published under base to accessories.
//
// A payload is one event object or an array of them. An event without a
// deviceId takes the last topic level; one without a componentId targets
// "main".
func (p *Platform) SubscribeEvents(sub Subscriber, base string, qos byte) error {
	topic := mqtt.Topics{}.Events(base)
	if err := sub.Subscribe(topic, qos, p.handleEventMessage); err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	p.logger.Info("subscribed to push events", "topic", topic)
	return nil
}

func (p *Platform) handleEventMessage(topic string, payload []byte) error {
	events, err := decodeEvents(payload)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if ev.DeviceID == "" {
			ev.DeviceID = mqtt.Topics{}.DeviceFromTopic(topic)
		}
		if ev.ComponentID == "" {
			ev.ComponentID = defaultComponent
		}
		p.HandleEvent(ev)
	}
	return nil
}

func decodeEvents(payload []byte) ([]accessory.Event, error) {
	var events []accessory.Event
	if len(payload) > 0 && payload[0] == '[' {
		if err := json.Unmarshal(payload, &events); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		return events, nil
	}

	var ev accessory.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return append(events, ev), nil
}

// SubscribeCommands forwards commands published on
// graylogic/command/{bridge}/{device} to the device's accessory.
func (p *Platform) SubscribeCommands(sub Subscriber, bridgeID string, qos byte) error {
	topic := mqtt.Topics{}.AllCommands(bridgeID)
	if err := sub.Subscribe(topic, qos, p.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	p.logger.Info("subscribed to commands", "topic", topic)
	return nil
}

func (p *Platform) handleCommandMessage(topic string, payload []byte) error {
	var cmd accessory.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if cmd.Capability == "" || cmd.Command == "" {
		return fmt.Errorf("%w: capability and command are required", ErrInvalidMessage)
	}

	deviceID := mqtt.Topics{}.DeviceFromTopic(topic)
	ctx, cancel := context.WithTimeout(audit.WithActor(context.Background(), audit.SourceMQTT, ""), commandTimeout)
	defer cancel()

	if err := p.HandleCommand(ctx, deviceID, cmd); err != nil {
		return fmt.Errorf("command %s.%s for %s: %w", cmd.Capability, cmd.Command, deviceID, err)
	}
	p.logger.Debug("command forwarded", "device_id", deviceID, "capability", cmd.Capability, "command", cmd.Command)
	return nil
}
