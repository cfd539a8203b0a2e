package accessory

import "time"

// Event is an attribute change delivered by the push channel.
type Event struct {
	DeviceID    string `json:"deviceId"`
	ComponentID string `json:"componentId"`
	Capability  string `json:"capability"`
	Attribute   string `json:"attribute"`
	Value       any    `json:"value"`
}

// Command is an outward request to act on a device.
type Command struct {
	ComponentID string `json:"componentId,omitempty"`
	Capability  string `json:"capability"`
	Command     string `json:"command"`
	Arguments   []any  `json:"arguments,omitempty"`
}

// Update is a service value pushed to the outward state publishers.
type Update struct {
	DeviceID    string
	DeviceName  string
	ComponentID string
	Kind        string
	Capability  string
	Attribute   string
	Value       any

	// Target is true when Value is a target state rather than a reading.
	Target bool
	Online bool
	At     time.Time
}

// StatePublisher receives service values from polling and push events.
type StatePublisher interface {
	Publish(u Update) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(Update) error { return nil }

// Logger is the logging interface used by accessories.
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
