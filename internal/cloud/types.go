package cloud

import (
	"encoding/json"
	"fmt"
)

// Device is one entry of the remote device inventory.
type Device struct {
	DeviceID         string      `json:"deviceId"`
	Name             string      `json:"name,omitempty"`
	Label            string      `json:"label"`
	ManufacturerName string      `json:"manufacturerName,omitempty"`
	LocationID       string      `json:"locationId,omitempty"`
	RoomID           string      `json:"roomId,omitempty"`
	Components       []Component `json:"components"`
}

// Component is a named sub-unit of a device (commonly "main").
type Component struct {
	ID           string          `json:"id"`
	Label        string          `json:"label,omitempty"`
	Capabilities []CapabilityRef `json:"capabilities"`
}

// CapabilityIDs returns the component's capability identifiers in declared order.
func (c Component) CapabilityIDs() []string {
	ids := make([]string, 0, len(c.Capabilities))
	for _, ref := range c.Capabilities {
		ids = append(ids, ref.ID)
	}
	return ids
}

// CapabilityRef references a capability with its version.
type CapabilityRef struct {
	ID      string `json:"id"`
	Version int    `json:"version,omitempty"`
}

// AttributeState is the reported state of one capability attribute.
type AttributeState struct {
	Value     any    `json:"value"`
	Unit      string `json:"unit,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// CapabilityStatus maps attribute name to its state.
type CapabilityStatus map[string]AttributeState

// ComponentStatus maps capability identifier to its attributes.
type ComponentStatus map[string]CapabilityStatus

// Attribute returns the value of capability.attribute, if reported.
func (s ComponentStatus) Attribute(capability, attribute string) (any, bool) {
	caps, ok := s[capability]
	if !ok {
		return nil, false
	}
	st, ok := caps[attribute]
	if !ok {
		return nil, false
	}
	return st.Value, true
}

// DeviceStatus is the response of GET /devices/{id}/status.
type DeviceStatus struct {
	Components map[string]ComponentStatus `json:"components"`
}

// Health states reported by GET /devices/{id}/health.
const (
	HealthOnline  = "ONLINE"
	HealthOffline = "OFFLINE"
)

// Health is the response of GET /devices/{id}/health.
type Health struct {
	DeviceID        string `json:"deviceId"`
	State           string `json:"state"`
	LastUpdatedDate string `json:"lastUpdatedDate,omitempty"`
}

// Online reports whether the device is reachable by the cloud.
func (h Health) Online() bool {
	return h.State == HealthOnline
}

// Location is one entry of GET /locations.
type Location struct {
	LocationID string `json:"locationId"`
	Name       string `json:"name"`
}

// Command is a single element of a command batch.
type Command struct {
	Component  string `json:"component,omitempty"`
	Capability string `json:"capability"`
	Command    string `json:"command"`
	Arguments  []any  `json:"arguments,omitempty"`
}

// links carries the pagination cursor of list responses.
type links struct {
	Next link `json:"next"`
}

// link is a HAL link. The API sends {"href": "..."}; a bare string is
// accepted too.
type link struct {
	Href string `json:"href"`
}

func (l *link) UnmarshalJSON(data []byte) error {
	switch {
	case string(data) == "null":
		return nil
	case len(data) > 0 && data[0] == '"':
		return json.Unmarshal(data, &l.Href)
	}
	var obj struct {
		Href string `json:"href"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decoding link: %w", err)
	}
	l.Href = obj.Href
	return nil
}

type deviceList struct {
	Items []Device `json:"items"`
	Links links    `json:"_links"`
}

type locationList struct {
	Items []Location `json:"items"`
	Links links      `json:"_links"`
}
