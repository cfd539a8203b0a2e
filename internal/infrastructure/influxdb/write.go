package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAttribute    = "device_attribute"
	MeasurementBridgeHealth = "bridge_health"
)

// Attribute identifies one device attribute reading.
type Attribute struct {
	DeviceID    string
	DeviceName  string
	ComponentID string
	Capability  string
	Attribute   string
}

// WriteAttribute records a numeric attribute value.
//
// Tags are the device, component, capability and attribute; the reading is
// the "value" field.
//
// Example:
//
//	client.WriteAttribute(influxdb.Attribute{
//	    DeviceID: "a1b2", ComponentID: "main",
//	    Capability: "temperatureMeasurement", Attribute: "temperature",
//	}, 21.5, time.Now())
func (c *Client) WriteAttribute(a Attribute, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id":  a.DeviceID,
		"component":  a.ComponentID,
		"capability": a.Capability,
		"attribute":  a.Attribute,
	}
	if a.DeviceName != "" {
		tags["device_name"] = a.DeviceName
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementAttribute,
		tags,
		map[string]any{"value": value},
		at,
	))
}

// WriteBridgeHealth records the managed/online/offline device counts.
func (c *Client) WriteBridgeHealth(bridgeID string, managed, online, offline int, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementBridgeHealth,
		map[string]string{"bridge_id": bridgeID},
		map[string]any{
			"devices_managed": managed,
			"devices_online":  online,
			"devices_offline": offline,
		},
		at,
	))
}
