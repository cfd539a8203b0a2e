package publish

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/accessory"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/influxdb"
)

// AttributeWriter records a numeric attribute. *influxdb.Client satisfies it.
type AttributeWriter interface {
	WriteAttribute(a influxdb.Attribute, value float64, at time.Time)
}

// MetricsPublisher writes numeric service values as time-series points.
// Non-numeric values and target states are skipped.
type MetricsPublisher struct {
	writer AttributeWriter
}

// NewMetricsPublisher creates a metrics publisher.
func NewMetricsPublisher(writer AttributeWriter) *MetricsPublisher {
	return &MetricsPublisher{writer: writer}
}

// Publish records u when its value is numeric.
func (p *MetricsPublisher) Publish(u accessory.Update) error {
	if u.Target {
		return nil
	}
	v, ok := numeric(u.Value)
	if !ok {
		return nil
	}

	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	p.writer.WriteAttribute(influxdb.Attribute{
		DeviceID:    u.DeviceID,
		DeviceName:  u.DeviceName,
		ComponentID: u.ComponentID,
		Capability:  u.Capability,
		Attribute:   u.Attribute,
	}, v, at)
	return nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
