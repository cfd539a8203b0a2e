// Package influxdb records device attribute readings and bridge health
// counts in InfluxDB v2.
//
// Writes are batched by the client library and never block the caller:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics off
//	}
//	defer client.Close()
//
//	client.WriteAttribute(attr, 21.5, time.Now())
//
// Measurements:
//   - device_attribute: numeric attribute values, tagged by device,
//     component, capability and attribute
//   - bridge_health: devices managed, online and offline
package influxdb
