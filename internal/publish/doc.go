// Package publish delivers accessory service values to the outside world:
// retained per-device state documents on MQTT and numeric readings in
// InfluxDB.
package publish
