// Package mqtt connects the bridge to the Gray Logic MQTT bus.
//
// The bus carries three things for the cloud bridge: retained per-device
// state and bridge health published outward, commands addressed to devices,
// and, when the push channel is enabled, device events forwarded by the
// cloud event relay.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.State("smartthings", deviceID)
//	err = client.PublishRetained(topic, payload)
//
// Connections reconnect automatically and restore their subscriptions. A
// Last Will marks the bridge offline on its status topic if it disappears.
package mqtt
