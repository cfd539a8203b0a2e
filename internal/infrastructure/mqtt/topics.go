package mqtt

import "fmt"

// TopicPrefix is the root of every Gray Logic topic.
//
// Bridge topics use the flat scheme graylogic/{category}/{bridge}/{device}.
const TopicPrefix = "graylogic"

// Topics provides builders for the topics this bridge uses.
//
//	topics := mqtt.Topics{}
//	topics.State("smartthings", "a1b2c3")
//	// Returns: "graylogic/state/smartthings/a1b2c3"
type Topics struct{}

// State returns the retained state topic of one device.
//
// Example: graylogic/state/smartthings/a1b2c3
func (Topics) State(bridgeID, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, bridgeID, deviceID)
}

// Command returns the command topic of one device.
//
// Example: graylogic/command/smartthings/a1b2c3
func (Topics) Command(bridgeID, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, bridgeID, deviceID)
}

// AllCommands returns the pattern matching commands to every device of a bridge.
//
// Pattern: graylogic/command/smartthings/+
func (Topics) AllCommands(bridgeID string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, bridgeID)
}

// Health returns the retained health topic of a bridge.
//
// Example: graylogic/health/smartthings
func (Topics) Health(bridgeID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, bridgeID)
}

// Status returns the retained online/offline topic of a client.
// It carries the Last Will and Testament.
//
// Example: graylogic/system/status/graylogic-cloud
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/system/status/%s", TopicPrefix, clientID)
}

// Events returns the subscription pattern for a push-event base topic.
// The pattern also matches the base topic itself.
//
// Example: graylogic/events/smartthings/#
func (Topics) Events(base string) string {
	return base + "/#"
}

// DeviceFromTopic returns the last level of topic, which is the device ID
// for state and command topics.
func (Topics) DeviceFromTopic(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}
