package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"State", topics.State("smartthings", "a1b2"), "graylogic/state/smartthings/a1b2"},
		{"Command", topics.Command("smartthings", "a1b2"), "graylogic/command/smartthings/a1b2"},
		{"AllCommands", topics.AllCommands("smartthings"), "graylogic/command/smartthings/+"},
		{"Health", topics.Health("smartthings"), "graylogic/health/smartthings"},
		{"Status", topics.Status("graylogic-cloud"), "graylogic/system/status/graylogic-cloud"},
		{"Events", topics.Events("graylogic/events/smartthings"), "graylogic/events/smartthings/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDeviceFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"graylogic/command/smartthings/a1b2", "a1b2"},
		{"a1b2", "a1b2"},
		{"graylogic/command/smartthings/", ""},
	}
	for _, tt := range tests {
		if got := (Topics{}).DeviceFromTopic(tt.topic); got != tt.want {
			t.Errorf("DeviceFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
