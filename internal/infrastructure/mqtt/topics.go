package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the Home Assistant discovery prefix.
const TopicPrefix = "homeassistant"

// Topics provides builders for the Home Assistant topics owned by one host.
// Using these helpers keeps discovery, subscriptions and publishes in sync.
//
//	topics := mqtt.Topics{Host: "desk"}
//	topics.ButtonCommand("Lock Screen")
//	// Returns: "homeassistant/button/desk_lock_screen/set"
type Topics struct {
	Host string
}

// ObjectID returns the entity ID for a named component: host, an
// underscore, and the name lowercased with spaces replaced by underscores.
func (t Topics) ObjectID(name string) string {
	return t.Host + "_" + strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// =============================================================================
// Device
// =============================================================================

// DeviceDiscovery returns the device-based discovery topic.
//
// Example: homeassistant/device/desk/config
func (t Topics) DeviceDiscovery() string {
	return fmt.Sprintf("%s/device/%s/config", TopicPrefix, t.Host)
}

// =============================================================================
// Sensors
// =============================================================================

// SensorState returns the state topic for a host sensor.
//
// Example: homeassistant/sensor/desk/status/state
func (t Topics) SensorState(sensor string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/state", TopicPrefix, t.Host, sensor)
}

// Status returns the agent status topic ("On", "Off", "Suspended").
func (t Topics) Status() string {
	return t.SensorState("status")
}

// SystemPerformance returns the topic carrying host metric samples.
func (t Topics) SystemPerformance() string {
	return t.SensorState("system_performance")
}

// =============================================================================
// Commands
// =============================================================================

// ButtonCommand returns the topic Home Assistant presses a button on.
//
// Example: homeassistant/button/desk_lock_screen/set
func (t Topics) ButtonCommand(name string) string {
	return fmt.Sprintf("%s/button/%s/set", TopicPrefix, t.ObjectID(name))
}

// SwitchCommand returns the topic Home Assistant sends ON/OFF to.
func (t Topics) SwitchCommand(name string) string {
	return fmt.Sprintf("%s/switch/%s/set", TopicPrefix, t.ObjectID(name))
}

// SwitchState returns the retained state topic of a switch.
func (t Topics) SwitchState(name string) string {
	return fmt.Sprintf("%s/switch/%s/state", TopicPrefix, t.ObjectID(name))
}

// NotifyCommand returns the topic carrying desktop notifications.
//
// Example: homeassistant/notify/desk_notifications/command
func (t Topics) NotifyCommand() string {
	return fmt.Sprintf("%s/notify/%s/command", TopicPrefix, t.ObjectID("notifications"))
}
