// Package discovery builds the Home Assistant device-discovery message that
// announces every entity the agent exposes for a host.
package discovery

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Platform is a Home Assistant entity platform.
type Platform string

// Platforms used by the agent.
const (
	PlatformButton Platform = "button"
	PlatformSensor Platform = "sensor"
	PlatformSwitch Platform = "switch"
	PlatformNotify Platform = "notify"
)

// Device identity reported to Home Assistant.
const (
	DeviceModel        = "MQTT Daemon"
	DeviceManufacturer = "Custom"
	OriginName         = "hars-imp"
	OriginURL          = "https://github.com/nerrad567/hars-imp"
)

// Component is one entity in the device's "cmps" map. Keys use Home
// Assistant's abbreviated discovery names.
type Component struct {
	Platform          Platform `json:"p"`
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	CommandTopic      string   `json:"cmd_t,omitempty"`
	StateTopic        string   `json:"stat_t,omitempty"`
	DeviceClass       string   `json:"dev_cla,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_meas,omitempty"`
	ValueTemplate     string   `json:"val_tpl,omitempty"`
}

// Button returns a button component.
func Button(name, uniqueID, commandTopic string) Component {
	return Component{Platform: PlatformButton, Name: name, UniqueID: uniqueID, CommandTopic: commandTopic}
}

// Switch returns a switch component.
func Switch(name, uniqueID, commandTopic, stateTopic string) Component {
	return Component{
		Platform:     PlatformSwitch,
		Name:         name,
		UniqueID:     uniqueID,
		CommandTopic: commandTopic,
		StateTopic:   stateTopic,
	}
}

// Notify returns a notify component.
func Notify(name, uniqueID, commandTopic string) Component {
	return Component{Platform: PlatformNotify, Name: name, UniqueID: uniqueID, CommandTopic: commandTopic}
}

// Sensor returns a sensor reading field from a JSON state payload.
func Sensor(name, uniqueID, stateTopic, field, unit, deviceClass string) Component {
	return Component{
		Platform:          PlatformSensor,
		Name:              name,
		UniqueID:          uniqueID,
		StateTopic:        stateTopic,
		DeviceClass:       deviceClass,
		UnitOfMeasurement: unit,
		ValueTemplate:     ValueTemplate(field),
	}
}

// ValueTemplate returns the Jinja template extracting field from value_json.
func ValueTemplate(field string) string {
	return fmt.Sprintf("{{ value_json.%s }}", field)
}

// Device is the "dev" block.
type Device struct {
	Identifiers  string `json:"ids"`
	Name         string `json:"name"`
	Model        string `json:"mdl"`
	Manufacturer string `json:"mf"`
	SWVersion    string `json:"sw"`
}

// Origin is the "o" block.
type Origin struct {
	Name       string `json:"name"`
	SWVersion  string `json:"sw"`
	SupportURL string `json:"url"`
}

// Payload is the complete device-discovery message.
type Payload struct {
	Device     Device               `json:"dev"`
	Origin     Origin               `json:"o"`
	Components map[string]Component `json:"cmps"`
}

// Builder accumulates components for one host.
type Builder struct {
	host       string
	version    string
	components map[string]Component
}

// NewBuilder creates a Builder for host, reporting version as the software version.
func NewBuilder(host, version string) *Builder {
	return &Builder{
		host:       host,
		version:    version,
		components: make(map[string]Component),
	}
}

// Add registers a component under id. A later Add with the same id replaces it.
func (b *Builder) Add(id string, c Component) *Builder {
	b.components[id] = c
	return b
}

// AddAll registers every component in cs, keyed by unique ID.
func (b *Builder) AddAll(cs []Component) *Builder {
	for _, c := range cs {
		b.Add(c.UniqueID, c)
	}
	return b
}

// IDs returns the registered component IDs in sorted order.
func (b *Builder) IDs() []string {
	ids := make([]string, 0, len(b.components))
	for id := range b.components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Build returns the payload.
func (b *Builder) Build() Payload {
	cmps := make(map[string]Component, len(b.components))
	for id, c := range b.components {
		cmps[id] = c
	}
	return Payload{
		Device: Device{
			Identifiers:  b.host,
			Name:         b.host,
			Model:        DeviceModel,
			Manufacturer: DeviceManufacturer,
			SWVersion:    b.version,
		},
		Origin: Origin{
			Name:       OriginName,
			SWVersion:  b.version,
			SupportURL: OriginURL,
		},
		Components: cmps,
	}
}

// Marshal returns the JSON encoding of Build.
func (b *Builder) Marshal() ([]byte, error) {
	data, err := json.Marshal(b.Build())
	if err != nil {
		return nil, fmt.Errorf("encoding discovery payload: %w", err)
	}
	return data, nil
}
