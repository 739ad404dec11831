package sysmon

import (
	"github.com/nerrad567/hars-imp/internal/discovery"
	"github.com/nerrad567/hars-imp/internal/infrastructure/mqtt"
)

// Metric describes one sensor read from the performance payload.
type Metric struct {
	Name        string
	Field       string
	Unit        string
	DeviceClass string
}

// Metrics lists every published field in payload order.
var Metrics = []Metric{
	{Name: "CPU Load", Field: "cpu_load", Unit: "%"},
	{Name: "CPU Frequency", Field: "cpu_frequency", Unit: "GHz"},
	{Name: "Memory Total", Field: "memory_total", Unit: "GB", DeviceClass: "data_size"},
	{Name: "Memory Free", Field: "memory_free", Unit: "GB", DeviceClass: "data_size"},
	{Name: "Memory Free %", Field: "memory_free_percentage", Unit: "%"},
	{Name: "Disk Total", Field: "disk_total", Unit: "GB", DeviceClass: "data_size"},
	{Name: "Disk Free", Field: "disk_free", Unit: "GB", DeviceClass: "data_size"},
	{Name: "Disk Free %", Field: "disk_free_percentage", Unit: "%"},
}

// Components returns the discovery sensors for host: one per metric plus the
// Status sensor, keyed by metric field and "status".
func Components(host string) map[string]discovery.Component {
	topics := mqtt.Topics{Host: host}
	state := topics.SystemPerformance()

	out := make(map[string]discovery.Component, len(Metrics)+1)
	for _, m := range Metrics {
		out[m.Field] = discovery.Sensor(m.Name, topics.ObjectID(m.Field), state, m.Field, m.Unit, m.DeviceClass)
	}
	out["status"] = discovery.Sensor("Status", topics.ObjectID("status"), topics.Status(), "status", "", "")
	return out
}
