package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// LifecycleMeasurement is the measurement holding power transitions.
const LifecycleMeasurement = "lifecycle"

// WritePoint writes a point stamped now.
//
// Example:
//
//	client.WritePoint("system_performance",
//	    map[string]string{"host": "desk"},
//	    map[string]interface{}{"cpu_load": 45.2, "memory_free": 3.1})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

// WriteLifecycleEvent records a power transition. detail is omitted when
// empty.
func (c *Client) WriteLifecycleEvent(event, outcome, detail string) {
	fields := map[string]interface{}{
		"count": 1,
	}
	if detail != "" {
		fields["detail"] = detail
	}

	tags := map[string]string{
		"event":   event,
		"outcome": outcome,
	}
	if c.host != "" {
		tags["host"] = c.host
	}
	c.WritePoint(LifecycleMeasurement, tags, fields)
}

// EventRecorder records lifecycle transitions as InfluxDB points.
type EventRecorder struct {
	Client *Client
}

// Record writes a lifecycle point. It never blocks on the network.
func (r EventRecorder) Record(_ context.Context, event, outcome, detail string) error {
	r.Client.WriteLifecycleEvent(event, outcome, detail)
	return nil
}
