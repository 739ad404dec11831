// Package influxdb writes host telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Two kinds of points
// are written: periodic system_performance samples from the host monitor,
// and lifecycle points recording power transitions (suspend, resume,
// shutdown) so they can be graphed next to the metrics.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Hostname)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("system_performance",
//	    map[string]string{"host": "desk"},
//	    map[string]interface{}{"cpu_load": 12.5})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; failures are delivered to the SetOnError callback.
package influxdb
