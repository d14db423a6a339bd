// Package influxdb records charger telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, health checks and a bridge change sink.
//
// # Measurements
//
//   - charger_bay: one point per bay change, tagged charger and bay.
//     Fields still at a no-data sentinel are omitted.
//   - charger_status: flash and storage_mode, tagged charger and model.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sink := influxdb.NewSink(client, cfg.Charger.BridgeID)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched (batch_size, flush_interval); async write errors go to the
// SetOnError callback.
package influxdb
