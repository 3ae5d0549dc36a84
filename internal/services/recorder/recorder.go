// Package recorder mirrors live readings into InfluxDB. It is an optional
// sink: the telemetry core works identically without it, and write failures
// never reach the stream path.
package recorder

import (
	"fmt"
	"log"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/balmee/watering-core/internal/model"
)

type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// Recorder wraps the async write API and tracks the age of the last write
// error for health reporting.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	measurement string

	mu      sync.RWMutex
	lastErr time.Time
}

func New(cfg Config) (*Recorder, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	if cfg.Measurement == "" {
		cfg.Measurement = "watering_telemetry"
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	w := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{
		client:      client,
		writeAPI:    w,
		measurement: cfg.Measurement,
		lastErr:     time.Now().Add(-24 * time.Hour),
	}
	go func() {
		for err := range w.Errors() {
			if err != nil {
				r.mu.Lock()
				r.lastErr = time.Now()
				r.mu.Unlock()
				log.Printf("recorder: influx write error: %v", err)
			}
		}
	}()
	return r, nil
}

// Record writes one reading asynchronously. Absent metrics are omitted from
// the point rather than written as zero.
func (r *Recorder) Record(rd model.Reading) {
	fields := map[string]any{}
	if rd.Moisture != nil {
		fields["moisture"] = *rd.Moisture
	}
	if rd.Temperature != nil {
		fields["temperature"] = *rd.Temperature
	}
	if rd.Humidity != nil {
		fields["humidity"] = *rd.Humidity
	}
	if len(fields) == 0 {
		return
	}
	tags := map[string]string{}
	if rd.Pump != "" {
		tags["pump"] = rd.Pump
	}
	t := rd.At
	if t.IsZero() {
		t = time.Now()
	}
	r.writeAPI.WritePoint(influxdb2.NewPoint(r.measurement, tags, fields, t))
}

// LastErrorAge returns how long it has been since a write failed.
func (r *Recorder) LastErrorAge() time.Duration {
	if r == nil {
		return 99999 * time.Hour
	}
	r.mu.RLock()
	t := r.lastErr
	r.mu.RUnlock()
	return time.Since(t)
}

func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.writeAPI.Flush()
	r.client.Close()
}
