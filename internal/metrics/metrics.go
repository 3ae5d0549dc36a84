// Package metrics holds the process-wide Prometheus collectors, exposed by
// the monitor binary on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReadingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watering_readings_total",
		Help: "Live readings decoded from the data topic.",
	})

	DecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watering_decode_errors_total",
		Help: "Inbound payloads dropped because they failed to decode.",
	})

	HistoryFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watering_history_fetches_total",
		Help: "Archive fetch attempts by outcome.",
	}, []string{"outcome"})

	PumpCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watering_pump_commands_total",
		Help: "Pump run commands by outcome.",
	}, []string{"outcome"})

	StreamConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "watering_stream_connected",
		Help: "1 while the live MQTT stream is connected.",
	})
)
