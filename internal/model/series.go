package model

import "time"

// WindowSize is the number of archived samples kept per metric: a fixed
// sliding window, not an unbounded log.
const WindowSize = 40

// SeriesPoint is one archived sample of a single metric.
type SeriesPoint struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// MetricSeries is an ordered series of points, chronological as returned by
// the archive.
type MetricSeries []SeriesPoint

// History holds the archived window for the three metrics plus the shared
// positional label slice. All four are always the same length.
type History struct {
	Labels      []string     `json:"labels"`
	Moisture    MetricSeries `json:"moisture"`
	Temperature MetricSeries `json:"temperature"`
	Humidity    MetricSeries `json:"humidity"`
}

func copySeries(s MetricSeries) MetricSeries {
	if s == nil {
		return nil
	}
	out := make(MetricSeries, len(s))
	copy(out, s)
	return out
}

func copyLabels(l []string) []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l))
	copy(out, l)
	return out
}
