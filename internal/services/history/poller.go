// Package history pulls a bounded window of archived samples on a fixed
// interval and republishes it to the telemetry model as three aligned metric
// series plus a shared label slice.
package history

import (
	"context"
	"log"
	"time"

	"github.com/balmee/watering-core/internal/metrics"
	"github.com/balmee/watering-core/internal/model"
)

const (
	// DefaultInterval matches the dashboard's refresh period.
	DefaultInterval = 60 * time.Second

	labelLayout = "15:04"
)

type Poller struct {
	archive  *Archive
	tel      *model.Telemetry
	interval time.Duration
	enabled  bool
}

// NewPoller wires the archive reader to the model. A zero channel id means
// archive reads were not configured: the poller stays a no-op and says so
// once at startup instead of failing.
func NewPoller(archive *Archive, tel *model.Telemetry, channelID int64, interval time.Duration) *Poller {
	enabled := channelID != 0
	if !enabled {
		log.Printf("history: archive channel not configured, history disabled")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{archive: archive, tel: tel, interval: interval, enabled: enabled}
}

func (p *Poller) Enabled() bool { return p.enabled }

// FetchOnce reads one window and applies it atomically. Transport and parse
// failures keep the previous window and only surface as a diagnostic; they
// never propagate a crash into the poll loop.
func (p *Poller) FetchOnce(ctx context.Context) {
	if !p.enabled {
		return
	}
	feeds, err := p.archive.fetch(ctx)
	if err != nil {
		metrics.HistoryFetchesTotal.WithLabelValues("error").Inc()
		log.Printf("history: fetch failed: %v", err)
		return
	}

	// Keep only the most recent window if the archive returns more.
	if len(feeds) > model.WindowSize {
		feeds = feeds[len(feeds)-model.WindowSize:]
	}

	labels := make([]string, 0, len(feeds))
	moisture := make(model.MetricSeries, 0, len(feeds))
	temperature := make(model.MetricSeries, 0, len(feeds))
	humidity := make(model.MetricSeries, 0, len(feeds))

	for _, f := range feeds {
		ts, err := time.Parse(time.RFC3339, f.CreatedAt)
		if err != nil {
			log.Printf("history: bad created_at %q: %v", f.CreatedAt, err)
		}
		// The timestamp is always recorded; a metric that fails coercion is
		// zero-filled so the three series never fall out of alignment with
		// the shared labels.
		labels = append(labels, ts.Local().Format(labelLayout))
		moisture = append(moisture, point(ts, f.Field1))
		temperature = append(temperature, point(ts, f.Field2))
		humidity = append(humidity, point(ts, f.Field3))
	}

	if err := p.tel.ApplyHistory(labels, moisture, temperature, humidity); err != nil {
		// Length mismatch cannot happen with the loop above; treat it as the
		// programming error it is.
		metrics.HistoryFetchesTotal.WithLabelValues("error").Inc()
		log.Printf("history: apply failed: %v", err)
		return
	}
	metrics.HistoryFetchesTotal.WithLabelValues("ok").Inc()
}

func point(ts time.Time, raw any) model.SeriesPoint {
	v, ok := toF64(raw)
	if !ok {
		v = 0 // zero-fill keeps series aligned with labels
	}
	return model.SeriesPoint{At: ts, Value: v}
}

// Run fetches immediately and then on a fixed period until ctx is cancelled.
// Fetches are sequential, so two cycles can never interleave a partial
// window.
func (p *Poller) Run(ctx context.Context) {
	if !p.enabled {
		return
	}
	p.FetchOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.FetchOnce(ctx)
		}
	}
}
