package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balmee/watering-core/internal/model"
)

func feedsBody(n int, mangle func(i int, f map[string]any)) []byte {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	feeds := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		f := map[string]any{
			"created_at": base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"field1":     fmt.Sprintf("%d", 30+i),
			"field2":     "21.5",
			"field3":     "55",
		}
		if mangle != nil {
			mangle(i, f)
		}
		feeds = append(feeds, f)
	}
	body, _ := json.Marshal(map[string]any{"feeds": feeds})
	return body
}

func newPoller(t *testing.T, srvURL string) (*Poller, *model.Telemetry) {
	t.Helper()
	tel := model.NewTelemetry()
	archive := NewArchive(srvURL, 2989896, "", model.WindowSize, 2*time.Second)
	return NewPoller(archive, tel, 2989896, time.Minute), tel
}

func TestFetchOnceZeroFillsMalformedSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/2989896/feeds.json", r.URL.Path)
		assert.Equal(t, "40", r.URL.Query().Get("results"))
		_, _ = w.Write(feedsBody(40, func(i int, f map[string]any) {
			if i == 7 {
				f["field1"] = "not-a-number"
			}
		}))
	}))
	defer srv.Close()

	p, tel := newPoller(t, srv.URL)
	p.FetchOnce(context.Background())

	snap := tel.Snapshot()
	require.Len(t, snap.History.Labels, 40)
	require.Len(t, snap.History.Moisture, 40)
	require.Len(t, snap.History.Temperature, 40)
	require.Len(t, snap.History.Humidity, 40)

	// the malformed sample is zero-filled, not dropped
	assert.Equal(t, 0.0, snap.History.Moisture[7].Value)
	assert.Equal(t, 36.0, snap.History.Moisture[6].Value)
	// its timestamp and label survive the coercion failure
	assert.NotEmpty(t, snap.History.Labels[7])
	assert.False(t, snap.History.Moisture[7].At.IsZero())
}

func TestFetchOnceTruncatesToWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(feedsBody(55, nil))
	}))
	defer srv.Close()

	p, tel := newPoller(t, srv.URL)
	p.FetchOnce(context.Background())

	snap := tel.Snapshot()
	require.Len(t, snap.History.Moisture, model.WindowSize)
	// the window keeps the most recent samples
	assert.Equal(t, float64(30+54), snap.History.Moisture[model.WindowSize-1].Value)
}

func TestFetchOnceFailureKeepsPreviousWindow(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(feedsBody(10, nil))
	}))
	defer srv.Close()

	p, tel := newPoller(t, srv.URL)
	p.FetchOnce(context.Background())
	require.Len(t, tel.Snapshot().History.Moisture, 10)

	fail.Store(true)
	p.FetchOnce(context.Background())

	// previous series retained, no crash
	assert.Len(t, tel.Snapshot().History.Moisture, 10)
}

func TestPollerDisabledWithoutChannel(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	tel := model.NewTelemetry()
	archive := NewArchive(srv.URL, 0, "", model.WindowSize, time.Second)
	p := NewPoller(archive, tel, 0, time.Minute)

	assert.False(t, p.Enabled())
	p.FetchOnce(context.Background())
	assert.False(t, called)
	assert.Empty(t, tel.Snapshot().History.Labels)
}

func TestArchiveURLIncludesReadKey(t *testing.T) {
	a := NewArchive("https://api.thingspeak.com/", 225999, "SECRET", 40, time.Second)
	assert.Equal(t, "https://api.thingspeak.com/channels/225999/feeds.json?results=40&api_key=SECRET", a.url())
}
