package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// Archive reads the most recent window of samples from a ThingSpeak-style
// channel: GET /channels/{id}/feeds.json?results=N[&api_key=K]. Calls go
// through a circuit breaker so a flapping archive does not get hammered every
// poll cycle.
type Archive struct {
	base      string
	channelID int64
	readKey   string
	results   int
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
}

type feedEntry struct {
	CreatedAt string `json:"created_at"`
	Field1    any    `json:"field1"` // moisture
	Field2    any    `json:"field2"` // temperature
	Field3    any    `json:"field3"` // humidity
}

type feedsResponse struct {
	Feeds []feedEntry `json:"feeds"`
}

func NewArchive(base string, channelID int64, readKey string, results int, timeout time.Duration) *Archive {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	return &Archive{
		base:      base,
		channelID: channelID,
		readKey:   readKey,
		results:   results,
		client:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "archive",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (a *Archive) url() string {
	u := fmt.Sprintf("%s/channels/%d/feeds.json?results=%d", a.base, a.channelID, a.results)
	if a.readKey != "" {
		u += "&api_key=" + a.readKey
	}
	return u
}

func (a *Archive) fetch(ctx context.Context) ([]feedEntry, error) {
	res, err := a.breaker.Execute(func() (any, error) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, a.url(), nil)
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("archive request error: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("archive status %d", resp.StatusCode)
		}
		var body feedsResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("archive decode error: %w", err)
		}
		return body.Feeds, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]feedEntry), nil
}

// toF64 coerces the archive's numeric-string fields; ThingSpeak serves
// numbers as strings, older exports as raw numbers.
func toF64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}
