package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balmee/watering-core/internal/model"
	"github.com/balmee/watering-core/internal/services/actuator"
	"github.com/balmee/watering-core/internal/services/history"
	"github.com/balmee/watering-core/internal/services/stream"
	"github.com/balmee/watering-core/pkg/mqttconn"
)

type fakePublisher struct {
	connected bool
	published []string
}

func (f *fakePublisher) Connected() bool { return f.connected }
func (f *fakePublisher) PublishMessage(payload string) error {
	f.published = append(f.published, payload)
	return nil
}

func newTestSession(pub mqttconn.IPublisher) (*Session, *model.Telemetry) {
	tel := model.NewTelemetry()
	sc := stream.NewClient(stream.Config{
		Conn:      mqttconn.Config{BrokerURL: "tcp://localhost:1883", ClientID: "test"},
		DataTopic: "watering/data",
	}, tel)
	archive := history.NewArchive("http://localhost", 0, "", model.WindowSize, time.Second)
	poller := history.NewPoller(archive, tel, 0, time.Minute)
	return NewSession(tel, sc, poller, actuator.NewCommander(pub), nil), tel
}

func TestSnapshotEndpoint(t *testing.T) {
	s, tel := newTestSession(&fakePublisher{})
	tel.ApplyLiveReading(model.Reading{Pump: "ON"})
	require.NoError(t, tel.ApplyHistory(
		[]string{"10:00"},
		model.MetricSeries{{Value: 1}},
		model.MetricSeries{{Value: 2}},
		model.MetricSeries{{Value: 3}},
	))

	rec := httptest.NewRecorder()
	NewMux(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telemetry/snapshot", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "ON", snap.Live.Pump)
	assert.Equal(t, []string{"10:00"}, snap.History.Labels)
	assert.Equal(t, model.StateDisconnected, snap.State)
}

func TestPumpRunAccepted(t *testing.T) {
	pub := &fakePublisher{connected: true}
	s, _ := newTestSession(pub)

	rec := httptest.NewRecorder()
	NewMux(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pump/run?seconds=20", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"RUN:20"}, pub.published)
}

func TestPumpRunRejectedWhileDisconnected(t *testing.T) {
	pub := &fakePublisher{connected: false}
	s, _ := newTestSession(pub)

	rec := httptest.NewRecorder()
	NewMux(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pump/run?seconds=20", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, pub.published)
}

func TestPumpRunBadDuration(t *testing.T) {
	pub := &fakePublisher{connected: true}
	s, _ := newTestSession(pub)

	rec := httptest.NewRecorder()
	NewMux(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pump/run?seconds=7", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.published)
}

func TestPumpRunRequiresPost(t *testing.T) {
	s, _ := newTestSession(&fakePublisher{connected: true})

	rec := httptest.NewRecorder()
	NewMux(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pump/run?seconds=20", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthzDegradedWithoutStream(t *testing.T) {
	s, _ := newTestSession(&fakePublisher{})

	rec := httptest.NewRecorder()
	NewMux(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, false, body["mqtt_connected"])
	assert.Equal(t, "disconnected", body["connection_state"])
}
