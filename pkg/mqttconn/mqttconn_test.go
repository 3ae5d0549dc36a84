package mqttconn

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptions(t *testing.T) {
	cfg := Config{
		BrokerURL:      "ssl://broker.example:8883",
		User:           "balmee",
		Password:       "secret",
		ClientID:       "watering-monitor",
		ConnectTimeout: 5 * time.Second,
	}

	opts := cfg.ClientOptions()

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "ssl://broker.example:8883", opts.Servers[0].String())
	assert.Equal(t, "balmee", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, "watering-monitor", opts.ClientID)
	assert.True(t, opts.CleanSession)
	assert.Equal(t, 5*time.Second, opts.ConnectTimeout)
}

func TestDialStopsRetryingOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// nothing listens on port 1; the first attempt fails fast and the
	// cancelled context must suppress every retry
	start := time.Now()
	client, err := Dial(ctx, Config{
		BrokerURL:      "tcp://127.0.0.1:1",
		ClientID:       "test",
		ConnectTimeout: 500 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCloseOwnsTeardown(t *testing.T) {
	// callers tear connections down themselves; Close must tolerate a nil
	// client and one that never connected
	assert.NotPanics(t, func() { Close(nil) })

	client := mqtt.NewClient(Config{BrokerURL: "tcp://localhost:1883", ClientID: "test"}.ClientOptions())
	assert.NotPanics(t, func() { Close(client) })
	assert.NotPanics(t, func() { Close(client) })
}
