package mqttconn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned when a publish is attempted while the
// underlying client has no open connection. Callers are expected to check
// connection health first; there is no queueing of messages.
var ErrNotConnected = errors.New("mqtt: not connected")

type Config struct {
	BrokerURL string // e.g. ssl://broker.example:8883 or tcp://localhost:1883
	User      string
	Password  string
	ClientID  string

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration
}

// ClientOptions builds paho options from the config: clean session,
// username/password, bounded connect timeout. Callers install their own
// handlers before connecting.
func (c Config) ClientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.BrokerURL)
	opts.SetUsername(c.User)
	opts.SetPassword(c.Password)
	opts.SetClientID(c.ClientID)
	opts.SetCleanSession(true)
	if c.ConnectTimeout > 0 {
		opts.SetConnectTimeout(c.ConnectTimeout)
	}
	return opts
}

// Dial connects a short-lived client, retrying with exponential backoff.
// ctx bounds the retries only; the caller owns teardown via Close.
func Dial(ctx context.Context, cfg Config) (mqtt.Client, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	maxRetries := 5

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(cfg.ClientOptions())
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("mqttconn: connect to %s failed: %v", cfg.BrokerURL, token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}
	return client, nil
}

// Close disconnects the client if it still holds an open connection.
func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
