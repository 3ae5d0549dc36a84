// Package stream owns the live MQTT subscription: one long-lived client,
// a connect/errored/retry state machine surfaced through the telemetry
// model, and decoding of inbound readings.
package stream

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/balmee/watering-core/internal/metrics"
	"github.com/balmee/watering-core/internal/model"
	"github.com/balmee/watering-core/pkg/mqttconn"
)

const defaultConnectTimeout = 5 * time.Second

type Config struct {
	Conn      mqttconn.Config
	DataTopic string
}

// Client maintains one logical subscription to the data topic. Connection
// state transitions are written to the telemetry model; decoded readings
// replace its live sample.
type Client struct {
	cfg    Config
	tel    *model.Telemetry
	client mqtt.Client

	obsMu     sync.Mutex
	onReading []func(model.Reading)
	onState   []func(model.ConnState)

	closed   atomic.Bool
	stopOnce sync.Once
}

func NewClient(cfg Config, tel *model.Telemetry) *Client {
	if cfg.Conn.ConnectTimeout <= 0 {
		cfg.Conn.ConnectTimeout = defaultConnectTimeout
	}
	c := &Client{cfg: cfg, tel: tel}

	opts := cfg.Conn.ClientOptions()
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)
	c.client = mqtt.NewClient(opts)
	return c
}

// OnReading registers an observer invoked once per decoded reading, after
// the model has been updated. Register before Start.
func (c *Client) OnReading(fn func(model.Reading)) {
	c.obsMu.Lock()
	c.onReading = append(c.onReading, fn)
	c.obsMu.Unlock()
}

// OnStateChange registers an observer invoked on every connection state
// transition. Register before Start.
func (c *Client) OnStateChange(fn func(model.ConnState)) {
	c.obsMu.Lock()
	c.onState = append(c.onState, fn)
	c.obsMu.Unlock()
}

// Start opens the connection asynchronously and returns immediately. Initial
// connect failures move the state to errored and are retried with exponential
// backoff until ctx is cancelled; once connected, paho's auto-reconnect takes
// over.
func (c *Client) Start(ctx context.Context) {
	c.setState(model.StateConnecting)

	go func() {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 0 // retry until cancelled
		err := backoff.Retry(func() error {
			if c.closed.Load() {
				return backoff.Permanent(context.Canceled)
			}
			if c.client.IsConnectionOpen() {
				// a previous slow attempt completed after its timeout
				if c.transition(model.StateErrored, model.StateConnecting) {
					c.transition(model.StateConnecting, model.StateConnected)
				}
				return nil
			}
			c.transition(model.StateErrored, model.StateConnecting)
			token := c.client.Connect()
			if !token.WaitTimeout(c.cfg.Conn.ConnectTimeout) {
				c.transition(model.StateConnecting, model.StateErrored)
				log.Printf("stream: connect to %s timed out", c.cfg.Conn.BrokerURL)
				return context.DeadlineExceeded
			}
			if token.Error() != nil {
				c.transition(model.StateConnecting, model.StateErrored)
				log.Printf("stream: connect to %s failed: %v", c.cfg.Conn.BrokerURL, token.Error())
				return token.Error()
			}
			return nil
		}, backoff.WithContext(bo, ctx))
		if err != nil && !c.closed.Load() {
			log.Printf("stream: giving up on initial connect: %v", err)
		}
	}()
}

// onConnect runs on every (re)connect; the session is clean, so the data
// topic has to be subscribed again each time.
func (c *Client) onConnect(client mqtt.Client) {
	if c.closed.Load() {
		return
	}
	// A connect attempt the retry loop had already written off as errored can
	// still land here; walk through connecting so the edge stays legal. Every
	// step is conditional, since the retry loop or a concurrent Stop may have
	// moved the state first.
	c.transition(model.StateErrored, model.StateConnecting)
	if !c.transition(model.StateConnecting, model.StateConnected) &&
		c.tel.ConnState() != model.StateConnected {
		// stopped while the handler was in flight
		return
	}
	if token := client.Subscribe(c.cfg.DataTopic, 0, c.handleData); token.Wait() && token.Error() != nil {
		log.Printf("stream: subscribe to %s failed: %v", c.cfg.DataTopic, token.Error())
		return
	}
	log.Printf("stream: subscribed to %s", c.cfg.DataTopic)
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	if c.closed.Load() {
		return
	}
	log.Printf("stream: connection lost: %v", err)
	if !c.transition(model.StateConnected, model.StateErrored) {
		c.transition(model.StateConnecting, model.StateErrored)
	}
}

func (c *Client) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	if c.closed.Load() {
		return
	}
	// paho calls this before every retry; only the first one is a transition.
	c.transition(model.StateErrored, model.StateConnecting)
}

// handleData decodes one inbound message and replaces the live reading. A
// payload that does not parse is dropped and counted, never fatal.
func (c *Client) handleData(_ mqtt.Client, msg mqtt.Message) {
	r, err := model.DecodeReading(msg.Payload(), time.Now())
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		log.Printf("stream: bad payload on %s: %v", msg.Topic(), err)
		return
	}
	c.tel.ApplyLiveReading(r)
	metrics.ReadingsTotal.Inc()
	c.obsMu.Lock()
	obs := c.onReading
	c.obsMu.Unlock()
	for _, fn := range obs {
		fn(r)
	}
}

// Publish sends a fire-and-forget message on the live connection. Only valid
// while connected; there is no queueing while disconnected.
func (c *Client) Publish(topic, payload string) error {
	if !c.client.IsConnectionOpen() {
		return mqttconn.ErrNotConnected
	}
	token := c.client.Publish(topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

// Publisher binds a fixed outbound topic to the live connection, for callers
// that publish commands over the same transport as the subscription.
func (c *Client) Publisher(topic string) mqttconn.IPublisher {
	return mqttconn.NewPublisher(c.client, topic)
}

// Connected reports whether the underlying transport is open right now.
func (c *Client) Connected() bool { return c.client.IsConnectionOpen() }

// Stop tears the connection down and drives the model to disconnected. Safe
// to call on every exit path, including before the connect ever completed.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.closed.Store(true)
		mqttconn.Close(c.client)
		c.setState(model.StateDisconnected)
		log.Printf("stream: stopped")
	})
}

// setState applies an unconditional transition; only valid where no other
// goroutine can move the state first (Start's initial connecting, Stop's
// teardown).
func (c *Client) setState(to model.ConnState) {
	c.tel.SetConnState(to)
	c.notifyState(to)
}

// transition applies from -> to only when the model is still in from.
// Handlers run on paho goroutines concurrent with the retry loop, so every
// promotion they make has to be conditional.
func (c *Client) transition(from, to model.ConnState) bool {
	if !c.tel.TransitionFrom(from, to) {
		return false
	}
	c.notifyState(to)
	return true
}

func (c *Client) notifyState(to model.ConnState) {
	if to == model.StateConnected {
		metrics.StreamConnected.Set(1)
	} else {
		metrics.StreamConnected.Set(0)
	}
	c.obsMu.Lock()
	obs := c.onState
	c.obsMu.Unlock()
	for _, fn := range obs {
		fn(to)
	}
}
