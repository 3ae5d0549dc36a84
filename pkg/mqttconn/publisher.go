package mqttconn

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher is the outbound half of a connection: a fire-and-forget send to
// one fixed topic. Success means the send was accepted by the local transport,
// nothing more.
type IPublisher interface {
	PublishMessage(payload string) error
	Connected() bool
}

// Publisher publishes to a single topic over a shared MQTT client.
type Publisher struct {
	client mqtt.Client
	topic  string
}

func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) Connected() bool {
	return p.client != nil && p.client.IsConnectionOpen()
}

// PublishMessage sends payload at QoS 0. The caller must check Connected
// first; publishing on a closed connection returns ErrNotConnected instead of
// buffering.
func (p *Publisher) PublishMessage(payload string) error {
	if !p.Connected() {
		return ErrNotConnected
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, token.Error())
	}
	return nil
}
