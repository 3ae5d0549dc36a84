// Package actuator turns a user-chosen duration into a single fire-and-forget
// pump command on the manual-control topic.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/balmee/watering-core/internal/metrics"
	"github.com/balmee/watering-core/pkg/mqttconn"
)

// AllowedDurations are the run lengths offered to the user, in seconds.
var AllowedDurations = []int{5, 10, 20, 30, 60}

var (
	// ErrBadDuration marks a caller contract violation: the duration is not
	// one of the enumerated run lengths.
	ErrBadDuration = errors.New("actuator: duration not in allowed set")

	// ErrRejected is reported when a command is attempted without a live
	// connection. The command is not queued or retried.
	ErrRejected = errors.New("actuator: no connection, command rejected")
)

const ephemeralConnectTimeout = 4 * time.Second

// Commander publishes run commands over an already-open connection,
// typically the live stream's.
type Commander struct {
	pub mqttconn.IPublisher
}

func NewCommander(pub mqttconn.IPublisher) *Commander {
	return &Commander{pub: pub}
}

// RunFor publishes RUN:<seconds> once. No acknowledgement is awaited: success
// means the local transport accepted the send, not that the pump ran.
func (c *Commander) RunFor(seconds int) error {
	if !durationAllowed(seconds) {
		return fmt.Errorf("%w: %d", ErrBadDuration, seconds)
	}
	if !c.pub.Connected() {
		metrics.PumpCommandsTotal.WithLabelValues("rejected").Inc()
		log.Printf("actuator: run for %ds rejected, not connected", seconds)
		return ErrRejected
	}
	if err := c.pub.PublishMessage(Payload(seconds)); err != nil {
		if errors.Is(err, mqttconn.ErrNotConnected) {
			metrics.PumpCommandsTotal.WithLabelValues("rejected").Inc()
			return ErrRejected
		}
		metrics.PumpCommandsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PumpCommandsTotal.WithLabelValues("sent").Inc()
	log.Printf("actuator: pump run for %ds published", seconds)
	return nil
}

// RunForEphemeral opens a short-lived connection for a single command and
// tears it down on every exit path, so manual control does not depend on the
// monitoring stream's connection. The dial uses its own bounded timeout.
func RunForEphemeral(ctx context.Context, cfg mqttconn.Config, topic string, seconds int) error {
	if !durationAllowed(seconds) {
		return fmt.Errorf("%w: %d", ErrBadDuration, seconds)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = ephemeralConnectTimeout
	}
	client, err := mqttconn.Dial(ctx, cfg)
	if err != nil {
		metrics.PumpCommandsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	defer mqttconn.Close(client)

	return NewCommander(mqttconn.NewPublisher(client, topic)).RunFor(seconds)
}

// Payload encodes the wire format understood by the pump controller.
func Payload(seconds int) string {
	return fmt.Sprintf("RUN:%d", seconds)
}

func durationAllowed(seconds int) bool {
	for _, d := range AllowedDurations {
		if d == seconds {
			return true
		}
	}
	return false
}
