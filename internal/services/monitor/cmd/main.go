package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/balmee/watering-core/internal/model"
	"github.com/balmee/watering-core/internal/services/actuator"
	"github.com/balmee/watering-core/internal/services/history"
	"github.com/balmee/watering-core/internal/services/monitor"
	"github.com/balmee/watering-core/internal/services/recorder"
	"github.com/balmee/watering-core/internal/services/stream"
	"github.com/balmee/watering-core/pkg/mqttconn"
)

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func main() {
	_ = godotenv.Load()

	cfg := struct {
		Stream       stream.Config
		CommandTopic string

		ArchiveBase    string
		ChannelID      int64
		ReadKey        string
		PollIntervalMs int
		ArchiveTimeout time.Duration

		Influx recorder.Config

		HTTPPort int
	}{
		Stream: stream.Config{
			Conn: mqttconn.Config{
				BrokerURL:      envStr("MQTT_URL", "tcp://localhost:1883"),
				User:           envStr("MQTT_USER", ""),
				Password:       os.Getenv("MQTT_PASSWORD"),
				ClientID:       envStr("MQTT_CLIENT_ID", envStr("HOSTNAME", "watering-monitor")),
				ConnectTimeout: 5 * time.Second,
			},
			DataTopic: envStr("DATA_TOPIC", "watering/data"),
		},
		CommandTopic: envStr("COMMAND_TOPIC", "watering/manual"),

		ArchiveBase:    envStr("ARCHIVE_URL", "https://api.thingspeak.com"),
		ChannelID:      envInt64("ARCHIVE_CHANNEL_ID", 0),
		ReadKey:        os.Getenv("ARCHIVE_READ_KEY"),
		PollIntervalMs: envInt("HISTORY_POLL_INTERVAL_MS", 60000),
		ArchiveTimeout: time.Duration(envInt("ARCHIVE_TIMEOUT_MS", 5000)) * time.Millisecond,

		Influx: recorder.Config{
			URL:         envStr("INFLUX_URL", ""),
			Token:       os.Getenv("INFLUX_TOKEN"),
			Org:         envStr("INFLUX_ORG", "watering"),
			Bucket:      envStr("INFLUX_BUCKET", "telemetry"),
			Measurement: envStr("INFLUX_MEASUREMENT", "watering_telemetry"),
		},

		HTTPPort: envInt("HTTP_PORT", 8080),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel := model.NewTelemetry()
	sc := stream.NewClient(cfg.Stream, tel)

	archive := history.NewArchive(cfg.ArchiveBase, cfg.ChannelID, cfg.ReadKey,
		model.WindowSize, cfg.ArchiveTimeout)
	poller := history.NewPoller(archive, tel, cfg.ChannelID,
		time.Duration(cfg.PollIntervalMs)*time.Millisecond)

	commander := actuator.NewCommander(sc.Publisher(cfg.CommandTopic))

	// Influx mirroring is opt-in; without a URL the core runs in-memory only.
	var rec *recorder.Recorder
	if cfg.Influx.URL != "" {
		var err error
		rec, err = recorder.New(cfg.Influx)
		if err != nil {
			log.Fatalf("recorder init failed: %v", err)
		}
	}

	session := monitor.NewSession(tel, sc, poller, commander, rec)
	session.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           monitor.NewMux(session),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("monitor: HTTP listening on :%d", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("monitor: shutting down...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)

	session.Stop()
}
