package config

import (
	"log/slog"
	"time"

	"github.com/soloforge/soloforge/pkg/dispatcher"
	"github.com/urfave/cli/v3"
)

// Dispatcher tunes webhook delivery. Zero values fall back to the
// dispatcher defaults.
type Dispatcher struct {
	maxAttempts     int64
	baseBackoff     time.Duration
	maxBackoff      time.Duration
	deliveryTimeout time.Duration
	pollInterval    time.Duration
	probeInterval   time.Duration
}

func (x *Dispatcher) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "webhook-max-attempts",
			Usage:       "Delivery attempts before dead-lettering",
			Category:    "Webhook",
			Sources:     cli.EnvVars("SOLOFORGE_WEBHOOK_MAX_ATTEMPTS"),
			Destination: &x.maxAttempts,
		},
		&cli.DurationFlag{
			Name:        "webhook-base-backoff",
			Usage:       "Initial retry backoff",
			Category:    "Webhook",
			Sources:     cli.EnvVars("SOLOFORGE_WEBHOOK_BASE_BACKOFF"),
			Destination: &x.baseBackoff,
		},
		&cli.DurationFlag{
			Name:        "webhook-max-backoff",
			Usage:       "Upper bound on retry backoff",
			Category:    "Webhook",
			Sources:     cli.EnvVars("SOLOFORGE_WEBHOOK_MAX_BACKOFF"),
			Destination: &x.maxBackoff,
		},
		&cli.DurationFlag{
			Name:        "webhook-delivery-timeout",
			Usage:       "Timeout of a single delivery attempt",
			Category:    "Webhook",
			Sources:     cli.EnvVars("SOLOFORGE_WEBHOOK_DELIVERY_TIMEOUT"),
			Destination: &x.deliveryTimeout,
		},
		&cli.DurationFlag{
			Name:        "webhook-poll-interval",
			Usage:       "Fallback poll interval for new events",
			Category:    "Webhook",
			Sources:     cli.EnvVars("SOLOFORGE_WEBHOOK_POLL_INTERVAL"),
			Destination: &x.pollInterval,
		},
		&cli.DurationFlag{
			Name:        "webhook-probe-interval",
			Usage:       "Health probe interval for unreachable plugins",
			Category:    "Webhook",
			Sources:     cli.EnvVars("SOLOFORGE_WEBHOOK_PROBE_INTERVAL"),
			Destination: &x.probeInterval,
		},
	}
}

func (x *Dispatcher) Config() dispatcher.Config {
	return dispatcher.Config{
		MaxAttempts:     int(x.maxAttempts),
		BaseBackoff:     x.baseBackoff,
		MaxBackoff:      x.maxBackoff,
		DeliveryTimeout: x.deliveryTimeout,
		PollInterval:    x.pollInterval,
		ProbeInterval:   x.probeInterval,
	}
}

func (x *Dispatcher) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("maxAttempts", x.maxAttempts),
		slog.Any("baseBackoff", x.baseBackoff),
		slog.Any("maxBackoff", x.maxBackoff),
		slog.Any("deliveryTimeout", x.deliveryTimeout),
		slog.Any("pollInterval", x.pollInterval),
		slog.Any("probeInterval", x.probeInterval),
	)
}
