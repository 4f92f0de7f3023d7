package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/membership"
)

const natsConnectTimeout = 5 * time.Second

type membershipStore interface {
	membership.Provider
	membership.UserRecorder
}

type membershipBackend struct {
	store membershipStore
	close func()
	// ready is nil for backends that cannot become unavailable.
	ready func(context.Context) error
}

// openMembership connects the configured membership backend.
func openMembership(ctx context.Context, cfg config.Config, logger *slog.Logger) (*membershipBackend, error) {
	switch cfg.MembershipBackend {
	case config.MembershipBackendNATS:
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name("aero-signal-relay"),
			nats.Timeout(natsConnectTimeout),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("nats disconnected", "err", err)
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("connect nats %s: %w", cfg.NATSURL, err)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		openCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
		defer cancel()
		store, err := membership.OpenKVStore(openCtx, js, cfg.MembershipKVBucket, membership.WithLogger(logger))
		if err != nil {
			nc.Close()
			return nil, err
		}
		logger.Info("membership store ready", "backend", cfg.MembershipBackend, "bucket", cfg.MembershipKVBucket)
		return &membershipBackend{
			store: store,
			close: func() { _ = nc.Drain() },
			ready: func(context.Context) error {
				if status := nc.Status(); status != nats.CONNECTED {
					return fmt.Errorf("nats %s", status)
				}
				return nil
			},
		}, nil
	default:
		return &membershipBackend{store: membership.NewMemory(), close: func() {}}, nil
	}
}
