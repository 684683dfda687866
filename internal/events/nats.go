package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus carries profile notifications across processes.
type NATSBus struct {
	nc     *nats.Conn
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// ConnectNATS dials url and returns a bus on top of the connection.
func ConnectNATS(url string, logger *slog.Logger) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.Name("moviescrud"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSBus(nc, logger), nil
}

// NewNATSBus wraps an established connection.
func NewNATSBus(nc *nats.Conn, logger *slog.Logger) *NATSBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBus{nc: nc, logger: logger}
}

// PublishProfileUpdated checks ctx before publishing; NATS publishes are not cancellable.
func (b *NATSBus) PublishProfileUpdated(ctx context.Context, evt ProfileUpdated) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := encode(evt)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(ProfileSubject, data); err != nil {
		return fmt.Errorf("publish profile event: %w", err)
	}
	return nil
}

func (b *NATSBus) SubscribeProfileUpdated(handler func(ProfileUpdated)) (Unsubscribe, error) {
	if handler == nil {
		return nil, fmt.Errorf("nil handler")
	}
	sub, err := b.nc.Subscribe(ProfileSubject, func(msg *nats.Msg) {
		evt, err := decode(msg.Data)
		if err != nil {
			b.logger.Warn("dropping malformed profile event", slog.String("error", err.Error()))
			return
		}
		handler(evt)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", ProfileSubject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug("unsubscribe profile events", slog.String("error", err.Error()))
		}
	}, nil
}

func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
