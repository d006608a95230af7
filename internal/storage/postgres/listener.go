package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"foodtruck-preorder/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
)

// Channels fed by the row triggers in schema.sql.
const (
	ChannelOrders    = "preorder_changes"
	ChannelTemplates = "template_changes"
	ChannelQueue     = "queue_changes"
)

var channels = []string{ChannelOrders, ChannelTemplates, ChannelQueue}

// Listen holds one connection on LISTEN and republishes every committed change to
// the in-process brokers. Notifications carry only the row key, so each one is
// followed by a read of the current row. It reconnects with backoff and returns
// when ctx is cancelled.
func (s *Store) Listen(ctx context.Context) error {
	backoff := time.Second
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Error("change listener dropped, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	for _, ch := range channels {
		if _, err := conn.Exec(ctx, "LISTEN "+ch); err != nil {
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	s.log.Info("listening for row changes", "channels", channels)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if err := s.dispatch(ctx, n); err != nil {
			s.log.Warn("discarding change notification", "channel", n.Channel, "key", n.Payload, "error", err)
		}
	}
}

// rowLoader reads the committed row a notification points at.
type rowLoader interface {
	order(ctx context.Context, id string) (*models.PreOrder, error)
	template(ctx context.Context, id string) (*models.RecurringTemplate, error)
	queueState(ctx context.Context, vendorID string) (*models.VendorQueueState, error)
}

type repoRows struct{ s *Store }

func (r repoRows) order(ctx context.Context, id string) (*models.PreOrder, error) {
	return r.s.Orders.FindByID(ctx, id)
}

func (r repoRows) template(ctx context.Context, id string) (*models.RecurringTemplate, error) {
	return r.s.Templates.Get(ctx, id)
}

func (r repoRows) queueState(ctx context.Context, vendorID string) (*models.VendorQueueState, error) {
	return r.s.Queue.Get(ctx, vendorID)
}

// dispatch publishes the current state of the row named by n. A row deleted
// before it could be read is dropped silently.
func (s *Store) dispatch(ctx context.Context, n *pgconn.Notification) error {
	key := strings.TrimSpace(n.Payload)
	if key == "" {
		return errors.New("empty row key")
	}
	err := s.publishRow(ctx, n.Channel, key)
	if errors.Is(err, models.ErrNotFound) {
		s.log.Debug("changed row is gone", "channel", n.Channel, "key", key)
		return nil
	}
	return err
}

func (s *Store) publishRow(ctx context.Context, channel, key string) error {
	switch channel {
	case ChannelOrders:
		o, err := s.rows.order(ctx, key)
		if err != nil {
			return err
		}
		s.Orders.broker.Publish(o)
	case ChannelTemplates:
		t, err := s.rows.template(ctx, key)
		if err != nil {
			return err
		}
		s.Templates.broker.Publish(t)
	case ChannelQueue:
		st, err := s.rows.queueState(ctx, key)
		if err != nil {
			return err
		}
		s.Queue.broker.Publish(st)
	default:
		return fmt.Errorf("unexpected channel %q", channel)
	}
	return nil
}
