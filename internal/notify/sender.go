package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foodtruck-preorder/internal/timeutil"
	"foodtruck-preorder/pkg/logger"
)

// Kind is the customer-facing event being announced.
type Kind string

const (
	KindPreparing Kind = "preparing"
	KindReady     Kind = "ready"
)

// Payload describes the order a notification is about.
type Payload struct {
	OrderID              string    `json:"order_id"`
	VendorID             string    `json:"vendor_id"`
	VendorName           string    `json:"vendor_name"`
	PickupTime           time.Time `json:"pickup_time"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
}

// Sender delivers a notification to a customer. Delivery failures are returned for
// logging; the pipeline never retries them.
type Sender interface {
	Send(ctx context.Context, customerID string, kind Kind, payload Payload) error
}

// Subject is the short title used by email and push channels.
func Subject(kind Kind, p Payload) string {
	switch kind {
	case KindPreparing:
		return fmt.Sprintf("%s is preparing your order", p.VendorName)
	case KindReady:
		return fmt.Sprintf("Your order at %s is ready for pickup", p.VendorName)
	}
	return fmt.Sprintf("Update on your order at %s", p.VendorName)
}

// Body is the plain-text message for kind.
func Body(kind Kind, p Payload) string {
	pickup := p.PickupTime.Format("Mon 15:04")
	switch kind {
	case KindPreparing:
		return fmt.Sprintf("%s started on order %s. Estimated wait %s, pickup at %s.",
			p.VendorName, p.OrderID, timeutil.FormatMinutes(p.EstimatedWaitMinutes), pickup)
	case KindReady:
		return fmt.Sprintf("Order %s is ready. Collect it at %s.", p.OrderID, p.VendorName)
	}
	return fmt.Sprintf("Order %s changed status.", p.OrderID)
}

// LogSender writes notifications to the log. It is the development driver.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.WithComponent("notify")}
}

func (s *LogSender) Send(ctx context.Context, customerID string, kind Kind, payload Payload) error {
	s.log.Info("notification", "customer_id", customerID, "kind", string(kind),
		"order_id", payload.OrderID, "subject", Subject(kind, payload))
	return nil
}

// MultiSender sends through every channel and joins their errors.
type MultiSender []Sender

func (m MultiSender) Send(ctx context.Context, customerID string, kind Kind, payload Payload) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, customerID, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
