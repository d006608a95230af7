package models

import (
	"fmt"
	"time"
)

// OrderStatus is the lifecycle state of a pre-order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
	StatusNoShow    OrderStatus = "noShow"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []OrderStatus{
	StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
	StatusDelivered, StatusCancelled, StatusNoShow,
}

// IsTerminal reports whether no transition may leave s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusNoShow
}

// OccupiesQueue reports whether an order in s holds a slot in its vendor's queue.
// Orders release their slot only when they reach a terminal status.
func (s OrderStatus) OccupiesQueue() bool {
	return s != "" && !s.IsTerminal()
}

func ParseOrderStatus(raw string) (OrderStatus, error) {
	for _, s := range AllStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidArgument, raw)
}

// OrderItem is one line of a basket.
type OrderItem struct {
	Name     string `json:"name" validate:"required"`
	Category string `json:"category"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// PreOrder is an order scheduled for a future pickup at a food truck.
type PreOrder struct {
	ID                   string      `json:"id"`
	CustomerID           string      `json:"customer_id"`
	CustomerName         string      `json:"customer_name"`
	VendorID             string      `json:"vendor_id"`
	VendorName           string      `json:"vendor_name"`
	Items                []OrderItem `json:"items"`
	PickupTime           time.Time   `json:"pickup_time"`
	Status               OrderStatus `json:"status"`
	EstimatedWaitMinutes int         `json:"estimated_wait_minutes"`
	ActualWaitMinutes    *int        `json:"actual_wait_minutes,omitempty"`
	IsRecurring          bool        `json:"is_recurring"`
	RecurringTemplateID  string      `json:"recurring_template_id,omitempty"`
	Notes                string      `json:"notes,omitempty"`
	TotalAmount          float64     `json:"total_amount"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// Clone returns a deep copy so stores never hand out shared slices.
func (o *PreOrder) Clone() *PreOrder {
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	if o.ActualWaitMinutes != nil {
		v := *o.ActualWaitMinutes
		cp.ActualWaitMinutes = &v
	}
	return &cp
}

// CreatePreOrderRequest represents the data needed to admit a new pre-order.
type CreatePreOrderRequest struct {
	CustomerID   string      `json:"customer_id" validate:"required"`
	CustomerName string      `json:"customer_name,omitempty"`
	VendorID     string      `json:"vendor_id" validate:"required"`
	Items        []OrderItem `json:"items" validate:"required,min=1,dive"`
	PickupTime   time.Time   `json:"pickup_time" validate:"required"`
	Notes        string      `json:"notes,omitempty" validate:"max=500"`
	TotalAmount  float64     `json:"total_amount" validate:"gte=0"`

	IsRecurring   bool     `json:"is_recurring"`
	RecurringDays []string `json:"recurring_days,omitempty"`
	TotalWeeks    int      `json:"total_weeks,omitempty" validate:"gte=0"`

	// OverrideAdmission skips the admission-window check. Only operators may set it.
	OverrideAdmission bool `json:"override_admission,omitempty"`

	// RecurringTemplateID is set by the recurring engine when materializing a template.
	RecurringTemplateID string `json:"-"`
}

// TransitionRequest moves an order to a new status.
type TransitionRequest struct {
	Status OrderStatus `json:"status" validate:"required"`
}

// QuoteRequest asks for an admission check and wait estimate without persisting anything.
type QuoteRequest struct {
	CustomerID string      `json:"customer_id"`
	VendorID   string      `json:"vendor_id" validate:"required"`
	Items      []OrderItem `json:"items" validate:"dive"`
	PickupTime time.Time   `json:"pickup_time" validate:"required"`
}

// Quote is the answer to a QuoteRequest.
type Quote struct {
	VendorID             string    `json:"vendor_id"`
	PickupTime           time.Time `json:"pickup_time"`
	EarliestPickup       time.Time `json:"earliest_pickup"`
	Accepted             bool      `json:"accepted"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	EstimatedWait        string    `json:"estimated_wait"`
	PeakWindow           string    `json:"peak_window,omitempty"`
}

// OrderFilter selects pre-orders for listing and live subscriptions.
// Zero values match everything.
type OrderFilter struct {
	VendorID   string
	CustomerID string
	Statuses   []OrderStatus
	PickupFrom time.Time
	PickupTo   time.Time
}

// Matches applies the filter to a single order. PickupTo is exclusive.
func (f OrderFilter) Matches(o *PreOrder) bool {
	if f.VendorID != "" && o.VendorID != f.VendorID {
		return false
	}
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == o.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.PickupFrom.IsZero() && o.PickupTime.Before(f.PickupFrom) {
		return false
	}
	if !f.PickupTo.IsZero() && !o.PickupTime.Before(f.PickupTo) {
		return false
	}
	return true
}

// StatusPatch is the partial update applied by a committed transition.
type StatusPatch struct {
	Status            OrderStatus
	ActualWaitMinutes *int
	UpdatedAt         time.Time
}
