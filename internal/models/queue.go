package models

import "time"

// VendorQueueState is the live count of a vendor's active pre-orders.
type VendorQueueState struct {
	VendorID           string    `json:"vendor_id"`
	ActiveOrderCount   int       `json:"active_order_count"`
	AveragePrepMinutes float64   `json:"average_prep_minutes"`
	LastUpdated        time.Time `json:"last_updated"`
}

// CounterChange is the result of an atomic increment or decrement.
// Underflow is true when a decrement found the counter already at zero.
type CounterChange struct {
	State     VendorQueueState
	Underflow bool
}
