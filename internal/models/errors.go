package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("requested resource not found")
var ErrForbidden = errors.New("user does not have permission to access this resource")
var ErrConflict = errors.New("resource conflict, item already exists")
var ErrInvalidArgument = errors.New("invalid argument")

// ErrPickupTooSoon means the requested pickup time is earlier than the admission window allows.
var ErrPickupTooSoon = errors.New("pickup time is earlier than the admission window allows")
var ErrInvalidTransition = errors.New("invalid status transition")

var ErrOrderNotFound = fmt.Errorf("pre-order %w", ErrNotFound)
var ErrVendorNotFound = fmt.Errorf("vendor %w", ErrNotFound)
var ErrTemplateNotFound = fmt.Errorf("recurring template %w", ErrNotFound)

// ErrQueueCounterUnderflow is logged when a decrement finds the counter already at zero.
// It is repaired in place and never returned to callers of the pipeline.
var ErrQueueCounterUnderflow = errors.New("queue counter underflow")

// PickupTooSoonError carries the earliest time the customer could have asked for.
type PickupTooSoonError struct {
	Requested time.Time
	Earliest  time.Time
}

func (e *PickupTooSoonError) Error() string {
	return fmt.Sprintf("pickup at %s is too soon, earliest allowed is %s",
		e.Requested.Format(time.RFC3339), e.Earliest.Format(time.RFC3339))
}

func (e *PickupTooSoonError) Is(target error) bool { return target == ErrPickupTooSoon }

// InvalidTransitionError reports the rejected edge of the status machine.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ErrorResponse is the JSON body returned by handlers on failure.
type ErrorResponse struct {
	Message         string        `json:"message"`
	EarliestPickup  *time.Time    `json:"earliest_pickup,omitempty"`
	CurrentStatus   OrderStatus   `json:"current_status,omitempty"`
	ValidNextStates []OrderStatus `json:"valid_next_states,omitempty"`
}
