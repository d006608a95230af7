package models

import "time"

// RecurringTemplate is a weekly repeating order definition.
type RecurringTemplate struct {
	ID              string      `json:"id"`
	CustomerID      string      `json:"customer_id"`
	CustomerName    string      `json:"customer_name"`
	VendorID        string      `json:"vendor_id"`
	Items           []OrderItem `json:"items"`
	PickupTimeOfDay string      `json:"pickup_time_of_day"`
	Notes           string      `json:"notes,omitempty"`
	TotalAmount     float64     `json:"total_amount"`
	DaysOfWeek      []string    `json:"days_of_week"`
	Active          bool        `json:"active"`
	TotalWeeks      int         `json:"total_weeks"`
	NextExecution   time.Time   `json:"next_execution"`
	// LastMaterializedOn is the calendar date (YYYY-MM-DD) of the last materialization.
	LastMaterializedOn string    `json:"last_materialized_on,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (t *RecurringTemplate) Clone() *RecurringTemplate {
	cp := *t
	cp.Items = append([]OrderItem(nil), t.Items...)
	cp.DaysOfWeek = append([]string(nil), t.DaysOfWeek...)
	return &cp
}

// CreateTemplateRequest represents the data needed to create a recurring template.
type CreateTemplateRequest struct {
	CustomerID      string      `json:"customer_id" validate:"required"`
	CustomerName    string      `json:"customer_name,omitempty"`
	VendorID        string      `json:"vendor_id" validate:"required"`
	Items           []OrderItem `json:"items" validate:"required,min=1,dive"`
	PickupTimeOfDay string      `json:"pickup_time_of_day" validate:"required"`
	DaysOfWeek      []string    `json:"days_of_week" validate:"required,min=1"`
	// TotalWeeks of 0 selects the configured maximum.
	TotalWeeks      int         `json:"total_weeks" validate:"gte=0"`
	Notes           string      `json:"notes,omitempty" validate:"max=500"`
	TotalAmount     float64     `json:"total_amount" validate:"gte=0"`
	// FirstPickup is an order already placed for this template. Its date starts
	// out materialized.
	FirstPickup     time.Time   `json:"-"`
}

// UpdateTemplateRequest edits a template. Nil fields are left untouched.
type UpdateTemplateRequest struct {
	Items           *[]OrderItem `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	PickupTimeOfDay *string      `json:"pickup_time_of_day,omitempty"`
	DaysOfWeek      *[]string    `json:"days_of_week,omitempty" validate:"omitempty,min=1"`
	TotalWeeks      *int         `json:"total_weeks,omitempty" validate:"omitempty,gte=1"`
	Notes           *string      `json:"notes,omitempty" validate:"omitempty,max=500"`
	TotalAmount     *float64     `json:"total_amount,omitempty" validate:"omitempty,gte=0"`
}

// ToggleTemplateRequest flips the active flag.
type ToggleTemplateRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// TemplateFilter selects templates for listing and live subscriptions.
type TemplateFilter struct {
	CustomerID string
	VendorID   string
	ActiveOnly bool
}

func (f TemplateFilter) Matches(t *RecurringTemplate) bool {
	if f.CustomerID != "" && t.CustomerID != f.CustomerID {
		return false
	}
	if f.VendorID != "" && t.VendorID != f.VendorID {
		return false
	}
	if f.ActiveOnly && !t.Active {
		return false
	}
	return true
}

// Reasons a template was not materialized on a given day.
const (
	SkipAlreadyMaterialized = "already_materialized"
	SkipExhausted           = "exhausted"
)

// MaterializeResult summarizes one daily materialization run.
type MaterializeResult struct {
	Date    string            `json:"date"`
	Created []*PreOrder       `json:"created"`
	Skipped []TemplateSkip    `json:"skipped"`
	Failed  []TemplateFailure `json:"failed"`
}

type TemplateSkip struct {
	TemplateID string `json:"template_id"`
	Reason     string `json:"reason"`
}

type TemplateFailure struct {
	TemplateID string `json:"template_id"`
	Error      string `json:"error"`
}
