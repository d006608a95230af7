package models

import "fmt"

// CustomerTier controls the admission window.
type CustomerTier string

const (
	TierStandard CustomerTier = "standard"
	TierPremium  CustomerTier = "premium"
)

func ParseCustomerTier(raw string) (CustomerTier, error) {
	switch CustomerTier(raw) {
	case TierStandard, TierPremium:
		return CustomerTier(raw), nil
	}
	return "", fmt.Errorf("%w: unknown customer tier %q", ErrInvalidArgument, raw)
}

// Customer is the read-only view of the identity collaborator this subsystem needs.
type Customer struct {
	ID    string       `json:"id" mapstructure:"id"`
	Name  string       `json:"name" mapstructure:"name"`
	Email string       `json:"email,omitempty" mapstructure:"email"`
	Tier  CustomerTier `json:"tier" mapstructure:"tier"`
}

// Vendor is the read-only view of a food truck.
type Vendor struct {
	ID                 string  `json:"id" mapstructure:"id"`
	Name               string  `json:"name" mapstructure:"name"`
	AveragePrepMinutes float64 `json:"average_prep_minutes" mapstructure:"average_prep_minutes"`
	// CustomPrepMinutes replaces the computed estimate when UseCustomPrep is set.
	CustomPrepMinutes float64 `json:"custom_prep_minutes" mapstructure:"custom_prep_minutes"`
	UseCustomPrep     bool    `json:"use_custom_prep" mapstructure:"use_custom_prep"`
}
