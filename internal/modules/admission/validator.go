package admission

import (
	"fmt"
	"time"

	"foodtruck-preorder/internal/models"
)

// Config holds the minimum lead time per customer tier.
type Config struct {
	StandardLeadMinutes int `mapstructure:"standard_lead_minutes" validate:"gte=0"`
	PremiumLeadMinutes  int `mapstructure:"premium_lead_minutes" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{StandardLeadMinutes: 60, PremiumLeadMinutes: 120}
}

// Validator computes admission windows. It does not look at vendor hours or capacity.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// LeadTime returns the minimum distance between now and pickup for tier.
// An empty tier is treated as standard.
func (v *Validator) LeadTime(tier models.CustomerTier) (time.Duration, error) {
	switch tier {
	case models.TierStandard, "":
		return time.Duration(v.cfg.StandardLeadMinutes) * time.Minute, nil
	case models.TierPremium:
		return time.Duration(v.cfg.PremiumLeadMinutes) * time.Minute, nil
	}
	return 0, fmt.Errorf("%w: unknown customer tier %q", models.ErrInvalidArgument, tier)
}

// EarliestPickup is now plus the tier's lead time.
func (v *Validator) EarliestPickup(tier models.CustomerTier, now time.Time) (time.Time, error) {
	lead, err := v.LeadTime(tier)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(lead), nil
}

// ValidatePickupTime returns nil when requested is at or after the earliest pickup,
// and a *models.PickupTooSoonError otherwise.
func (v *Validator) ValidatePickupTime(requested time.Time, tier models.CustomerTier, now time.Time) error {
	earliest, err := v.EarliestPickup(tier, now)
	if err != nil {
		return err
	}
	if requested.Before(earliest) {
		return &models.PickupTooSoonError{Requested: requested, Earliest: earliest}
	}
	return nil
}
