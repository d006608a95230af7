package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/internal/timeutil"
)

// PeakWindow is a time-of-day range during which preparation takes longer.
// Start is inclusive and End exclusive; End before Start wraps past midnight.
type PeakWindow struct {
	Name       string  `mapstructure:"name"`
	Start      string  `mapstructure:"start" validate:"required"`
	End        string  `mapstructure:"end" validate:"required"`
	Multiplier float64 `mapstructure:"multiplier" validate:"gt=0"`
}

// Config holds the estimator's tunables. All durations are minutes.
type Config struct {
	DefaultAveragePrepMinutes  float64            `mapstructure:"default_average_prep_minutes" validate:"gte=0"`
	DefaultBasketPrepMinutes   float64            `mapstructure:"default_basket_prep_minutes" validate:"gte=0"`
	DefaultCategoryPrepMinutes float64            `mapstructure:"default_category_prep_minutes" validate:"gte=0"`
	BufferMinutes              float64            `mapstructure:"buffer_minutes" validate:"gte=0"`
	CategoryPrepMinutes        map[string]float64 `mapstructure:"category_prep_minutes"`
	PeakWindows                []PeakWindow       `mapstructure:"peak_windows" validate:"dive"`
}

func DefaultConfig() Config {
	return Config{
		DefaultAveragePrepMinutes:  15,
		DefaultBasketPrepMinutes:   15,
		DefaultCategoryPrepMinutes: 10,
		BufferMinutes:              5,
		CategoryPrepMinutes: map[string]float64{
			"main":    12,
			"side":    6,
			"snack":   5,
			"dessert": 4,
			"drink":   2,
		},
		PeakWindows: []PeakWindow{
			{Name: "lunch", Start: "11:30", End: "13:30", Multiplier: 1.5},
			{Name: "dinner", Start: "18:00", End: "20:00", Multiplier: 1.3},
		},
	}
}

// QueueStateReader returns models.ErrNotFound when a vendor has no queue state yet.
type QueueStateReader interface {
	Get(ctx context.Context, vendorID string) (*models.VendorQueueState, error)
}

// VendorDirectory resolves vendor settings.
type VendorDirectory interface {
	GetVendor(ctx context.Context, vendorID string) (*models.Vendor, error)
}

// Estimate is the breakdown behind a wait-time figure.
type Estimate struct {
	Minutes    int     `json:"minutes"`
	QueueDelay float64 `json:"queue_delay"`
	BasePrep   float64 `json:"base_prep"`
	Multiplier float64 `json:"multiplier"`
	PeakWindow string  `json:"peak_window,omitempty"`
	CustomPrep bool    `json:"custom_prep"`
}

type window struct {
	name       string
	start, end int
	multiplier float64
}

func (w window) contains(minute int) bool {
	if w.start <= w.end {
		return minute >= w.start && minute < w.end
	}
	return minute >= w.start || minute < w.end
}

// Estimator computes advisory wait times. It never enforces capacity.
type Estimator struct {
	cfg      Config
	windows  []window
	location *time.Location
	queue    QueueStateReader
	vendors  VendorDirectory
}

// New validates the peak windows. loc is the vendors' timezone; nil keeps each
// pickup time in its own location.
func New(cfg Config, queue QueueStateReader, vendors VendorDirectory, loc *time.Location) (*Estimator, error) {
	windows := make([]window, 0, len(cfg.PeakWindows))
	for _, pw := range cfg.PeakWindows {
		start, err := timeutil.ParseTimeOfDay(pw.Start)
		if err != nil {
			return nil, fmt.Errorf("estimator: peak window %q: %w", pw.Name, err)
		}
		end, err := timeutil.ParseTimeOfDay(pw.End)
		if err != nil {
			return nil, fmt.Errorf("estimator: peak window %q: %w", pw.Name, err)
		}
		if pw.Multiplier <= 0 {
			return nil, fmt.Errorf("estimator: peak window %q: %w: multiplier must be positive", pw.Name, models.ErrInvalidArgument)
		}
		windows = append(windows, window{name: pw.Name, start: start.Minutes(), end: end.Minutes(), multiplier: pw.Multiplier})
	}
	categories := make(map[string]float64, len(cfg.CategoryPrepMinutes))
	for k, v := range cfg.CategoryPrepMinutes {
		categories[strings.ToLower(k)] = v
	}
	cfg.CategoryPrepMinutes = categories
	return &Estimator{cfg: cfg, windows: windows, location: loc, queue: queue, vendors: vendors}, nil
}

// EstimateWaitMinutes looks up the vendor and its live queue, then computes the estimate.
func (e *Estimator) EstimateWaitMinutes(ctx context.Context, vendorID string, pickup time.Time, items []models.OrderItem) (int, error) {
	est, err := e.EstimateFor(ctx, vendorID, pickup, items)
	if err != nil {
		return 0, err
	}
	return est.Minutes, nil
}

// EstimateFor is EstimateWaitMinutes with the full breakdown.
func (e *Estimator) EstimateFor(ctx context.Context, vendorID string, pickup time.Time, items []models.OrderItem) (Estimate, error) {
	vendor, err := e.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		return Estimate{}, fmt.Errorf("estimator.EstimateFor: %w", err)
	}
	state, err := e.queue.Get(ctx, vendorID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return Estimate{}, fmt.Errorf("estimator.EstimateFor: queue state: %w", err)
		}
		state = nil
	}
	return e.Compute(vendor, state, pickup, items), nil
}

// Compute is the pure estimation step. A nil state means an empty queue.
func (e *Estimator) Compute(vendor *models.Vendor, state *models.VendorQueueState, pickup time.Time, items []models.OrderItem) Estimate {
	buffer := e.cfg.BufferMinutes

	if vendor != nil && vendor.UseCustomPrep {
		return Estimate{
			Minutes:    ceilMinutes(max(vendor.CustomPrepMinutes, 0) + buffer),
			Multiplier: 1,
			CustomPrep: true,
		}
	}

	count := 0
	avg := e.cfg.DefaultAveragePrepMinutes
	if state != nil {
		count = max(state.ActiveOrderCount, 0)
		if state.AveragePrepMinutes > 0 {
			avg = state.AveragePrepMinutes
		}
	}
	queueDelay := float64(count) * avg

	basePrep := e.cfg.DefaultBasketPrepMinutes
	if len(items) > 0 {
		basePrep = 0
		for _, it := range items {
			basePrep += e.CategoryPrepMinutes(it.Category) * float64(max(it.Quantity, 0))
		}
	}

	name, multiplier := e.PeakWindowAt(pickup)
	return Estimate{
		Minutes:    ceilMinutes(queueDelay + basePrep*multiplier + buffer),
		QueueDelay: queueDelay,
		BasePrep:   basePrep,
		Multiplier: multiplier,
		PeakWindow: name,
	}
}

// CategoryPrepMinutes returns the per-unit preparation cost of a menu category.
func (e *Estimator) CategoryPrepMinutes(category string) float64 {
	if v, ok := e.cfg.CategoryPrepMinutes[strings.ToLower(strings.TrimSpace(category))]; ok {
		return v
	}
	return e.cfg.DefaultCategoryPrepMinutes
}

// PeakWindowAt returns the matching window with the highest multiplier, or ("", 1)
// outside every window. Equal multipliers keep the first configured window.
func (e *Estimator) PeakWindowAt(t time.Time) (string, float64) {
	if e.location != nil {
		t = t.In(e.location)
	}
	minute := timeutil.MinuteOfDay(t)
	name, multiplier, found := "", 1.0, false
	for _, w := range e.windows {
		if !w.contains(minute) {
			continue
		}
		if !found || w.multiplier > multiplier {
			name, multiplier, found = w.name, w.multiplier, true
		}
	}
	return name, multiplier
}

// InPeakWindow reports whether t falls inside any configured peak window.
func (e *Estimator) InPeakWindow(t time.Time) bool {
	if e.location != nil {
		t = t.In(e.location)
	}
	minute := timeutil.MinuteOfDay(t)
	for _, w := range e.windows {
		if w.contains(minute) {
			return true
		}
	}
	return false
}

// ceilMinutes rounds up to whole minutes, ignoring float noise below a microminute
// so that 10*1.3 stays 13.
func ceilMinutes(v float64) int {
	v = math.Round(v*1e6) / 1e6
	if v <= 0 {
		return 0
	}
	return int(math.Ceil(v))
}
