// Package analytics derives read-only operational statistics from pre-orders.
// Nothing here writes.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/internal/timeutil"
	"foodtruck-preorder/pkg/logger"
)

// PopularItemsLimit caps Report.PopularItems.
const PopularItemsLimit = 10

type OrderReader interface {
	List(ctx context.Context, filter models.OrderFilter) ([]*models.PreOrder, error)
}

type TierLookup interface {
	GetTier(ctx context.Context, customerID string) (models.CustomerTier, error)
}

// PeakDetector is satisfied by *estimator.Estimator.
type PeakDetector interface {
	InPeakWindow(t time.Time) bool
}

// Query narrows the order set. A nil Window means all time; it applies to createdAt.
type Query struct {
	VendorID string
	Window   *timeutil.Range
}

type ItemCount struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Report is the aggregate over one order set. Rates are fractions in [0, 1].
type Report struct {
	Window             *timeutil.Range             `json:"window,omitempty"`
	Total              int                         `json:"total"`
	CompletionRate     float64                     `json:"completion_rate"`
	NoShowRate         float64                     `json:"no_show_rate"`
	CancellationRate   float64                     `json:"cancellation_rate"`
	AverageWaitMinutes float64                     `json:"average_wait_minutes"`
	PeakTimeOrders     int                         `json:"peak_time_orders"`
	PopularItems       []ItemCount                 `json:"popular_items"`
	TierBreakdown      map[models.CustomerTier]int `json:"tier_breakdown"`
	StatusCounts       map[models.OrderStatus]int  `json:"status_counts"`
	RevenueImpact      float64                     `json:"revenue_impact"`
}

// ServiceInterface defines the contract for the analytics aggregator.
type ServiceInterface interface {
	Aggregate(ctx context.Context, q Query) (*Report, error)
	WindowForPreset(preset string) (timeutil.Range, error)
}

type Service struct {
	orders OrderReader
	tiers  TierLookup
	peaks  PeakDetector
	log    *logger.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewService(orders OrderReader, tiers TierLookup, peaks PeakDetector, loc *time.Location, log *logger.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{orders: orders, tiers: tiers, peaks: peaks, log: log.WithComponent("analytics"), loc: loc, now: time.Now}
}

// WindowForPreset resolves a date-range preset against the current day in the
// vendors' timezone.
func (s *Service) WindowForPreset(preset string) (timeutil.Range, error) {
	return timeutil.DateRangeForPreset(preset, s.now().In(s.loc))
}

// Aggregate loads the orders selected by q and summarizes them.
func (s *Service) Aggregate(ctx context.Context, q Query) (*Report, error) {
	orders, err := s.orders.List(ctx, models.OrderFilter{VendorID: q.VendorID})
	if err != nil {
		return nil, fmt.Errorf("analytics.Aggregate: %w", err)
	}
	if q.Window != nil {
		kept := orders[:0]
		for _, o := range orders {
			if q.Window.Contains(o.CreatedAt) {
				kept = append(kept, o)
			}
		}
		orders = kept
	}
	report, err := s.Summarize(ctx, orders)
	if err != nil {
		return nil, fmt.Errorf("analytics.Aggregate: %w", err)
	}
	report.Window = q.Window
	s.log.Debug("report computed", "vendor_id", q.VendorID, "total", report.Total)
	return report, nil
}

// Summarize reduces orders to a Report. Tiers are looked up once per customer at
// call time.
func (s *Service) Summarize(ctx context.Context, orders []*models.PreOrder) (*Report, error) {
	r := &Report{
		Total:         len(orders),
		PopularItems:  []ItemCount{},
		TierBreakdown: make(map[models.CustomerTier]int),
		StatusCounts:  make(map[models.OrderStatus]int),
	}

	tiers := make(map[string]models.CustomerTier)
	itemIndex := make(map[string]int)
	var items []ItemCount
	waitSum, waitCount := 0, 0

	for _, o := range orders {
		r.StatusCounts[o.Status]++
		r.RevenueImpact += o.TotalAmount

		if o.Status == models.StatusDelivered && o.ActualWaitMinutes != nil {
			waitSum += *o.ActualWaitMinutes
			waitCount++
		}
		if s.peaks != nil && s.peaks.InPeakWindow(o.PickupTime) {
			r.PeakTimeOrders++
		}

		tier, ok := tiers[o.CustomerID]
		if !ok {
			t, err := s.tiers.GetTier(ctx, o.CustomerID)
			if err != nil {
				return nil, fmt.Errorf("tier lookup for %s: %w", o.CustomerID, err)
			}
			tier = t
			tiers[o.CustomerID] = t
		}
		r.TierBreakdown[tier]++

		for _, it := range o.Items {
			idx, seen := itemIndex[it.Name]
			if !seen {
				idx = len(items)
				itemIndex[it.Name] = idx
				items = append(items, ItemCount{Name: it.Name})
			}
			items[idx].Quantity += it.Quantity
		}
	}

	if r.Total > 0 {
		total := float64(r.Total)
		r.CompletionRate = float64(r.StatusCounts[models.StatusDelivered]) / total
		r.NoShowRate = float64(r.StatusCounts[models.StatusNoShow]) / total
		r.CancellationRate = float64(r.StatusCounts[models.StatusCancelled]) / total
	}
	if waitCount > 0 {
		r.AverageWaitMinutes = float64(waitSum) / float64(waitCount)
	}

	// items is in first-encountered order, so a stable sort keeps that as the tie-break
	sort.SliceStable(items, func(i, j int) bool { return items[i].Quantity > items[j].Quantity })
	if len(items) > PopularItemsLimit {
		items = items[:PopularItemsLimit]
	}
	r.PopularItems = append(r.PopularItems, items...)
	return r, nil
}
