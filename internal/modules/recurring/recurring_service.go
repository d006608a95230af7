package recurring

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/internal/timeutil"
	"foodtruck-preorder/pkg/keymutex"
	"foodtruck-preorder/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Config bounds template lifetimes.
type Config struct {
	MaxWeeks int `mapstructure:"max_weeks" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{MaxWeeks: 12}
}

// ServiceInterface defines the contract for the recurring order engine.
type ServiceInterface interface {
	CreateTemplate(ctx context.Context, req models.CreateTemplateRequest) (*models.RecurringTemplate, error)
	GetTemplate(ctx context.Context, id string) (*models.RecurringTemplate, error)
	ListTemplates(ctx context.Context, filter models.TemplateFilter) ([]*models.RecurringTemplate, error)
	UpdateTemplate(ctx context.Context, id string, req models.UpdateTemplateRequest) (*models.RecurringTemplate, error)
	ToggleActive(ctx context.Context, id string, active bool) (*models.RecurringTemplate, error)
	MaterializeDueTemplates(ctx context.Context, today time.Time) (*models.MaterializeResult, error)
	Subscribe(filter models.TemplateFilter) *feed.Subscription[*models.RecurringTemplate]
}

// OrderAdmitter is the order pipeline's Create and List.
type OrderAdmitter interface {
	Create(ctx context.Context, req models.CreatePreOrderRequest) (*models.PreOrder, error)
	List(ctx context.Context, filter models.OrderFilter) ([]*models.PreOrder, error)
}

type VendorDirectory interface {
	GetVendor(ctx context.Context, id string) (*models.Vendor, error)
}

type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
}

// LeadTimer reports the admission lead time of a customer tier.
type LeadTimer interface {
	LeadTime(tier models.CustomerTier) (time.Duration, error)
}

type Deps struct {
	Repo      RepositoryInterface
	Orders    OrderAdmitter
	Vendors   VendorDirectory
	Customers CustomerDirectory
	Config    Config
	Logger    *logger.Logger
	Location  *time.Location
	Now       func() time.Time
	// RunAt is the daily materialization time ("HH:MM"). With Admission set,
	// templates whose pickup the daily run could never admit are rejected.
	RunAt     string
	Admission LeadTimer
}

// Service manages weekly templates and turns them into pre-orders.
type Service struct {
	repo      RepositoryInterface
	orders    OrderAdmitter
	vendors   VendorDirectory
	customers CustomerDirectory
	cfg       Config
	log       *logger.Logger
	loc       *time.Location
	now       func() time.Time
	runAt     *timeutil.TimeOfDay
	admission LeadTimer
	validate  *validator.Validate
	locks     *keymutex.KeyMutex
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:      d.Repo,
		orders:    d.Orders,
		vendors:   d.Vendors,
		customers: d.Customers,
		cfg:       d.Config,
		log:       d.Logger,
		loc:       d.Location,
		now:       d.Now,
		admission: d.Admission,
		validate:  validator.New(),
		locks:     keymutex.New(),
	}
	if d.RunAt != "" {
		if tod, err := timeutil.ParseTimeOfDay(d.RunAt); err == nil {
			s.runAt = &tod
		}
	}
	if s.cfg.MaxWeeks <= 0 {
		s.cfg.MaxWeeks = DefaultConfig().MaxWeeks
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.WithComponent("recurring")
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateTemplate validates and stores a new active template. TotalWeeks of zero
// selects the configured maximum.
func (s *Service) CreateTemplate(ctx context.Context, req models.CreateTemplateRequest) (*models.RecurringTemplate, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	days, err := timeutil.NormalizeWeekdays(req.DaysOfWeek)
	if err != nil {
		return nil, err
	}
	tod, err := timeutil.ParseTimeOfDay(req.PickupTimeOfDay)
	if err != nil {
		return nil, err
	}
	weeks := req.TotalWeeks
	if weeks == 0 {
		weeks = s.cfg.MaxWeeks
	}
	if err := s.checkWeeks(weeks); err != nil {
		return nil, err
	}
	if _, err := s.vendors.GetVendor(ctx, req.VendorID); err != nil {
		return nil, fmt.Errorf("recurring.CreateTemplate: %w", err)
	}

	var customer *models.Customer
	if s.customers != nil {
		customer, _ = s.customers.GetCustomer(ctx, req.CustomerID)
	}
	if err := s.checkReachable(customer, tod); err != nil {
		return nil, err
	}
	name := req.CustomerName
	if name == "" && customer != nil {
		name = customer.Name
	}

	now := s.now().In(s.loc)
	next, err := timeutil.NextExecution(days, tod.String(), now)
	if err != nil {
		return nil, err
	}
	var marker string
	if !req.FirstPickup.IsZero() {
		first := req.FirstPickup.In(s.loc)
		slot := tod.On(first)
		if slices.Contains(days, timeutil.WeekdayName(first.Weekday())) && timeutil.MinuteOfDay(first) == tod.Minutes() {
			marker = slot.Format(timeutil.DateLayout)
			if next.Equal(slot) {
				if next, err = timeutil.NextExecution(days, tod.String(), slot); err != nil {
					return nil, err
				}
			}
		}
	}
	t := &models.RecurringTemplate{
		ID:              uuid.NewString(),
		CustomerID:      req.CustomerID,
		CustomerName:    name,
		VendorID:        req.VendorID,
		Items:           append([]models.OrderItem(nil), req.Items...),
		PickupTimeOfDay: tod.String(),
		Notes:           req.Notes,
		TotalAmount:     req.TotalAmount,
		DaysOfWeek:      days,
		Active:          true,
		TotalWeeks:      weeks,
		NextExecution:   next,
		CreatedAt:       now,
		UpdatedAt:       now,

		LastMaterializedOn: marker,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("recurring.CreateTemplate: %w", err)
	}
	s.log.Info("template created", "template_id", t.ID, "customer_id", t.CustomerID,
		"vendor_id", t.VendorID, "days", t.DaysOfWeek, "next_execution", t.NextExecution)
	return t, nil
}

// checkReachable rejects a pickup time the daily run can never admit: the run
// creates same-day orders, so the pickup must sit at least the tier's lead time
// after the run.
func (s *Service) checkReachable(customer *models.Customer, tod timeutil.TimeOfDay) error {
	if s.runAt == nil || s.admission == nil {
		return nil
	}
	tier := models.TierStandard
	if customer != nil && customer.Tier != "" {
		tier = customer.Tier
	}
	lead, err := s.admission.LeadTime(tier)
	if err != nil {
		return err
	}
	earliest := s.runAt.Minutes() + int(lead/time.Minute)
	if tod.Minutes() < earliest {
		if earliest >= 24*60 {
			return fmt.Errorf("%w: the daily run at %s leaves no admissible %s pickup time",
				models.ErrInvalidArgument, s.runAt, tier)
		}
		floor := timeutil.TimeOfDay{Hour: earliest / 60, Minute: earliest % 60}
		return fmt.Errorf("%w: pickup_time_of_day must be %s or later for %s customers",
			models.ErrInvalidArgument, floor, tier)
	}
	return nil
}

func (s *Service) checkWeeks(weeks int) error {
	if weeks < 1 || weeks > s.cfg.MaxWeeks {
		return fmt.Errorf("%w: total_weeks must be between 1 and %d", models.ErrInvalidArgument, s.cfg.MaxWeeks)
	}
	return nil
}

func (s *Service) GetTemplate(ctx context.Context, id string) (*models.RecurringTemplate, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("recurring.GetTemplate: %w", err)
	}
	s.refreshNext(t, s.now().In(s.loc))
	return t, nil
}

func (s *Service) ListTemplates(ctx context.Context, filter models.TemplateFilter) ([]*models.RecurringTemplate, error) {
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("recurring.ListTemplates: %w", err)
	}
	now := s.now().In(s.loc)
	for _, t := range list {
		s.refreshNext(t, now)
	}
	return list, nil
}

// refreshNext rolls a stored nextExecution that has already passed forward to the
// next future slot.
func (s *Service) refreshNext(t *models.RecurringTemplate, now time.Time) {
	if t.NextExecution.After(now) {
		return
	}
	if next, err := timeutil.NextExecution(t.DaysOfWeek, t.PickupTimeOfDay, now); err == nil {
		t.NextExecution = next
	}
}

// UpdateTemplate applies the non-nil fields of req and recomputes nextExecution.
func (s *Service) UpdateTemplate(ctx context.Context, id string, req models.UpdateTemplateRequest) (*models.RecurringTemplate, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("recurring.UpdateTemplate: %w", err)
	}
	if req.Items != nil {
		t.Items = append([]models.OrderItem(nil), (*req.Items)...)
	}
	if req.DaysOfWeek != nil {
		days, err := timeutil.NormalizeWeekdays(*req.DaysOfWeek)
		if err != nil {
			return nil, err
		}
		t.DaysOfWeek = days
	}
	if req.PickupTimeOfDay != nil {
		tod, err := timeutil.ParseTimeOfDay(*req.PickupTimeOfDay)
		if err != nil {
			return nil, err
		}
		var customer *models.Customer
		if s.customers != nil {
			customer, _ = s.customers.GetCustomer(ctx, t.CustomerID)
		}
		if err := s.checkReachable(customer, tod); err != nil {
			return nil, err
		}
		t.PickupTimeOfDay = tod.String()
	}
	if req.TotalWeeks != nil {
		if err := s.checkWeeks(*req.TotalWeeks); err != nil {
			return nil, err
		}
		t.TotalWeeks = *req.TotalWeeks
	}
	if req.Notes != nil {
		t.Notes = *req.Notes
	}
	if req.TotalAmount != nil {
		t.TotalAmount = *req.TotalAmount
	}

	now := s.now().In(s.loc)
	next, err := timeutil.NextExecution(t.DaysOfWeek, t.PickupTimeOfDay, now)
	if err != nil {
		return nil, err
	}
	t.NextExecution = next
	t.UpdatedAt = now
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("recurring.UpdateTemplate: %w", err)
	}
	s.log.Info("template updated", "template_id", id, "next_execution", next)
	return t, nil
}

// ToggleActive flips the active flag only. It neither recomputes nextExecution nor
// materializes anything.
func (s *Service) ToggleActive(ctx context.Context, id string, active bool) (*models.RecurringTemplate, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("recurring.ToggleActive: %w", err)
	}
	if t.Active == active {
		return t, nil
	}
	t.Active = active
	t.UpdatedAt = s.now().In(s.loc)
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("recurring.ToggleActive: %w", err)
	}
	s.log.Info("template toggled", "template_id", id, "active", active)
	return t, nil
}

// DeleteTemplate removes a template. The pipeline uses it to undo a recurring
// create whose order could not be stored.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("recurring.DeleteTemplate: %w", err)
	}
	return nil
}

func (s *Service) Subscribe(filter models.TemplateFilter) *feed.Subscription[*models.RecurringTemplate] {
	return s.repo.Subscribe(filter)
}

// Exhausted reports whether t has used up its totalWeeks as of day.
func (s *Service) Exhausted(t *models.RecurringTemplate, day time.Time) bool {
	start := timeutil.StartOfDay(t.CreatedAt.In(s.loc))
	end := start.AddDate(0, 0, 7*t.TotalWeeks)
	return !timeutil.StartOfDay(day.In(s.loc)).Before(end)
}

// MaterializeDueTemplates creates today's order for every active template scheduled
// on today's weekday. A template already materialized on that date is skipped, so a
// second run on the same day creates nothing. One failing template does not stop
// the others.
func (s *Service) MaterializeDueTemplates(ctx context.Context, today time.Time) (*models.MaterializeResult, error) {
	day := timeutil.StartOfDay(today.In(s.loc))
	date := day.Format(timeutil.DateLayout)
	weekday := timeutil.WeekdayName(day.Weekday())

	templates, err := s.repo.List(ctx, models.TemplateFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("recurring.MaterializeDueTemplates: %w", err)
	}

	result := &models.MaterializeResult{
		Date:    date,
		Created: []*models.PreOrder{},
		Skipped: []models.TemplateSkip{},
		Failed:  []models.TemplateFailure{},
	}
	for _, t := range templates {
		if !slices.Contains(t.DaysOfWeek, weekday) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s.materializeOne(ctx, t, day, date, result)
	}

	s.log.Info("templates materialized", "date", date, "created", len(result.Created),
		"skipped", len(result.Skipped), "failed", len(result.Failed))
	return result, nil
}

func (s *Service) materializeOne(ctx context.Context, t *models.RecurringTemplate, day time.Time, date string, result *models.MaterializeResult) {
	unlock := s.locks.Lock(t.ID)
	defer unlock()

	fail := func(err error) {
		s.log.Warn("template materialization failed", "template_id", t.ID, "date", date, "error", err)
		result.Failed = append(result.Failed, models.TemplateFailure{TemplateID: t.ID, Error: err.Error()})
	}
	skip := func(reason string) {
		result.Skipped = append(result.Skipped, models.TemplateSkip{TemplateID: t.ID, Reason: reason})
	}

	if s.Exhausted(t, day) {
		skip(models.SkipExhausted)
		return
	}
	if t.LastMaterializedOn == date {
		skip(models.SkipAlreadyMaterialized)
		return
	}
	tod, err := timeutil.ParseTimeOfDay(t.PickupTimeOfDay)
	if err != nil {
		fail(err)
		return
	}
	pickup := tod.On(day)
	next, err := timeutil.NextExecution(t.DaysOfWeek, t.PickupTimeOfDay, pickup)
	if err != nil {
		fail(err)
		return
	}
	if linked, err := s.linkedOrderAt(ctx, t, pickup); err != nil {
		fail(err)
		return
	} else if linked {
		skip(models.SkipAlreadyMaterialized)
		return
	}

	now := s.now().In(s.loc)
	prev := t.LastMaterializedOn
	if err := s.repo.SetMaterialized(ctx, t.ID, prev, date, next, now); err != nil {
		if errors.Is(err, models.ErrConflict) {
			skip(models.SkipAlreadyMaterialized)
			return
		}
		fail(err)
		return
	}

	order, err := s.orders.Create(ctx, models.CreatePreOrderRequest{
		CustomerID:          t.CustomerID,
		CustomerName:        t.CustomerName,
		VendorID:            t.VendorID,
		Items:               t.Items,
		PickupTime:          pickup,
		Notes:               t.Notes,
		TotalAmount:         t.TotalAmount,
		IsRecurring:         true,
		RecurringTemplateID: t.ID,
	})
	if err != nil {
		// give the marker back so a retry later today can try again
		if rerr := s.repo.SetMaterialized(context.WithoutCancel(ctx), t.ID, date, prev, t.NextExecution, now); rerr != nil {
			s.log.Error("failed to release materialization marker", "template_id", t.ID, "error", rerr)
		}
		fail(err)
		return
	}
	result.Created = append(result.Created, order)
}

// linkedOrderAt reports whether an order for t already exists at pickup, in any
// status. The order placed together with a template counts.
func (s *Service) linkedOrderAt(ctx context.Context, t *models.RecurringTemplate, pickup time.Time) (bool, error) {
	orders, err := s.orders.List(ctx, models.OrderFilter{
		VendorID:   t.VendorID,
		CustomerID: t.CustomerID,
		PickupFrom: pickup,
		PickupTo:   pickup.Add(time.Minute),
	})
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if o.RecurringTemplateID == t.ID {
			return true, nil
		}
	}
	return false, nil
}
