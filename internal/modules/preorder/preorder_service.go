package preorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/internal/modules/admission"
	"foodtruck-preorder/internal/modules/estimator"
	"foodtruck-preorder/internal/notify"
	"foodtruck-preorder/internal/timeutil"
	"foodtruck-preorder/pkg/keymutex"
	"foodtruck-preorder/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const defaultNotifyTimeout = 10 * time.Second

// ServiceInterface defines the contract for the pre-order service.
type ServiceInterface interface {
	Quote(ctx context.Context, req models.QuoteRequest) (*models.Quote, error)
	Create(ctx context.Context, req models.CreatePreOrderRequest) (*models.PreOrder, error)
	Get(ctx context.Context, id string) (*models.PreOrder, error)
	List(ctx context.Context, filter models.OrderFilter) ([]*models.PreOrder, error)
	Transition(ctx context.Context, id string, to models.OrderStatus) (*models.PreOrder, error)
	Subscribe(filter models.OrderFilter) *feed.Subscription[*models.PreOrder]
}

// QueueTracker moves a vendor's active-order counter. Decrement clamps at zero.
type QueueTracker interface {
	Increment(ctx context.Context, vendorID string) (*models.VendorQueueState, error)
	Decrement(ctx context.Context, vendorID string) (*models.VendorQueueState, error)
}

// WaitEstimator is satisfied by *estimator.Estimator.
type WaitEstimator interface {
	EstimateFor(ctx context.Context, vendorID string, pickup time.Time, items []models.OrderItem) (estimator.Estimate, error)
}

type VendorDirectory interface {
	GetVendor(ctx context.Context, id string) (*models.Vendor, error)
}

// CustomerDirectory resolves customers. GetTier falls back to standard for unknown ids.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	GetTier(ctx context.Context, id string) (models.CustomerTier, error)
}

// TemplateLinker creates the recurring template behind a recurring order.
type TemplateLinker interface {
	CreateTemplate(ctx context.Context, req models.CreateTemplateRequest) (*models.RecurringTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
}

// Deps are the collaborators of the pipeline.
type Deps struct {
	Repo      RepositoryInterface
	Queue     QueueTracker
	Admission *admission.Validator
	Estimator WaitEstimator
	Vendors   VendorDirectory
	Customers CustomerDirectory
	Notifier  notify.Sender
	Logger    *logger.Logger
	// Location is the vendors' timezone. Defaults to time.Local.
	Location      *time.Location
	Now           func() time.Time
	NotifyTimeout time.Duration
}

// Service admits pre-orders and drives them through their lifecycle.
type Service struct {
	repo          RepositoryInterface
	queue         QueueTracker
	admission     *admission.Validator
	estimator     WaitEstimator
	vendors       VendorDirectory
	customers     CustomerDirectory
	notifier      notify.Sender
	templates     TemplateLinker
	log           *logger.Logger
	loc           *time.Location
	now           func() time.Time
	notifyTimeout time.Duration
	validate      *validator.Validate
	locks         *keymutex.KeyMutex
	inflight      sync.WaitGroup
}

// NewService creates a new pre-order service.
func NewService(d Deps) *Service {
	s := &Service{
		repo:          d.Repo,
		queue:         d.Queue,
		admission:     d.Admission,
		estimator:     d.Estimator,
		vendors:       d.Vendors,
		customers:     d.Customers,
		notifier:      d.Notifier,
		log:           d.Logger,
		loc:           d.Location,
		now:           d.Now,
		notifyTimeout: d.NotifyTimeout,
		validate:      validator.New(),
		locks:         keymutex.New(),
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.WithComponent("preorder")
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = defaultNotifyTimeout
	}
	return s
}

// SetTemplateLinker wires the recurring engine, which itself depends on this service.
func (s *Service) SetTemplateLinker(t TemplateLinker) {
	s.templates = t
}

// Quote runs admission and estimation without persisting anything.
func (s *Service) Quote(ctx context.Context, req models.QuoteRequest) (*models.Quote, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	tier, err := s.customers.GetTier(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("service.Quote: %w", err)
	}
	earliest, err := s.admission.EarliestPickup(tier, s.now().In(s.loc))
	if err != nil {
		return nil, fmt.Errorf("service.Quote: %w", err)
	}
	est, err := s.estimator.EstimateFor(ctx, req.VendorID, req.PickupTime, req.Items)
	if err != nil {
		return nil, fmt.Errorf("service.Quote: %w", err)
	}
	return &models.Quote{
		VendorID:             req.VendorID,
		PickupTime:           req.PickupTime,
		EarliestPickup:       earliest,
		Accepted:             !req.PickupTime.Before(earliest),
		EstimatedWaitMinutes: est.Minutes,
		EstimatedWait:        timeutil.FormatMinutes(est.Minutes),
		PeakWindow:           est.PeakWindow,
	}, nil
}

// Create admits a new pre-order. The order is either persisted with its queue slot
// taken, or nothing is written at all.
func (s *Service) Create(ctx context.Context, req models.CreatePreOrderRequest) (*models.PreOrder, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	vendor, err := s.vendors.GetVendor(ctx, req.VendorID)
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}

	customerName := req.CustomerName
	if customerName == "" {
		if c, err := s.customers.GetCustomer(ctx, req.CustomerID); err == nil {
			customerName = c.Name
		}
	}
	tier, err := s.customers.GetTier(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}

	now := s.now().In(s.loc)
	if req.OverrideAdmission {
		s.log.Info("admission check overridden", "customer_id", req.CustomerID, "vendor_id", req.VendorID)
	} else if err := s.admission.ValidatePickupTime(req.PickupTime, tier, now); err != nil {
		s.log.Debug("pre-order rejected", "customer_id", req.CustomerID, "tier", string(tier), "error", err)
		return nil, err
	}

	est, err := s.estimator.EstimateFor(ctx, vendor.ID, req.PickupTime, req.Items)
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}

	order := &models.PreOrder{
		ID:                   uuid.NewString(),
		CustomerID:           req.CustomerID,
		CustomerName:         customerName,
		VendorID:             vendor.ID,
		VendorName:           vendor.Name,
		Items:                append([]models.OrderItem(nil), req.Items...),
		PickupTime:           req.PickupTime,
		Status:               models.StatusPending,
		EstimatedWaitMinutes: est.Minutes,
		IsRecurring:          req.IsRecurring || req.RecurringTemplateID != "",
		RecurringTemplateID:  req.RecurringTemplateID,
		Notes:                req.Notes,
		TotalAmount:          req.TotalAmount,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	var createdTemplate string
	if req.IsRecurring && req.RecurringTemplateID == "" {
		tmpl, err := s.linkTemplate(ctx, req, customerName)
		if err != nil {
			return nil, fmt.Errorf("service.Create: %w", err)
		}
		createdTemplate = tmpl.ID
		order.RecurringTemplateID = tmpl.ID
	}

	if _, err := s.queue.Increment(ctx, vendor.ID); err != nil {
		s.dropTemplate(ctx, createdTemplate)
		return nil, fmt.Errorf("service.Create: queue increment: %w", err)
	}
	if err := s.repo.Create(ctx, order); err != nil {
		if _, qerr := s.queue.Decrement(context.WithoutCancel(ctx), vendor.ID); qerr != nil {
			s.log.Error("failed to release queue slot after aborted create", "vendor_id", vendor.ID, "error", qerr)
		}
		s.dropTemplate(ctx, createdTemplate)
		return nil, fmt.Errorf("service.Create: %w", err)
	}

	s.log.Info("pre-order admitted", "order_id", order.ID, "vendor_id", order.VendorID,
		"pickup_time", order.PickupTime, "estimated_wait_minutes", order.EstimatedWaitMinutes,
		"recurring_template_id", order.RecurringTemplateID)
	return order, nil
}

func (s *Service) linkTemplate(ctx context.Context, req models.CreatePreOrderRequest, customerName string) (*models.RecurringTemplate, error) {
	if s.templates == nil {
		return nil, fmt.Errorf("%w: recurring orders are not enabled", models.ErrInvalidArgument)
	}
	pickup := req.PickupTime.In(s.loc)
	days := req.RecurringDays
	if len(days) == 0 {
		days = []string{timeutil.WeekdayName(pickup.Weekday())}
	}
	return s.templates.CreateTemplate(ctx, models.CreateTemplateRequest{
		CustomerID:      req.CustomerID,
		CustomerName:    customerName,
		VendorID:        req.VendorID,
		Items:           req.Items,
		PickupTimeOfDay: pickup.Format("15:04"),
		DaysOfWeek:      days,
		TotalWeeks:      req.TotalWeeks,
		Notes:           req.Notes,
		TotalAmount:     req.TotalAmount,
		FirstPickup:     pickup,
	})
}

func (s *Service) dropTemplate(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := s.templates.DeleteTemplate(context.WithoutCancel(ctx), id); err != nil {
		s.log.Error("failed to remove template after aborted create", "template_id", id, "error", err)
	}
}

// Get retrieves a single pre-order.
func (s *Service) Get(ctx context.Context, id string) (*models.PreOrder, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.Get: %w", err)
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, filter models.OrderFilter) ([]*models.PreOrder, error) {
	orders, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service.List: %w", err)
	}
	return orders, nil
}

// Subscribe opens a live feed of committed order snapshots. Close the subscription
// when the consumer goes away.
func (s *Service) Subscribe(filter models.OrderFilter) *feed.Subscription[*models.PreOrder] {
	return s.repo.Subscribe(filter)
}

// Transition moves an order to status to. Illegal moves return
// *models.InvalidTransitionError and leave the order untouched.
func (s *Service) Transition(ctx context.Context, id string, to models.OrderStatus) (*models.PreOrder, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.Transition: %w", err)
	}
	if err := CanTransition(current.Status, to); err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	patch := models.StatusPatch{Status: to, UpdatedAt: now}
	if to == models.StatusDelivered {
		waited := timeutil.MinutesBetween(current.CreatedAt, now)
		if waited < 0 {
			waited = 0
		}
		patch.ActualWaitMinutes = &waited
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, patch)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// another instance moved the order first
			from := current.Status
			if latest, ferr := s.repo.FindByID(ctx, id); ferr == nil {
				from = latest.Status
			}
			return nil, &models.InvalidTransitionError{From: from, To: to}
		}
		return nil, fmt.Errorf("service.Transition: %w", err)
	}

	s.log.Info("pre-order transitioned", "order_id", id, "vendor_id", updated.VendorID,
		"from", string(current.Status), "to", string(to))

	if to.IsTerminal() && current.Status.OccupiesQueue() {
		s.releaseSlot(ctx, updated.VendorID)
	}
	switch to {
	case models.StatusPreparing:
		s.notify(ctx, updated, notify.KindPreparing)
	case models.StatusReady:
		s.notify(ctx, updated, notify.KindReady)
	}
	return updated, nil
}

// releaseSlot runs after the transition is committed, so its failures are logged
// instead of returned.
func (s *Service) releaseSlot(ctx context.Context, vendorID string) {
	if _, err := s.queue.Decrement(context.WithoutCancel(ctx), vendorID); err != nil {
		s.log.Error("failed to release queue slot", "vendor_id", vendorID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, order *models.PreOrder, kind notify.Kind) {
	if s.notifier == nil {
		return
	}
	payload := notify.Payload{
		OrderID:              order.ID,
		VendorID:             order.VendorID,
		VendorName:           order.VendorName,
		PickupTime:           order.PickupTime,
		EstimatedWaitMinutes: order.EstimatedWaitMinutes,
	}
	customerID := order.CustomerID
	base := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		sendCtx, cancel := context.WithTimeout(base, s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Send(sendCtx, customerID, kind, payload); err != nil {
			s.log.Warn("notification failed", "order_id", payload.OrderID, "kind", string(kind), "error", err)
		}
	}()
}

// Wait blocks until in-flight notifications have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}
