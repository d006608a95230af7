package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"foodtruck-preorder/internal/config"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/internal/modules/admission"
	"foodtruck-preorder/internal/modules/analytics"
	"foodtruck-preorder/internal/modules/estimator"
	"foodtruck-preorder/internal/modules/preorder"
	"foodtruck-preorder/internal/modules/queue"
	"foodtruck-preorder/internal/modules/recurring"
	"foodtruck-preorder/internal/notify"
	"foodtruck-preorder/internal/storage/memory"
	"foodtruck-preorder/internal/storage/postgres"
	"foodtruck-preorder/internal/storage/sqlite"
	"foodtruck-preorder/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Directory is the vendor and customer lookup every driver provides.
type Directory interface {
	GetVendor(ctx context.Context, id string) (*models.Vendor, error)
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	GetTier(ctx context.Context, id string) (models.CustomerTier, error)
}

type stores struct {
	orders    preorder.RepositoryInterface
	templates recurring.RepositoryInterface
	queue     queue.RepositoryInterface
	directory Directory
	listen    func(ctx context.Context) error
	closers   []func()
}

// App is a fully wired process.
type App struct {
	Echo      *echo.Echo
	PreOrders *preorder.Service
	Recurring *recurring.Service
	Queue     *queue.Service
	Analytics *analytics.Service
	Scheduler *recurring.Scheduler
	Location  *time.Location

	cfg     *config.Config
	log     *logger.Logger
	listen  func(ctx context.Context) error
	closers []func()
}

// Build opens the configured store and notification driver and wires every module.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	app := &App{cfg: cfg, log: log.WithComponent("app"), Location: loc, listen: st.listen, closers: st.closers}

	sender, closeSender, err := openNotifier(ctx, cfg.Notify, st.directory, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	if closeSender != nil {
		app.closers = append(app.closers, closeSender)
	}

	est, err := estimator.New(cfg.Estimator, st.queue, st.directory, loc)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Queue = queue.NewService(st.queue, st.directory, cfg.Estimator.DefaultAveragePrepMinutes, log)
	adm := admission.NewValidator(cfg.Admission)
	app.PreOrders = preorder.NewService(preorder.Deps{
		Repo:          st.orders,
		Queue:         app.Queue,
		Admission:     adm,
		Estimator:     est,
		Vendors:       st.directory,
		Customers:     st.directory,
		Notifier:      sender,
		Logger:        log,
		Location:      loc,
		NotifyTimeout: cfg.Notify.Timeout,
	})
	app.Recurring = recurring.NewService(recurring.Deps{
		Repo:      st.templates,
		Orders:    app.PreOrders,
		Vendors:   st.directory,
		Customers: st.directory,
		Config:    cfg.Recurring,
		Logger:    log,
		Location:  loc,
		RunAt:     cfg.Scheduler.RunAt,
		Admission: adm,
	})
	app.PreOrders.SetTemplateLinker(app.Recurring)
	app.Analytics = analytics.NewService(st.orders, st.directory, est, loc, log)

	if cfg.Scheduler.Enabled {
		app.Scheduler, err = recurring.NewScheduler(app.Recurring, cfg.Scheduler.RunAt, loc, log)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("scheduler: %w", err)
		}
	}

	app.Echo = NewEcho(Handlers{
		PreOrders: preorder.NewHandler(app.PreOrders),
		Queue:     queue.NewHandler(app.Queue),
		Templates: recurring.NewHandler(app.Recurring, loc),
		Analytics: analytics.NewHandler(app.Analytics, loc),
	}, cfg.Auth.JWTSecret, cfg.Server.ClientOrigin, log)
	return app, nil
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, err
		}
		s := postgres.NewStore(pool, log)
		if err := s.Directory.Seed(ctx, cfg.Seed.Vendors, cfg.Seed.Customers); err != nil {
			s.Close()
			pool.Close()
			return nil, err
		}
		return &stores{
			orders:    s.Orders,
			templates: s.Templates,
			queue:     s.Queue,
			directory: s.Directory,
			listen:    s.Listen,
			closers:   []func(){s.Close, pool.Close},
		}, nil

	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.SQLite, log)
		if err != nil {
			return nil, err
		}
		s := sqlite.NewStore(db, log)
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		if err := s.Directory.Seed(ctx, cfg.Seed.Vendors, cfg.Seed.Customers); err != nil {
			s.Close()
			closeDB()
			return nil, err
		}
		return &stores{
			orders:    s.Orders,
			templates: s.Templates,
			queue:     s.Queue,
			directory: s.Directory,
			closers:   []func(){s.Close, closeDB},
		}, nil

	default:
		orders := memory.NewOrderStore(log)
		templates := memory.NewTemplateStore(log)
		q := memory.NewQueueStore(log)
		return &stores{
			orders:    orders,
			templates: templates,
			queue:     q,
			directory: memory.NewDirectory(cfg.Seed.Vendors, cfg.Seed.Customers),
			closers:   []func(){orders.Close, templates.Close, q.Close},
		}, nil
	}
}

func openNotifier(ctx context.Context, cfg config.NotifyConfig, customers notify.CustomerDirectory, log *logger.Logger) (notify.Sender, func(), error) {
	logSender := notify.NewLogSender(log)
	switch cfg.Driver {
	case "ses":
		client, err := notify.NewSESClient(ctx, cfg.SES.Region)
		if err != nil {
			return nil, nil, err
		}
		return notify.MultiSender{notify.NewSESSender(client, cfg.SES.From, customers), logSender}, nil, nil
	case "amqp":
		pub, err := notify.DialPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, nil, err
		}
		return notify.MultiSender{notify.NewAMQPSender(pub), logSender}, pub.Close, nil
	default:
		return logSender, nil, nil
	}
}

// Serve runs the HTTP server, the change listener and the scheduler until ctx is
// cancelled, then drains in-flight requests and notifications.
func (a *App) Serve(ctx context.Context) error {
	if a.listen != nil {
		go func() {
			if err := a.listen(ctx); err != nil {
				a.log.Error("change listener stopped", "error", err)
			}
		}()
	}
	if a.Scheduler != nil {
		go func() {
			if err := a.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("scheduler stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Server.Port
		a.log.Info("http server listening", "addr", addr)
		if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http shutdown", "error", err)
	}
	a.PreOrders.Wait()
	a.log.Info("server stopped")
	return nil
}

// Materialize runs one materialization pass for day and waits for its notifications.
func (a *App) Materialize(ctx context.Context, day time.Time) (*models.MaterializeResult, error) {
	result, err := a.Recurring.MaterializeDueTemplates(ctx, day)
	a.PreOrders.Wait()
	return result, err
}

// Close releases the store and notification driver in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
