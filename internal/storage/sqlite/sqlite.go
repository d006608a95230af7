// Package sqlite is the embedded storage driver for single-node deployments. It keeps
// the same repository contracts as the postgres driver on top of gorm.
package sqlite

import (
	"fmt"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/pkg/keymutex"
	"foodtruck-preorder/pkg/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Path string `mapstructure:"path"`
}

type orderRow struct {
	ID                   string `gorm:"primaryKey"`
	CustomerID           string `gorm:"index"`
	CustomerName         string
	VendorID             string `gorm:"index"`
	VendorName           string
	Items                []models.OrderItem `gorm:"serializer:json;type:text"`
	PickupTime           time.Time
	Status               string `gorm:"index"`
	EstimatedWaitMinutes int
	ActualWaitMinutes    *int
	IsRecurring          bool
	RecurringTemplateID  string
	Notes                string
	TotalAmount          float64
	CreatedAt            time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime:false"`
}

func (orderRow) TableName() string { return "preorders" }

type templateRow struct {
	ID                 string `gorm:"primaryKey"`
	CustomerID         string `gorm:"index"`
	CustomerName       string
	VendorID           string             `gorm:"index"`
	Items              []models.OrderItem `gorm:"serializer:json;type:text"`
	PickupTimeOfDay    string
	Notes              string
	TotalAmount        float64
	DaysOfWeek         []string `gorm:"serializer:json;type:text"`
	Active             bool
	TotalWeeks         int
	NextExecution      time.Time
	LastMaterializedOn string
	CreatedAt          time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime:false"`
}

func (templateRow) TableName() string { return "recurring_templates" }

type queueRow struct {
	VendorID           string `gorm:"primaryKey"`
	ActiveOrderCount   int
	AveragePrepMinutes float64
	LastUpdated        time.Time
}

func (queueRow) TableName() string { return "vendor_queue_state" }

type vendorRow struct {
	ID                 string `gorm:"primaryKey"`
	Name               string
	AveragePrepMinutes float64
	CustomPrepMinutes  float64
	UseCustomPrep      bool
}

func (vendorRow) TableName() string { return "vendors" }

type customerRow struct {
	ID    string `gorm:"primaryKey"`
	Name  string
	Email string
	Tier  string
}

func (customerRow) TableName() string { return "customers" }

// gormWriter routes gorm's own warnings into the service logger.
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warn(fmt.Sprintf(format, args...))
}

// Open connects to the database file and migrates every table.
func Open(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	if log == nil {
		log = logger.Nop()
	}
	path := cfg.Path
	if path == "" {
		path = "preorders.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.New(gormWriter{log: log.WithComponent("gorm")}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}

	// SQLite allows one writer at a time.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&vendorRow{}, &customerRow{}, &templateRow{}, &orderRow{}, &queueRow{}); err != nil {
		return nil, fmt.Errorf("sqlite.Open: migrate: %w", err)
	}
	return db, nil
}

// Store bundles the repositories sharing one database handle.
type Store struct {
	Orders    *OrderRepository
	Templates *TemplateRepository
	Queue     *QueueRepository
	Directory *Directory
}

func NewStore(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{
		Orders: &OrderRepository{
			db:     db,
			locks:  keymutex.New(),
			broker: feed.NewBroker[*models.PreOrder]("preorders", log),
		},
		Templates: &TemplateRepository{
			db:     db,
			locks:  keymutex.New(),
			broker: feed.NewBroker[*models.RecurringTemplate]("templates", log),
		},
		Queue: &QueueRepository{
			db:     db,
			locks:  keymutex.New(),
			broker: feed.NewBroker[*models.VendorQueueState]("queue", log),
		},
		Directory: &Directory{db: db},
	}
}

func (s *Store) Close() {
	s.Orders.broker.Close()
	s.Templates.broker.Close()
	s.Queue.broker.Close()
}
