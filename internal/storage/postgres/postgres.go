// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with a history queue drained by a background DB writer goroutine.
package postgres

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/estate360/positioner/internal/config"
	"github.com/estate360/positioner/internal/database"
	"github.com/estate360/positioner/internal/model"
	"github.com/estate360/positioner/internal/queue"
	gormstorage "github.com/estate360/positioner/internal/storage/gorm"

	"gorm.io/gorm"
)

// DefaultFlushInterval is how often queued history rows are written.
const DefaultFlushInterval = time.Second

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB            *gorm.DB // optional, connects with DBConfig when nil
	DBConfig      config.DBConfig
	Logger        *slog.Logger
	Metadata      map[string]string
	FlushInterval time.Duration
}

// Backend writes placements synchronously and batches their history.
type Backend struct {
	*gormstorage.Backend
	deps     Dependencies
	log      *slog.Logger
	events   *queue.Queue[model.PlacementEvent]
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Postgres storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:     deps,
		log:      deps.Logger,
		events:   queue.New[model.PlacementEvent](),
		stopChan: make(chan struct{}),
	}
}

// Init connects if needed, migrates the schema and starts the DB writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDB(b.deps.DBConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	if b.deps.DB.Name() == "postgres" {
		if err := b.deps.DB.Exec(`CREATE EXTENSION IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS extension: %w", err)
		}
		b.log.Info("PostGIS extension ready")
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:        b.deps.DB,
		Logger:    b.log,
		Metadata:  b.deps.Metadata,
		EventSink: func(e model.PlacementEvent) { b.events.Push(e) },
	})
	if err := b.Backend.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.wg.Add(1)
	go b.writeLoop()
	return nil
}

// Close stops the writer, flushes pending history and closes the connection.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()
	if b.Backend == nil {
		return nil
	}
	b.Flush()
	return b.Backend.Close()
}

// Pending returns the number of queued history rows.
func (b *Backend) Pending() int {
	return b.events.Len()
}

// Flush writes all queued history rows in one transaction. Rows are requeued
// when the insert fails.
func (b *Backend) Flush() {
	if b.events.Empty() {
		return
	}

	items := b.events.Drain()
	tx := b.deps.DB.Begin()
	if err := tx.Create(&items).Error; err != nil {
		b.log.Error("Error creating placement events", "count", len(items), "error", err)
		tx.Rollback()
		b.events.Push(items...)
		return
	}
	if err := tx.Commit().Error; err != nil {
		b.log.Error("Error committing placement events", "error", err)
		b.events.Push(items...)
		return
	}
	b.log.Debug("Wrote placement events", "count", len(items))
}

func (b *Backend) writeLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
