// Package gormstorage implements storage.Backend on any GORM dialect.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/estate360/positioner/internal/database"
	"github.com/estate360/positioner/internal/model"
	"github.com/estate360/positioner/internal/model/convert"
	"github.com/estate360/positioner/pkg/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds what the GORM backend needs
type Dependencies struct {
	DB       *gorm.DB
	Logger   *slog.Logger
	Metadata map[string]string // stored alongside every placement

	// EventSink receives history rows instead of writing them in the
	// placement transaction. Used by backends that batch history writes.
	EventSink func(model.PlacementEvent)
}

// Backend persists placements through GORM
type Backend struct {
	db   *gorm.DB
	log  *slog.Logger
	meta map[string]string
	sink func(model.PlacementEvent)
}

// New creates a GORM backend. Init must run before use.
func New(deps Dependencies) *Backend {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{db: deps.DB, log: log, meta: deps.Metadata, sink: deps.EventSink}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if err := database.Migrate(b.db); err != nil {
		return err
	}
	b.log.Info("Placement schema ready", "dialect", b.db.Dialector.Name())
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SavePanorama upserts the panorama row.
func (b *Backend) SavePanorama(p *core.PanoramaResource) error {
	row := convert.CoreToPanorama(*p)
	err := b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"image_url", "caption", "location", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save panorama %s: %w", p.ID, err)
	}
	return nil
}

// SavePlacement upserts the placement and appends a history row.
func (b *Backend) SavePlacement(p *core.Placement) error {
	row := convert.CoreToPlacement(*p, b.meta)
	event := convert.CoreToPlacementEvent(*p, model.ActionSet)

	return b.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "property_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"panorama_id", "yaw", "pitch", "direction", "metadata", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to save placement %s: %w", p.PropertyID, err)
		}
		return b.recordEvent(tx, event)
	})
}

// DeletePlacement removes the placement and appends a history row. Unknown
// properties still get their clear recorded.
func (b *Backend) DeletePlacement(p *core.Placement) error {
	event := convert.CoreToPlacementEvent(*p, model.ActionClear)

	return b.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("property_id = ?", p.PropertyID).Delete(&model.Placement{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete placement %s: %w", p.PropertyID, res.Error)
		}
		if res.RowsAffected == 0 {
			b.log.Debug("No stored placement to delete", "property", p.PropertyID)
		}
		return b.recordEvent(tx, event)
	})
}

func (b *Backend) recordEvent(tx *gorm.DB, event model.PlacementEvent) error {
	if b.sink != nil {
		b.sink(event)
		return nil
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to record placement event: %w", err)
	}
	return nil
}

// ListPlacements returns the placements of a panorama ordered by property id.
func (b *Backend) ListPlacements(panoramaID string) ([]core.Placement, error) {
	var rows []model.Placement
	err := b.db.Where("panorama_id = ?", panoramaID).Order("property_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list placements: %w", err)
	}
	return convert.PlacementsToCore(rows), nil
}

// GetPlacement returns the stored placement of one property.
func (b *Backend) GetPlacement(propertyID string) (core.Placement, bool, error) {
	var row model.Placement
	err := b.db.Where("property_id = ?", propertyID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Placement{}, false, nil
	}
	if err != nil {
		return core.Placement{}, false, err
	}
	return convert.PlacementToCore(row), true, nil
}
