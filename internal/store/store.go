// Package store is the durable on-device store: typed record collections
// plus the outbound sync queue. It has no network awareness.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/xelth-com/claimsync/internal/database"
	"github.com/xelth-com/claimsync/internal/logging"
	"github.com/xelth-com/claimsync/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Store owns the local database. A Store returned by WithTx shares the
// transaction and must not outlive the callback.
type Store struct {
	db     *gorm.DB
	owner  *database.DB
	logger *log.Logger
}

// New creates a store over an open database
func New(db *database.DB, logger *log.Logger) *Store {
	return &Store{
		db:     db.DB,
		owner:  db,
		logger: logging.OrDefault(logger),
	}
}

// Init migrates the schema
func (s *Store) Init(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate local store: %w", err)
	}
	s.logger.Println("✅ Local store schema ready")
	return nil
}

// Dispose closes the database
func (s *Store) Dispose() error {
	if s.owner == nil {
		return nil
	}
	return s.owner.Close()
}

// WithTx runs fn inside a single transaction
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, logger: s.logger})
	})
}

// ClearAll removes every record, tombstone and queue item
func (s *Store) ClearAll(ctx context.Context) error {
	err := s.WithTx(ctx, func(tx *Store) error {
		for _, m := range models.AllModels() {
			if err := tx.db.Unscoped().Where("1 = 1").Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear local store: %w", err)
	}
	s.logger.Println("🧹 Local store cleared")
	return nil
}

// Claims returns the claim collection
func (s *Store) Claims() *Collection[models.Claim] { return NewCollection[models.Claim](s.db) }

// Zones returns the zone collection
func (s *Store) Zones() *Collection[models.Zone] { return NewCollection[models.Zone](s.db) }

// Photos returns the photo collection
func (s *Store) Photos() *Collection[models.Photo] { return NewCollection[models.Photo](s.db) }

// DamageMarkers returns the damage marker collection
func (s *Store) DamageMarkers() *Collection[models.DamageMarker] {
	return NewCollection[models.DamageMarker](s.db)
}

// FlowStates returns the flow state collection
func (s *Store) FlowStates() *Collection[models.FlowState] {
	return NewCollection[models.FlowState](s.db)
}

// LineItems returns the scope line item collection
func (s *Store) LineItems() *Collection[models.ScopeLineItem] {
	return NewCollection[models.ScopeLineItem](s.db)
}

// SetSyncStatus updates the status column of the record behind a queue entity
func (s *Store) SetSyncStatus(ctx context.Context, entity models.EntityType, id string, status models.SyncStatus) error {
	table, ok := models.EntityTable(entity)
	if !ok {
		return nil
	}
	err := s.db.WithContext(ctx).Table(table).
		Where("id = ?", id).
		Update("sync_status", status).Error
	if err != nil {
		return fmt.Errorf("failed to set %s %s status: %w", entity, id, err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeEscape makes s match literally inside a LIKE pattern with ESCAPE '\'
func likeEscape(s string) string {
	return likeEscaper.Replace(s)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
