package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter narrows a collection query. Empty fields are ignored.
type Filter struct {
	ClaimID    string
	ZoneID     string
	SyncStatus string
	Where      map[string]interface{}
	OrderBy    string
	Limit      int
}

// Collection is a typed record collection keyed by an "id" column
type Collection[T any] struct {
	db *gorm.DB
}

// NewCollection binds a collection to db (or a transaction)
func NewCollection[T any](db *gorm.DB) *Collection[T] {
	return &Collection[T]{db: db}
}

// CollectionOf binds a collection of any record type to s
func CollectionOf[T any](s *Store) *Collection[T] {
	return NewCollection[T](s.db)
}

// Put inserts or replaces rec. A tombstoned row with the same id is revived.
func (c *Collection[T]) Put(ctx context.Context, rec *T) error {
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

// Get returns the live record with id
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	var rec T
	if err := c.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// GetUnscoped returns the record with id even if it is tombstoned
func (c *Collection[T]) GetUnscoped(ctx context.Context, id string) (*T, error) {
	var rec T
	if err := c.db.WithContext(ctx).Unscoped().First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// Exists reports whether a row with id exists, tombstones included
func (c *Collection[T]) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(new(T)).Unscoped().Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	return count > 0, nil
}

// Query returns live records matching f
func (c *Collection[T]) Query(ctx context.Context, f Filter) ([]T, error) {
	var out []T
	q := apply(c.db.WithContext(ctx), f)
	if f.OrderBy != "" {
		q = q.Order(f.OrderBy)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	return out, nil
}

// Count returns the number of live records matching f
func (c *Collection[T]) Count(ctx context.Context, f Filter) (int64, error) {
	var count int64
	if err := apply(c.db.WithContext(ctx).Model(new(T)), f).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Delete tombstones the record with id
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	res := c.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return fmt.Errorf("failed to delete record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Purge removes the row with id for good
func (c *Collection[T]) Purge(ctx context.Context, id string) error {
	if err := c.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(new(T)).Error; err != nil {
		return fmt.Errorf("failed to purge record: %w", err)
	}
	return nil
}

func apply(q *gorm.DB, f Filter) *gorm.DB {
	if f.ClaimID != "" {
		q = q.Where("claim_id = ?", f.ClaimID)
	}
	if f.ZoneID != "" {
		q = q.Where("zone_id = ?", f.ZoneID)
	}
	if f.SyncStatus != "" {
		q = q.Where("sync_status = ?", f.SyncStatus)
	}
	if len(f.Where) > 0 {
		q = q.Where(f.Where)
	}
	return q
}
