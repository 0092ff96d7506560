package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xelth-com/claimsync/internal/models"
	"gorm.io/gorm/clause"
)

const defaultSearchLimit = 50

// UpsertCatalog replaces catalog rows by code
func (s *Store) UpsertCatalog(ctx context.Context, items []models.CachedLineItem) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range items {
		items[i].UpdatedAt = now
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(items, 200).Error
	if err != nil {
		return fmt.Errorf("failed to import catalog: %w", err)
	}
	return nil
}

// SearchLineItems matches code or description against query, optionally
// restricted to a category
func (s *Store) SearchLineItems(ctx context.Context, query, category string, limit int) ([]models.CachedLineItem, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	q := s.db.WithContext(ctx).Model(&models.CachedLineItem{})
	if query = strings.TrimSpace(query); query != "" {
		pattern := "%" + likeEscape(strings.ToLower(query)) + "%"
		q = q.Where(`(LOWER(code) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}

	var out []models.CachedLineItem
	if err := q.Order("code ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}
	return out, nil
}
