// Package capture is the only path by which mutations are created: every
// save persists the record and appends its sync queue item in one
// transaction.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/xelth-com/claimsync/internal/logging"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/store"
	"github.com/xelth-com/claimsync/internal/utils"
	"gorm.io/datatypes"
)

// ErrNotCaptured marks a durability failure: the capture was not saved
var ErrNotCaptured = errors.New("capture not saved")

// ErrInvalid is returned for captures missing required fields
var ErrInvalid = errors.New("invalid capture")

// Change is published after a capture commits
type Change struct {
	Entity   models.EntityType `json:"entity"`
	EntityID string            `json:"entityId"`
	ClaimID  string            `json:"claimId"`
	Action   models.SyncAction `json:"action"`
}

// Config configures a capture service
type Config struct {
	MaxAttempts int
	Sealer      *utils.BlobSealer
	Logger      *log.Logger
}

// Service implements the capture operations
type Service struct {
	store       *store.Store
	sealer      *utils.BlobSealer
	maxAttempts int
	logger      *log.Logger

	mu        sync.RWMutex
	listeners map[int]func(Change)
	nextID    int
}

// NewService creates a capture service
func NewService(st *store.Store, cfg Config) *Service {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	return &Service{
		store:       st,
		sealer:      cfg.Sealer,
		maxAttempts: maxAttempts,
		logger:      logging.OrDefault(cfg.Logger),
		listeners:   make(map[int]func(Change)),
	}
}

// OnChange registers a listener called after every committed capture.
// The returned function removes it.
func (s *Service) OnChange(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Service) publish(c Change) {
	s.mu.RLock()
	listeners := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(c)
	}
}

// capture runs fn in a transaction and publishes the resulting change.
// Store failures are reported as ErrNotCaptured.
func (s *Service) capture(ctx context.Context, what string, fn func(tx *store.Store) (Change, error)) error {
	var change Change
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		c, err := fn(tx)
		change = c
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalid) || errors.Is(err, store.ErrNotFound) {
			return err
		}
		s.logger.Printf("❌ Capture failed (%s): %v", what, err)
		return fmt.Errorf("%w: %s: %w", ErrNotCaptured, what, err)
	}
	if change.Entity != "" {
		s.publish(change)
	}
	return nil
}

// enqueue appends the queue item describing a change
func (s *Service) enqueue(ctx context.Context, tx *store.Store, action models.SyncAction, entity models.EntityType, entityID, claimID string, payload interface{}) (Change, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Change{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	item := &models.SyncQueueItem{
		Action:      action,
		Entity:      entity,
		EntityID:    entityID,
		ClaimID:     claimID,
		Payload:     datatypes.JSON(body),
		MaxAttempts: s.maxAttempts,
	}
	if err := tx.Enqueue(ctx, item); err != nil {
		return Change{}, err
	}
	return Change{Entity: entity, EntityID: entityID, ClaimID: claimID, Action: action}, nil
}

// record is the pointer form of a syncable model
type record[T any] interface {
	*T
	models.SyncableEntity
}

// upsert stores rec as pending and enqueues a create or update
func upsert[T any, P record[T]](ctx context.Context, s *Service, tx *store.Store, rec P) (Change, error) {
	coll := store.CollectionOf[T](tx)
	exists, err := coll.Exists(ctx, rec.GetEntityID())
	if err != nil {
		return Change{}, err
	}

	rec.Meta().Touch(models.SyncStatusPending)
	rec.Meta().DeletedAt.Valid = false
	if err := coll.Put(ctx, (*T)(rec)); err != nil {
		return Change{}, err
	}

	action := models.ActionCreate
	if exists {
		action = models.ActionUpdate
	}
	return s.enqueue(ctx, tx, action, rec.GetEntityType(), rec.GetEntityID(), rec.GetClaimID(), rec)
}

// remove tombstones rec and enqueues its delete
func remove[T any, P record[T]](ctx context.Context, s *Service, tx *store.Store, id string) (Change, error) {
	coll := store.CollectionOf[T](tx)
	found, err := coll.Get(ctx, id)
	if err != nil {
		return Change{}, err
	}
	rec := P(found)

	rec.Meta().Touch(models.SyncStatusPending)
	if err := coll.Put(ctx, found); err != nil {
		return Change{}, err
	}
	if err := coll.Delete(ctx, id); err != nil {
		return Change{}, err
	}

	payload := map[string]string{"id": id, "claimId": rec.GetClaimID()}
	return s.enqueue(ctx, tx, models.ActionDelete, rec.GetEntityType(), id, rec.GetClaimID(), payload)
}

func newID() string {
	return uuid.New().String()
}
