// Package sync drains the outbound queue to the claims backend. A drain is
// serial, FIFO and best effort per item: the queue, not memory, is the
// durable source of truth, so a crash mid-drain resumes correctly.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/xelth-com/claimsync/internal/config"
	"github.com/xelth-com/claimsync/internal/logging"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/store"
)

// Status is the state of the synchronization service
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

// UserErrorMessage is the only error text shown to end users. The raw
// error stays on the queue item.
const UserErrorMessage = "sync error"

// ErrNoAdapter is returned for queue items of an entity nobody syncs
var ErrNoAdapter = errors.New("no sync adapter for entity")

// ItemError reports a queue item that did not sync in a drain
type ItemError struct {
	QueueID   string            `json:"queueId"`
	Entity    models.EntityType `json:"entity"`
	EntityID  string            `json:"entityId"`
	ClaimID   string            `json:"claimId,omitempty"`
	Message   string            `json:"message"`
	Attempts  int               `json:"attempts"`
	Permanent bool              `json:"permanent"`
}

// Progress of the current or last drain. Completed counts items that
// synced or were skipped as permanently failed.
type Progress struct {
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	Errors    []ItemError `json:"errors"`
}

func (p Progress) clone() Progress {
	p.Errors = append([]ItemError(nil), p.Errors...)
	return p
}

// Snapshot is what subscribers see
type Snapshot struct {
	Status       Status     `json:"status"`
	Progress     Progress   `json:"progress"`
	Online       bool       `json:"online"`
	PendingCount int64      `json:"pendingCount"`
	LastSync     *time.Time `json:"lastSync,omitempty"`
}

// Adapter replays one queue item against the backend. Any error counts as
// a failed attempt.
type Adapter interface {
	Sync(ctx context.Context, item models.SyncQueueItem) error
}

// AdapterFunc adapts a function to Adapter
type AdapterFunc func(ctx context.Context, item models.SyncQueueItem) error

// Sync calls f
func (f AdapterFunc) Sync(ctx context.Context, item models.SyncQueueItem) error {
	return f(ctx, item)
}

// Connectivity is the view of the connectivity monitor the service needs
type Connectivity interface {
	IsOnline() bool
	OnChange(fn func(online bool)) func()
}

// Options configures a Service
type Options struct {
	Store        *store.Store
	Connectivity Connectivity
	Config       *config.SyncConfig
	Logger       *log.Logger
}

// Service is the synchronization service
type Service struct {
	store    *store.Store
	conn     Connectivity
	cfg      config.SyncConfig
	logger   *log.Logger
	adapters map[models.EntityType]Adapter

	mu        sync.Mutex
	syncing   bool
	status    Status
	progress  Progress
	lastSync  *time.Time
	listeners map[int]func(Snapshot)
	nextID    int

	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	retry       *backoff.ExponentialBackOff
	retryTimer  *time.Timer
	wg          sync.WaitGroup
}

// NewService creates a service. Adapters are registered separately.
func NewService(opts Options) *Service {
	cfg := config.SyncConfig{MaxAttempts: models.DefaultMaxAttempts}
	if opts.Config != nil {
		cfg = *opts.Config
	}

	retry := backoff.NewExponentialBackOff()
	if cfg.RetryBackoffInitialMs > 0 {
		retry.InitialInterval = time.Duration(cfg.RetryBackoffInitialMs) * time.Millisecond
	}
	if cfg.RetryBackoffMaxMs > 0 {
		retry.MaxInterval = time.Duration(cfg.RetryBackoffMaxMs) * time.Millisecond
	}
	retry.Reset()

	return &Service{
		store:     opts.Store,
		conn:      opts.Connectivity,
		cfg:       cfg,
		logger:    logging.OrDefault(opts.Logger),
		adapters:  make(map[models.EntityType]Adapter),
		status:    StatusIdle,
		listeners: make(map[int]func(Snapshot)),
		retry:     retry,
	}
}

// RegisterAdapter sets the adapter for an entity type
func (s *Service) RegisterAdapter(entity models.EntityType, a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[entity] = a
}

// Subscribe registers a listener notified on every state change and after
// every drained item. Listeners run on the draining goroutine. The
// returned function removes the listener.
func (s *Service) Subscribe(fn func(Snapshot)) func() {
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

func (s *Service) online() bool {
	return s.conn == nil || s.conn.IsOnline()
}

// Snapshot returns the current state with the pending count read from the
// store
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.fillPending(&snap)
	return snap
}

func (s *Service) snapshotLocked() Snapshot {
	status := s.status
	online := s.online()
	if !online && !s.syncing {
		status = StatusOffline
	}
	return Snapshot{
		Status:   status,
		Progress: s.progress.clone(),
		Online:   online,
		LastSync: s.lastSync,
	}
}

func (s *Service) fillPending(snap *Snapshot) {
	if s.store == nil {
		return
	}
	count, err := s.store.QueueLength(context.Background())
	if err != nil {
		s.logger.Printf("⚠️ Failed to read queue length: %v", err)
		return
	}
	snap.PendingCount = count
}

func (s *Service) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if len(listeners) == 0 {
		return
	}
	s.fillPending(&snap)
	for _, fn := range listeners {
		fn(snap)
	}
}

// ProcessQueue drains the queue once. It returns false without doing
// anything when offline or when a drain is already running.
func (s *Service) ProcessQueue(ctx context.Context) (Progress, bool) {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return Progress{}, false
	}
	if !s.online() {
		s.mu.Unlock()
		s.notify()
		return Progress{}, false
	}
	s.syncing = true
	s.status = StatusSyncing
	s.progress = Progress{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	items, err := s.store.QueueItems(ctx)
	if err != nil {
		s.logger.Printf("❌ Sync: failed to load queue: %v", err)
		s.finish(StatusError)
		return Progress{}, true
	}

	s.mu.Lock()
	s.progress.Total = len(items)
	s.mu.Unlock()
	s.notify()
	if len(items) > 0 {
		s.logger.Printf("🔄 Sync: draining %d queued items", len(items))
	}

	transient := false
	blocked := make(map[string]bool)
	for i, item := range items {
		if ctx.Err() != nil {
			s.logger.Printf("🛑 Sync: drain stopped, %d items left for the next one", len(items)-i)
			break
		}
		key := blockKey(item)
		if blocked[key] {
			// later edits wait so the entity still converges in order
			continue
		}
		dispatched, failed := s.processItem(ctx, item)
		if failed {
			transient = true
			blocked[key] = true
		}
		s.notify()

		if dispatched && i < len(items)-1 && s.cfg.ItemDelayMs > 0 {
			select {
			case <-time.After(s.cfg.ItemDelay()):
			case <-ctx.Done():
			}
		}
	}

	s.mu.Lock()
	failed := len(s.progress.Errors) > 0
	s.mu.Unlock()

	final := StatusIdle
	if failed {
		final = StatusError
	}
	progress := s.finish(final)
	s.afterDrain(transient)

	if len(items) > 0 {
		s.logger.Printf("✅ Sync: drain finished, %d/%d completed, %d errors", progress.Completed, progress.Total, len(progress.Errors))
	}
	return progress, true
}

// blockKey groups the items that must reach the server in order. Flow
// changes of a claim share one key whatever movement they name.
func blockKey(item models.SyncQueueItem) string {
	if item.Entity == models.EntityMovement {
		return string(item.Entity) + "/" + item.ClaimID
	}
	return string(item.Entity) + "/" + item.EntityID
}

// processItem handles one queue item. It reports whether the item was sent
// and whether sending it failed.
func (s *Service) processItem(ctx context.Context, item models.SyncQueueItem) (dispatched, failed bool) {
	if item.Exhausted() {
		s.mu.Lock()
		s.progress.Completed++
		s.progress.Errors = append(s.progress.Errors, itemError(item, item.Attempts, true))
		s.mu.Unlock()
		return false, false
	}

	// the outcome of a dispatched item is written even when the drain was
	// cancelled meanwhile
	settle := context.WithoutCancel(ctx)

	err := s.dispatch(ctx, item)
	if err == nil {
		err = s.store.CompleteQueueItem(settle, item)
		if err != nil {
			err = fmt.Errorf("failed to settle synced item: %w", err)
		}
	}

	if err == nil {
		s.mu.Lock()
		s.progress.Completed++
		s.mu.Unlock()
		return true, false
	}

	s.logger.Printf("⚠️ Sync: %s %s %s failed (attempt %d/%d): %v",
		item.Action, item.Entity, item.EntityID, item.Attempts+1, item.MaxAttempts, err)
	if recErr := s.store.RecordQueueFailure(settle, item.ID, err.Error()); recErr != nil {
		s.logger.Printf("❌ Sync: %v", recErr)
	}

	attempts := item.Attempts + 1
	s.mu.Lock()
	s.progress.Errors = append(s.progress.Errors, itemError(item, attempts, attempts >= item.MaxAttempts))
	s.mu.Unlock()
	return true, true
}

func itemError(item models.SyncQueueItem, attempts int, permanent bool) ItemError {
	return ItemError{
		QueueID:   item.ID,
		Entity:    item.Entity,
		EntityID:  item.EntityID,
		ClaimID:   item.ClaimID,
		Message:   UserErrorMessage,
		Attempts:  attempts,
		Permanent: permanent,
	}
}

func (s *Service) dispatch(ctx context.Context, item models.SyncQueueItem) error {
	s.mu.Lock()
	adapter, ok := s.adapters[item.Entity]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, item.Entity)
	}
	return adapter.Sync(ctx, item)
}

func (s *Service) finish(status Status) Progress {
	now := time.Now().UTC()
	s.mu.Lock()
	s.status = status
	s.lastSync = &now
	progress := s.progress.clone()
	s.mu.Unlock()
	s.notify()
	return progress
}

// afterDrain schedules a retry drain after transient failures and resets
// the backoff after a clean one
func (s *Service) afterDrain(transient bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !transient {
		s.retry.Reset()
		return
	}
	if !s.running || s.cfg.RetryBackoffInitialMs <= 0 || !s.online() {
		return
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	delay := s.retry.NextBackOff()
	s.logger.Printf("⏳ Sync: retrying in %v", delay.Round(time.Millisecond))
	s.retryTimer = time.AfterFunc(delay, func() { s.TriggerDrain() })
}

// TriggerDrain starts a drain in the background. It returns false when the
// service is not running.
func (s *Service) TriggerDrain() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.ProcessQueue(ctx)
	}()
	return true
}

func (s *Service) onConnectivity(online bool) {
	if online {
		s.TriggerDrain()
		return
	}
	s.notify()
}

// Init subscribes to connectivity changes and starts the scheduled drains
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.store == nil {
		s.mu.Unlock()
		return errors.New("sync service has no store")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.conn != nil {
		unsubscribe := s.conn.OnChange(s.onConnectivity)
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	}

	if s.cfg.AutoSyncEnabled && s.cfg.AutoSyncInterval > 0 {
		s.mu.Lock()
		s.wg.Add(1)
		s.mu.Unlock()
		go s.autoSyncLoop(time.Duration(s.cfg.AutoSyncInterval) * time.Second)
	}

	s.logger.Println("✅ Sync service started")
	if s.cfg.SyncOnStartup {
		s.TriggerDrain()
	}
	return nil
}

func (s *Service) autoSyncLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.TriggerDrain()
		case <-s.ctx.Done():
			return
		}
	}
}

// Dispose stops scheduled drains and waits for a running drain to finish
func (s *Service) Dispose() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.wg.Wait()
	s.logger.Println("🛑 Sync service stopped")
}
