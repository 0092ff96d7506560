package sync

import (
	"context"
	"log"
	"time"

	"github.com/xelth-com/claimsync/internal/logging"
)

// Registrar is a platform background-sync facility
type Registrar interface {
	Supported() bool
	Register(ctx context.Context, tag string) error
}

// NoopRegistrar is used where the platform offers no background sync
type NoopRegistrar struct{}

func (NoopRegistrar) Supported() bool                        { return false }
func (NoopRegistrar) Register(context.Context, string) error { return nil }

// TickerRegistrar drains periodically while the agent runs in the
// background. Register starts the ticker; it stops with ctx.
type TickerRegistrar struct {
	Interval time.Duration
	Trigger  func() bool
}

// Supported implements Registrar
func (r *TickerRegistrar) Supported() bool {
	return r.Interval > 0 && r.Trigger != nil
}

// Register implements Registrar
func (r *TickerRegistrar) Register(ctx context.Context, tag string) error {
	go func() {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Trigger()
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// RegisterBackground registers tag with r. It never fails: foreground
// drains stay the primary mechanism.
func RegisterBackground(ctx context.Context, r Registrar, tag string, logger *log.Logger) bool {
	logger = logging.OrDefault(logger)
	if r == nil || !r.Supported() {
		logger.Println("ℹ️ Background sync not supported, relying on foreground drains")
		return false
	}
	if err := r.Register(ctx, tag); err != nil {
		logger.Printf("⚠️ Background sync registration failed for %q: %v", tag, err)
		return false
	}
	logger.Printf("✅ Background sync registered (%s)", tag)
	return true
}
