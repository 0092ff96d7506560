package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type failingRegistrar struct{}

func (failingRegistrar) Supported() bool                        { return true }
func (failingRegistrar) Register(context.Context, string) error { return errors.New("denied") }

func TestRegisterBackgroundIsBestEffort(t *testing.T) {
	ctx := context.Background()
	assert.False(t, RegisterBackground(ctx, nil, "claims-sync", quiet))
	assert.False(t, RegisterBackground(ctx, NoopRegistrar{}, "claims-sync", quiet))
	assert.False(t, RegisterBackground(ctx, failingRegistrar{}, "claims-sync", quiet))
}

func TestTickerRegistrarTriggersDrains(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	r := &TickerRegistrar{Interval: 10 * time.Millisecond, Trigger: func() bool {
		select {
		case fired <- struct{}{}:
		default:
		}
		return true
	}}
	assert.True(t, RegisterBackground(ctx, r, "claims-sync", quiet))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("background ticker never fired")
	}
}
