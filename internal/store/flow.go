package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xelth-com/claimsync/internal/models"
)

// FlowState returns the flow state of a claim
func (s *Store) FlowState(ctx context.Context, claimID string) (*models.FlowState, error) {
	var fs models.FlowState
	if err := s.db.WithContext(ctx).First(&fs, "claim_id = ?", claimID).Error; err != nil {
		return nil, notFound(err)
	}
	return &fs, nil
}

// ConfirmFlowStep marks a movement completion as acknowledged and merges the
// server snapshot when one was returned. asOf is the flow revision the
// server answered; an empty movementID only merges the snapshot.
// Conflicting optimistic values are kept, reported and leave the flow state
// in conflict.
func (s *Store) ConfirmFlowStep(ctx context.Context, claimID, movementID string, remote *models.FlowSnapshot, asOf int) ([]models.FlowConflict, error) {
	var conflicts []models.FlowConflict
	err := s.WithTx(ctx, func(tx *Store) error {
		fs, err := tx.FlowState(ctx, claimID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if movementID != "" {
			if err := fs.ConfirmStep(movementID, now); err != nil && !errors.Is(err, models.ErrStepNotFound) {
				return err
			}
		}
		if remote != nil {
			conflicts = fs.Reconcile(*remote, asOf, now)
		}

		switch {
		case len(conflicts) > 0:
			fs.SyncStatus = models.SyncStatusConflict
		case fs.HasOptimistic():
			fs.SyncStatus = models.SyncStatusPending
		default:
			fs.SyncStatus = models.SyncStatusSynced
		}
		return tx.FlowStates().Put(ctx, fs)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to confirm flow of claim %s: %w", claimID, err)
	}
	return conflicts, nil
}
