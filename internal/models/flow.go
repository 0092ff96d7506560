package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ErrStepNotFound is returned when confirming a step that was never recorded
var ErrStepNotFound = errors.New("flow step not found")

// Provenance tags a value as locally assumed or acknowledged by the server
type Provenance string

const (
	Optimistic Provenance = "optimistic"
	Confirmed  Provenance = "confirmed"
)

// Tracked is a value together with where it came from. Revision is the
// flow revision that last set an optimistic value.
type Tracked[T comparable] struct {
	Value      T          `json:"value"`
	Provenance Provenance `json:"provenance"`
	Revision   int        `json:"revision,omitempty"`
}

// IsOptimistic reports whether the value still waits for the server
func (t Tracked[T]) IsOptimistic() bool {
	return t.Provenance == Optimistic
}

// FlowStep is one completed inspection movement
type FlowStep struct {
	MovementID  string     `json:"movementId"`
	CompletedAt time.Time  `json:"completedAt"`
	Provenance  Provenance `json:"provenance"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	Evidence    []string   `json:"evidence,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// FlowSnapshot is the server's view of a claim's inspection flow
type FlowSnapshot struct {
	CurrentMovementID  string   `json:"currentMovementId"`
	ProgressPercent    int      `json:"progressPercent"`
	CompletedMovements []string `json:"completedMovements"`
}

// FlowConflict describes a field where an optimistic local value and the
// server disagree
type FlowConflict struct {
	Field  string `json:"field"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// FlowState tracks inspection progress so an interrupted inspection can resume
type FlowState struct {
	ID              string                              `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ClaimID         string                              `gorm:"type:varchar(64);not null;uniqueIndex" json:"claimId"`
	CurrentMovement datatypes.JSONType[Tracked[string]] `json:"currentMovement"`
	ProgressPercent datatypes.JSONType[Tracked[int]]    `json:"progressPercent"`
	Steps           datatypes.JSONSlice[FlowStep]       `json:"steps"`
	Revision        int                                 `gorm:"not null;default:0" json:"revision"`
	SyncMeta
}

// TableName specifies the table name
func (FlowState) TableName() string {
	return "flow_states"
}

// FlowUpdate is an optimistic change applied by a capture
type FlowUpdate struct {
	MovementID      string   `json:"movementId"`
	ProgressPercent *int     `json:"progressPercent,omitempty"`
	Completed       bool     `json:"completed"`
	Evidence        []string `json:"evidence,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// Apply records the update as optimistic values under a new revision
func (f *FlowState) Apply(u FlowUpdate, at time.Time) {
	f.Revision++
	if u.MovementID != "" {
		f.CurrentMovement = datatypes.NewJSONType(Tracked[string]{Value: u.MovementID, Provenance: Optimistic, Revision: f.Revision})
	}
	if u.ProgressPercent != nil {
		pct := *u.ProgressPercent
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		f.ProgressPercent = datatypes.NewJSONType(Tracked[int]{Value: pct, Provenance: Optimistic, Revision: f.Revision})
	}
	if !u.Completed {
		return
	}

	step := FlowStep{
		MovementID:  u.MovementID,
		CompletedAt: at,
		Provenance:  Optimistic,
		Evidence:    u.Evidence,
		Notes:       u.Notes,
	}
	if i := f.stepIndex(u.MovementID); i >= 0 {
		f.Steps[i] = step
		return
	}
	f.Steps = append(f.Steps, step)
}

// ConfirmStep marks a completed step as acknowledged by the server
func (f *FlowState) ConfirmStep(movementID string, at time.Time) error {
	i := f.stepIndex(movementID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, movementID)
	}
	f.Steps[i].Provenance = Confirmed
	f.Steps[i].ConfirmedAt = &at
	return nil
}

// Reconcile merges a server snapshot that answers the local change made at
// revision asOf. Confirmed local values are replaced by the server's.
// Optimistic values set after asOf are newer than the snapshot and are kept
// as they are. Older optimistic values that disagree are kept and reported.
func (f *FlowState) Reconcile(remote FlowSnapshot, asOf int, at time.Time) []FlowConflict {
	if asOf <= 0 {
		asOf = f.Revision
	}
	var conflicts []FlowConflict

	current, conflict := reconcileField(f.CurrentMovement.Data(), remote.CurrentMovementID, asOf)
	f.CurrentMovement = datatypes.NewJSONType(current)
	if conflict {
		conflicts = append(conflicts, FlowConflict{Field: "currentMovementId", Local: current.Value, Remote: remote.CurrentMovementID})
	}

	progress, conflict := reconcileField(f.ProgressPercent.Data(), remote.ProgressPercent, asOf)
	f.ProgressPercent = datatypes.NewJSONType(progress)
	if conflict {
		conflicts = append(conflicts, FlowConflict{
			Field:  "progressPercent",
			Local:  fmt.Sprint(progress.Value),
			Remote: fmt.Sprint(remote.ProgressPercent),
		})
	}

	for _, id := range remote.CompletedMovements {
		if i := f.stepIndex(id); i >= 0 {
			if f.Steps[i].Provenance != Confirmed {
				f.Steps[i].Provenance = Confirmed
				f.Steps[i].ConfirmedAt = &at
			}
			continue
		}
		f.Steps = append(f.Steps, FlowStep{MovementID: id, CompletedAt: at, Provenance: Confirmed, ConfirmedAt: &at})
	}

	return conflicts
}

func reconcileField[T comparable](local Tracked[T], remote T, asOf int) (Tracked[T], bool) {
	switch {
	case local.IsOptimistic() && local.Revision > asOf:
		return local, false
	case local.Value == remote:
		return Tracked[T]{Value: remote, Provenance: Confirmed}, false
	case local.IsOptimistic():
		return local, true
	default:
		return Tracked[T]{Value: remote, Provenance: Confirmed}, false
	}
}

// CompletedMovements returns the ids of all completed steps
func (f *FlowState) CompletedMovements() []string {
	ids := make([]string, 0, len(f.Steps))
	for _, s := range f.Steps {
		ids = append(ids, s.MovementID)
	}
	return ids
}

// HasOptimisticSteps reports whether any completion still waits for the server
func (f *FlowState) HasOptimisticSteps() bool {
	for _, s := range f.Steps {
		if s.Provenance == Optimistic {
			return true
		}
	}
	return false
}

// HasOptimistic reports whether any field or step still waits for the server
func (f *FlowState) HasOptimistic() bool {
	return f.HasOptimisticSteps() || f.CurrentMovement.Data().IsOptimistic() || f.ProgressPercent.Data().IsOptimistic()
}

func (f *FlowState) stepIndex(movementID string) int {
	for i, s := range f.Steps {
		if s.MovementID == movementID {
			return i
		}
	}
	return -1
}
