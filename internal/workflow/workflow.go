// Package workflow holds the visit-status transition table used by the
// session controller.
package workflow

import (
	"fmt"

	"github.com/marcus/fieldops/internal/models"
)

// Trigger identifies what caused a status transition
type Trigger string

const (
	TriggerStart     Trigger = "start"     // user asked to check in
	TriggerEnd       Trigger = "end"       // user asked to check out
	TriggerAck       Trigger = "ack"       // server acknowledged the pending call
	TriggerFail      Trigger = "fail"      // pending call failed
	TriggerRollback  Trigger = "rollback"  // error re-enters the source state
	TriggerReconcile Trigger = "reconcile" // server truth overwrote local state
)

// Transition defines a valid status transition
type Transition struct {
	From    models.VisitStatus
	To      models.VisitStatus
	Trigger Trigger
}

// TransitionError reports a transition the table does not allow
type TransitionError struct {
	From    models.VisitStatus
	To      models.VisitStatus
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s on %s", e.From, e.To, e.Trigger)
}

// StateMachine manages visit status transitions
type StateMachine struct {
	transitions map[models.VisitStatus]map[models.VisitStatus]map[Trigger]bool
}

// New creates a StateMachine with the standard visit transitions
func New() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[models.VisitStatus]map[models.VisitStatus]map[Trigger]bool),
	}
	for _, t := range AllTransitions() {
		sm.add(t)
	}
	return sm
}

// AllTransitions returns the transition table.
// Idle → Starting → Active → Ending → Idle, with Error reachable from the
// pending states and rolled back to the committed source state.
func AllTransitions() []Transition {
	return []Transition{
		{models.VisitIdle, models.VisitStarting, TriggerStart},
		{models.VisitStarting, models.VisitActive, TriggerAck},
		{models.VisitStarting, models.VisitError, TriggerFail},
		{models.VisitActive, models.VisitEnding, TriggerEnd},
		{models.VisitEnding, models.VisitIdle, TriggerAck},
		{models.VisitEnding, models.VisitError, TriggerFail},
		{models.VisitError, models.VisitIdle, TriggerRollback},
		{models.VisitError, models.VisitActive, TriggerRollback},

		{models.VisitIdle, models.VisitActive, TriggerReconcile},
		{models.VisitActive, models.VisitIdle, TriggerReconcile},
		{models.VisitError, models.VisitIdle, TriggerReconcile},
		{models.VisitError, models.VisitActive, TriggerReconcile},
	}
}

func (sm *StateMachine) add(t Transition) {
	if sm.transitions[t.From] == nil {
		sm.transitions[t.From] = make(map[models.VisitStatus]map[Trigger]bool)
	}
	if sm.transitions[t.From][t.To] == nil {
		sm.transitions[t.From][t.To] = make(map[Trigger]bool)
	}
	sm.transitions[t.From][t.To][t.Trigger] = true
}

// IsValidTransition checks if the table allows from → to for trigger
func (sm *StateMachine) IsValidTransition(from, to models.VisitStatus, trigger Trigger) bool {
	return sm.transitions[from][to][trigger]
}

// Validate returns a *TransitionError when the transition is not allowed
func (sm *StateMachine) Validate(from, to models.VisitStatus, trigger Trigger) error {
	if !sm.IsValidTransition(from, to, trigger) {
		return &TransitionError{From: from, To: to, Trigger: trigger}
	}
	return nil
}

// AllowedFrom returns the statuses reachable from a status by any trigger
func (sm *StateMachine) AllowedFrom(from models.VisitStatus) []models.VisitStatus {
	var allowed []models.VisitStatus
	for to := range sm.transitions[from] {
		allowed = append(allowed, to)
	}
	return allowed
}
