package session

import (
	"fmt"
	"time"
)

// applyTransition runs mutate on a copy of prev and returns the copy if it
// satisfies every state invariant. prev is never modified.
func applyTransition(prev *State, at time.Time, mutate func(next *State) error) (*State, error) {
	next := prev.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = at.UTC()
	next.Version = prev.Version + 1

	if err := validateTransition(prev, next); err != nil {
		return nil, err
	}
	return next, nil
}

func validateTransition(prev, next *State) error {
	if err := validateState(next); err != nil {
		return err
	}
	if next.SessionID != prev.SessionID {
		return fmt.Errorf("%w: session id changed", ErrInvariant)
	}
	if next.Phase.rank() < prev.Phase.rank() {
		return fmt.Errorf("%w: phase moved backwards from %s to %s", ErrInvariant, prev.Phase, next.Phase)
	}
	if prev.Completed() {
		// Only the profile guard may change on a completed session.
		if len(next.Transcript) != len(prev.Transcript) ||
			next.CurrentObjectiveIndex != prev.CurrentObjectiveIndex ||
			next.DebugMode != prev.DebugMode ||
			next.InterruptionDetected != prev.InterruptionDetected {
			return fmt.Errorf("%w: completed session %s is immutable", ErrInvariant, prev.SessionID)
		}
		if prev.ProfilesUpdated && !next.ProfilesUpdated {
			return fmt.Errorf("%w: profile update guard cleared", ErrInvariant)
		}
	}
	if len(next.Transcript) < len(prev.Transcript) {
		return fmt.Errorf("%w: transcript shrank from %d to %d entries", ErrInvariant, len(prev.Transcript), len(next.Transcript))
	}
	for i, e := range prev.Transcript {
		n := next.Transcript[i]
		if n.Role != e.Role || n.Text != e.Text || !n.Timestamp.Equal(e.Timestamp) {
			return fmt.Errorf("%w: transcript entry %d rewritten", ErrInvariant, i)
		}
	}
	if next.CurrentObjectiveIndex < prev.CurrentObjectiveIndex {
		return fmt.Errorf("%w: objective index moved backwards", ErrInvariant)
	}
	return nil
}

// validateState checks the invariants that hold for any single state.
func validateState(s *State) error {
	if !s.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvariant, s.Phase)
	}
	t, err := s.Tracker()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	switch s.Phase {
	case PhaseTeaching:
		if t.Exhausted() {
			return fmt.Errorf("%w: teaching with every objective completed", ErrInvariant)
		}
	case PhaseRecap, PhaseCompleted:
		if !t.Exhausted() {
			return fmt.Errorf("%w: %s with objectives remaining", ErrInvariant, s.Phase)
		}
	}
	if (s.Phase == PhaseCompleted) != (s.Completion != nil) {
		return fmt.Errorf("%w: completion record does not match phase %s", ErrInvariant, s.Phase)
	}
	return nil
}
