package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abhisek/autodidact/internal/store"
)

// Store loads and saves session state. Save is an idempotent overwrite of
// the whole state.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, s *State) error
}

// EventRecorder receives the session audit trail.
type EventRecorder interface {
	AppendSessionEvent(ctx context.Context, data store.SessionEventData) error
}

// RepoStore is the sqlite-backed Store.
type RepoStore struct {
	repo store.SessionRepo
}

// NewRepoStore wraps a session repository.
func NewRepoStore(repo store.SessionRepo) *RepoStore {
	return &RepoStore{repo: repo}
}

// Load returns the state for id or ErrSessionNotFound.
func (r *RepoStore) Load(ctx context.Context, id string) (*State, error) {
	rec, err := r.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return Decode(rec.Data)
}

// Save writes s, replacing any earlier version.
func (r *RepoStore) Save(ctx context.Context, s *State) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	return r.repo.Upsert(ctx, &store.SessionRecord{
		ID:        s.SessionID,
		LearnerID: s.LearnerID,
		NodeID:    s.NodeID,
		Topic:     s.Topic,
		Phase:     string(s.Phase),
		Data:      data,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	})
}

// Encode serializes a state for storage.
func Encode(s *State) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.SessionID, err)
	}
	return data, nil
}

// Decode parses a stored state and checks its objective invariant.
func Decode(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !s.Phase.Valid() {
		return nil, fmt.Errorf("decode session %s: unknown phase %q", s.SessionID, s.Phase)
	}
	if _, err := s.Tracker(); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", s.SessionID, err)
	}
	return &s, nil
}
