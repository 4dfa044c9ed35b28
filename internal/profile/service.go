package profile

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Service loads, updates and saves a learner's documents.
type Service struct {
	pipeline *Pipeline
	store    Store
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(pipeline *Pipeline, store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pipeline: pipeline, store: store, logger: logger.Named("profile")}
}

// Documents returns the learner's current documents, creating empty ones
// for a learner or topic seen for the first time.
func (s *Service) Documents(ctx context.Context, learnerID, topic string) (generic, topical *Document, err error) {
	generic, err = s.store.LoadGeneric(ctx, learnerID)
	if err != nil {
		return nil, nil, err
	}
	if generic == nil {
		generic = NewDocument(ScopeGeneric, learnerID, "")
	}
	topical, err = s.store.LoadTopic(ctx, learnerID, topic)
	if err != nil {
		return nil, nil, err
	}
	if topical == nil {
		topical = NewDocument(ScopeTopic, learnerID, topic)
	}
	return generic, topical, nil
}

// Narrative renders the learner's confirmed observations for a prompt.
func (s *Service) Narrative(ctx context.Context, learnerID, topic string) (string, error) {
	generic, topical, err := s.Documents(ctx, learnerID, topic)
	if err != nil {
		return "", err
	}
	return Narrative(generic, topical), nil
}

// Update runs the pipeline over a finished session's transcript and saves
// the documents that changed.
func (s *Service) Update(ctx context.Context, learnerID, topic string, transcript []Line) (Outcome, error) {
	if s.pipeline == nil {
		return Outcome{}, fmt.Errorf("profile pipeline not configured")
	}
	generic, topical, err := s.Documents(ctx, learnerID, topic)
	if err != nil {
		return Outcome{}, err
	}

	out, err := s.pipeline.Update(ctx, transcript, generic, topical)
	if err != nil {
		return Outcome{}, fmt.Errorf("profile update: %w", err)
	}

	if out.Generic != nil {
		if err := s.store.SaveGeneric(ctx, out.Generic); err != nil {
			return out, err
		}
	}
	if out.Topic != nil {
		if err := s.store.SaveTopic(ctx, out.Topic); err != nil {
			return out, err
		}
	}

	s.logger.Info("profile update saved",
		zap.String("learner_id", learnerID),
		zap.String("topic", topic),
		zap.Bool("changed", out.Changed()))
	return out, nil
}
