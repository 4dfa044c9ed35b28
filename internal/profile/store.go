package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhisek/autodidact/internal/store"
)

// Store persists profile documents. Loads return nil when no document
// exists yet.
type Store interface {
	LoadGeneric(ctx context.Context, learnerID string) (*Document, error)
	LoadTopic(ctx context.Context, learnerID, topic string) (*Document, error)
	SaveGeneric(ctx context.Context, doc *Document) error
	SaveTopic(ctx context.Context, doc *Document) error
}

// RepoStore keeps every saved revision in the profile history and prunes
// it to the newest keep revisions.
type RepoStore struct {
	repo store.ProfileRepo
	keep int
}

// NewRepoStore wraps a profile repository. keep <= 0 keeps every revision.
func NewRepoStore(repo store.ProfileRepo, keep int) *RepoStore {
	return &RepoStore{repo: repo, keep: keep}
}

func (r *RepoStore) LoadGeneric(ctx context.Context, learnerID string) (*Document, error) {
	return r.load(ctx, learnerID, ScopeGeneric, "")
}

func (r *RepoStore) LoadTopic(ctx context.Context, learnerID, topic string) (*Document, error) {
	return r.load(ctx, learnerID, ScopeTopic, topic)
}

func (r *RepoStore) SaveGeneric(ctx context.Context, doc *Document) error {
	return r.save(ctx, doc, "")
}

func (r *RepoStore) SaveTopic(ctx context.Context, doc *Document) error {
	return r.save(ctx, doc, doc.Topic)
}

// History returns up to limit revisions of a document, newest first.
func (r *RepoStore) History(ctx context.Context, learnerID string, scope Scope, topic string, limit int) ([]*Document, error) {
	if scope == ScopeGeneric {
		topic = ""
	}
	recs, err := r.repo.History(ctx, learnerID, string(scope), topic, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Document, 0, len(recs))
	for _, rec := range recs {
		doc, err := decodeDocument(rec.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *RepoStore) load(ctx context.Context, learnerID string, scope Scope, topic string) (*Document, error) {
	rec, err := r.repo.Latest(ctx, learnerID, string(scope), topic)
	if err != nil {
		return nil, fmt.Errorf("load %s profile: %w", scope, err)
	}
	if rec == nil {
		return nil, nil
	}
	return decodeDocument(rec.Data)
}

func (r *RepoStore) save(ctx context.Context, doc *Document, topic string) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s profile: %w", doc.Scope, err)
	}
	if err := r.repo.Append(ctx, &store.ProfileRecord{
		LearnerID: doc.LearnerID,
		Scope:     string(doc.Scope),
		Topic:     topic,
		Data:      data,
	}); err != nil {
		return fmt.Errorf("save %s profile: %w", doc.Scope, err)
	}
	if r.keep > 0 {
		if err := r.repo.Prune(ctx, doc.LearnerID, string(doc.Scope), topic, r.keep); err != nil {
			return fmt.Errorf("prune %s profile: %w", doc.Scope, err)
		}
	}
	return nil
}

func decodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	doc.ensureFields()
	return &doc, nil
}
