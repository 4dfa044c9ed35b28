package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups for a missing record.
var ErrNotFound = errors.New("not found")

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// SessionRecord is one persisted tutoring session. Data is the encoded
// session state owned by the session package; the other columns are
// copies kept for listing and filtering.
type SessionRecord struct {
	ID        string
	LearnerID string
	NodeID    string
	Topic     string
	Phase     string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionRepo stores session state, one row per session id.
type SessionRepo interface {
	// Upsert writes rec, replacing any existing row with the same id.
	Upsert(ctx context.Context, rec *SessionRecord) error

	// Get returns the session with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*SessionRecord, error)

	// List returns sessions ordered by most recent update. An empty
	// learnerID lists all learners.
	List(ctx context.Context, learnerID string, limit int) ([]SessionRecord, error)
}

// ProfileRecord is one revision of a learner profile document.
type ProfileRecord struct {
	ID        int64
	Sequence  int64
	LearnerID string
	Scope     string
	Topic     string
	Data      []byte
	CreatedAt time.Time
}

// ProfileRepo keeps an append-only revision history per (learner, scope,
// topic). The newest revision is the current document.
type ProfileRepo interface {
	// Append stores a new revision.
	Append(ctx context.Context, rec *ProfileRecord) error

	// Latest returns the newest revision, or nil if none exist.
	Latest(ctx context.Context, learnerID, scope, topic string) (*ProfileRecord, error)

	// History returns revisions newest first.
	History(ctx context.Context, learnerID, scope, topic string, limit int) ([]ProfileRecord, error)

	// Prune deletes all but the keep newest revisions.
	Prune(ctx context.Context, learnerID, scope, topic string, keep int) error
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	SessionID    string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMRequestEvent is a stored LLM request event.
type LLMRequestEvent struct {
	ID        int64
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// LLMUsage aggregates token usage for one purpose, model or session.
type LLMUsage struct {
	Purpose      string
	Model        string
	SessionID    string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// Session event kinds.
const (
	KindTransition = "transition"
	KindCommand    = "command"
	KindAnomaly    = "anomaly"
	KindIncident   = "incident"
	KindProfile    = "profile"
)

// Session event provenance.
const (
	ProvenanceModel    = "model"
	ProvenanceOperator = "operator"
	ProvenanceSystem   = "system"
)

// SessionEventData is an audit record of something that happened to a
// session: a phase or objective transition, an operator command, a
// protocol anomaly, a gateway incident or a profile update.
type SessionEventData struct {
	SessionID  string
	Kind       string
	Provenance string
	Phase      string
	Detail     string
	Data       []byte
}

// SessionEvent is a stored session event.
type SessionEvent struct {
	ID        int64
	Sequence  int64
	Timestamp time.Time
	SessionEventData
}

// EventRepo provides append and query access to events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns LLM events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error)

	// GetLLMEvent returns a single LLM event, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int64) (*LLMRequestEvent, error)

	// LLMUsageByPurpose aggregates usage per purpose label.
	LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error)

	// LLMUsageByModel aggregates usage per model.
	LLMUsageByModel(ctx context.Context) ([]LLMUsage, error)

	// LLMUsageBySession aggregates usage per session id. Calls made
	// outside a session are grouped under the empty id.
	LLMUsageBySession(ctx context.Context) ([]LLMUsage, error)

	// AppendSessionEvent records a session event.
	AppendSessionEvent(ctx context.Context, data SessionEventData) error

	// QuerySessionEvents returns a session's events in sequence order.
	QuerySessionEvents(ctx context.Context, sessionID string, opts QueryOpts) ([]SessionEvent, error)
}
