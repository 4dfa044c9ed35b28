package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/autodidact/internal/llm"
)

// Config tunes the pipeline.
type Config struct {
	MinConfidence float64
	MaxTokens     int
	Temperature   float64
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence: DefaultMinConfidence,
		MaxTokens:     2048,
		Temperature:   0.2,
	}
}

// Outcome holds the replacement documents of one update. A nil document
// means no change for that scope.
type Outcome struct {
	Generic *Document
	Topic   *Document

	GenericChanges []string
	TopicChanges   []string
	Rejected       []Rejection
}

// Changed reports whether either document changed.
func (o Outcome) Changed() bool {
	return o.Generic != nil || o.Topic != nil
}

func (o Outcome) String() string {
	part := func(scope Scope, doc *Document, changes []string) string {
		if doc == nil {
			return string(scope) + ": no change"
		}
		return fmt.Sprintf("%s: %s", scope, strings.Join(sortedChanges(changes), ", "))
	}
	return part(ScopeGeneric, o.Generic, o.GenericChanges) + "; " + part(ScopeTopic, o.Topic, o.TopicChanges)
}

// Pipeline turns a session transcript into profile revisions. The two
// scopes are analyzed concurrently; the merge into the documents is
// mechanical so the model cannot rewrite a profile wholesale.
type Pipeline struct {
	provider llm.Provider
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(provider llm.Provider, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{provider: provider, cfg: cfg, logger: logger.Named("profile"), now: time.Now}
}

// Update analyzes transcript against the current documents. Either both
// scopes succeed or an error is returned and nothing should be saved.
func (p *Pipeline) Update(ctx context.Context, transcript []Line, generic, topic *Document) (Outcome, error) {
	if generic == nil || topic == nil {
		return Outcome{}, errors.New("profile update needs both documents")
	}
	if len(transcript) == 0 {
		return Outcome{}, nil
	}

	var gen, top mergeResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		gen, err = p.updateScope(llm.WithPurpose(gctx, llm.PurposeProfileGeneric), generic, transcript)
		return err
	})
	g.Go(func() error {
		var err error
		top, err = p.updateScope(llm.WithPurpose(gctx, llm.PurposeProfileTopic), topic, transcript)
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Generic:        gen.Doc,
		Topic:          top.Doc,
		GenericChanges: gen.Changed,
		TopicChanges:   top.Changed,
		Rejected:       append(gen.Rejected, top.Rejected...),
	}
	p.logger.Info("profile update analyzed",
		zap.String("learner_id", generic.LearnerID),
		zap.Strings("generic_changes", out.GenericChanges),
		zap.Strings("topic_changes", out.TopicChanges),
		zap.Int("rejected", len(out.Rejected)))
	return out, nil
}

func (p *Pipeline) updateScope(ctx context.Context, doc *Document, transcript []Line) (mergeResult, error) {
	cur := doc.Clone()
	cur.ensureFields()

	resp, err := p.provider.Generate(ctx, llm.Request{
		System:      systemPrompt(cur.Scope),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildUserMessage(cur, transcript)}},
		Schema:      updatesSchema(cur.Scope),
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return mergeResult{}, fmt.Errorf("%s profile: %w", cur.Scope, err)
	}

	var parsed updateResponse
	if err := json.Unmarshal(resp.Content, &parsed); err != nil {
		return mergeResult{}, fmt.Errorf("%s profile: decode reply: %w", cur.Scope, err)
	}

	res := merge(cur, parsed, p.cfg.MinConfidence, p.now())
	for _, r := range res.Rejected {
		p.logger.Debug("profile update rejected",
			zap.String("scope", string(cur.Scope)),
			zap.String("field", r.Field),
			zap.String("reason", r.Reason))
	}
	return res, nil
}
