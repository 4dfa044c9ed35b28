package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/autodidact/internal/config"
	"github.com/abhisek/autodidact/internal/control"
	"github.com/abhisek/autodidact/internal/llm"
	"github.com/abhisek/autodidact/internal/logging"
	"github.com/abhisek/autodidact/internal/profile"
	"github.com/abhisek/autodidact/internal/session"
	"github.com/abhisek/autodidact/internal/store"
)

// runtime holds the wired application for one command invocation.
type runtime struct {
	cfg       *config.Config
	learnerID string
	store     *store.Store
	logger    *zap.Logger

	// Set only when the command talks to the model.
	provider llm.Provider
	profiles *profile.Service
	engine   *session.Engine
}

// openRuntime loads configuration, opens the database and builds the
// logger. With withModel it also resolves the LLM provider and builds the
// profile service and session engine on top of it.
func openRuntime(ctx context.Context, cmd *cobra.Command, withModel bool) (*runtime, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	learnerID := cfg.LearnerID
	if l, _ := cmd.Flags().GetString("learner"); l != "" {
		learnerID = l
	}

	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}

	logger, err := logging.New(cfg.Logging, filepath.Dir(dbPath))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}

	rt := &runtime{cfg: cfg, learnerID: learnerID, store: st, logger: logger}
	if !withModel {
		rt.profiles = profile.NewService(nil, rt.profileStore(), logger)
		return rt, nil
	}

	llmCfg, err := llm.ResolveConfig(cfg.LLM)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("LLM not configured: %w\n\nSet AUTODIDACT_LLM_PROVIDER or one of ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY, OPENROUTER_API_KEY", err)
	}
	provider, err := llm.NewProvider(ctx, llmCfg, st.EventRepo(), logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.provider = provider

	pcfg := profile.DefaultConfig()
	pcfg.MinConfidence = cfg.Profile.MinConfidence
	pipeline := profile.NewPipeline(provider, pcfg, logger)
	rt.profiles = profile.NewService(pipeline, rt.profileStore(), logger)

	rt.engine = session.New(session.Deps{
		Store:    session.NewRepoStore(st.SessionRepo()),
		Provider: provider,
		Profiles: rt.profiles,
		Events:   st.EventRepo(),
		Logger:   logger,
	}, session.Config{
		InterruptionThreshold: cfg.Session.InterruptionThreshold,
		TranscriptWindow:      cfg.Session.TranscriptWindow,
		Policy:                control.Policy(cfg.Session.DirectivePolicy),
		MaxTokens:             cfg.Session.MaxTokens,
		Temperature:           cfg.Session.Temperature,
		TurnTimeout:           llmCfg.Timeout,
		ProfileTimeout:        cfg.Profile.Timeout,
	})

	logger.Info("runtime ready",
		zap.String("provider", llmCfg.Provider),
		zap.String("model", provider.ModelID()),
		zap.String("learner_id", learnerID),
	)
	return rt, nil
}

func (r *runtime) profileStore() *profile.RepoStore {
	return profile.NewRepoStore(r.store.ProfileRepo(), r.cfg.Profile.KeepRevisions)
}

// Close releases the database and flushes the logger.
func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warn("close database", zap.Error(err))
	}
	_ = r.logger.Sync()
}
