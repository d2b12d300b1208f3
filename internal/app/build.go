package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ent0n29/solace/internal/alert"
	"github.com/ent0n29/solace/internal/completion"
	"github.com/ent0n29/solace/internal/config"
	"github.com/ent0n29/solace/internal/httpapi"
	"github.com/ent0n29/solace/internal/memory"
	"github.com/ent0n29/solace/internal/observability"
	"github.com/ent0n29/solace/internal/responder"
	"github.com/ent0n29/solace/internal/risk"
	"github.com/ent0n29/solace/internal/turn"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *turn.Orchestrator
	Store        memory.Store
	Metrics      *observability.Metrics
	Registry     *prometheus.Registry

	// Cleanup should be called on shutdown, after in-flight alerts have drained.
	Cleanup func() error
}

// Build wires the conversation service from cfg. The logger is owned by the caller.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(cfg.MetricsNamespace, registry)

	store, err := memory.NewStore(ctx, memory.Config{
		Backend:       cfg.MemoryBackend,
		DatabaseURL:   cfg.DatabaseURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		SQLitePath:    cfg.SQLitePath,
		Retention:     cfg.MemoryRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	classifier, err := buildClassifier(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	completer, err := completion.New(ctx, completion.Config{
		Mode:          cfg.CompletionMode,
		HTTPURL:       cfg.CompletionHTTPURL,
		ArkAPIKey:     cfg.ArkAPIKey,
		ArkAccessKey:  cfg.ArkAccessKey,
		ArkSecretKey:  cfg.ArkSecretKey,
		ArkModel:      cfg.ArkModel,
		ArkBaseURL:    cfg.ArkBaseURL,
		ArkRegion:     cfg.ArkRegion,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIModel:   cfg.OpenAIModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("completion init failed: %w", err)
	}
	if _, ok := completer.(*completion.MockCompleter); ok {
		logger.Warn("no completion backend configured, using mock replies")
	}

	notifier, err := alert.NewNotifier(alert.Config{
		Channel:             cfg.AlertChannel,
		WebhookURL:          cfg.AlertWebhookURL,
		RocketMQNameServers: cfg.RocketMQNameServers,
		RocketMQTopic:       cfg.RocketMQTopic,
		RocketMQGroup:       cfg.RocketMQGroup,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("alert channel init failed: %w", err)
	}
	orchestrator, dispatcher := assembleTurns(cfg, store, classifier, completer, notifier, metrics, logger)

	api := httpapi.New(cfg, orchestrator, metrics, registry, logger)

	logger.Info("service wired",
		zap.String("memory_backend", cfg.MemoryBackend),
		zap.String("completion_mode", cfg.CompletionMode),
		zap.String("alert_channel", cfg.AlertChannel),
		zap.Bool("sync_alerts", cfg.SyncAlerts()),
		zap.Int("moderate_threshold", classifier.ModerateThreshold()),
	)

	cleanup := func() error {
		var errs []string
		if err := dispatcher.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Store:        store,
		Metrics:      metrics,
		Registry:     registry,
		Cleanup:      cleanup,
	}, nil
}

func buildClassifier(cfg config.Config) (*risk.Classifier, error) {
	tiers := risk.DefaultTiers()
	if cfg.RiskTiersFile != "" {
		loaded, err := risk.LoadTiers(cfg.RiskTiersFile)
		if err != nil {
			return nil, err
		}
		tiers = loaded
	}
	if cfg.RiskModerateThreshold > 0 {
		tiers.ModerateThreshold = cfg.RiskModerateThreshold
	}
	c, err := risk.NewClassifier(tiers)
	if err != nil {
		return nil, fmt.Errorf("risk classifier init failed: %w", err)
	}
	return c, nil
}

// assembleTurns connects the generator and the alert dispatcher to the orchestrator.
func assembleTurns(
	cfg config.Config,
	store memory.Store,
	classifier *risk.Classifier,
	completer completion.Completer,
	notifier alert.Notifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*turn.Orchestrator, *alert.Dispatcher) {
	generator := responder.NewGenerator(completer, responder.Config{
		ContextTurns:      cfg.GeneratorContextTurns,
		MaxTokens:         cfg.CompletionMaxTokens,
		Timeout:           cfg.CompletionTimeout,
		PromptTokenBudget: cfg.PromptTokenBudget,
		Counter:           buildCounter(cfg, logger),
	})
	dispatcher := alert.NewDispatcher(notifier, cfg.AlertRecipient, cfg.AlertTimeout)
	orchestrator := turn.NewOrchestrator(store, classifier, generator, dispatcher, metrics, logger, turn.Config{
		ContextTurns: cfg.MemoryContextTurns,
		ReadTimeout:  cfg.MemoryReadTimeout,
		WriteTimeout: cfg.MemoryWriteTimeout,
		RedactPII:    cfg.MemoryRedactPII,
		SyncAlerts:   cfg.SyncAlerts(),
	})
	return orchestrator, dispatcher
}

// buildCounter only loads the BPE tables when a prompt budget is set.
func buildCounter(cfg config.Config, logger *zap.Logger) responder.TokenCounter {
	if cfg.PromptTokenBudget <= 0 {
		return responder.RuneEstimator{}
	}
	counter, err := responder.NewTiktokenCounter(cfg.TokenizerEncoding)
	if err != nil {
		logger.Warn("tokenizer unavailable, estimating tokens from runes",
			zap.String("encoding", cfg.TokenizerEncoding), zap.Error(err))
		return responder.RuneEstimator{}
	}
	return counter
}

// RunRetention purges turns older than the configured retention on stores that
// delete by age. Redis expires keys itself and the in-memory store never purges.
// It blocks until ctx is done.
func (b *BuildResult) RunRetention(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	purger, ok := b.Store.(memory.Purger)
	if !ok || b.Config.MemoryRetention <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := purger.PurgeOlderThan(ctx, b.Config.MemoryRetention)
		if err != nil {
			logger.Warn("retention purge failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("retention purge", zap.Int64("removed", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
