// Package turn runs one conversation turn end to end: persist, recall,
// classify, reply, persist, alert. Only invalid input is ever reported to the
// caller; every other failure degrades the turn and is logged.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/solace/internal/alert"
	"github.com/ent0n29/solace/internal/memory"
	"github.com/ent0n29/solace/internal/observability"
	"github.com/ent0n29/solace/internal/policy"
	"github.com/ent0n29/solace/internal/responder"
	"github.com/ent0n29/solace/internal/risk"
)

// ErrInvalidInput is returned for an empty or whitespace-only user message.
var ErrInvalidInput = errors.New("invalid input")

// AnonymousActor is used when the caller supplies no actor id.
const AnonymousActor = "anonymous"

// CrisisScript is the reply for HIGH risk turns. The model is never consulted.
const CrisisScript = "I'm very concerned about what you're sharing. Your life has value and there are people who want to help. Please reach out to the National Suicide Prevention Lifeline at 988 or emergency services at 911 immediately. You don't have to go through this alone."

const (
	DefaultReadTimeout  = 2 * time.Second
	DefaultWriteTimeout = 2 * time.Second
)

// Degraded event kinds.
const (
	DegradedStorageWrite = "storage_write"
	DegradedStorageRead  = "storage_read"
	DegradedGeneration   = "generation"
	DegradedNotification = "notification"
)

// Responder produces the non-crisis reply.
type Responder interface {
	Generate(ctx context.Context, message string, history []memory.Turn) responder.Reply
}

// AlertSender delivers a crisis alert.
type AlertSender interface {
	Send(ctx context.Context, ev alert.Event) alert.Result
}

type Config struct {
	ContextTurns int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RedactPII    bool
	// SyncAlerts makes HandleTurn wait for the alert outcome before returning.
	SyncAlerts bool
}

type Result struct {
	Reply          string     `json:"reply"`
	ActorID        string     `json:"actor_id"`
	SessionID      string     `json:"session_id"`
	RiskLevel      risk.Level `json:"risk_level"`
	AlertTriggered bool       `json:"alert_triggered"`
}

type Orchestrator struct {
	store      memory.Store
	classifier *risk.Classifier
	responder  Responder
	alerts     AlertSender
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        Config
	now        func() time.Time

	pending sync.WaitGroup
}

func NewOrchestrator(
	store memory.Store,
	classifier *risk.Classifier,
	resp Responder,
	alerts AlertSender,
	metrics *observability.Metrics,
	logger *zap.Logger,
	cfg Config,
) *Orchestrator {
	if store == nil {
		store = memory.UnavailableStore{}
	}
	if classifier == nil {
		classifier = risk.MustNewClassifier(risk.DefaultTiers())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = memory.DefaultContextTurns
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		responder:  resp,
		alerts:     alerts,
		metrics:    metrics,
		logger:     logger.Named("turn"),
		cfg:        cfg,
		now:        time.Now,
	}
}

// HandleTurn processes one user message. The reply is never empty on success.
func (o *Orchestrator) HandleTurn(ctx context.Context, actorID, sessionID, userMessage string) (Result, error) {
	if strings.TrimSpace(userMessage) == "" {
		return Result{}, ErrInvalidInput
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		actorID = AnonymousActor
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	start := o.now()
	log := o.logger.With(zap.String("actor_id", actorID), zap.String("session_id", sessionID))

	userTurnID := o.persist(ctx, log, observability.StagePersistUser, memory.Turn{
		ActorID:   actorID,
		SessionID: sessionID,
		Role:      memory.RoleUser,
		Text:      userMessage,
	})

	history := o.recall(ctx, log, actorID, sessionID, userTurnID)

	stageStart := time.Now()
	assessment := o.classifier.Classify(userMessage)
	o.metrics.ObserveTurnStage(observability.StageClassify, time.Since(stageStart))

	var reply string
	if assessment.Level == risk.High {
		reply = CrisisScript
		o.metrics.ObserveIndicator("crisis_script")
	} else {
		reply = o.generate(ctx, log, userMessage, history)
	}

	o.persist(ctx, log, observability.StagePersistAssistant, memory.Turn{
		ActorID:   actorID,
		SessionID: sessionID,
		Role:      memory.RoleAssistant,
		Text:      reply,
	})

	if assessment.AlertNeeded {
		o.dispatchAlert(ctx, log, alert.Event{
			At:         start,
			ActorID:    actorID,
			SessionID:  sessionID,
			Message:    userMessage,
			Assessment: assessment,
		})
	}

	o.metrics.IncTurn(assessment.Level.String())
	o.metrics.ObserveTurnLatency(o.now().Sub(start))
	log.Info("turn handled",
		zap.Stringer("risk_level", assessment.Level),
		zap.Int("message_len", len(userMessage)),
		zap.Int("context_turns", len(history)),
		zap.Bool("alert_triggered", assessment.AlertNeeded),
	)

	return Result{
		Reply:          reply,
		ActorID:        actorID,
		SessionID:      sessionID,
		RiskLevel:      assessment.Level,
		AlertTriggered: assessment.AlertNeeded,
	}, nil
}

// History returns the stored turns for a session, oldest first.
func (o *Orchestrator) History(ctx context.Context, actorID, sessionID string, limit int) ([]memory.Turn, error) {
	if strings.TrimSpace(actorID) == "" {
		actorID = AnonymousActor
	}
	if limit <= 0 {
		limit = o.cfg.ContextTurns
	}
	rctx, cancel := context.WithTimeout(ctx, o.cfg.ReadTimeout)
	defer cancel()
	return o.store.RecentContext(rctx, actorID, sessionID, limit)
}

// Wait blocks until every asynchronous alert started so far has finished.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

// persist returns the stored event ID, or "" when the write failed.
func (o *Orchestrator) persist(ctx context.Context, log *zap.Logger, stage string, t memory.Turn) string {
	if o.cfg.RedactPII {
		t.Text, t.PIIRedacted = policy.RedactPII(t.Text)
	}
	wctx, cancel := context.WithTimeout(ctx, o.cfg.WriteTimeout)
	defer cancel()

	stageStart := time.Now()
	id, err := o.store.Append(wctx, t)
	o.metrics.ObserveTurnStage(stage, time.Since(stageStart))
	if err != nil {
		o.metrics.IncDegraded(DegradedStorageWrite)
		log.Warn("persist turn failed", zap.String("stage", stage), zap.String("role", string(t.Role)), zap.Error(err))
		return ""
	}
	return id
}

// recall fetches prior turns of the session. The turn stored for the current
// message (currentID) is excluded; its stored text may be redacted.
func (o *Orchestrator) recall(ctx context.Context, log *zap.Logger, actorID, sessionID, currentID string) []memory.Turn {
	rctx, cancel := context.WithTimeout(ctx, o.cfg.ReadTimeout)
	defer cancel()

	limit := o.cfg.ContextTurns
	if currentID != "" {
		limit++
	}
	stageStart := time.Now()
	history, err := o.store.RecentContext(rctx, actorID, sessionID, limit)
	o.metrics.ObserveTurnStage(observability.StageFetchContext, time.Since(stageStart))
	if err != nil {
		o.metrics.IncDegraded(DegradedStorageRead)
		log.Warn("fetch context failed", zap.String("stage", observability.StageFetchContext), zap.Error(err))
		return nil
	}
	if currentID != "" {
		prior := history[:0:0]
		for _, t := range history {
			if t.ID != currentID {
				prior = append(prior, t)
			}
		}
		history = prior
	}
	if len(history) > o.cfg.ContextTurns {
		history = history[len(history)-o.cfg.ContextTurns:]
	}
	return history
}

func (o *Orchestrator) generate(ctx context.Context, log *zap.Logger, message string, history []memory.Turn) string {
	if o.responder == nil {
		o.metrics.IncDegraded(DegradedGeneration)
		log.Error("no responder configured", zap.String("stage", observability.StageGenerate))
		return responder.FallbackText
	}
	stageStart := time.Now()
	r := o.responder.Generate(ctx, message, history)
	o.metrics.ObserveTurnStage(observability.StageGenerate, time.Since(stageStart))
	if r.Fallback || strings.TrimSpace(r.Text) == "" {
		o.metrics.IncDegraded(DegradedGeneration)
		o.metrics.ObserveIndicator("fallback_reply")
		log.Warn("generation failed, using fallback reply", zap.String("stage", observability.StageGenerate), zap.Error(r.Cause))
		if strings.TrimSpace(r.Text) == "" {
			return responder.FallbackText
		}
	}
	return r.Text
}

func (o *Orchestrator) dispatchAlert(ctx context.Context, log *zap.Logger, ev alert.Event) {
	if o.alerts == nil {
		o.metrics.IncAlert("failed")
		o.metrics.IncDegraded(DegradedNotification)
		log.Error("alert needed but no dispatcher configured", zap.Stringer("risk_level", ev.Assessment.Level))
		return
	}
	send := func(ctx context.Context) {
		stageStart := time.Now()
		res := o.alerts.Send(ctx, ev)
		o.metrics.ObserveTurnStage(observability.StageAlertDispatch, time.Since(stageStart))
		if res.Err != nil {
			o.metrics.IncAlert("failed")
			o.metrics.IncDegraded(DegradedNotification)
			log.Error("crisis alert failed", zap.Stringer("risk_level", ev.Assessment.Level), zap.Error(res.Err))
			return
		}
		o.metrics.IncAlert("delivered")
		log.Info("crisis alert sent", zap.Stringer("risk_level", ev.Assessment.Level), zap.String("delivery_id", res.DeliveryID))
	}

	if o.cfg.SyncAlerts {
		send(ctx)
		return
	}
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				o.metrics.IncAlert("failed")
				log.Error("crisis alert panicked", zap.Error(fmt.Errorf("%v", r)))
			}
		}()
		send(context.WithoutCancel(ctx))
	}()
}
