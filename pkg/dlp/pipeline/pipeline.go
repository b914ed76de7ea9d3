package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/action"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/classify"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/patterns"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/policy"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// Status summarizes how an event moved through the pipeline.
type Status string

const (
	StatusOK Status = "ok"
	// StatusDuplicate marks a resubmitted identifier; the prior outcome
	// is returned and nothing is recounted or re-persisted.
	StatusDuplicate Status = "duplicate"
	StatusRejected  Status = "rejected"
)

// Outcome is the per-event result the pipeline reports.
type Outcome struct {
	EventID        string                      `json:"event_id"`
	Status         Status                      `json:"status"`
	Classification *types.ClassificationResult `json:"classification,omitempty"`
	Alerts         []*types.Alert              `json:"alerts,omitempty"`
	// Severity is the highest severity among matched rules, empty when
	// nothing matched.
	Severity types.Severity `json:"severity,omitempty"`
	Blocked  bool           `json:"blocked"`
	Err      error          `json:"-"`
}

// Record is what the pipeline hands to the persistence boundary for one
// processed event. Content is persisted only in redacted form once a
// sensitive label was found.
type Record struct {
	Event           *types.Event
	RedactedContent string
	Classification  *types.ClassificationResult
	Alerts          []*types.Alert
}

// Store is the opaque append-only persistence collaborator.
type Store interface {
	// FindOutcome returns the persisted outcome for an event identifier,
	// if one exists. Used for the idempotency check before classification.
	FindOutcome(ctx context.Context, eventID string) (*Outcome, bool, error)
	// Save persists the event, its classification, and its alerts.
	Save(ctx context.Context, rec *Record) error
}

// Config controls pipeline concurrency and backpressure.
type Config struct {
	// MaxConcurrency bounds in-flight events. Zero means the default.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
	// RejectWhenFull selects backpressure behavior at the limit: reject
	// with a retryable error instead of blocking the submitter.
	RejectWhenFull bool `yaml:"reject_when_full" json:"reject_when_full"`
}

// DefaultConfig returns pipeline defaults.
func DefaultConfig() Config {
	return Config{MaxConcurrency: 64}
}

// Pipeline orchestrates validate → normalize → classify → evaluate →
// dispatch → persist for submitted events.
type Pipeline struct {
	classifier *classify.Classifier
	policies   *policy.Store
	evaluator  *policy.Evaluator
	dispatcher *action.Dispatcher
	registry   *patterns.Registry
	store      Store
	sem        *semaphore.Weighted
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// New wires a pipeline from its collaborators.
func New(classifier *classify.Classifier, policies *policy.Store, evaluator *policy.Evaluator, dispatcher *action.Dispatcher, registry *patterns.Registry, store Store, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		classifier: classifier,
		policies:   policies,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		registry:   registry,
		store:      store,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer("dlp.pipeline"),
		now:        time.Now,
	}
}

// Process runs one event through the full pipeline. The returned outcome
// is always non-nil; on a persistence failure it still carries the
// computed classification and alerts so nothing is lost across a retry.
func (p *Pipeline) Process(ctx context.Context, event *types.Event) (*Outcome, error) {
	if err := p.acquire(ctx); err != nil {
		return &Outcome{EventID: eventID(event), Status: StatusRejected, Err: err}, err
	}
	defer p.sem.Release(1)

	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("event.id", eventID(event))))
	defer span.End()

	if err := validate(event); err != nil {
		p.logger.Warn("event rejected", zap.Error(err))
		return &Outcome{EventID: eventID(event), Status: StatusRejected, Err: err}, err
	}

	normalized := normalize(event, p.now)

	// Idempotency: a known identifier is a no-op returning the prior
	// outcome, so resubmission never double-counts frequency state or
	// duplicates alerts.
	if prior, found, err := p.store.FindOutcome(ctx, normalized.ID); err != nil {
		perr := &types.PersistenceError{EventID: normalized.ID, Err: err}
		return &Outcome{EventID: normalized.ID, Status: StatusRejected, Err: perr}, perr
	} else if found {
		prior.Status = StatusDuplicate
		span.SetAttributes(attribute.Bool("event.duplicate", true))
		return prior, nil
	}

	cls := p.classifier.Classify(ctx, normalized)

	matches := p.evaluator.Evaluate(p.policies.Current(), normalized, cls)

	alerts := make([]*types.Alert, 0, len(matches))
	for _, match := range matches {
		alerts = append(alerts, p.dispatcher.Dispatch(ctx, normalized, cls, match))
	}

	outcome := &Outcome{
		EventID:        normalized.ID,
		Status:         StatusOK,
		Classification: cls,
		Alerts:         alerts,
	}
	for _, alert := range alerts {
		outcome.Severity = types.MaxSeverity(outcome.Severity, alert.Severity)
		if alert.Blocked() {
			outcome.Blocked = true
		}
	}

	rec := &Record{
		Event:           normalized,
		RedactedContent: p.redact(normalized, cls),
		Classification:  cls,
		Alerts:          alerts,
	}
	if err := p.store.Save(ctx, rec); err != nil {
		perr := &types.PersistenceError{EventID: normalized.ID, Err: err}
		p.logger.Error("persist failed, verdict preserved for retry", zap.Error(perr))
		outcome.Err = perr
		return outcome, perr
	}

	span.SetAttributes(
		attribute.Int("pipeline.alerts", len(alerts)),
		attribute.Bool("pipeline.blocked", outcome.Blocked),
	)
	return outcome, nil
}

// ProcessBatch runs independent events through the pipeline and reports a
// per-event outcome list. One bad event never fails the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, events []*types.Event) []*Outcome {
	outcomes := make([]*Outcome, len(events))

	var wg sync.WaitGroup
	for i, event := range events {
		wg.Add(1)
		go func(i int, event *types.Event) {
			defer wg.Done()
			outcome, err := p.Process(ctx, event)
			if err != nil {
				outcome.Err = err
			}
			outcomes[i] = outcome
		}(i, event)
	}
	wg.Wait()

	return outcomes
}

// acquire applies the concurrency bound. Submissions past the limit
// either block until capacity frees or are rejected with a retryable
// error, depending on configuration; they are never dropped.
func (p *Pipeline) acquire(ctx context.Context) error {
	if p.cfg.RejectWhenFull {
		if !p.sem.TryAcquire(1) {
			return types.ErrBackpressure
		}
		return nil
	}
	return p.sem.Acquire(ctx, 1)
}

// redact masks every detector hit in the content. The original content is
// never persisted once a sensitive label was found.
func (p *Pipeline) redact(event *types.Event, cls *types.ClassificationResult) string {
	if len(cls.Labels) == 0 || event.Content == "" {
		return event.Content
	}
	return redactContent(event.Content, p.registry)
}

func eventID(event *types.Event) string {
	if event == nil {
		return ""
	}
	return event.ID
}
