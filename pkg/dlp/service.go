// Package dlp is the detection and enforcement engine: it classifies
// event content against the pattern library, evaluates the compiled
// policy set, dispatches actions, and persists auditable alerts.
package dlp

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/action"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/classify"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/patterns"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/pipeline"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/policy"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/state"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// ServiceConfig bundles the engine's tunables.
type ServiceConfig struct {
	Classifier classify.Config        `yaml:"classifier" json:"classifier"`
	Entropy    patterns.EntropyConfig `yaml:"entropy" json:"entropy"`
	Pipeline   pipeline.Config        `yaml:"pipeline" json:"pipeline"`
	// StopScope selects whether stop_on_match halts only the matched
	// policy or all remaining policies.
	StopScope policy.StopScope `yaml:"stop_scope" json:"stop_scope"`
	// CounterMaxAge bounds how long idle frequency counters survive a
	// sweep.
	CounterMaxAge time.Duration `yaml:"counter_max_age" json:"counter_max_age"`
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Classifier:    classify.DefaultConfig(),
		Entropy:       patterns.DefaultEntropyConfig(),
		Pipeline:      pipeline.DefaultConfig(),
		StopScope:     policy.StopScopePolicy,
		CounterMaxAge: time.Hour,
	}
}

// Service is the engine facade the surrounding service layer talks to.
type Service struct {
	cfg        ServiceConfig
	registry   *patterns.Registry
	classifier *classify.Classifier
	policies   *policy.Store
	repository policy.Repository
	tracker    *state.Tracker
	pipeline   *pipeline.Pipeline
	logger     *zap.Logger
}

// NewService wires the engine. repository supplies policy documents on
// load and reload; store is the persistence boundary; notifier may be nil.
func NewService(cfg ServiceConfig, repository policy.Repository, store pipeline.Store, notifier action.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := patterns.NewRegistry()
	registry.Register(patterns.NewEntropyDetector(cfg.Entropy))

	fingerprints := patterns.NewFingerprintRegistry()
	classifier := classify.New(registry, fingerprints, cfg.Classifier, logger)

	tracker := state.NewTracker()
	policies := policy.NewStore(logger)
	evaluator := policy.NewEvaluator(tracker, cfg.StopScope, logger)
	dispatcher := action.NewDispatcher(notifier, logger)

	return &Service{
		cfg:        cfg,
		registry:   registry,
		classifier: classifier,
		policies:   policies,
		repository: repository,
		tracker:    tracker,
		pipeline:   pipeline.New(classifier, policies, evaluator, dispatcher, registry, store, cfg.Pipeline, logger),
		logger:     logger,
	}
}

// Start performs the initial policy load.
func (s *Service) Start(ctx context.Context) error {
	return s.policies.Reload(ctx, s.repository)
}

// Evaluate runs one event through the pipeline.
func (s *Service) Evaluate(ctx context.Context, event *types.Event) (*pipeline.Outcome, error) {
	return s.pipeline.Process(ctx, event)
}

// EvaluateBatch runs independent events through the pipeline, reporting a
// per-event outcome list.
func (s *Service) EvaluateBatch(ctx context.Context, events []*types.Event) []*pipeline.Outcome {
	return s.pipeline.ProcessBatch(ctx, events)
}

// ReloadPolicies atomically swaps in a freshly loaded policy set. On
// failure the active set is untouched.
func (s *Service) ReloadPolicies(ctx context.Context) error {
	return s.policies.Reload(ctx, s.repository)
}

// PolicySetVersion returns the active policy set's version.
func (s *Service) PolicySetVersion() uint64 {
	return s.policies.Version()
}

// PolicyCount returns the number of policies in the active set.
func (s *Service) PolicyCount() int {
	return len(s.policies.Current().Policies)
}

// RegisterFingerprint adds a known sensitive document to the fingerprint
// registry and returns its digest.
func (s *Service) RegisterFingerprint(content string) string {
	return s.classifier.Fingerprints().AddContent(content)
}

// RemoveFingerprint unregisters a digest.
func (s *Service) RemoveFingerprint(digest string) {
	s.classifier.Fingerprints().Remove(digest)
}

// SweepCounters evicts idle frequency counters. Intended to run on a
// schedule.
func (s *Service) SweepCounters() int {
	removed := s.tracker.Sweep(s.cfg.CounterMaxAge)
	if removed > 0 {
		s.logger.Debug("frequency counters swept", zap.Int("removed", removed))
	}
	return removed
}
