package classify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/patterns"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// Config controls classification behavior.
type Config struct {
	// MaxScanSize bounds how many bytes of content the detectors see.
	// Oversized content is truncated at this offset and the result is
	// flagged truncated.
	MaxScanSize int `yaml:"max_scan_size" json:"max_scan_size"`
	// MinConfidence drops matches below this confidence before
	// aggregation.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	// Deadline bounds the wall time spent on one event. On expiry the
	// result carries whatever the detectors found so far, flagged
	// incomplete.
	Deadline time.Duration `yaml:"deadline" json:"deadline"`
}

// DefaultConfig returns the classifier defaults.
func DefaultConfig() Config {
	return Config{
		MaxScanSize:   1 << 20, // 1 MiB
		MinConfidence: 0.0,
		Deadline:      5 * time.Second,
	}
}

// Classifier aggregates detector output into one classification result
// per event.
type Classifier struct {
	registry     *patterns.Registry
	fingerprints *patterns.FingerprintRegistry
	cfg          Config
	logger       *zap.Logger
	tracer       trace.Tracer
}

// New creates a classifier over the given detector registry and known
// document fingerprints.
func New(registry *patterns.Registry, fingerprints *patterns.FingerprintRegistry, cfg Config, logger *zap.Logger) *Classifier {
	if cfg.MaxScanSize <= 0 {
		cfg.MaxScanSize = DefaultConfig().MaxScanSize
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultConfig().Deadline
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		registry:     registry,
		fingerprints: fingerprints,
		cfg:          cfg,
		logger:       logger,
		tracer:       otel.Tracer("dlp.classify"),
	}
}

// Fingerprints returns the known-document registry, for runtime
// registration of new sensitive documents.
func (c *Classifier) Fingerprints() *patterns.FingerprintRegistry {
	return c.fingerprints
}

// Classify scans the event's content with every registered detector and
// aggregates the matches into a single result. Detector failures are
// recorded and skipped; the remaining detectors still run.
func (c *Classifier) Classify(ctx context.Context, event *types.Event) *types.ClassificationResult {
	ctx, span := c.tracer.Start(ctx, "classify",
		trace.WithAttributes(
			attribute.String("event.id", event.ID),
			attribute.String("event.kind", string(event.Kind)),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()

	content := event.Content
	// The fingerprint always covers the full content so registered
	// documents match regardless of the scan bound.
	digest := patterns.Fingerprint(content)

	result := &types.ClassificationResult{Fingerprint: digest}

	if len(content) > c.cfg.MaxScanSize {
		content = content[:c.cfg.MaxScanSize]
		result.Truncated = true
	}

	var matches []types.Match

	fd := patterns.NewFingerprintDetector(c.fingerprints)
	if c.fingerprints.Contains(digest) {
		hit, _ := fd.Detect(event.Content)
		matches = append(matches, hit...)
	}

	for _, detector := range c.registry.Detectors() {
		select {
		case <-ctx.Done():
			result.Incomplete = true
			c.logger.Warn("classification deadline expired",
				zap.String("event_id", event.ID),
				zap.String("detector", detector.Name()))
			span.SetAttributes(attribute.Bool("classification.incomplete", true))
			goto done
		default:
		}

		found, err := c.runDetector(detector, content)
		if err != nil {
			derr := &types.DetectorError{Detector: detector.Name(), EventID: event.ID, Err: err}
			result.DetectorFailures = append(result.DetectorFailures, detector.Name())
			c.logger.Error("detector failed", zap.Error(derr))
			continue
		}

		for _, m := range found {
			if m.Confidence >= c.cfg.MinConfidence {
				matches = append(matches, m)
			}
		}
	}

done:
	result.Labels, result.AggregateConfidence = aggregate(matches)
	span.SetAttributes(
		attribute.Int("classification.labels", len(result.Labels)),
		attribute.Float64("classification.confidence", result.AggregateConfidence),
	)
	return result
}

// runDetector invokes one detector, converting a panic into an error so a
// misbehaving detector cannot take down the scan.
func (c *Classifier) runDetector(d patterns.Detector, content string) (matches []types.Match, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Detect(content)
}

// aggregate groups matches by label, keeping the maximum confidence per
// label. Detectors are independent evidence, not probabilities to combine.
// An exact fingerprint match pins the aggregate confidence at 1.0.
func aggregate(matches []types.Match) ([]types.LabelScore, float64) {
	if len(matches) == 0 {
		return nil, 0
	}

	best := make(map[string]types.LabelScore)
	fingerprintHit := false

	for _, m := range matches {
		if m.Method == types.MethodFingerprint {
			fingerprintHit = true
		}
		if cur, ok := best[m.Label]; !ok || m.Confidence > cur.Confidence {
			best[m.Label] = types.LabelScore{
				Name:       m.Label,
				Confidence: m.Confidence,
				Method:     m.Method,
			}
		}
	}

	labels := make([]types.LabelScore, 0, len(best))
	for _, score := range best {
		labels = append(labels, score)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Confidence != labels[j].Confidence {
			return labels[i].Confidence > labels[j].Confidence
		}
		return labels[i].Name < labels[j].Name
	})

	aggregateConfidence := labels[0].Confidence
	if fingerprintHit {
		aggregateConfidence = 1.0
	}

	return labels, aggregateConfidence
}
