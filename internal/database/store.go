package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/pipeline"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// Store implements the pipeline's persistence boundary on Postgres.
// Transient failures are retried with backoff before surfacing as a
// retryable error to the pipeline.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// FindOutcome rebuilds the outcome of a previously persisted event, used
// for the pipeline's idempotency check.
func (s *Store) FindOutcome(ctx context.Context, eventID string) (*pipeline.Outcome, bool, error) {
	var rec EventRecord
	err := s.db.WithContext(ctx).Preload("Alerts").Where("event_id = ?", eventID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup event %s: %w", eventID, err)
	}

	outcome := &pipeline.Outcome{
		EventID: rec.EventID,
		Status:  pipeline.StatusOK,
	}

	if rec.Classification != "" {
		var cls types.ClassificationResult
		if err := json.Unmarshal([]byte(rec.Classification), &cls); err == nil {
			outcome.Classification = &cls
		}
	}

	for i := range rec.Alerts {
		alert, err := alertFromRecord(&rec.Alerts[i])
		if err != nil {
			s.logger.Warn("skipping undecodable alert record",
				zap.String("alert_id", rec.Alerts[i].AlertID), zap.Error(err))
			continue
		}
		outcome.Alerts = append(outcome.Alerts, alert)
		outcome.Severity = types.MaxSeverity(outcome.Severity, alert.Severity)
		if alert.Blocked() {
			outcome.Blocked = true
		}
	}

	return outcome, true, nil
}

// Save persists the event, classification, and alerts in one transaction.
func (s *Store) Save(ctx context.Context, rec *pipeline.Record) error {
	row, err := recordToRow(rec)
	if err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Create(row).Error
		})
		if err == nil {
			return nil
		}
		if transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func recordToRow(rec *pipeline.Record) (*EventRecord, error) {
	metadata, err := json.Marshal(rec.Event.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata for %s: %w", rec.Event.ID, err)
	}
	classification, err := json.Marshal(rec.Classification)
	if err != nil {
		return nil, fmt.Errorf("marshal classification for %s: %w", rec.Event.ID, err)
	}

	row := &EventRecord{
		EventID:         rec.Event.ID,
		Subject:         rec.Event.Subject,
		Kind:            string(rec.Event.Kind),
		RedactedContent: rec.RedactedContent,
		ContentRef:      rec.Event.ContentRef,
		Metadata:        string(metadata),
		Classification:  string(classification),
		Fingerprint:     rec.Classification.Fingerprint,
		Timestamp:       rec.Event.Timestamp,
	}

	for _, alert := range rec.Alerts {
		labels, err := json.Marshal(alert.MatchedLabels)
		if err != nil {
			return nil, fmt.Errorf("marshal alert %s: %w", alert.ID, err)
		}
		actions, err := json.Marshal(alert.ActionsTaken)
		if err != nil {
			return nil, fmt.Errorf("marshal alert %s: %w", alert.ID, err)
		}
		row.Alerts = append(row.Alerts, AlertRecord{
			AlertID:       alert.ID,
			EventID:       alert.EventID,
			PolicyID:      alert.PolicyID,
			RuleID:        alert.RuleID,
			Severity:      string(alert.Severity),
			MatchedLabels: string(labels),
			ActionsTaken:  string(actions),
			CreatedAt:     alert.CreatedAt,
		})
	}

	return row, nil
}

func alertFromRecord(row *AlertRecord) (*types.Alert, error) {
	alert := &types.Alert{
		ID:        row.AlertID,
		EventID:   row.EventID,
		PolicyID:  row.PolicyID,
		RuleID:    row.RuleID,
		Severity:  types.Severity(row.Severity),
		CreatedAt: row.CreatedAt,
	}

	if row.MatchedLabels != "" {
		if err := json.Unmarshal([]byte(row.MatchedLabels), &alert.MatchedLabels); err != nil {
			return nil, err
		}
	}
	if row.ActionsTaken != "" {
		if err := json.Unmarshal([]byte(row.ActionsTaken), &alert.ActionsTaken); err != nil {
			return nil, err
		}
	}

	return alert, nil
}

// transient picks out failures worth retrying: connection drops and
// serialization conflicts, not constraint violations.
func transient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "serialization")
}
