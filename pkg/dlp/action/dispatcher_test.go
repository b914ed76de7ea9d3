package action

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/policy"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// recordingNotifier captures hand-offs for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []types.Alert
	params []map[string]string
	err    error
	done   chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{}, 8)}
}

func (n *recordingNotifier) Notify(ctx context.Context, alert *types.Alert, params map[string]string) error {
	n.mu.Lock()
	n.alerts = append(n.alerts, *alert)
	n.params = append(n.params, params)
	n.mu.Unlock()
	n.done <- struct{}{}
	return n.err
}

func (n *recordingNotifier) wait(t *testing.T) {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was never invoked")
	}
}

func testMatch(actions ...policy.CompiledAction) policy.RuleMatch {
	return policy.RuleMatch{
		PolicyID:   "pol-1",
		PolicyName: "test policy",
		Rule: &policy.CompiledRule{
			ID:       "rule-1",
			Name:     "test rule",
			Severity: types.SeverityHigh,
			Actions:  actions,
		},
	}
}

func testEventAndClassification() (*types.Event, *types.ClassificationResult) {
	return &types.Event{ID: "evt-1", Subject: "alice", Kind: types.EventKindFile},
		&types.ClassificationResult{
			Labels: []types.LabelScore{
				{Name: types.LabelPAN, Confidence: 1.0, Method: types.MethodChecksum},
				{Name: types.LabelEmail, Confidence: 0.6, Method: types.MethodPattern},
			},
			AggregateConfidence: 1.0,
		}
}

func TestDispatchRunsActionsInDeclaredOrder(t *testing.T) {
	d := NewDispatcher(nil, zap.NewNop())
	event, cls := testEventAndClassification()

	alert := d.Dispatch(context.Background(), event, cls, testMatch(
		policy.CompiledAction{Type: types.ActionLog},
		policy.CompiledAction{Type: types.ActionBlock},
		policy.CompiledAction{Type: types.ActionAlert},
	))

	require.NotNil(t, alert)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "evt-1", alert.EventID)
	assert.Equal(t, "pol-1", alert.PolicyID)
	assert.Equal(t, "rule-1", alert.RuleID)
	assert.Equal(t, types.SeverityHigh, alert.Severity)
	assert.Equal(t, []string{types.LabelPAN, types.LabelEmail}, alert.MatchedLabels)

	require.Len(t, alert.ActionsTaken, 3)
	assert.Equal(t, types.ActionLog, alert.ActionsTaken[0].Type)
	assert.Equal(t, types.OutcomeLogged, alert.ActionsTaken[0].Outcome)
	assert.Equal(t, types.ActionBlock, alert.ActionsTaken[1].Type)
	assert.Equal(t, types.OutcomeAdvisory, alert.ActionsTaken[1].Outcome)
	assert.Equal(t, types.ActionAlert, alert.ActionsTaken[2].Type)
	assert.Equal(t, types.OutcomeAlerted, alert.ActionsTaken[2].Outcome)
}

func TestBlockAndQuarantineAreAdvisory(t *testing.T) {
	d := NewDispatcher(nil, zap.NewNop())
	event, cls := testEventAndClassification()

	alert := d.Dispatch(context.Background(), event, cls, testMatch(
		policy.CompiledAction{Type: types.ActionBlock},
		policy.CompiledAction{Type: types.ActionQuarantine},
	))

	require.Len(t, alert.ActionsTaken, 2)
	for _, outcome := range alert.ActionsTaken {
		assert.Equal(t, types.OutcomeAdvisory, outcome.Outcome)
	}
	assert.True(t, alert.Blocked())
}

func TestNotifyHandsOffToNotifier(t *testing.T) {
	notifier := newRecordingNotifier()
	d := NewDispatcher(notifier, zap.NewNop())
	event, cls := testEventAndClassification()

	params := map[string]string{"channel": "secops"}
	alert := d.Dispatch(context.Background(), event, cls, testMatch(
		policy.CompiledAction{Type: types.ActionNotify, Parameters: params},
	))

	require.Len(t, alert.ActionsTaken, 1)
	assert.Equal(t, types.OutcomeDispatched, alert.ActionsTaken[0].Outcome)

	notifier.wait(t)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, alert.ID, notifier.alerts[0].ID)
	assert.Equal(t, params, notifier.params[0])
}

func TestNotifyPayloadCarriesFullActionList(t *testing.T) {
	notifier := newRecordingNotifier()
	d := NewDispatcher(notifier, zap.NewNop())
	event, cls := testEventAndClassification()

	// Notify declared first: the hand-off still sees the outcomes of the
	// actions that ran after it.
	alert := d.Dispatch(context.Background(), event, cls, testMatch(
		policy.CompiledAction{Type: types.ActionNotify},
		policy.CompiledAction{Type: types.ActionBlock},
		policy.CompiledAction{Type: types.ActionAlert},
	))
	require.Len(t, alert.ActionsTaken, 3)

	notifier.wait(t)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.alerts, 1)
	sent := notifier.alerts[0]
	require.Len(t, sent.ActionsTaken, 3)
	assert.Equal(t, types.OutcomeDispatched, sent.ActionsTaken[0].Outcome)
	assert.Equal(t, types.OutcomeAdvisory, sent.ActionsTaken[1].Outcome)
	assert.Equal(t, types.OutcomeAlerted, sent.ActionsTaken[2].Outcome)
	assert.True(t, sent.Blocked())
}

func TestNotifyFailureDoesNotAffectOutcome(t *testing.T) {
	notifier := newRecordingNotifier()
	notifier.err = errors.New("broker unavailable")
	d := NewDispatcher(notifier, zap.NewNop())
	event, cls := testEventAndClassification()

	alert := d.Dispatch(context.Background(), event, cls, testMatch(
		policy.CompiledAction{Type: types.ActionNotify},
	))

	// Hand-off is fire-and-forget: the outcome is dispatched regardless of
	// delivery failure.
	require.Len(t, alert.ActionsTaken, 1)
	assert.Equal(t, types.OutcomeDispatched, alert.ActionsTaken[0].Outcome)
	notifier.wait(t)
}

func TestNotifyWithoutNotifier(t *testing.T) {
	d := NewDispatcher(nil, zap.NewNop())
	event, cls := testEventAndClassification()

	alert := d.Dispatch(context.Background(), event, cls, testMatch(
		policy.CompiledAction{Type: types.ActionNotify},
	))

	require.Len(t, alert.ActionsTaken, 1)
	assert.Equal(t, types.OutcomeDispatched, alert.ActionsTaken[0].Outcome)
}
