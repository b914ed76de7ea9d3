package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/pipeline"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/policy"
)

const testPolicyYAML = `
id: pol-card
name: Card numbers
priority: 100
rules:
  - id: rule-pan
    severity: critical
    condition:
      field: classification.labels
      operator: contains
      value: PAN
    actions:
      - type: block
      - type: alert
`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card.yaml"), []byte(testPolicyYAML), 0o644))

	repo := policy.NewFSRepository(dir)
	service := dlp.NewService(dlp.DefaultServiceConfig(), repo, pipeline.NewMemoryStore(), nil, zap.NewNop())
	require.NoError(t, service.Start(context.Background()))

	return New("127.0.0.1:0", service, zap.NewNop()), dir
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["policy_set_version"])
}

func TestSubmitEvent(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/events", map[string]any{
		"identifier": "evt-1",
		"subject":    "alice",
		"kind":       "file",
		"content":    "card 4111111111111111 attached",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		EventID  string `json:"event_id"`
		Status   string `json:"status"`
		Severity string `json:"severity"`
		Blocked  bool   `json:"blocked"`
		Alerts   []struct {
			PolicyID string `json:"policy_id"`
			RuleID   string `json:"rule_id"`
		} `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "evt-1", resp.EventID)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "critical", resp.Severity)
	assert.True(t, resp.Blocked)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, "pol-card", resp.Alerts[0].PolicyID)
}

func TestSubmitInvalidEvent(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/events", map[string]any{
		"identifier": "evt-bad",
		"kind":       "file",
		"content":    "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "rejected")
}

func TestSubmitMalformedJSON(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitBatch(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/events/batch", map[string]any{
		"events": []map[string]any{
			{"identifier": "evt-a", "subject": "alice", "kind": "file", "content": "clean text"},
			{"identifier": "evt-b", "kind": "file", "content": "missing subject"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Outcomes []struct {
			EventID string `json:"event_id"`
			Status  string `json:"status"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, "ok", resp.Outcomes[0].Status)
	assert.Equal(t, "rejected", resp.Outcomes[1].Status)
}

func TestPolicyReloadEndpoints(t *testing.T) {
	s, dir := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/admin/policies/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"policy_set_version":1`)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/admin/policies/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"policy_set_version":2`)

	// A broken document aborts the reload; the active version is unchanged.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"),
		[]byte("id: pol-broken\nname: broken\n"), 0o644))
	rec = doJSON(t, s, http.MethodPost, "/api/v1/admin/policies/reload", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"policy_set_version":2`)
}

func TestFingerprintEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/admin/fingerprints", map[string]any{
		"content": "restricted board minutes",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Digest string `json:"digest"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Digest, 64)

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/admin/fingerprints/"+resp.Digest, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/admin/fingerprints", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
