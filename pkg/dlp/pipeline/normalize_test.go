package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/patterns"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

func TestValidate(t *testing.T) {
	base := func() *types.Event {
		return &types.Event{
			ID:      "evt-1",
			Subject: "alice",
			Kind:    types.EventKindFile,
			Content: "hello",
		}
	}

	assert.NoError(t, validate(base()))

	cases := []struct {
		name   string
		mutate func(*types.Event)
	}{
		{"missing id", func(e *types.Event) { e.ID = "" }},
		{"missing subject", func(e *types.Event) { e.Subject = "" }},
		{"unknown kind", func(e *types.Event) { e.Kind = "carrier_pigeon" }},
		{"no content at all", func(e *types.Event) { e.Content = "" }},
		{"both content and ref", func(e *types.Event) { e.ContentRef = "s3://bucket/key" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := base()
			tc.mutate(event)
			err := validate(event)
			require.Error(t, err)
			assert.True(t, types.IsValidationError(err))
		})
	}

	assert.Error(t, validate(nil))

	refOnly := base()
	refOnly.Content = ""
	refOnly.ContentRef = "s3://bucket/key"
	assert.NoError(t, validate(refOnly))
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	original := &types.Event{
		ID:      "evt-1",
		Subject: "alice",
		Kind:    types.EventKindFile,
		Content: "  padded  ",
		Metadata: map[string]string{
			"file_path": "/tmp/../exports/payroll.csv",
		},
	}

	normalized := normalize(original, now)

	assert.Equal(t, "padded", normalized.Content)
	assert.Equal(t, "  padded  ", original.Content)
	assert.Equal(t, "/tmp/../exports/payroll.csv", original.Metadata["file_path"])
	assert.True(t, original.Timestamp.IsZero())
}

func TestNormalizeDerivesFileMetadata(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	event := &types.Event{
		ID: "evt-1", Subject: "alice", Kind: types.EventKindFile, Content: "x",
		Metadata: map[string]string{"file_path": "/exports/./reports/Q1-Summary.XLSX"},
	}

	normalized := normalize(event, now)
	assert.Equal(t, "/exports/reports/Q1-Summary.XLSX", normalized.Metadata["file_path"])
	assert.Equal(t, "Q1-Summary.XLSX", normalized.Metadata["file_name"])
	assert.Equal(t, ".xlsx", normalized.Metadata["file_extension"])
	assert.Equal(t, now(), normalized.Timestamp)
}

func TestNormalizeWindowsPaths(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	event := &types.Event{
		ID: "evt-1", Subject: "alice", Kind: types.EventKindFile, Content: "x",
		Metadata: map[string]string{"file_path": `C:\Users\alice\Documents\salaries.xlsx`},
	}

	normalized := normalize(event, now)
	assert.Equal(t, "salaries.xlsx", normalized.Metadata["file_name"])
	assert.Equal(t, ".xlsx", normalized.Metadata["file_extension"])
}

func TestNormalizeKeepsExplicitTimestamp(t *testing.T) {
	stamped := time.Date(2026, 2, 28, 9, 30, 0, 0, time.UTC)
	event := &types.Event{
		ID: "evt-1", Subject: "alice", Kind: types.EventKindFile,
		Content: "x", Timestamp: stamped,
	}

	normalized := normalize(event, time.Now)
	assert.Equal(t, stamped, normalized.Timestamp)
}

func TestStripNonPrintable(t *testing.T) {
	assert.Equal(t, "abc\ndef\tg", stripNonPrintable("abc\ndef\tg"))
	assert.Equal(t, "abcdef", stripNonPrintable("abc\x00\x07def"))
}

func TestRedactContentMasksDetectorHits(t *testing.T) {
	registry := patterns.NewRegistry()

	content := "card 4111111111111111 sent to bob@example.com yesterday"
	redacted := redactContent(content, registry)

	assert.NotContains(t, redacted, "4111111111111111")
	assert.NotContains(t, redacted, "bob@example.com")
	assert.Contains(t, redacted, redactionMask)
	assert.True(t, strings.HasPrefix(redacted, "card "))
	assert.True(t, strings.HasSuffix(redacted, " yesterday"))
}

func TestRedactContentCleanPassThrough(t *testing.T) {
	registry := patterns.NewRegistry()
	content := "meeting notes, nothing sensitive here"
	assert.Equal(t, content, redactContent(content, registry))
}
