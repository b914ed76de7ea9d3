package pipeline

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/patterns"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// validate rejects malformed or incomplete events. Rejected events are
// not retried internally.
func validate(event *types.Event) error {
	if event == nil {
		return types.NewValidationError("", "event is nil")
	}
	if event.ID == "" {
		return types.NewValidationError("", "missing identifier")
	}
	if event.Subject == "" {
		return types.NewValidationError(event.ID, "missing subject")
	}
	if !types.ValidEventKind(event.Kind) {
		return types.NewValidationError(event.ID, "unknown kind "+string(event.Kind))
	}

	hasContent := event.Content != ""
	hasRef := event.ContentRef != ""
	if hasContent == hasRef {
		return types.NewValidationError(event.ID, "exactly one of content and content_ref must be set")
	}

	return nil
}

// normalize returns a cleaned copy of the event: content trimmed and
// stripped of non-printable bytes, path metadata canonicalized, and
// filename/extension derived. The submitted event is never mutated.
func normalize(event *types.Event, now func() time.Time) *types.Event {
	normalized := *event

	normalized.Content = stripNonPrintable(strings.TrimSpace(event.Content))

	normalized.Metadata = make(map[string]string, len(event.Metadata)+2)
	for k, v := range event.Metadata {
		normalized.Metadata[k] = v
	}

	if path, ok := normalized.Metadata["file_path"]; ok && path != "" {
		clean := canonicalPath(path)
		normalized.Metadata["file_path"] = clean

		if _, ok := normalized.Metadata["file_name"]; !ok {
			normalized.Metadata["file_name"] = baseName(clean)
		}
		if _, ok := normalized.Metadata["file_extension"]; !ok {
			if ext := filepath.Ext(baseName(clean)); ext != "" {
				normalized.Metadata["file_extension"] = strings.ToLower(ext)
			}
		}
	}

	if normalized.Timestamp.IsZero() {
		normalized.Timestamp = now().UTC()
	}

	return &normalized
}

// stripNonPrintable drops control bytes while keeping tabs and newlines.
func stripNonPrintable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
}

// canonicalPath cleans a path in its native separator convention. Windows
// agent paths keep backslashes; everything else goes through Clean.
func canonicalPath(path string) string {
	if strings.Contains(path, "\\") {
		return path
	}
	return filepath.Clean(path)
}

// baseName returns the final path element, handling both separator
// conventions the agents report.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}
	return path
}

const redactionMask = "[REDACTED]"

// redactContent replaces every detector hit with the redaction mask.
// Spans are replaced back-to-front so positions stay valid.
func redactContent(content string, registry *patterns.Registry) string {
	if registry == nil {
		return content
	}

	type span struct{ start, end int }
	var spans []span

	for _, detector := range registry.Detectors() {
		matches, err := detector.Detect(content)
		if err != nil {
			continue
		}
		for _, m := range matches {
			spans = append(spans, span{start: m.StartPos, end: m.EndPos})
		}
	}
	if len(spans) == 0 {
		return content
	}

	// Merge overlapping spans, then rewrite right to left.
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[j].start < spans[i].start {
				spans[i], spans[j] = spans[j], spans[i]
			}
		}
	}
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	prev := 0
	for _, s := range merged {
		b.WriteString(content[prev:s.start])
		b.WriteString(redactionMask)
		prev = s.end
	}
	b.WriteString(content[prev:])
	return b.String()
}
