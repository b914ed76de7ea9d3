package patterns

import (
	"math"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// EntropyConfig controls the Shannon entropy scorer.
type EntropyConfig struct {
	// WindowSize is the fixed window, in bytes, entropy is computed over
	// inside long tokens.
	WindowSize int `yaml:"window_size" json:"window_size"`
	// MinTokenLength is the shortest whitespace-free token worth scoring.
	// Shorter tokens, which is to say ordinary words, are never flagged.
	MinTokenLength int `yaml:"min_token_length" json:"min_token_length"`
	// Threshold is the minimum entropy (bits per byte) for a segment to be
	// flagged. Confidence scales linearly from Threshold up to HighBound.
	Threshold float64 `yaml:"threshold" json:"threshold"`
	HighBound float64 `yaml:"high_bound" json:"high_bound"`
}

// DefaultEntropyConfig returns the scorer defaults. Scoring only tokens
// of 20+ bytes at 3.5 bits/byte flags base64 and hex encoded secrets
// while leaving prose alone.
func DefaultEntropyConfig() EntropyConfig {
	return EntropyConfig{
		WindowSize:     64,
		MinTokenLength: 20,
		Threshold:      3.5,
		HighBound:      5.5,
	}
}

// EntropyDetector flags high-entropy tokens as possible secrets.
type EntropyDetector struct {
	cfg EntropyConfig
}

func NewEntropyDetector(cfg EntropyConfig) *EntropyDetector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultEntropyConfig().WindowSize
	}
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = DefaultEntropyConfig().MinTokenLength
	}
	if cfg.HighBound <= cfg.Threshold {
		cfg.HighBound = cfg.Threshold + 2.0
	}
	return &EntropyDetector{cfg: cfg}
}

func (d *EntropyDetector) Name() string                  { return "entropy" }
func (d *EntropyDetector) Label() string                 { return types.LabelHighEntropy }
func (d *EntropyDetector) Method() types.DetectionMethod { return types.MethodEntropy }

// Detect splits content into whitespace-free tokens and scores every token
// at or above the minimum length. Tokens longer than one window are scored
// window by window so a secret buried in a long blob still stands out.
func (d *EntropyDetector) Detect(content string) ([]types.Match, error) {
	if content == "" {
		return nil, nil
	}

	var matches []types.Match
	start := -1

	for i := 0; i <= len(content); i++ {
		if i < len(content) && !isWhitespace(content[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if i-start >= d.cfg.MinTokenLength {
				matches = append(matches, d.scoreToken(content, start, i)...)
			}
			start = -1
		}
	}

	return matches, nil
}

// scoreToken slides a fixed window across one token and flags every
// segment whose Shannon entropy reaches the threshold.
func (d *EntropyDetector) scoreToken(content string, tokStart, tokEnd int) []types.Match {
	var matches []types.Match
	window := d.cfg.WindowSize
	step := window / 2
	if step == 0 {
		step = 1
	}

	for start := tokStart; start == tokStart || start+window <= tokEnd; start += step {
		end := start + window
		if end > tokEnd {
			end = tokEnd
		}
		segment := content[start:end]

		score := ShannonEntropy(segment)
		if score >= d.cfg.Threshold {
			matches = append(matches, types.Match{
				Label:      d.Label(),
				Value:      segment,
				StartPos:   start,
				EndPos:     end,
				Confidence: d.confidence(score),
				Method:     types.MethodEntropy,
			})
		}

		if end == tokEnd {
			break
		}
	}

	return matches
}

// confidence maps an entropy score linearly from [threshold, high bound]
// onto [0, 1].
func (d *EntropyDetector) confidence(score float64) float64 {
	c := (score - d.cfg.Threshold) / (d.cfg.HighBound - d.cfg.Threshold)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// ShannonEntropy returns the Shannon entropy of s in bits per byte.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}

	var freq [256]int
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}

	length := float64(len(s))
	entropy := 0.0
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}
