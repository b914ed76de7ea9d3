package patterns

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

func TestShannonEntropyBounds(t *testing.T) {
	assert.Zero(t, ShannonEntropy(""))
	assert.Zero(t, ShannonEntropy("aaaaaaaaaaaaaaaa"))

	// 256 distinct bytes is the maximum: 8 bits per byte.
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	assert.InDelta(t, 8.0, ShannonEntropy(string(all)), 0.001)
}

func TestEntropyMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	random := make([]byte, 256)
	for i := range random {
		random[i] = byte(rng.Intn(256))
	}

	repetitive := strings.Repeat("ab", 128)

	low := ShannonEntropy(repetitive)
	high := ShannonEntropy(string(random))

	assert.Less(t, low, 1.1, "repetitive content should score near zero")
	assert.Greater(t, high, 7.0, "random bytes should score near maximum")
	assert.Greater(t, high, low)
}

func TestEntropyDetectorFlagsSecrets(t *testing.T) {
	d := NewEntropyDetector(DefaultEntropyConfig())

	// Random base64-like token.
	matches, err := d.Detect("AKxT9mQ2vLp8ZwRd4uYs6bNc1eHf3jGi5oMk7qVa0tXz")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, types.LabelHighEntropy, matches[0].Label)
	assert.Equal(t, types.MethodEntropy, matches[0].Method)
	assert.GreaterOrEqual(t, matches[0].Confidence, 0.0)
	assert.LessOrEqual(t, matches[0].Confidence, 1.0)

	// Plain English prose never produces a scoreable token.
	matches, err = d.Detect("the quarterly report is attached for review and sign off")
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Long but repetitive tokens stay below the threshold.
	matches, err = d.Detect(strings.Repeat("na", 30))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestEntropyDetectorShortTokensIgnored(t *testing.T) {
	d := NewEntropyDetector(DefaultEntropyConfig())

	// High-entropy but under the minimum token length.
	matches, err := d.Detect("Zq8#kP2! and xY7@mW9$ look random but are too short")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestEntropyDetectorSecretEmbeddedInProse(t *testing.T) {
	d := NewEntropyDetector(DefaultEntropyConfig())

	const token = "AKxT9mQ2vLp8ZwRd4uYs6bNc1eHf3jGi5oMk7qVa0tXz"
	content := "deploy key " + token + " was committed to the repo"

	matches, err := d.Detect(content)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, token, matches[0].Value)
	assert.Equal(t, strings.Index(content, token), matches[0].StartPos)
	assert.Equal(t, strings.Index(content, token)+len(token), matches[0].EndPos)
}

func TestEntropyDetectorConfidenceScalesLinearly(t *testing.T) {
	cfg := EntropyConfig{WindowSize: 64, Threshold: 3.0, HighBound: 5.0}
	d := NewEntropyDetector(cfg)

	// A score exactly at the threshold maps to 0, at the high bound to 1.
	assert.InDelta(t, 0.0, d.confidence(3.0), 1e-9)
	assert.InDelta(t, 0.5, d.confidence(4.0), 1e-9)
	assert.InDelta(t, 1.0, d.confidence(5.0), 1e-9)
	assert.Equal(t, 1.0, d.confidence(7.5))
}

func TestEntropyDetectorWindows(t *testing.T) {
	cfg := EntropyConfig{WindowSize: 32, Threshold: 3.5, HighBound: 5.5}
	d := NewEntropyDetector(cfg)

	rng := rand.New(rand.NewSource(99))
	secret := make([]byte, 64)
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	for i := range secret {
		secret[i] = alphabet[rng.Intn(len(alphabet))]
	}

	content := strings.Repeat("a", 200) + string(secret) + strings.Repeat("b", 200)
	matches, err := d.Detect(content)
	require.NoError(t, err)
	require.NotEmpty(t, matches, "embedded secret should be flagged by some window")

	for _, m := range matches {
		assert.LessOrEqual(t, m.EndPos-m.StartPos, cfg.WindowSize)
	}
}
