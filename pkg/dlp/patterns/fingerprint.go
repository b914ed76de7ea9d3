package patterns

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// Fingerprint returns the SHA-256 hex digest of content.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// FingerprintRegistry holds the digests of known sensitive documents.
// Safe for concurrent use; scans read it while the registry is updated at
// runtime.
type FingerprintRegistry struct {
	mu      sync.RWMutex
	digests map[string]struct{}
}

func NewFingerprintRegistry() *FingerprintRegistry {
	return &FingerprintRegistry{digests: make(map[string]struct{})}
}

// AddContent fingerprints content and registers the digest, returning it.
func (r *FingerprintRegistry) AddContent(content string) string {
	digest := Fingerprint(content)
	r.AddDigest(digest)
	return digest
}

// AddDigest registers a precomputed digest.
func (r *FingerprintRegistry) AddDigest(digest string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digests[digest] = struct{}{}
}

// Remove unregisters a digest.
func (r *FingerprintRegistry) Remove(digest string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.digests, digest)
}

// Contains reports whether digest is registered.
func (r *FingerprintRegistry) Contains(digest string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.digests[digest]
	return ok
}

// Len returns the number of registered digests.
func (r *FingerprintRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.digests)
}

// FingerprintDetector matches content hashes against the registry. An
// exact hit is certain evidence: confidence is always 1.0.
type FingerprintDetector struct {
	registry *FingerprintRegistry
}

func NewFingerprintDetector(registry *FingerprintRegistry) *FingerprintDetector {
	return &FingerprintDetector{registry: registry}
}

func (d *FingerprintDetector) Name() string                  { return "fingerprint" }
func (d *FingerprintDetector) Label() string                 { return types.LabelKnownDoc }
func (d *FingerprintDetector) Method() types.DetectionMethod { return types.MethodFingerprint }

func (d *FingerprintDetector) Detect(content string) ([]types.Match, error) {
	digest := Fingerprint(content)
	if !d.registry.Contains(digest) {
		return nil, nil
	}

	return []types.Match{{
		Label:      d.Label(),
		Value:      digest,
		StartPos:   0,
		EndPos:     len(content),
		Confidence: 1.0,
		Method:     types.MethodFingerprint,
	}}, nil
}
