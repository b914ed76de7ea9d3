package policy

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Set is one complete, compiled policy set. Sets are immutable after
// compilation; reload builds a fresh set and swaps it in whole.
type Set struct {
	Version  uint64
	Policies []*CompiledPolicy
	LoadedAt time.Time
}

// CompileSet compiles every document or none: a single broken policy
// aborts the whole set so a reload can never partially apply. Policies are
// ordered by descending priority; ties keep document order.
func CompileSet(docs []*Document) (*Set, error) {
	policies := make([]*CompiledPolicy, 0, len(docs))
	for _, doc := range docs {
		compiled, err := Compile(doc)
		if err != nil {
			return nil, err
		}
		policies = append(policies, compiled)
	}

	sort.SliceStable(policies, func(i, j int) bool {
		return policies[i].Priority > policies[j].Priority
	})

	return &Set{Policies: policies, LoadedAt: time.Now()}, nil
}

// Store holds the active policy set behind an atomic pointer. Readers
// never block: evaluation sees either the old set or the new one in full,
// never a mix, and a concurrent reload never stalls an event.
type Store struct {
	current atomic.Pointer[Set]
	version atomic.Uint64
	logger  *zap.Logger
}

// NewStore creates a store seeded with an empty set at version 0.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{logger: logger}
	s.current.Store(&Set{LoadedAt: time.Now()})
	return s
}

// Current returns the active set.
func (s *Store) Current() *Set {
	return s.current.Load()
}

// Version returns the active set's version.
func (s *Store) Version() uint64 {
	return s.Current().Version
}

// Swap atomically installs set as the active policy set, assigning it the
// next version.
func (s *Store) Swap(set *Set) {
	set.Version = s.version.Add(1)
	s.current.Store(set)
	s.logger.Info("policy set swapped",
		zap.Uint64("version", set.Version),
		zap.Int("policies", len(set.Policies)))
}

// Reload loads documents from the repository, compiles them, and swaps
// the result in. On any load or compile error the previous set stays
// active untouched.
func (s *Store) Reload(ctx context.Context, repo Repository) error {
	docs, err := repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}

	set, err := CompileSet(docs)
	if err != nil {
		s.logger.Error("policy reload aborted, previous set remains active", zap.Error(err))
		return err
	}

	s.Swap(set)
	return nil
}
