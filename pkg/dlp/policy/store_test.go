package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingRepository struct{}

func (failingRepository) Load(ctx context.Context) ([]*Document, error) {
	return nil, errors.New("source unavailable")
}

func TestStoreStartsEmpty(t *testing.T) {
	store := NewStore(zap.NewNop())
	set := store.Current()
	require.NotNil(t, set)
	assert.Zero(t, set.Version)
	assert.Empty(t, set.Policies)
}

func TestStoreReloadSwapsAndVersions(t *testing.T) {
	store := NewStore(zap.NewNop())
	repo := NewStaticRepository(alwaysMatchDoc("pol-1", 10, false, "r1"))

	require.NoError(t, store.Reload(context.Background(), repo))
	assert.Equal(t, uint64(1), store.Version())
	assert.Len(t, store.Current().Policies, 1)

	require.NoError(t, store.Reload(context.Background(), repo))
	assert.Equal(t, uint64(2), store.Version())
}

func TestStoreReloadKeepsPreviousSetOnCompileError(t *testing.T) {
	store := NewStore(zap.NewNop())
	require.NoError(t, store.Reload(context.Background(),
		NewStaticRepository(alwaysMatchDoc("pol-1", 10, false, "r1"))))
	before := store.Current()

	broken := NewStaticRepository(&Document{ID: "pol-broken", Name: "broken"})
	err := store.Reload(context.Background(), broken)
	require.Error(t, err)

	// The active set is untouched, same pointer and version.
	assert.Same(t, before, store.Current())
	assert.Equal(t, uint64(1), store.Version())
}

func TestStoreReloadKeepsPreviousSetOnLoadError(t *testing.T) {
	store := NewStore(zap.NewNop())
	require.NoError(t, store.Reload(context.Background(),
		NewStaticRepository(alwaysMatchDoc("pol-1", 10, false, "r1"))))

	err := store.Reload(context.Background(), failingRepository{})
	require.Error(t, err)
	assert.Equal(t, uint64(1), store.Version())
	assert.Len(t, store.Current().Policies, 1)
}

func TestFSRepositoryLoadsSortedYAML(t *testing.T) {
	dir := t.TempDir()

	writePolicy := func(name, id string) {
		data := "id: " + id + "\nname: " + id + "\nrules:\n" +
			"  - id: r1\n    condition:\n      field: subject\n      operator: exists\n" +
			"    actions:\n      - type: log\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}

	writePolicy("20-second.yaml", "pol-second")
	writePolicy("10-first.yml", "pol-first")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	repo := NewFSRepository(dir)
	docs, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "pol-first", docs[0].ID)
	assert.Equal(t, "pol-second", docs[1].ID)
}

func TestFSRepositoryMissingDirectory(t *testing.T) {
	repo := NewFSRepository(filepath.Join(t.TempDir(), "missing"))
	_, err := repo.Load(context.Background())
	assert.Error(t, err)
}
