package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Repository is the external policy source collaborator. Implementations
// return the complete current document set on every load.
type Repository interface {
	Load(ctx context.Context) ([]*Document, error)
}

// FSRepository loads policy documents from *.yml/*.yaml files in a
// directory, one document per file.
type FSRepository struct {
	dir string
}

func NewFSRepository(dir string) *FSRepository {
	return &FSRepository{dir: dir}
}

func (r *FSRepository) Load(ctx context.Context) ([]*Document, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read policy directory %s: %w", r.dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yml", ".yaml":
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	docs := make([]*Document, 0, len(files))
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(r.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read policy file %s: %w", name, err)
		}

		doc, err := ParseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("policy file %s: %w", name, err)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// StaticRepository serves a fixed in-memory document set. Used by tests
// and by embedding services that manage policies themselves.
type StaticRepository struct {
	docs []*Document
}

func NewStaticRepository(docs ...*Document) *StaticRepository {
	return &StaticRepository{docs: docs}
}

func (r *StaticRepository) Load(ctx context.Context) ([]*Document, error) {
	return r.docs, nil
}
