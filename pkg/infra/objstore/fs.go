package objstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
	"github.com/soloforge/soloforge/pkg/utils/safe"
)

// FSBackend stores objects under root/<id[:2]>/<id[2:]>, the same fan-out
// layout a bare git object directory uses. Writes go through a temp file
// and rename so a crashed write never leaves a partial object.
type FSBackend struct {
	root string
}

var _ Backend = (*FSBackend)(nil)

func NewFSBackend(root string) (*FSBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, goerr.Wrap(err, "creating object directory", goerr.V("root", root))
	}
	return &FSBackend{root: root}, nil
}

func (x *FSBackend) path(id types.ObjectID) string {
	return filepath.Join(x.root, string(id[:2]), string(id[2:]))
}

func (x *FSBackend) Put(ctx context.Context, id types.ObjectID, data []byte) error {
	path := x.path(id)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerr.Wrap(err, "creating object fan-out directory", goerr.V("id", id))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "obj-*")
	if err != nil {
		return goerr.Wrap(err, "creating temp object file", goerr.V("id", id))
	}

	if _, err := tmp.Write(data); err != nil {
		safe.Close(tmp)
		safe.Remove(tmp.Name())
		return goerr.Wrap(err, "writing object file", goerr.V("id", id))
	}
	if err := tmp.Close(); err != nil {
		safe.Remove(tmp.Name())
		return goerr.Wrap(err, "closing object file", goerr.V("id", id))
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		safe.Remove(tmp.Name())
		return goerr.Wrap(err, "renaming object file", goerr.V("id", id))
	}
	return nil
}

func (x *FSBackend) Get(ctx context.Context, id types.ObjectID) ([]byte, error) {
	data, err := os.ReadFile(x.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, goerr.Wrap(repository.ErrNotFound, "object not found",
			goerr.V("id", id),
		)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "reading object file", goerr.V("id", id))
	}
	return data, nil
}

func (x *FSBackend) Has(ctx context.Context, id types.ObjectID) (bool, error) {
	_, err := os.Stat(x.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "checking object file", goerr.V("id", id))
	}
	return true, nil
}
