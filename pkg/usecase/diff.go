package usecase

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/gitobj"
)

// ComputeDiff compares two commits at the file level.
func (x *UseCase) ComputeDiff(ctx context.Context, actor types.Username, repo types.RepoName, from, to types.ObjectID) (*model.Diff, error) {
	if err := x.Authorize(ctx, actor, repo, types.ActionClone); err != nil {
		return nil, err
	}
	return x.diff(ctx, repo, from, to)
}

func (x *UseCase) diff(ctx context.Context, repo types.RepoName, from, to types.ObjectID) (*model.Diff, error) {
	fromFiles := map[string]types.ObjectID{}
	if !from.IsZero() {
		var err error
		fromFiles, err = x.commitFiles(ctx, from)
		if err != nil {
			return nil, err
		}
	}

	toFiles := map[string]types.ObjectID{}
	if !to.IsZero() {
		var err error
		toFiles, err = x.commitFiles(ctx, to)
		if err != nil {
			return nil, err
		}
	}

	diff := &model.Diff{Repo: repo, From: from, To: to}

	for path, newOID := range toFiles {
		oldOID, ok := fromFiles[path]
		switch {
		case !ok:
			diff.Changes = append(diff.Changes, model.FileChange{
				Path: path, Kind: model.ChangeAdded, NewOID: newOID,
			})
		case oldOID != newOID:
			diff.Changes = append(diff.Changes, model.FileChange{
				Path: path, Kind: model.ChangeModified, OldOID: oldOID, NewOID: newOID,
			})
		}
	}
	for path, oldOID := range fromFiles {
		if _, ok := toFiles[path]; !ok {
			diff.Changes = append(diff.Changes, model.FileChange{
				Path: path, Kind: model.ChangeDeleted, OldOID: oldOID,
			})
		}
	}

	sort.Slice(diff.Changes, func(i, j int) bool {
		return diff.Changes[i].Path < diff.Changes[j].Path
	})
	return diff, nil
}

// commitFiles flattens the commit's tree into path -> blob ID.
func (x *UseCase) commitFiles(ctx context.Context, commitID types.ObjectID) (map[string]types.ObjectID, error) {
	commit, err := x.loadCommit(ctx, commitID)
	if err != nil {
		return nil, err
	}

	files := map[string]types.ObjectID{}
	if err := x.walkTree(ctx, commit.Tree, "", files); err != nil {
		return nil, err
	}
	return files, nil
}

func (x *UseCase) walkTree(ctx context.Context, treeID types.ObjectID, prefix string, files map[string]types.ObjectID) error {
	data, err := x.clients.ObjectStore().Get(ctx, treeID)
	if err != nil {
		return err
	}
	t, payload, err := gitobj.Decode(data)
	if err != nil {
		return err
	}
	if t != gitobj.TypeTree {
		return goerr.Wrap(types.ErrObjectCorrupt, "expected tree object",
			goerr.V("id", treeID),
			goerr.V("type", t),
		)
	}

	entries, err := gitobj.ParseTree(payload)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := prefix + e.Name
		if e.IsTree() {
			if err := x.walkTree(ctx, e.OID, path+"/", files); err != nil {
				return err
			}
			continue
		}
		files[path] = e.OID
	}
	return nil
}

func (x *UseCase) loadCommit(ctx context.Context, id types.ObjectID) (*gitobj.Commit, error) {
	data, err := x.clients.ObjectStore().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t, payload, err := gitobj.Decode(data)
	if err != nil {
		return nil, err
	}
	if t != gitobj.TypeCommit {
		return nil, goerr.Wrap(types.ErrObjectCorrupt, "expected commit object",
			goerr.V("id", id),
			goerr.V("type", t),
		)
	}
	return gitobj.ParseCommit(payload)
}
