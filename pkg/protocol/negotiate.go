package protocol

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/gitobj"
	"github.com/soloforge/soloforge/pkg/protocol/pack"
)

// missingObjects computes the object set reachable from wants but not from
// haves. Haves the server does not know are ignored, matching the
// negotiation contract where stale client state only widens the transfer.
func (x *Engine) missingObjects(ctx context.Context, wants, haves []types.ObjectID) ([]pack.Object, error) {
	seen := make(map[types.ObjectID]struct{})
	for _, have := range haves {
		if err := x.walk(ctx, have, seen, nil, true); err != nil {
			return nil, err
		}
	}

	// Walking wants with the have-closure pre-seeded skips everything the
	// client already holds.
	var objects []pack.Object
	for _, want := range wants {
		if err := x.walk(ctx, want, seen, func(id types.ObjectID, t gitobj.Type, payload []byte) {
			objects = append(objects, pack.Object{Type: t, Payload: payload})
		}, false); err != nil {
			return nil, err
		}
	}
	return objects, nil
}

// walk traverses the object graph from root, invoking visit for each object
// not already in seen. With tolerant set, unknown roots are skipped rather
// than failed; this is how stale haves are ignored.
func (x *Engine) walk(ctx context.Context, root types.ObjectID, seen map[types.ObjectID]struct{}, visit func(types.ObjectID, gitobj.Type, []byte), tolerant bool) error {
	stack := []types.ObjectID{root}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := seen[id]; ok {
			continue
		}

		data, err := x.objects.Get(ctx, id)
		if err != nil {
			if tolerant {
				continue
			}
			return goerr.Wrap(err, "failed to load object during graph walk",
				goerr.V("id", id),
			)
		}
		seen[id] = struct{}{}

		t, payload, err := gitobj.Decode(data)
		if err != nil {
			return err
		}
		if visit != nil {
			visit(id, t, payload)
		}

		children, err := objectChildren(t, payload)
		if err != nil {
			return err
		}
		stack = append(stack, children...)
	}
	return nil
}

func objectChildren(t gitobj.Type, payload []byte) ([]types.ObjectID, error) {
	switch t {
	case gitobj.TypeCommit:
		commit, err := gitobj.ParseCommit(payload)
		if err != nil {
			return nil, err
		}
		return append([]types.ObjectID{commit.Tree}, commit.Parents...), nil

	case gitobj.TypeTree:
		entries, err := gitobj.ParseTree(payload)
		if err != nil {
			return nil, err
		}
		children := make([]types.ObjectID, 0, len(entries))
		for _, e := range entries {
			children = append(children, e.OID)
		}
		return children, nil

	case gitobj.TypeTag:
		tag, err := gitobj.ParseTag(payload)
		if err != nil {
			return nil, err
		}
		return []types.ObjectID{tag.Object}, nil

	default:
		return nil, nil
	}
}

// isAncestor reports whether old is reachable from new by following commit
// parents, i.e. the update is a fast-forward.
func (x *Engine) isAncestor(ctx context.Context, old, new types.ObjectID) (bool, error) {
	visited := make(map[types.ObjectID]struct{})
	stack := []types.ObjectID{new}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if id == old {
			return true, nil
		}
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		data, err := x.objects.Get(ctx, id)
		if err != nil {
			return false, err
		}
		t, payload, err := gitobj.Decode(data)
		if err != nil {
			return false, err
		}
		if t != gitobj.TypeCommit {
			continue
		}
		commit, err := gitobj.ParseCommit(payload)
		if err != nil {
			return false, err
		}
		stack = append(stack, commit.Parents...)
	}
	return false, nil
}

// validateGraph rejects a pack whose new tips or internal links point at
// objects neither in the pack nor already stored. The store never admits a
// dangling or corrupt object graph.
func (x *Engine) validateGraph(ctx context.Context, incoming map[types.ObjectID]pack.Object, updates []model.RefUpdate) error {
	exists := func(id types.ObjectID) (bool, error) {
		if _, ok := incoming[id]; ok {
			return true, nil
		}
		return x.objects.Has(ctx, id)
	}

	for id, obj := range incoming {
		children, err := objectChildren(obj.Type, obj.Payload)
		if err != nil {
			return goerr.Wrap(types.ErrObjectCorrupt, "unparsable object in pack",
				goerr.V("id", id),
				goerr.V("cause", err.Error()),
			)
		}
		for _, child := range children {
			ok, err := exists(child)
			if err != nil {
				return err
			}
			if !ok {
				return goerr.Wrap(types.ErrObjectCorrupt, "pack references missing object",
					goerr.V("object", id),
					goerr.V("missing", child),
				)
			}
		}
	}

	for _, u := range updates {
		if u.New.IsZero() {
			continue
		}
		ok, err := exists(u.New)
		if err != nil {
			return err
		}
		if !ok {
			return goerr.Wrap(types.ErrObjectCorrupt, "ref update targets missing object",
				goerr.V("ref", u.Name),
				goerr.V("target", u.New),
			)
		}
	}
	return nil
}
