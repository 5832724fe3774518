package protocol_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/gitobj"
	"github.com/soloforge/soloforge/pkg/infra/objstore"
	"github.com/soloforge/soloforge/pkg/protocol"
	"github.com/soloforge/soloforge/pkg/protocol/pack"
	"github.com/soloforge/soloforge/pkg/protocol/pktline"
	"github.com/soloforge/soloforge/pkg/repository/memory"
)

type fixture struct {
	engine *protocol.Engine
	store  *objstore.Store
	repo   interface {
		CompareAndSwapRef(ctx context.Context, repo types.RepoName, name types.RefName, old, new types.ObjectID) error
		GetRef(ctx context.Context, repo types.RepoName, name types.RefName) (*model.Reference, error)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	gt.NoError(t, repo.CreateRepository(context.Background(), &model.Repository{
		Name:          "blog",
		DefaultBranch: "refs/heads/main",
	}))
	store := objstore.New(objstore.NewMemoryBackend())
	return &fixture{
		engine: protocol.New(store, repo),
		store:  store,
		repo:   repo,
	}
}

func (x *fixture) putObject(t *testing.T, objType gitobj.Type, payload []byte) types.ObjectID {
	t.Helper()
	id, err := x.store.Put(context.Background(), gitobj.Encode(objType, payload))
	gt.NoError(t, err)
	return id
}

// commitChain stores a blob, tree and commit, returning the commit ID.
func (x *fixture) commit(t *testing.T, content string, parents ...types.ObjectID) types.ObjectID {
	t.Helper()
	blob := x.putObject(t, gitobj.TypeBlob, []byte(content))
	treePayload := gt.R1(gitobj.FormatTree([]gitobj.TreeEntry{
		{Mode: "100644", Name: "file.txt", OID: blob},
	})).NoError(t)
	tree := x.putObject(t, gitobj.TypeTree, treePayload)
	commitPayload := gitobj.FormatCommit(tree, parents, "solo", "solo@example.com",
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), content)
	return x.putObject(t, gitobj.TypeCommit, commitPayload)
}

func readAdvertisement(t *testing.T, r io.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := pktline.ReadLine(r)
		if errors.Is(err, pktline.ErrFlush) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return lines
		}
		gt.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestAdvertiseRefsEmptyRepository(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	var buf bytes.Buffer
	gt.NoError(t, x.engine.AdvertiseRefs(ctx, "blog", protocol.ServiceUploadPack, &buf))

	lines := readAdvertisement(t, &buf)
	gt.A(t, lines).Length(2)
	gt.S(t, lines[0]).Contains("# service=git-upload-pack")
	gt.S(t, lines[1]).Contains(string(types.ZeroObjectID))
	gt.S(t, lines[1]).Contains("capabilities^{}")
}

func TestAdvertiseRefs(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	c1 := x.commit(t, "first")
	gt.NoError(t, x.repo.CompareAndSwapRef(ctx, "blog", "refs/heads/main", types.ZeroObjectID, c1))

	var buf bytes.Buffer
	gt.NoError(t, x.engine.AdvertiseRefs(ctx, "blog", protocol.ServiceReceivePack, &buf))

	lines := readAdvertisement(t, &buf)
	gt.A(t, lines).Length(2)
	gt.S(t, lines[1]).Contains(string(c1) + " refs/heads/main")
	gt.S(t, lines[1]).Contains("report-status")
	gt.S(t, lines[1]).Contains("delete-refs")
}

func buildPushRequest(t *testing.T, updates []model.RefUpdate, objects []pack.Object) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for i, u := range updates {
		line := string(u.Old) + " " + string(u.New) + " " + string(u.Name)
		if i == 0 {
			line += "\x00report-status"
		}
		gt.NoError(t, pktline.WriteString(&buf, line+"\n"))
	}
	gt.NoError(t, pktline.WriteFlush(&buf))
	if len(objects) > 0 {
		gt.NoError(t, pack.Write(&buf, objects))
	}
	return &buf
}

func packObjects(t *testing.T, content string, parents ...types.ObjectID) ([]pack.Object, types.ObjectID) {
	t.Helper()
	blobPayload := []byte(content)
	blob := gitobj.Hash(gitobj.TypeBlob, blobPayload)
	treePayload := gt.R1(gitobj.FormatTree([]gitobj.TreeEntry{
		{Mode: "100644", Name: "file.txt", OID: blob},
	})).NoError(t)
	tree := gitobj.Hash(gitobj.TypeTree, treePayload)
	commitPayload := gitobj.FormatCommit(tree, parents, "solo", "solo@example.com",
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), content)
	commit := gitobj.Hash(gitobj.TypeCommit, commitPayload)

	return []pack.Object{
		{Type: gitobj.TypeBlob, Payload: blobPayload},
		{Type: gitobj.TypeTree, Payload: treePayload},
		{Type: gitobj.TypeCommit, Payload: commitPayload},
	}, commit
}

func TestReceivePackCreatesBranch(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	objects, commit := packObjects(t, "initial")
	req := buildPushRequest(t, []model.RefUpdate{
		{Name: "refs/heads/main", Old: types.ZeroObjectID, New: commit},
	}, objects)

	var resp bytes.Buffer
	result := gt.R1(x.engine.ReceivePack(ctx, "blog", "solo", req, &resp)).NoError(t)

	gt.A(t, result.Results).Length(1)
	gt.True(t, result.Results[0].OK)

	ref := gt.R1(x.repo.GetRef(ctx, "blog", "refs/heads/main")).NoError(t)
	gt.Equal(t, ref.Target, commit)

	report := resp.String()
	gt.S(t, report).Contains("unpack ok")
	gt.S(t, report).Contains("ok refs/heads/main")

	// Pushed objects are durably stored.
	gt.R1(x.store.Get(ctx, commit)).NoError(t)
}

func TestReceivePackNonFastForward(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	c1 := x.commit(t, "first")
	c2 := x.commit(t, "second", c1)
	gt.NoError(t, x.repo.CompareAndSwapRef(ctx, "blog", "refs/heads/main", types.ZeroObjectID, c2))

	// A sideways commit not descending from c2, with c2 declared as old.
	objects, rogue := packObjects(t, "rewrite", c1)
	req := buildPushRequest(t, []model.RefUpdate{
		{Name: "refs/heads/main", Old: c2, New: rogue},
	}, objects)

	var resp bytes.Buffer
	result := gt.R1(x.engine.ReceivePack(ctx, "blog", "solo", req, &resp)).NoError(t)

	gt.A(t, result.Results).Length(1)
	gt.False(t, result.Results[0].OK)
	gt.S(t, result.Results[0].Reason).Contains("non-fast-forward")

	// The reference is unchanged.
	ref := gt.R1(x.repo.GetRef(ctx, "blog", "refs/heads/main")).NoError(t)
	gt.Equal(t, ref.Target, c2)
	gt.S(t, resp.String()).Contains("ng refs/heads/main")
}

func TestReceivePackStaleOldValue(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	c1 := x.commit(t, "first")
	c2 := x.commit(t, "second", c1)
	gt.NoError(t, x.repo.CompareAndSwapRef(ctx, "blog", "refs/heads/main", types.ZeroObjectID, c2))

	// Client believes main is still at c1.
	objects, next := packObjects(t, "third", c1)
	req := buildPushRequest(t, []model.RefUpdate{
		{Name: "refs/heads/main", Old: c1, New: next},
	}, objects)

	var resp bytes.Buffer
	result := gt.R1(x.engine.ReceivePack(ctx, "blog", "solo", req, &resp)).NoError(t)

	gt.False(t, result.Results[0].OK)
	ref := gt.R1(x.repo.GetRef(ctx, "blog", "refs/heads/main")).NoError(t)
	gt.Equal(t, ref.Target, c2)
}

func TestReceivePackIndependentRefs(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	c1 := x.commit(t, "first")
	gt.NoError(t, x.repo.CompareAndSwapRef(ctx, "blog", "refs/heads/main", types.ZeroObjectID, c1))

	// One good branch creation and one stale update in the same push.
	objects, feature := packObjects(t, "feature work", c1)
	req := buildPushRequest(t, []model.RefUpdate{
		{Name: "refs/heads/feature", Old: types.ZeroObjectID, New: feature},
		{Name: "refs/heads/main", Old: types.ZeroObjectID, New: feature},
	}, objects)

	var resp bytes.Buffer
	result := gt.R1(x.engine.ReceivePack(ctx, "blog", "solo", req, &resp)).NoError(t)

	gt.A(t, result.Results).Length(2)
	gt.True(t, result.Results[0].OK)
	gt.False(t, result.Results[1].OK)

	ref := gt.R1(x.repo.GetRef(ctx, "blog", "refs/heads/feature")).NoError(t)
	gt.Equal(t, ref.Target, feature)
}

func TestReceivePackDeletesBranch(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	c1 := x.commit(t, "first")
	gt.NoError(t, x.repo.CompareAndSwapRef(ctx, "blog", "refs/heads/stale", types.ZeroObjectID, c1))

	req := buildPushRequest(t, []model.RefUpdate{
		{Name: "refs/heads/stale", Old: c1, New: types.ZeroObjectID},
	}, nil)

	var resp bytes.Buffer
	result := gt.R1(x.engine.ReceivePack(ctx, "blog", "solo", req, &resp)).NoError(t)
	gt.True(t, result.Results[0].OK)

	_, err := x.repo.GetRef(ctx, "blog", "refs/heads/stale")
	gt.Error(t, err)
}

func TestReceivePackRejectsDanglingGraph(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	// A commit whose parent exists nowhere.
	missing := types.ObjectID(strings.Repeat("ab", 20))
	objects, commit := packObjects(t, "orphan", missing)
	req := buildPushRequest(t, []model.RefUpdate{
		{Name: "refs/heads/main", Old: types.ZeroObjectID, New: commit},
	}, objects)

	var resp bytes.Buffer
	_, err := x.engine.ReceivePack(ctx, "blog", "solo", req, &resp)
	gt.True(t, errors.Is(err, types.ErrObjectCorrupt))

	// Nothing was admitted to the store.
	has := gt.R1(x.store.Has(ctx, commit)).NoError(t)
	gt.False(t, has)
	gt.S(t, resp.String()).Contains("unpack")
}

func buildFetchRequest(t *testing.T, wants, haves []types.ObjectID) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, w := range wants {
		gt.NoError(t, pktline.WriteString(&buf, "want "+string(w)+"\n"))
	}
	gt.NoError(t, pktline.WriteFlush(&buf))
	for _, h := range haves {
		gt.NoError(t, pktline.WriteString(&buf, "have "+string(h)+"\n"))
	}
	gt.NoError(t, pktline.WriteString(&buf, "done\n"))
	return &buf
}

func readFetchResponse(t *testing.T, r io.Reader) []pack.Object {
	t.Helper()
	nak := gt.R1(pktline.ReadLine(r)).NoError(t)
	gt.Equal(t, nak, "NAK")
	return gt.R1(pack.Read(r)).NoError(t)
}

func TestUploadPackFullClone(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	c1 := x.commit(t, "first")
	c2 := x.commit(t, "second", c1)

	var resp bytes.Buffer
	gt.NoError(t, x.engine.UploadPack(ctx, "blog", buildFetchRequest(t, []types.ObjectID{c2}, nil), &resp))

	objects := readFetchResponse(t, &resp)
	ids := map[types.ObjectID]bool{}
	for _, obj := range objects {
		ids[obj.ID()] = true
	}
	gt.True(t, ids[c1])
	gt.True(t, ids[c2])
	// Both commits, both trees, both blobs.
	gt.A(t, objects).Length(6)
}

func TestUploadPackIncremental(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	c1 := x.commit(t, "first")
	c2 := x.commit(t, "second", c1)

	var resp bytes.Buffer
	gt.NoError(t, x.engine.UploadPack(ctx, "blog",
		buildFetchRequest(t, []types.ObjectID{c2}, []types.ObjectID{c1}), &resp))

	objects := readFetchResponse(t, &resp)
	// Only the new commit, its tree and its blob travel.
	gt.A(t, objects).Length(3)
	ids := map[types.ObjectID]bool{}
	for _, obj := range objects {
		ids[obj.ID()] = true
	}
	gt.True(t, ids[c2])
	gt.False(t, ids[c1])
}

func TestUploadPackUnknownWant(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	unknown := types.ObjectID(strings.Repeat("cd", 20))
	var resp bytes.Buffer
	err := x.engine.UploadPack(ctx, "blog", buildFetchRequest(t, []types.ObjectID{unknown}, nil), &resp)
	gt.Error(t, err)
	gt.S(t, resp.String()).Contains("ERR not our ref")
}

func TestUploadPackStaleHaveIgnored(t *testing.T) {
	x := newFixture(t)
	ctx := context.Background()

	c1 := x.commit(t, "first")
	stale := types.ObjectID(strings.Repeat("ef", 20))

	var resp bytes.Buffer
	gt.NoError(t, x.engine.UploadPack(ctx, "blog",
		buildFetchRequest(t, []types.ObjectID{c1}, []types.ObjectID{stale}), &resp))

	objects := readFetchResponse(t, &resp)
	gt.A(t, objects).Length(3)
}
