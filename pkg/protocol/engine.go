// Package protocol implements the git smart-HTTP request/response state
// machine on top of the object and reference stores: ref advertisement,
// fetch negotiation with pack streaming, and push application with
// per-reference compare-and-swap.
package protocol

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/gitobj"
	"github.com/soloforge/soloforge/pkg/protocol/pack"
	"github.com/soloforge/soloforge/pkg/protocol/pktline"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

const (
	ServiceUploadPack  = "git-upload-pack"
	ServiceReceivePack = "git-receive-pack"

	agentCapability = "agent=soloforge/1.0"
)

// RefStore is the subset of the repository the engine needs for reference
// reads and the compare-and-swap application of pushes.
type RefStore interface {
	ListRefs(ctx context.Context, repo types.RepoName) ([]*model.Reference, error)
	CompareAndSwapRef(ctx context.Context, repo types.RepoName, name types.RefName, old, new types.ObjectID) error
}

type Engine struct {
	objects interfaces.ObjectStore
	refs    RefStore
}

func New(objects interfaces.ObjectStore, refs RefStore) *Engine {
	return &Engine{
		objects: objects,
		refs:    refs,
	}
}

// AdvertiseRefs writes the smart-HTTP ref advertisement for the service.
// An empty repository advertises a single zero-ID capabilities line.
func (x *Engine) AdvertiseRefs(ctx context.Context, repo types.RepoName, service string, w io.Writer) error {
	caps := agentCapability
	if service == ServiceReceivePack {
		caps = "report-status delete-refs " + agentCapability
	}

	if err := pktline.WriteString(w, "# service="+service+"\n"); err != nil {
		return err
	}
	if err := pktline.WriteFlush(w); err != nil {
		return err
	}

	refs, err := x.refs.ListRefs(ctx, repo)
	if err != nil {
		return err
	}

	if len(refs) == 0 {
		line := string(types.ZeroObjectID) + " capabilities^{}\x00" + caps + "\n"
		if err := pktline.WriteString(w, line); err != nil {
			return err
		}
		return pktline.WriteFlush(w)
	}

	for i, ref := range refs {
		line := string(ref.Target) + " " + string(ref.Name)
		if i == 0 {
			line += "\x00" + caps
		}
		line += "\n"
		if err := pktline.WriteString(w, line); err != nil {
			return err
		}
	}
	return pktline.WriteFlush(w)
}

// UploadPack serves one fetch: reads wants and haves from the client,
// answers NAK, and streams a pack holding exactly the objects the client
// is missing.
func (x *Engine) UploadPack(ctx context.Context, repo types.RepoName, r io.Reader, w io.Writer) error {
	wants, haves, err := readUploadRequest(r)
	if err != nil {
		return err
	}
	if len(wants) == 0 {
		return nil
	}

	for _, want := range wants {
		ok, err := x.objects.Has(ctx, want)
		if err != nil {
			return err
		}
		if !ok {
			_ = pktline.WriteString(w, "ERR not our ref "+string(want)+"\n")
			return goerr.Wrap(types.ErrValidationFailed, "client requested unknown object",
				goerr.V("repo", repo),
				goerr.V("want", want),
			)
		}
	}

	objects, err := x.missingObjects(ctx, wants, haves)
	if err != nil {
		return err
	}

	if err := pktline.WriteString(w, "NAK\n"); err != nil {
		return err
	}
	if err := pack.Write(w, objects); err != nil {
		return goerr.Wrap(types.ErrTransportFailure, "failed to stream pack",
			goerr.V("repo", repo),
			goerr.V("objects", len(objects)),
			goerr.V("cause", err.Error()),
		)
	}
	return nil
}

// readUploadRequest parses want lines, then have lines terminated by done.
func readUploadRequest(r io.Reader) (wants, haves []types.ObjectID, err error) {
	for {
		line, err := pktline.ReadLine(r)
		if errors.Is(err, pktline.ErrFlush) {
			break
		}
		if errors.Is(err, io.EOF) {
			return wants, haves, nil
		}
		if err != nil {
			return nil, nil, err
		}

		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "want" {
			return nil, nil, goerr.Wrap(types.ErrValidationFailed, "malformed want line",
				goerr.V("line", line),
			)
		}
		oid := types.ObjectID(fields[1])
		if !gitobj.ValidID(oid) {
			return nil, nil, goerr.Wrap(types.ErrValidationFailed, "invalid object ID in want line",
				goerr.V("line", line),
			)
		}
		wants = append(wants, oid)
	}

	for {
		line, err := pktline.ReadLine(r)
		if errors.Is(err, pktline.ErrFlush) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return wants, haves, nil
		}
		if err != nil {
			return nil, nil, err
		}

		if line == "done" {
			return wants, haves, nil
		}
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "have" && gitobj.ValidID(types.ObjectID(fields[1])) {
			haves = append(haves, types.ObjectID(fields[1]))
		}
	}
}

// ReceivePack serves one push: parses the command list, ingests and
// validates the incoming pack, applies each reference update independently
// via compare-and-swap, and writes the report-status response. Reference
// outcomes are returned for event emission by the caller.
func (x *Engine) ReceivePack(ctx context.Context, repo types.RepoName, pusher types.Username, r io.Reader, w io.Writer) (*model.PushResult, error) {
	updates, err := readCommands(r)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return &model.PushResult{Repo: repo, Pusher: pusher}, nil
	}

	result := &model.PushResult{Repo: repo, Pusher: pusher}

	needPack := false
	for _, u := range updates {
		if !u.New.IsZero() {
			needPack = true
		}
	}

	var incoming map[types.ObjectID]pack.Object
	if needPack {
		objects, err := pack.Read(r)
		if err != nil {
			writeReport(w, "unpack "+unpackReason(err), nil)
			return nil, goerr.Wrap(err, "failed to read incoming pack",
				goerr.V("repo", repo),
			)
		}
		incoming = make(map[types.ObjectID]pack.Object, len(objects))
		for _, obj := range objects {
			incoming[obj.ID()] = obj
		}

		if err := x.validateGraph(ctx, incoming, updates); err != nil {
			writeReport(w, "unpack "+unpackReason(err), nil)
			return nil, err
		}

		for _, obj := range objects {
			if _, err := x.objects.Put(ctx, gitobj.Encode(obj.Type, obj.Payload)); err != nil {
				writeReport(w, "unpack object store failure", nil)
				return nil, err
			}
		}
	}

	for _, u := range updates {
		result.Results = append(result.Results, x.applyUpdate(ctx, repo, u))
	}

	writeReport(w, "unpack ok", result.Results)

	logging.From(ctx).Info("push applied",
		slog.Any("repo", repo),
		slog.Any("pusher", pusher),
		slog.Int("refs", len(result.Results)),
		slog.Int("applied", len(result.Applied())),
	)
	return result, nil
}

// applyUpdate applies one reference update. A failure here never affects
// the other updates of the same push.
func (x *Engine) applyUpdate(ctx context.Context, repo types.RepoName, u model.RefUpdate) model.RefResult {
	if !strings.HasPrefix(string(u.Name), "refs/heads/") && !strings.HasPrefix(string(u.Name), "refs/tags/") {
		return model.RefResult{Update: u, Reason: "funny refname"}
	}

	// A branch rewrite needs the force flag; tags are create-only by
	// convention but follow the same compare semantics.
	if !u.Old.IsZero() && !u.New.IsZero() && !u.Force && model.RefTypeOf(u.Name) == types.RefTypeBranch {
		ff, err := x.isAncestor(ctx, u.Old, u.New)
		if err != nil {
			return model.RefResult{Update: u, Reason: "failed to verify history"}
		}
		if !ff {
			return model.RefResult{Update: u, Reason: "non-fast-forward"}
		}
	}

	if err := x.refs.CompareAndSwapRef(ctx, repo, u.Name, u.Old, u.New); err != nil {
		if errors.Is(err, types.ErrReferenceConflict) {
			return model.RefResult{Update: u, Reason: "reference changed concurrently, fetch first"}
		}
		return model.RefResult{Update: u, Reason: "failed to update ref"}
	}
	return model.RefResult{Update: u, OK: true}
}

func readCommands(r io.Reader) ([]model.RefUpdate, error) {
	var updates []model.RefUpdate
	for {
		line, err := pktline.ReadLine(r)
		if errors.Is(err, pktline.ErrFlush) || errors.Is(err, io.EOF) {
			return updates, nil
		}
		if err != nil {
			return nil, err
		}

		// Capabilities ride after a NUL on the first command line.
		if idx := strings.IndexByte(line, 0); idx >= 0 {
			line = line[:idx]
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, goerr.Wrap(types.ErrValidationFailed, "malformed update command",
				goerr.V("line", line),
			)
		}
		old, new := types.ObjectID(fields[0]), types.ObjectID(fields[1])
		if !gitobj.ValidID(old) && !old.IsZero() {
			return nil, goerr.Wrap(types.ErrValidationFailed, "invalid old object ID",
				goerr.V("line", line),
			)
		}
		if !gitobj.ValidID(new) && !new.IsZero() {
			return nil, goerr.Wrap(types.ErrValidationFailed, "invalid new object ID",
				goerr.V("line", line),
			)
		}
		updates = append(updates, model.RefUpdate{
			Name: types.RefName(fields[2]),
			Old:  old,
			New:  new,
		})
	}
}

func writeReport(w io.Writer, unpack string, results []model.RefResult) {
	_ = pktline.WriteString(w, unpack+"\n")
	for _, r := range results {
		if r.OK {
			_ = pktline.WriteString(w, "ok "+string(r.Update.Name)+"\n")
		} else {
			_ = pktline.WriteString(w, "ng "+string(r.Update.Name)+" "+r.Reason+"\n")
		}
	}
	_ = pktline.WriteFlush(w)
}

func unpackReason(err error) string {
	if errors.Is(err, types.ErrObjectCorrupt) {
		return "object corrupt"
	}
	return "pack parse error"
}
