package objstore

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/googleapi"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
	"github.com/soloforge/soloforge/pkg/utils/safe"
)

// GCSBackend stores objects in a Cloud Storage bucket under an optional
// prefix. Objects are write-once, so conditional writes guard against
// double submission without a read-modify-write.
type GCSBackend struct {
	bucket *storage.BucketHandle
	prefix string
}

var _ Backend = (*GCSBackend)(nil)

func NewGCSBackend(ctx context.Context, bucketName, prefix string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "creating storage client", goerr.V("bucket", bucketName))
	}
	return &GCSBackend{
		bucket: client.Bucket(bucketName),
		prefix: prefix,
	}, nil
}

func (x *GCSBackend) object(id types.ObjectID) *storage.ObjectHandle {
	return x.bucket.Object(x.prefix + string(id[:2]) + "/" + string(id[2:]))
}

func (x *GCSBackend) Put(ctx context.Context, id types.ObjectID, data []byte) error {
	w := x.object(id).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "writing object to bucket", goerr.V("id", id))
	}
	if err := w.Close(); err != nil {
		// A precondition failure means another writer stored the same
		// content first; content addressing makes that a no-op.
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return nil
		}
		return goerr.Wrap(err, "closing bucket writer", goerr.V("id", id))
	}
	return nil
}

func (x *GCSBackend) Get(ctx context.Context, id types.ObjectID) ([]byte, error) {
	r, err := x.object(id).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, goerr.Wrap(repository.ErrNotFound, "object not found",
			goerr.V("id", id),
		)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "opening bucket reader", goerr.V("id", id))
	}
	defer safe.Close(r)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "reading object from bucket", goerr.V("id", id))
	}
	return data, nil
}

func (x *GCSBackend) Has(ctx context.Context, id types.ObjectID) (bool, error) {
	_, err := x.object(id).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "checking object attrs", goerr.V("id", id))
	}
	return true, nil
}
