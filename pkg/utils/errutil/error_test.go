package errutil_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/utils/errutil"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

func TestHandleError(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		errutil.HandleError(context.Background(), "push failed", goerr.New("disk full"))
	})

	t.Run("wrapped error with values", func(t *testing.T) {
		err := goerr.Wrap(types.ErrReferenceConflict, "stale reference",
			goerr.V("repo", "web"),
			goerr.V("ref", "refs/heads/main"),
		)
		_, ctx := logging.CtxRequestID(context.Background())
		errutil.HandleError(ctx, "push failed", err)
	})

	t.Run("nil error", func(t *testing.T) {
		errutil.HandleError(context.Background(), "no-op", nil)
	})
}
