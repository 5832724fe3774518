package logging_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

func TestLoggerContext(t *testing.T) {
	logger := slog.Default()
	ctx := logging.With(context.Background(), logger)
	gt.V(t, logging.From(ctx)).Equal(logger)

	// A bare context falls back to the default logger.
	fallback := logging.From(context.Background())
	gt.V(t, fallback.Handler()).Equal(logging.Default().Handler())
}

func TestCtxRequestID(t *testing.T) {
	reqID, ctx := logging.CtxRequestID(context.Background())
	gt.V(t, reqID).NotEqual("")

	// The same context always yields the same ID.
	again, _ := logging.CtxRequestID(ctx)
	gt.V(t, again).Equal(reqID)

	// A fresh context yields a fresh ID.
	other, _ := logging.CtxRequestID(context.Background())
	gt.V(t, other).NotEqual(reqID)
}

func TestCtxTime(t *testing.T) {
	gt.False(t, logging.CtxTime(context.Background()).IsZero())

	fixed := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	ctx := logging.CtxWithTime(context.Background(), func() time.Time { return fixed })
	gt.V(t, logging.CtxTime(ctx)).Equal(fixed)
}

func TestInheritContextValues(t *testing.T) {
	fixed := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	reqID, src := logging.CtxRequestID(context.Background())
	src = logging.CtxWithTime(src, func() time.Time { return fixed })

	dst := logging.InheritContextValues(context.Background(), src)

	inherited, _ := logging.CtxRequestID(dst)
	gt.V(t, inherited).Equal(reqID)
	gt.V(t, logging.CtxTime(dst)).Equal(fixed)
}
