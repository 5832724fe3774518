package logging_test

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(func() {
		gt.NoError(t, logging.Configure("text", "info", "stdout"))
	})

	t.Run("accepts json and text formats", func(t *testing.T) {
		gt.NoError(t, logging.Configure("json", "info", "stdout"))
		gt.NoError(t, logging.Configure("text", "debug", "stderr"))
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		gt.Error(t, logging.Configure("yaml", "info", "stdout"))
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		gt.Error(t, logging.Configure("json", "loud", "stdout"))
	})

	t.Run("writes to a file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "forge.log")
		gt.NoError(t, logging.Configure("json", "info", path))
		logging.Default().Info("hello from file")
	})
}

func TestSecretsAreMasked(t *testing.T) {
	var buf bytes.Buffer
	handler := gt.R1(logging.NewHandler("json", "info", &buf)).NoError(t)
	logger := slog.New(handler)

	logger.Info("resolved actor", "token", types.APIToken("owner-secret-token"))

	out := buf.String()
	gt.True(t, strings.Contains(out, "resolved actor"))
	gt.False(t, strings.Contains(out, "owner-secret-token"))
}
