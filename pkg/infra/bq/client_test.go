package bq_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/infra/bq"
	"github.com/soloforge/soloforge/pkg/utils/testutil"
)

func TestClient(t *testing.T) {
	projectID := testutil.GetEnvOrSkip(t, "TEST_BIGQUERY_PROJECT_ID")
	datasetID := testutil.GetEnvOrSkip(t, "TEST_BIGQUERY_DATASET_ID")

	ctx := context.Background()

	tblName := time.Now().Format("event_archive_test_20060102_150405")
	client, err := bq.New(ctx, projectID, datasetID, tblName)
	gt.NoError(t, err)

	payload := gt.R1(json.Marshal(model.CommitPushedPayload{
		Ref:    "refs/heads/main",
		From:   "0000000000000000000000000000000000000000",
		To:     "89e6c98d92887913cadb06b2adb97f25b6a1f8ca",
		Pusher: "solo",
	})).NoError(t)

	t.Run("Insert creates the table on first use", func(t *testing.T) {
		gt.NoError(t, client.Insert(ctx, &model.Event{
			ID:         1,
			Repo:       "blog",
			Kind:       model.EventCommitPushed,
			Payload:    payload,
			OccurredAt: time.Now().UTC(),
		}))
	})

	t.Run("Insert reuses the table", func(t *testing.T) {
		gt.NoError(t, client.Insert(ctx, &model.Event{
			ID:         2,
			Repo:       "blog",
			Kind:       model.EventTagCreated,
			Payload:    gt.R1(json.Marshal(model.TagCreatedPayload{Tag: "v1.0.0", Target: "89e6c98d92887913cadb06b2adb97f25b6a1f8ca", Tagger: "solo"})).NoError(t),
			OccurredAt: time.Now().UTC(),
		}))
	})
}
