package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/infra/policy"
)

const testPolicy = `package authz

import rego.v1

deny contains msg if {
	input.actor == "mallory"
	msg := "actor is blocked"
}
`

func writePolicy(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authz.rego")
	gt.NoError(t, os.WriteFile(path, []byte(testPolicy), 0600))
	return path
}

func TestQueryEvaluatesConfiguredPath(t *testing.T) {
	ctx := context.Background()
	client := gt.R1(policy.New("data.authz", writePolicy(t))).NoError(t)

	var result struct {
		Deny []string `json:"deny"`
	}
	gt.NoError(t, client.Query(ctx, map[string]string{"actor": "mallory"}, &result))
	gt.A(t, result.Deny).Length(1)

	result.Deny = nil
	gt.NoError(t, client.Query(ctx, map[string]string{"actor": "solo"}, &result))
	gt.A(t, result.Deny).Length(0)
}

func TestNewRejectsMissingPolicy(t *testing.T) {
	_, err := policy.New("data.authz", filepath.Join(t.TempDir(), "absent.rego"))
	gt.Error(t, err)
}
