package config

import (
	"log/slog"

	"github.com/soloforge/soloforge/pkg/infra/policy"
	"github.com/urfave/cli/v3"
)

// Policy loads optional Rego authorization policies. Without policy files the
// builtin permission checks are the only gate.
type Policy struct {
	paths []string
	query string
}

func (x *Policy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "policy-path",
			Usage:       "Path to Rego policy file or directory (repeatable)",
			Category:    "Policy",
			Sources:     cli.EnvVars("SOLOFORGE_POLICY_PATH"),
			Destination: &x.paths,
		},
		&cli.StringFlag{
			Name:        "policy-query",
			Usage:       "Rego query path evaluated for authorization decisions",
			Category:    "Policy",
			Value:       "data.authz",
			Sources:     cli.EnvVars("SOLOFORGE_POLICY_QUERY"),
			Destination: &x.query,
		},
	}
}

func (x *Policy) NewClient() (*policy.Client, error) {
	if len(x.paths) == 0 {
		return nil, nil
	}
	return policy.New(x.query, x.paths...)
}

func (x *Policy) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("paths", x.paths),
		slog.Any("query", x.query),
	)
}
