// Package policy evaluates Rego policies for access decisions. Policies are
// optional: when no policy files are configured the built-in
// owner/collaborator model decides alone.
package policy

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/opac"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
)

type Client struct {
	client *opac.Client
	query  string
}

var _ interfaces.PolicyClient = (*Client)(nil)

// New loads Rego policy files from the given paths and evaluates them at the
// given query path (e.g. "data.authz"). Directories are walked recursively.
func New(query string, paths ...string) (*Client, error) {
	client, err := opac.New(opac.Files(paths...))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load policy files", goerr.V("paths", paths))
	}
	return &Client{client: client, query: query}, nil
}

func (x *Client) Query(ctx context.Context, input any, result any) error {
	if err := x.client.Query(ctx, x.query, input, result); err != nil {
		return goerr.Wrap(err, "failed to query policy", goerr.V("query", x.query))
	}
	return nil
}
