package config

import (
	"log/slog"

	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Owner is the single instance owner, set once at startup.
type Owner struct {
	username string
	email    string
	token    string `masq:"secret"`
}

func (x *Owner) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "owner-username",
			Usage:       "Instance owner username",
			Category:    "Owner",
			Sources:     cli.EnvVars("SOLOFORGE_OWNER_USERNAME"),
			Destination: &x.username,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "owner-email",
			Usage:       "Instance owner email",
			Category:    "Owner",
			Sources:     cli.EnvVars("SOLOFORGE_OWNER_EMAIL"),
			Destination: &x.email,
		},
		&cli.StringFlag{
			Name:        "owner-token",
			Usage:       "Instance owner API token",
			Category:    "Owner",
			Sources:     cli.EnvVars("SOLOFORGE_OWNER_TOKEN"),
			Destination: &x.token,
			Required:    true,
		},
	}
}

func (x *Owner) Model() model.Owner {
	return model.Owner{
		Username: types.Username(x.username),
		Email:    x.email,
		Token:    types.APIToken(x.token),
	}
}

func (x *Owner) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("username", x.username),
		slog.Any("email", x.email),
	)
}
