package usecase

import (
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/infra"
	"github.com/soloforge/soloforge/pkg/protocol"
)

var _ interfaces.UseCase = (*UseCase)(nil)

type UseCase struct {
	clients *infra.Clients
	owner   model.Owner
	engine  *protocol.Engine
}

type Option func(*UseCase)

// WithOwner sets the instance owner. The owner always has admin on every
// repository.
func WithOwner(owner model.Owner) Option {
	return func(x *UseCase) {
		x.owner = owner
	}
}

func New(clients *infra.Clients, options ...Option) *UseCase {
	uc := &UseCase{
		clients: clients,
		engine:  protocol.New(clients.ObjectStore(), clients.ForgeRepository()),
	}
	for _, opt := range options {
		opt(uc)
	}
	return uc
}
