package key

import (
	"github.com/memorybank/keyctl/pkg/config"
	"github.com/memorybank/keyctl/pkg/db"
	"github.com/memorybank/keyctl/services/identity"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("key",
	fx.Provide(
		NewBackend,
		NewService,
	),
)

type BackendParams struct {
	fx.In
	Config *config.Config
	Logger *zap.Logger
}

// NewBackend selects and builds the session's variant once, from
// configuration: explicit mode wins, otherwise API settings beat a
// database DSN. The rest of the engine never learns which one it got.
func NewBackend(p BackendParams) (Backend, error) {
	mode, err := p.Config.Mode()
	if err != nil {
		return nil, err
	}

	switch mode {
	case config.ModeAPI:
		p.Logger.Info("using remote API backend", zap.String("base_url", p.Config.API.BaseURL))
		return NewHTTPBackend(p.Config.API.BaseURL, p.Config.API.Key, p.Config.API.Timeout, p.Logger), nil

	default:
		gdb, err := db.Open(p.Config, db.Dialect(p.Config))
		if err != nil {
			return nil, err
		}

		node, err := snowflake.NewNode(1)
		if err != nil {
			return nil, err
		}

		ids := identity.NewService(gdb, node, p.Logger)
		dsn := p.Config.Database.DSN
		p.Logger.Info("using direct store backend", zap.String("provider", db.Provider(dsn)))
		return NewStoreBackend(gdb, node, ids, dsn, p.Logger), nil
	}
}

var _ Backend = (*HTTPBackend)(nil)
