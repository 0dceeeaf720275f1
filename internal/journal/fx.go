package journal

import (
	"github.com/smallbiznis/ledgercore/internal/journal/repository"
	"github.com/smallbiznis/ledgercore/internal/journal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("journal.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
