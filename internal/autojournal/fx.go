package autojournal

import (
	"github.com/smallbiznis/ledgercore/internal/autojournal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("autojournal.service",
	fx.Provide(service.New),
)
