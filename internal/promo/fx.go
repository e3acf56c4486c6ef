package promo

import (
	"github.com/smallbiznis/qpayrelay/internal/promo/repository"
	"github.com/smallbiznis/qpayrelay/internal/promo/service"
	"go.uber.org/fx"
)

var Module = fx.Module("promo.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
