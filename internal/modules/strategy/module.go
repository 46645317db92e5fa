package strategy

import (
	"go.uber.org/fx"

	"forex_bot/internal/models"
	risk "forex_bot/internal/modules/risk/service"
	"forex_bot/internal/modules/strategy/service"
)

// Factory связывает фабрику стратегий с риск-обёрткой, чтобы раннер
// получал уже защищённый экземпляр.
type Factory struct {
	eval *risk.Evaluator
}

func NewFactory(eval *risk.Evaluator) *Factory {
	return &Factory{eval: eval}
}

// Build собирает стратегию и заворачивает её в риск-гейт.
func (f *Factory) Build(name, userID, pair string, cfg map[string]any, alloc *models.AllocationInfo) (*service.Guarded, error) {
	inner, err := service.New(name, pair, cfg, alloc)
	if err != nil {
		return nil, err
	}
	return service.NewGuarded(inner, f.eval, userID, pair), nil
}

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			NewFactory,
		),
	)
}
