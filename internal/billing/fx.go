package billing

import (
	"github.com/boardstack/boardstack/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(NewGateway),
	fx.Provide(func(cfg config.Config) *Verifier {
		return NewVerifier(cfg.Billing.WebhookSecret)
	}),
)
