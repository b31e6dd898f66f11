package plan

import "go.uber.org/fx"

var Module = fx.Module("plan",
	fx.Provide(NewRepository),
)
