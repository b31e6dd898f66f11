package board

import "go.uber.org/fx"

var Module = fx.Module("board",
	fx.Provide(NewService),
)
