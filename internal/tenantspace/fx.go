package tenantspace

import "go.uber.org/fx"

var Module = fx.Module("tenantspace",
	fx.Provide(NewManager),
)
