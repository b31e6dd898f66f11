package provisioning

import "go.uber.org/fx"

var Module = fx.Module("provisioning",
	fx.Provide(New),
)
