package resolver

import "go.uber.org/fx"

// Module fx 模块
var Module = fx.Module("resolver",
	fx.Provide(
		DefaultConfig,
		New,
	),
)
