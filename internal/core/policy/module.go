package policy

import "go.uber.org/fx"

// Module 策略 Fx 模块
var Module = fx.Module("policy",
	fx.Provide(New),
)
