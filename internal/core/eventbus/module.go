package eventbus

import "go.uber.org/fx"

// Module 事件总线 fx 模块
var Module = fx.Module("eventbus",
	fx.Provide(NewBus),
)
