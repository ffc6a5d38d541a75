package connmgr

import (
	"context"

	"go.uber.org/fx"
)

// Module 连接管理器 Fx 模块
var Module = fx.Module("connmgr",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Manager *Manager
}

// registerLifecycle 停止时关闭全部连接
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			input.Manager.Clear()
			return nil
		},
	})
}
