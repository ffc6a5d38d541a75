package transport

import (
	"context"

	"go.uber.org/fx"
)

// Params 由 Fx 注入的传输组
type Params struct {
	fx.In
	Transports []Transport `group:"transports"`
}

// Module 传输注册表 Fx 模块
//
// 具体传输通过 fx.Annotate(..., fx.ResultTags(`group:"transports"`)) 提供。
var Module = fx.Module("transport",
	fx.Provide(func(p Params) (*Registry, error) {
		return NewRegistry(p.Transports...)
	}),
	fx.Invoke(func(lc fx.Lifecycle, r *Registry) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return r.Close()
			},
		})
	}),
)
