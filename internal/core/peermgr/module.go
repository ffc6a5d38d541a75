package peermgr

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-dep2p-swarm/internal/core/swarm"
)

// Params 节点管理依赖参数
type Params struct {
	fx.In

	Swarm      *swarm.Swarm
	Config     *Config           `optional:"true"`
	AutoDialer *AutoDialerConfig `optional:"true"`
}

// Result 节点管理输出
type Result struct {
	fx.Out

	Manager    *Manager
	AutoDialer *AutoDialer
}

// Module 节点管理 Fx 模块
var Module = fx.Module("peermgr",
	fx.Provide(ProvideServices),
	fx.Invoke(registerLifecycle),
)

// ProvideServices 创建节点管理器与自动拨号器
func ProvideServices(p Params) (Result, error) {
	m, err := New(p.Swarm, p.Config)
	if err != nil {
		return Result{}, err
	}
	a, err := NewAutoDialer(p.Swarm, p.AutoDialer)
	if err != nil {
		return Result{}, err
	}
	return Result{Manager: m, AutoDialer: a}, nil
}

type lifecycleInput struct {
	fx.In

	LC         fx.Lifecycle
	Manager    *Manager
	AutoDialer *AutoDialer
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := input.Manager.Start(ctx); err != nil {
				return err
			}
			return input.AutoDialer.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			_ = input.AutoDialer.Stop()
			return input.Manager.Stop()
		},
	})
}
