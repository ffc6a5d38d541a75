package swarm

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-dep2p-swarm/internal/core/connmgr"
	"github.com/dep2p/go-dep2p-swarm/internal/core/eventbus"
	"github.com/dep2p/go-dep2p-swarm/internal/core/pnet"
	"github.com/dep2p/go-dep2p-swarm/internal/core/policy"
	"github.com/dep2p/go-dep2p-swarm/internal/core/resolver"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
)

// Params Swarm 依赖参数
type Params struct {
	fx.In

	PrivKey crypto.PrivateKey
	Config  *Config `optional:"true"`

	Transports *transport.Registry  `optional:"true"`
	Security   []security.Transport `group:"security"` // value groups 不能设置 optional
	Protector  pnet.Protector       `optional:"true"`
	Resolver   *resolver.Resolver   `optional:"true"`
	Routing    PeerRouting          `optional:"true"`

	EventBus   *eventbus.Bus         `optional:"true"`
	Policy     *policy.Policy        `optional:"true"`
	ConnMgr    *connmgr.Manager      `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Module Swarm Fx 模块
var Module = fx.Module("swarm",
	fx.Provide(NewFromParams),
	fx.Invoke(registerLifecycle),
)

// NewFromParams 从 Fx 参数创建 Swarm
func NewFromParams(p Params) (*Swarm, error) {
	opts := []Option{
		WithEventBus(p.EventBus),
		WithPolicy(p.Policy),
		WithConnManager(p.ConnMgr),
		WithProtector(p.Protector),
		WithRouting(p.Routing),
		WithMetrics(p.Registerer),
	}
	if p.Config != nil {
		opts = append(opts, WithConfig(p.Config))
	}
	if p.Transports != nil {
		opts = append(opts, WithTransportRegistry(p.Transports))
	}
	if len(p.Security) > 0 {
		opts = append(opts, WithSecurity(p.Security...))
	}
	// 避免 nil 指针包装成非 nil 接口
	if p.Resolver != nil {
		opts = append(opts, WithResolver(p.Resolver))
	}
	return NewSwarm(p.PrivKey, opts...)
}

type lifecycleInput struct {
	fx.In

	LC    fx.Lifecycle
	Swarm *Swarm
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return input.Swarm.Close()
		},
	})
}
