package dep2p

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-dep2p-swarm/config"
	"github.com/dep2p/go-dep2p-swarm/internal/core/connmgr"
	"github.com/dep2p/go-dep2p-swarm/internal/core/eventbus"
	"github.com/dep2p/go-dep2p-swarm/internal/core/identity"
	"github.com/dep2p/go-dep2p-swarm/internal/core/peermgr"
	"github.com/dep2p/go-dep2p-swarm/internal/core/pnet"
	"github.com/dep2p/go-dep2p-swarm/internal/core/policy"
	"github.com/dep2p/go-dep2p-swarm/internal/core/resolver"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security/noise"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security/plaintext"
	"github.com/dep2p/go-dep2p-swarm/internal/core/swarm"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport/quic"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport/tcp"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport/websocket"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

var fxLogger = log.Logger("dep2p/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. Identity → EventBus → Policy → ConnMgr
//  2. Transport → Security → PNet → Resolver
//  3. Swarm → PeerManager / AutoDialer
func buildFxApp(cfg *nodeConfig, node *Node) (*fx.App, error) {
	c := cfg.config
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	keyType, err := crypto.ParseKeyType(c.Identity.KeyType)
	if err != nil {
		return nil, err
	}

	// ════════════════════════════════════════════════════════════════════════
	// 1. 基础组件
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(c),
		fx.Supply(&identity.Config{
			KeyType:      keyType,
			KeyFile:      c.Identity.KeyFile,
			AutoGenerate: c.Identity.AutoGenerate,
			PrivateKey:   cfg.privateKey,
		}),
		identity.Module(),
		eventbus.Module,
		policy.Module,
		fx.Invoke(applyPolicy),
		connmgr.Module,
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 传输与安全
	// ════════════════════════════════════════════════════════════════════════
	if c.Transport.EnableTCP {
		modules = append(modules, fx.Provide(asTransport(tcp.New)))
	}
	if c.Transport.EnableWebSocket {
		modules = append(modules, fx.Provide(asTransport(websocket.New)))
	}
	if c.Transport.EnableQUIC {
		modules = append(modules, fx.Provide(asTransport(quic.New)))
	}
	modules = append(modules, transport.Module)

	// 协商顺序与 group 注册顺序一致
	if c.Security.EnableNoise {
		modules = append(modules, fx.Provide(asSecurity(noise.New)))
	}
	if c.Security.EnablePlaintext {
		modules = append(modules, fx.Provide(asSecurity(plaintext.New)))
	}

	modules = append(modules,
		fx.Provide(fx.Annotated{
			Name:   "pnet_key_file",
			Target: func() string { return c.Security.PSKFile },
		}),
		pnet.Module,
	)

	if c.Swarm.EnableDNS {
		modules = append(modules,
			resolver.Module,
			fx.Decorate(decorateResolverConfig(c.Swarm)),
		)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 连接群与节点管理
	// ════════════════════════════════════════════════════════════════════════
	if c.Metrics.Enabled {
		modules = append(modules, fx.Provide(func() prometheus.Registerer {
			return node.registry
		}))
	}
	modules = append(modules,
		fx.Provide(
			provideSwarmConfig,
			providePeerManagerConfig,
			provideAutoDialerConfig,
		),
		swarm.Module,
		peermgr.Module,
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展与组件注入
	// ════════════════════════════════════════════════════════════════════════
	if len(cfg.userFxOptions) > 0 {
		modules = append(modules, cfg.userFxOptions...)
	}
	modules = append(modules,
		fx.Populate(&node.swarm, &node.peerMgr, &node.autoDialer),
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	fxLogger.Debug("Fx 应用已组装", "modules", len(modules))
	return fx.New(modules...), nil
}

// asTransport 将传输构造函数注册到 transports 组
func asTransport(ctor interface{}) interface{} {
	return fx.Annotate(ctor,
		fx.As(new(transport.Transport)),
		fx.ResultTags(`group:"transports"`),
	)
}

// asSecurity 将安全传输构造函数注册到 security 组
func asSecurity(ctor interface{}) interface{} {
	return fx.Annotate(ctor,
		fx.As(new(security.Transport)),
		fx.ResultTags(`group:"security"`),
	)
}

// ════════════════════════════════════════════════════════════════════════════
// 配置转换
// ════════════════════════════════════════════════════════════════════════════

func provideSwarmConfig(c *config.Config) *swarm.Config {
	sc := swarm.DefaultConfig()
	sc.TransportTimeout = c.Transport.DialTimeout.Duration()
	sc.NegotiationTimeout = c.Security.NegotiateTimeout.Duration()
	if c.Swarm.AgentVersion != "" {
		sc.AgentVersion = c.Swarm.AgentVersion
	}
	if c.Swarm.ProtocolVersion != "" {
		sc.ProtocolVersion = c.Swarm.ProtocolVersion
	}
	return sc
}

func providePeerManagerConfig(c *config.Config) *peermgr.Config {
	return &peermgr.Config{
		InitialBackoff:          c.PeerManager.InitialBackoff.Duration(),
		MaxBackoff:              c.PeerManager.MaxBackoff.Duration(),
		MaxConcurrentReconnects: c.PeerManager.MaxConcurrentReconnects,
	}
}

func provideAutoDialerConfig(c *config.Config) *peermgr.AutoDialerConfig {
	ac := peermgr.DefaultAutoDialerConfig()
	ac.DialTimeout = c.Transport.DialTimeout.Duration()
	if !c.AutoDialer.Enabled {
		// 下限为 0 时从不触发
		ac.MinConnections = 0
		return ac
	}
	ac.MinConnections = c.AutoDialer.MinConnections
	ac.MaxAttempts = c.AutoDialer.MaxAttempts
	ac.RetryInterval = c.AutoDialer.RetryInterval.Duration()
	ac.DialRate = rate.Limit(c.AutoDialer.DialRate)
	ac.DialBurst = c.AutoDialer.DialBurst
	return ac
}

func decorateResolverConfig(sc config.SwarmConfig) func(resolver.Config) resolver.Config {
	return func(rc resolver.Config) resolver.Config {
		if len(sc.DNSServers) > 0 {
			rc.Servers = append([]string(nil), sc.DNSServers...)
		}
		if sc.DNSCacheTTL > 0 {
			rc.CacheTTL = sc.DNSCacheTTL.Duration()
		}
		return rc
	}
}

// applyPolicy 将配置中的黑白名单写入策略
func applyPolicy(c *config.Config, p *policy.Policy) error {
	add := func(list *policy.AddressList, filters []string) error {
		for _, s := range filters {
			addr, err := ma.NewMultiaddr(s)
			if err != nil {
				return fmt.Errorf("policy filter %q: %w", s, err)
			}
			list.Add(addr)
		}
		return nil
	}
	if err := add(p.BlackList(), c.Policy.BlackList); err != nil {
		return err
	}
	return add(p.WhiteList(), c.Policy.WhiteList)
}
