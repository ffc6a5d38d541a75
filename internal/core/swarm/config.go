package swarm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-dep2p-swarm/internal/core/connmgr"
	"github.com/dep2p/go-dep2p-swarm/internal/core/eventbus"
	"github.com/dep2p/go-dep2p-swarm/internal/core/pnet"
	"github.com/dep2p/go-dep2p-swarm/internal/core/policy"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/internal/protocol/identify"
)

// Config Swarm 配置
type Config struct {
	// TransportTimeout 一次拨号竞速的总超时
	TransportTimeout time.Duration

	// NegotiationTimeout 每个握手阶段的超时，也用于 identify
	NegotiationTimeout time.Duration

	// AgentVersion identify 中通告的代理版本
	AgentVersion string

	// ProtocolVersion identify 中通告的协议版本
	ProtocolVersion string
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		TransportTimeout:   30 * time.Second,
		NegotiationTimeout: 30 * time.Second,
		AgentVersion:       identify.DefaultAgentVersion,
		ProtocolVersion:    identify.DefaultProtocolVersion,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.TransportTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.NegotiationTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Option Swarm 选项函数
type Option func(*Swarm) error

// WithConfig 设置配置
func WithConfig(config *Config) Option {
	return func(s *Swarm) error {
		if config == nil {
			return ErrInvalidConfig
		}
		if err := config.Validate(); err != nil {
			return err
		}
		s.cfg = config
		return nil
	}
}

// WithTransports 使用给定传输构建注册表，Close 时由 Swarm 关闭
func WithTransports(ts ...transport.Transport) Option {
	return func(s *Swarm) error {
		reg, err := transport.NewRegistry(ts...)
		if err != nil {
			return err
		}
		s.transports = reg
		s.ownsTransports = true
		return nil
	}
}

// WithTransportRegistry 使用外部注册表，生命周期由调用方管理
func WithTransportRegistry(reg *transport.Registry) Option {
	return func(s *Swarm) error {
		s.transports = reg
		s.ownsTransports = false
		return nil
	}
}

// WithSecurity 设置安全传输，按优先级排列
func WithSecurity(ts ...security.Transport) Option {
	return func(s *Swarm) error {
		s.security = append([]security.Transport(nil), ts...)
		return nil
	}
}

// WithProtector 设置私有网络保护器
func WithProtector(p pnet.Protector) Option {
	return func(s *Swarm) error {
		s.protector = p
		return nil
	}
}

// WithResolver 设置 DNS 地址解析器
func WithResolver(r Resolver) Option {
	return func(s *Swarm) error {
		s.resolver = r
		return nil
	}
}

// WithRouting 设置节点路由
func WithRouting(r PeerRouting) Option {
	return func(s *Swarm) error {
		s.routing = r
		return nil
	}
}

// WithEventBus 使用外部事件总线
func WithEventBus(bus *eventbus.Bus) Option {
	return func(s *Swarm) error {
		if bus != nil {
			s.bus = bus
		}
		return nil
	}
}

// WithPolicy 使用外部黑白名单策略
func WithPolicy(p *policy.Policy) Option {
	return func(s *Swarm) error {
		if p != nil {
			s.policy = p
		}
		return nil
	}
}

// WithConnManager 使用外部连接管理器
func WithConnManager(m *connmgr.Manager) Option {
	return func(s *Swarm) error {
		if m != nil {
			s.manager = m
		}
		return nil
	}
}

// WithMetrics 在 reg 上注册 Prometheus 指标
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Swarm) error {
		s.metricsReg = reg
		return nil
	}
}
