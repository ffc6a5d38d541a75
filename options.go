package dep2p

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-dep2p-swarm/config"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
)

// Option 用户配置选项函数
type Option func(*nodeConfig) error

// nodeConfig 节点构建参数
type nodeConfig struct {
	config     *config.Config
	privateKey crypto.PrivateKey

	// userFxOptions 追加到 Fx 应用的选项
	userFxOptions []fx.Option
}

func newNodeConfig(opts []Option) (*nodeConfig, error) {
	cfg := &nodeConfig{config: config.NewConfig()}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithConfig 使用完整配置
//
// 应放在其他选项之前，否则会覆盖它们的修改。
func WithConfig(c *config.Config) Option {
	return func(n *nodeConfig) error {
		if c == nil {
			return config.ErrNilConfig
		}
		n.config = c
		return nil
	}
}

// WithConfigFile 从 JSON 或 TOML 文件加载配置
func WithConfigFile(path string) Option {
	return func(n *nodeConfig) error {
		c, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		n.config = c
		return nil
	}
}

// WithListenAddrs 设置监听地址
func WithListenAddrs(addrs ...string) Option {
	return func(n *nodeConfig) error {
		n.config.Transport.ListenAddrs = append([]string(nil), addrs...)
		return nil
	}
}

// WithIdentity 使用指定私钥
func WithIdentity(priv crypto.PrivateKey) Option {
	return func(n *nodeConfig) error {
		if priv == nil {
			return ErrNilIdentity
		}
		n.privateKey = priv
		return nil
	}
}

// WithKeyFile 从密钥文件加载身份，文件不存在时生成
func WithKeyFile(path string) Option {
	return func(n *nodeConfig) error {
		n.config.Identity.KeyFile = path
		n.config.Identity.AutoGenerate = true
		return nil
	}
}

// WithKnownPeers 启动后连接的节点
func WithKnownPeers(peers ...config.KnownPeer) Option {
	return func(n *nodeConfig) error {
		n.config.KnownPeers = append(n.config.KnownPeers, peers...)
		return nil
	}
}

// WithBlackList 追加黑名单过滤地址
func WithBlackList(filters ...string) Option {
	return func(n *nodeConfig) error {
		n.config.Policy.BlackList = append(n.config.Policy.BlackList, filters...)
		return nil
	}
}

// WithWhiteList 追加白名单过滤地址
func WithWhiteList(filters ...string) Option {
	return func(n *nodeConfig) error {
		n.config.Policy.WhiteList = append(n.config.Policy.WhiteList, filters...)
		return nil
	}
}

// WithMetrics 启用 Prometheus 指标，listenAddr 非空时暴露 /metrics
func WithMetrics(listenAddr string) Option {
	return func(n *nodeConfig) error {
		n.config.Metrics.Enabled = true
		n.config.Metrics.ListenAddr = listenAddr
		return nil
	}
}

// WithFxOptions 追加 Fx 选项，用于替换或扩展内部模块
func WithFxOptions(opts ...fx.Option) Option {
	return func(n *nodeConfig) error {
		n.userFxOptions = append(n.userFxOptions, opts...)
		return nil
	}
}
