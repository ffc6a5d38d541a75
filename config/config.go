// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义。
// 支持从 JSON 或 TOML 文件加载，时长字段接受 "30s" 形式的字符串。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Transport.EnableQUIC = true
//
//	// 从文件加载（按扩展名选择 JSON 或 TOML）
//	cfg, err := config.Load("dep2p.toml")
package config

import (
	"errors"
	"fmt"

	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// ErrNilConfig 配置为空
var ErrNilConfig = errors.New("config is nil")

// KnownPeer 已知节点配置
//
// 启动后直接连接这些节点。
type KnownPeer struct {
	// PeerID 目标节点的 Peer ID
	PeerID string `json:"peer_id" toml:"peer_id"`

	// Addrs 目标节点的地址列表，例如 "/ip4/1.2.3.4/tcp/4001"
	Addrs []string `json:"addrs" toml:"addrs"`
}

// Config 是 DEP2P 的完整配置结构
//
// 配置按照功能模块组织：
//   - Identity: 身份和密钥
//   - Transport: 传输协议与监听地址
//   - Security: 安全传输与私有网络
//   - Swarm: 拨号、协商与地址解析
//   - Policy: 黑白名单
//   - PeerManager / AutoDialer: 重连与自动拨号
//   - Log / Metrics: 日志与指标
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity" toml:"identity"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport" toml:"transport"`

	// Security 安全传输配置
	Security SecurityConfig `json:"security" toml:"security"`

	// Swarm 连接群配置
	Swarm SwarmConfig `json:"swarm" toml:"swarm"`

	// Policy 准入策略
	Policy PolicyConfig `json:"policy" toml:"policy"`

	// PeerManager 节点管理配置
	PeerManager PeerManagerConfig `json:"peer_manager" toml:"peer_manager"`

	// AutoDialer 自动拨号配置
	AutoDialer AutoDialerConfig `json:"auto_dialer" toml:"auto_dialer"`

	// Log 日志配置
	Log LogConfig `json:"log" toml:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics" toml:"metrics"`

	// KnownPeers 已知节点列表
	KnownPeers []KnownPeer `json:"known_peers,omitempty" toml:"known_peers,omitempty"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:    DefaultIdentityConfig(),
		Transport:   DefaultTransportConfig(),
		Security:    DefaultSecurityConfig(),
		Swarm:       DefaultSwarmConfig(),
		Policy:      DefaultPolicyConfig(),
		PeerManager: DefaultPeerManagerConfig(),
		AutoDialer:  DefaultAutoDialerConfig(),
		Log:         DefaultLogConfig(),
		Metrics:     DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Security.Validate(); err != nil {
		return err
	}
	if err := c.Swarm.Validate(); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if err := c.PeerManager.Validate(); err != nil {
		return err
	}
	if err := c.AutoDialer.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	for i, kp := range c.KnownPeers {
		if kp.PeerID == "" {
			return fmt.Errorf("known_peers[%d]: peer_id is required", i)
		}
		if err := validateAddrs(kp.Addrs); err != nil {
			return fmt.Errorf("known_peers[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAddrs(addrs []string) error {
	for _, s := range addrs {
		if _, err := ma.NewMultiaddr(s); err != nil {
			return fmt.Errorf("invalid multiaddr %q: %w", s, err)
		}
	}
	return nil
}
