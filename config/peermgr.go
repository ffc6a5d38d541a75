package config

import (
	"errors"
	"time"
)

// PeerManagerConfig 节点管理配置
type PeerManagerConfig struct {
	// InitialBackoff 首次失败后的退避
	InitialBackoff Duration `json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff 退避上限，超过后节点永久失效
	MaxBackoff Duration `json:"max_backoff" toml:"max_backoff"`

	// MaxConcurrentReconnects 一轮重连的最大并发数
	MaxConcurrentReconnects int `json:"max_concurrent_reconnects" toml:"max_concurrent_reconnects"`
}

// DefaultPeerManagerConfig 返回默认节点管理配置
func DefaultPeerManagerConfig() PeerManagerConfig {
	return PeerManagerConfig{
		InitialBackoff:          Duration(time.Minute),
		MaxBackoff:              Duration(64 * time.Minute),
		MaxConcurrentReconnects: 10,
	}
}

// Validate 验证节点管理配置
func (c PeerManagerConfig) Validate() error {
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return errors.New("peer_manager: backoff must satisfy 0 < initial <= max")
	}
	if c.MaxConcurrentReconnects <= 0 {
		return errors.New("peer_manager: max concurrent reconnects must be positive")
	}
	return nil
}

// AutoDialerConfig 自动拨号配置
type AutoDialerConfig struct {
	// Enabled 是否启用
	Enabled bool `json:"enabled" toml:"enabled"`

	// MinConnections 连接数低于该值时自动拨号
	MinConnections int `json:"min_connections" toml:"min_connections"`

	// MaxAttempts 断开后最多尝试的节点数
	MaxAttempts int `json:"max_attempts" toml:"max_attempts"`

	// RetryInterval 两次尝试之间的等待
	RetryInterval Duration `json:"retry_interval" toml:"retry_interval"`

	// DialRate 每秒最多发起的自动拨号数
	DialRate float64 `json:"dial_rate" toml:"dial_rate"`

	// DialBurst 拨号突发上限
	DialBurst int `json:"dial_burst" toml:"dial_burst"`
}

// DefaultAutoDialerConfig 返回默认自动拨号配置
func DefaultAutoDialerConfig() AutoDialerConfig {
	return AutoDialerConfig{
		Enabled:        true,
		MinConnections: 16,
		MaxAttempts:    3,
		RetryInterval:  Duration(time.Second),
		DialRate:       10,
		DialBurst:      4,
	}
}

// Validate 验证自动拨号配置
func (c AutoDialerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MinConnections < 0 || c.MaxAttempts < 0 || c.RetryInterval < 0 {
		return errors.New("auto_dialer: negative value")
	}
	if c.DialRate <= 0 || c.DialBurst <= 0 {
		return errors.New("auto_dialer: dial rate and burst must be positive")
	}
	return nil
}
