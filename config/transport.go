package config

import (
	"errors"
	"fmt"
	"time"
)

// TransportConfig 传输层配置
type TransportConfig struct {
	// ListenAddrs 监听地址
	ListenAddrs []string `json:"listen_addrs" toml:"listen_addrs"`

	// EnableTCP 是否启用 TCP
	EnableTCP bool `json:"enable_tcp" toml:"enable_tcp"`

	// EnableWebSocket 是否启用 WebSocket（/ws）
	EnableWebSocket bool `json:"enable_websocket" toml:"enable_websocket"`

	// EnableQUIC 是否启用 QUIC（/quic-v1）
	EnableQUIC bool `json:"enable_quic" toml:"enable_quic"`

	// DialTimeout 一次地址竞速的总超时
	DialTimeout Duration `json:"dial_timeout" toml:"dial_timeout"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddrs: []string{
			"/ip4/0.0.0.0/tcp/4001",
			"/ip4/0.0.0.0/tcp/4002/ws",
		},
		EnableTCP:       true,
		EnableWebSocket: true,
		EnableQUIC:      false,
		DialTimeout:     Duration(30 * time.Second),
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if !c.EnableTCP && !c.EnableWebSocket && !c.EnableQUIC {
		return errors.New("transport: at least one transport must be enabled")
	}
	if c.DialTimeout <= 0 {
		return errors.New("transport: dial timeout must be positive")
	}
	if err := validateAddrs(c.ListenAddrs); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	return nil
}
