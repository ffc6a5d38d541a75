package peermgr

import (
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrInvalidConfig 无效配置
var ErrInvalidConfig = errors.New("peermgr: invalid config")

// Config 节点管理配置
type Config struct {
	// InitialBackoff 首次失败后的退避，也是重连检查周期
	InitialBackoff time.Duration

	// MaxBackoff 退避上限，超过后节点视为永久失效
	MaxBackoff time.Duration

	// MaxConcurrentReconnects 一轮重连的最大并发数
	MaxConcurrentReconnects int
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		InitialBackoff:          time.Minute,
		MaxBackoff:              64 * time.Minute,
		MaxConcurrentReconnects: 10,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return ErrInvalidConfig
	}
	if c.MaxConcurrentReconnects <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultMinConnections 自动拨号的默认连接数下限
const DefaultMinConnections = 16

// AutoDialerConfig 自动拨号配置
type AutoDialerConfig struct {
	// MinConnections 连接数低于该值时自动拨号
	MinConnections int

	// MaxAttempts 断开后最多尝试的节点数
	MaxAttempts int

	// RetryInterval 断开后两次尝试之间的等待
	RetryInterval time.Duration

	// DialRate 每秒最多发起的自动拨号数
	DialRate rate.Limit

	// DialBurst 拨号突发上限
	DialBurst int

	// DialTimeout 单次自动拨号超时
	DialTimeout time.Duration
}

// DefaultAutoDialerConfig 默认自动拨号配置
func DefaultAutoDialerConfig() *AutoDialerConfig {
	return &AutoDialerConfig{
		MinConnections: DefaultMinConnections,
		MaxAttempts:    3,
		RetryInterval:  time.Second,
		DialRate:       10,
		DialBurst:      4,
		DialTimeout:    30 * time.Second,
	}
}

// Validate 验证配置
func (c *AutoDialerConfig) Validate() error {
	if c.MinConnections < 0 || c.MaxAttempts < 0 || c.RetryInterval < 0 {
		return ErrInvalidConfig
	}
	if c.DialRate <= 0 || c.DialBurst <= 0 || c.DialTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
