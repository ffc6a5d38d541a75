package config

import (
	"errors"
	"time"
)

// SecurityConfig 安全传输配置
//
// 按 Noise、Plaintext 的顺序协商已启用的协议。
type SecurityConfig struct {
	// EnableNoise 是否启用 /noise
	EnableNoise bool `json:"enable_noise" toml:"enable_noise"`

	// EnablePlaintext 是否启用 /plaintext/2.0.0，仅用于测试网络
	EnablePlaintext bool `json:"enable_plaintext" toml:"enable_plaintext"`

	// NegotiateTimeout 每个握手阶段的超时
	NegotiateTimeout Duration `json:"negotiate_timeout" toml:"negotiate_timeout"`

	// PSKFile 私有网络密钥文件，为空时不启用
	PSKFile string `json:"psk_file,omitempty" toml:"psk_file,omitempty"`
}

// DefaultSecurityConfig 返回默认安全配置
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableNoise:      true,
		EnablePlaintext:  false,
		NegotiateTimeout: Duration(30 * time.Second),
	}
}

// Validate 验证安全配置
func (c SecurityConfig) Validate() error {
	if !c.EnableNoise && !c.EnablePlaintext {
		return errors.New("security: at least one security transport must be enabled")
	}
	if c.NegotiateTimeout <= 0 {
		return errors.New("security: negotiate timeout must be positive")
	}
	return nil
}
