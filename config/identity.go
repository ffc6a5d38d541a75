package config

import (
	"fmt"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
)

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyType 密钥类型
	// 可选值: "Ed25519", "Secp256k1"
	KeyType string `json:"key_type" toml:"key_type"`

	// KeyFile 密钥文件路径
	// 为空时在内存中生成临时密钥
	KeyFile string `json:"key_file" toml:"key_file"`

	// AutoGenerate 密钥文件不存在时是否自动生成
	AutoGenerate bool `json:"auto_generate" toml:"auto_generate"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		KeyType:      "Ed25519",
		AutoGenerate: true,
	}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	if _, err := crypto.ParseKeyType(c.KeyType); err != nil {
		return fmt.Errorf("identity: key type %q: %w", c.KeyType, err)
	}
	return nil
}
