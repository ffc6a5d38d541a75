package identity

import (
	"errors"
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var logger = log.Logger("core/identity")

// Config 身份配置
type Config struct {
	// KeyType 新生成密钥的类型
	KeyType crypto.KeyType

	// KeyFile 密钥文件路径，为空时只在内存中生成
	KeyFile string

	// AutoGenerate 密钥文件不存在时是否生成并保存
	AutoGenerate bool

	// PrivateKey 直接注入的私钥，优先于 KeyFile
	PrivateKey crypto.PrivateKey
}

// DefaultConfig 默认配置：内存中的 Ed25519 临时身份
func DefaultConfig() Config {
	return Config{
		KeyType:      crypto.KeyTypeEd25519,
		AutoGenerate: true,
	}
}

// LoadOrGenerate 按配置加载或生成私钥
//
// 优先级：PrivateKey > KeyFile > AutoGenerate。
func LoadOrGenerate(cfg Config) (crypto.PrivateKey, error) {
	if cfg.PrivateKey != nil {
		return cfg.PrivateKey, nil
	}

	if cfg.KeyFile != "" {
		priv, err := LoadPrivateKeyPEM(cfg.KeyFile)
		if err == nil {
			logger.Debug("已加载身份", "file", cfg.KeyFile)
			return priv, nil
		}
		if !errors.Is(err, ErrKeyNotFound) || !cfg.AutoGenerate {
			return nil, fmt.Errorf("加载身份失败: %w", err)
		}
	}
	if !cfg.AutoGenerate {
		return nil, ErrNoIdentity
	}

	priv, _, err := crypto.GenerateKeyPair(cfg.KeyType)
	if err != nil {
		return nil, fmt.Errorf("创建身份失败: %w", err)
	}
	if cfg.KeyFile != "" {
		if err := SavePrivateKeyPEM(priv, cfg.KeyFile); err != nil {
			return nil, fmt.Errorf("保存身份失败: %w", err)
		}
		logger.Info("已生成并保存新身份", "file", cfg.KeyFile)
	}
	return priv, nil
}

// ============================================================================
//                              Fx 模块
// ============================================================================

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *Config `optional:"true"`
}

// ModuleOutput 模块输出服务
type ModuleOutput struct {
	fx.Out

	PrivKey crypto.PrivateKey
	PeerID  types.PeerID
}

// ProvideServices 加载身份并派生 PeerID
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := DefaultConfig()
	if input.Config != nil {
		cfg = *input.Config
	}
	priv, err := LoadOrGenerate(cfg)
	if err != nil {
		return ModuleOutput{}, err
	}
	id, err := types.IDFromPrivateKey(priv)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{PrivKey: priv, PeerID: id}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideServices),
	)
}
