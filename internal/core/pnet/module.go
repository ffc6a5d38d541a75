package pnet

import (
	"os"

	"go.uber.org/fx"
)

// ModuleParams 模块参数
type ModuleParams struct {
	fx.In

	// KeyFile PSK 密钥文件路径，为空时不启用私有网络
	KeyFile string `name:"pnet_key_file" optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	// Protector 未配置密钥时为 nil
	Protector Protector
}

// ProvideProtector 按密钥文件创建保护器
func ProvideProtector(p ModuleParams) (ModuleOutput, error) {
	if p.KeyFile == "" {
		return ModuleOutput{}, nil
	}
	psk, err := LoadKeyFile(p.KeyFile)
	if err != nil {
		return ModuleOutput{}, err
	}
	prot, err := NewProtector(psk)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Protector: prot}, nil
}

// LoadKeyFile 读取密钥文件
func LoadKeyFile(path string) (*PSK, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeV1(f)
}

// Module fx 模块
var Module = fx.Module("pnet",
	fx.Provide(ProvideProtector),
)
