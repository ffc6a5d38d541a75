package identity

import "errors"

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrInvalidPEM 无效的 PEM 数据
	ErrInvalidPEM = errors.New("invalid PEM data")

	// ErrKeyNotFound 密钥文件不存在
	ErrKeyNotFound = errors.New("key not found")

	// ErrNoIdentity 未配置密钥文件且不允许自动生成
	ErrNoIdentity = errors.New("no identity: key file not set and auto generate disabled")
)
