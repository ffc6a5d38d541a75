package pnet

import "errors"

var (
	// ErrInvalidKeyFile 密钥文件格式错误
	ErrInvalidKeyFile = errors.New("pnet: invalid key file")

	// ErrNilKey 未提供密钥
	ErrNilKey = errors.New("pnet: nil key")
)
