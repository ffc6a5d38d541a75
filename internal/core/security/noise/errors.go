package noise

import "errors"

var (
	// ErrInvalidHandshake 握手消息无效
	ErrInvalidHandshake = errors.New("noise: invalid handshake")

	// ErrInvalidSignature 静态公钥签名无效
	ErrInvalidSignature = errors.New("noise: static key not bound to identity key")

	// ErrFrameTooLarge 帧超过 65535 字节
	ErrFrameTooLarge = errors.New("noise: frame too large")
)
