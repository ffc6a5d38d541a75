package transport

import "errors"

var (
	// ErrNoTransport 没有可用的传输
	ErrNoTransport = errors.New("transport: no suitable transport for address")

	// ErrInvalidAddress 无效地址
	ErrInvalidAddress = errors.New("transport: invalid multiaddr")

	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("transport: closed")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("transport: listener closed")

	// ErrDuplicateTransport 协议已注册
	ErrDuplicateTransport = errors.New("transport: protocol already registered")
)
