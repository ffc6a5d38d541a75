package peerconn

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var (
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("peerconn: connection closed")

	// ErrProtocolNotRegistered 本地未挂载匹配的协议
	ErrProtocolNotRegistered = errors.New("peerconn: protocol not registered")

	// ErrNoSecurityTransport 未配置安全传输
	ErrNoSecurityTransport = errors.New("peerconn: no security transport")

	// ErrSecurityRejected 对端拒绝安全协议
	ErrSecurityRejected = errors.New("peerconn: security protocol rejected")

	// ErrAlreadyStarted 握手已执行
	ErrAlreadyStarted = errors.New("peerconn: handshake already started")
)

// ProtocolNotSupportedError 对端不支持请求的协议
type ProtocolNotSupportedError struct {
	Peer     types.PeerID
	Protocol string
}

func (e *ProtocolNotSupportedError) Error() string {
	if e.Peer.IsEmpty() {
		return fmt.Sprintf("peer does not support protocol %s", e.Protocol)
	}
	return fmt.Sprintf("peer %s does not support protocol %s", e.Peer, e.Protocol)
}
