package swarm

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm closed")

	// ErrNoAddresses 没有可用地址
	ErrNoAddresses = errors.New("no addresses")

	// ErrDialToSelf 尝试拨号自己
	ErrDialToSelf = errors.New("dial to self attempted")

	// ErrEmptyPeerID 节点 ID 为空
	ErrEmptyPeerID = errors.New("empty peer id")

	// ErrRegisterSelf 不能注册本地节点
	ErrRegisterSelf = errors.New("cannot register self")

	// ErrPeerNotAllowed 节点被策略拒绝
	ErrPeerNotAllowed = errors.New("peer not allowed by policy")

	// ErrAlreadyListening 地址已在监听
	ErrAlreadyListening = errors.New("already listening")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("invalid config")

	// ErrNilPrivateKey 未提供本地私钥
	ErrNilPrivateKey = errors.New("nil private key")
)

// DialError 拨号错误，包含多个地址的错误信息
type DialError struct {
	Peer   types.PeerID
	Errors []error
}

func (e *DialError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("failed to dial %s: unknown error", e.Peer)
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("failed to dial %s: %v", e.Peer, e.Errors[0])
	}
	return fmt.Sprintf("failed to dial %s: %d errors: %v", e.Peer, len(e.Errors), e.Errors)
}

// Unwrap 返回全部错误
func (e *DialError) Unwrap() []error {
	return e.Errors
}
