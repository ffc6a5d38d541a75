// Package security 定义安全传输接口
//
// 安全传输在原始连接上完成双向认证与加密，握手后双方都得到对端的
// PeerID 与公钥。出站握手给定期望的对端 ID 时会校验对端身份。
package security

import (
	"context"
	"errors"
	"net"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var (
	// ErrPeerIDMismatch 对端 PeerID 与期望不符
	ErrPeerIDMismatch = errors.New("security: peer ID mismatch")

	// ErrInvalidPublicKey 公钥无效
	ErrInvalidPublicKey = errors.New("security: invalid public key")

	// ErrNilPrivateKey 未提供本地私钥
	ErrNilPrivateKey = errors.New("security: nil private key")
)

// Conn 安全连接
type Conn interface {
	net.Conn

	// LocalPeer 本地节点 ID
	LocalPeer() types.PeerID

	// RemotePeer 对端节点 ID
	RemotePeer() types.PeerID

	// RemotePublicKey 对端公钥
	RemotePublicKey() crypto.PublicKey
}

// Transport 安全传输
type Transport interface {
	// ID 协议标识，如 /noise
	ID() string

	// SecureOutbound 作为发起方握手，remote 为空时不校验对端身份
	SecureOutbound(ctx context.Context, conn net.Conn, remote types.PeerID) (Conn, error)

	// SecureInbound 作为响应方握手
	SecureInbound(ctx context.Context, conn net.Conn) (Conn, error)
}

// VerifyRemote 校验对端公钥与期望 ID 一致，返回派生的 ID
func VerifyRemote(pub crypto.PublicKey, expected types.PeerID) (types.PeerID, error) {
	if pub == nil {
		return types.EmptyPeerID, ErrInvalidPublicKey
	}
	id, err := types.IDFromPublicKey(pub)
	if err != nil {
		return types.EmptyPeerID, errors.Join(ErrInvalidPublicKey, err)
	}
	if expected != types.EmptyPeerID && id != expected {
		return types.EmptyPeerID, ErrPeerIDMismatch
	}
	return id, nil
}
