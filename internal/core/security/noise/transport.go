// Package noise 实现 /noise 安全传输
//
// Noise XX 握手（25519, ChaChaPoly, SHA256）：
//
//	-> e
//	<- e, ee, s, es, payload
//	-> s, se, payload
//
// payload 携带身份公钥与 Sign("noise-libp2p-static-key:" + 静态 DH 公钥)，
// 将每次连接新生成的静态 DH 密钥绑定到节点身份。
// 握手后每条消息以 2 字节大端长度为前缀。
package noise

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var logger = log.Logger("core/security/noise")

// ID 协议标识
const ID = "/noise"

// Transport Noise 安全传输
type Transport struct {
	key crypto.PrivateKey
	id  types.PeerID
}

var _ security.Transport = (*Transport)(nil)

// New 创建 Noise 传输
func New(key crypto.PrivateKey) (*Transport, error) {
	if key == nil {
		return nil, security.ErrNilPrivateKey
	}
	id, err := types.IDFromPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return &Transport{key: key, id: id}, nil
}

// ID 返回协议标识
func (t *Transport) ID() string {
	return ID
}

// SecureOutbound 作为发起方握手
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, remote types.PeerID) (security.Conn, error) {
	return t.secure(ctx, conn, remote, true)
}

// SecureInbound 作为响应方握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn) (security.Conn, error) {
	return t.secure(ctx, conn, types.EmptyPeerID, false)
}

func (t *Transport) secure(ctx context.Context, conn net.Conn, remote types.PeerID, initiator bool) (security.Conn, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
		defer conn.SetDeadline(time.Time{})
	}

	sc, err := t.handshake(conn, remote, initiator)
	if err != nil {
		logger.Debug("Noise 握手失败",
			"initiator", initiator,
			"remotePeer", log.TruncateID(string(remote), 8),
			"error", err)
		return nil, fmt.Errorf("noise handshake: %w", err)
	}

	logger.Debug("Noise 握手成功",
		"initiator", initiator,
		"remotePeer", log.TruncateID(string(sc.remote), 8))
	return sc, nil
}
