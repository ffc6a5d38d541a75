// Package plaintext 实现 /plaintext/2.0.0 安全传输
//
// 双方交换节点 ID 与公钥并校验二者一致，不加密。仅用于测试与受信网络。
package plaintext

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mr-tron/base58"

	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/proto"
	pb "github.com/dep2p/go-dep2p-swarm/pkg/lib/proto/plaintext"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// ID 协议标识
const ID = "/plaintext/2.0.0"

// Transport 明文安全传输
type Transport struct {
	key crypto.PrivateKey
	id  types.PeerID
}

var _ security.Transport = (*Transport)(nil)

// New 创建明文安全传输
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

// SecureOutbound 出站握手
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, remote types.PeerID) (security.Conn, error) {
	return t.handshake(ctx, conn, remote)
}

// SecureInbound 入站握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn) (security.Conn, error) {
	return t.handshake(ctx, conn, types.EmptyPeerID)
}

func (t *Transport) handshake(ctx context.Context, conn net.Conn, remote types.PeerID) (security.Conn, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
		defer conn.SetDeadline(time.Time{})
	}

	idBytes, err := base58.Decode(string(t.id))
	if err != nil {
		return nil, err
	}
	pubBytes, err := crypto.MarshalPublicKey(t.key.GetPublic())
	if err != nil {
		return nil, err
	}
	local := (&pb.Exchange{ID: idBytes, Pubkey: pubBytes}).Marshal()

	// 同时读写，避免同步管道上的双向写死锁
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- proto.WriteDelimited(conn, local)
	}()

	msg, err := proto.ReadDelimited(conn, 0)
	if err != nil {
		return nil, fmt.Errorf("read exchange: %w", err)
	}
	if err := <-writeErr; err != nil {
		return nil, fmt.Errorf("write exchange: %w", err)
	}

	var ex pb.Exchange
	if err := ex.Unmarshal(msg); err != nil {
		return nil, err
	}
	pub, err := crypto.UnmarshalPublicKey(ex.Pubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", security.ErrInvalidPublicKey, err)
	}
	id, err := security.VerifyRemote(pub, remote)
	if err != nil {
		return nil, err
	}
	if base58.Encode(ex.ID) != string(id) {
		return nil, security.ErrPeerIDMismatch
	}

	return &plainConn{Conn: conn, local: t.id, remote: id, remoteKey: pub}, nil
}

// plainConn 握手后的连接，读写直接透传
type plainConn struct {
	net.Conn
	local     types.PeerID
	remote    types.PeerID
	remoteKey crypto.PublicKey
}

func (c *plainConn) LocalPeer() types.PeerID {
	return c.local
}

func (c *plainConn) RemotePeer() types.PeerID {
	return c.remote
}

func (c *plainConn) RemotePublicKey() crypto.PublicKey {
	return c.remoteKey
}
