package peerconn

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-swarm/internal/core/mplex"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security/plaintext"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type node struct {
	peer *types.Peer
	sec  security.Transport
}

func newNode(t *testing.T) node {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	id, err := types.IDFromPublicKey(pub)
	require.NoError(t, err)
	sec, err := plaintext.New(priv)
	require.NoError(t, err)
	return node{peer: types.NewPeer(types.PeerInfo{ID: id, PublicKey: pub}), sec: sec}
}

func echoProtocol(name string) Protocol {
	return ProtocolFunc{
		Name: name,
		Handler: func(ctx context.Context, conn *PeerConnection, s *mplex.Substream) error {
			_, err := io.Copy(s, s)
			return err
		},
	}
}

// newConns 创建未握手的连接对
func newConns(t *testing.T, a, b node) (*PeerConnection, *PeerConnection) {
	c1, c2 := net.Pipe()
	out := New(Params{
		Direction:  DirOutbound,
		LocalPeer:  a.peer,
		RemotePeer: types.NewPeer(types.PeerInfo{ID: b.peer.ID()}),
		Conn:       c1,
		Security:   []security.Transport{a.sec},
	})
	in := New(Params{
		Direction: DirInbound,
		LocalPeer: b.peer,
		Conn:      c2,
		Security:  []security.Transport{b.sec},
	})
	t.Cleanup(func() {
		out.Close()
		in.Close()
	})
	return out, in
}

// newPair 创建已握手的连接对
func newPair(t *testing.T) (*PeerConnection, *PeerConnection) {
	t.Helper()
	a, b := newNode(t), newNode(t)
	out, in := newConns(t, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- in.Respond(ctx)
	}()
	require.NoError(t, out.Initiate(ctx))
	require.NoError(t, <-errCh)
	return out, in
}

// ============================================================================
//                              信号
// ============================================================================

// TestSignal 测试一次性信号
func TestSignal(t *testing.T) {
	s := NewSignal[int]()
	assert.False(t, s.IsSet())
	assert.NoError(t, s.Err())

	assert.True(t, s.Complete(42))
	assert.False(t, s.Complete(1))
	assert.False(t, s.Break(errors.New("late")))

	v, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	broken := NewSignal[string]()
	cause := errors.New("boom")
	assert.True(t, broken.Break(cause))
	assert.False(t, broken.Complete("x"))
	_, err = broken.Wait(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, broken.Err(), cause)

	pending := NewSignal[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ============================================================================
//                              版本排序
// ============================================================================

// TestSortByVersion 测试按版本降序
func TestSortByVersion(t *testing.T) {
	names := []string{"/echo/1.0.0", "/echo/1.10.0", "/echo/1.2.0", "/echo/beta"}
	SortByVersion(names)
	assert.Equal(t, []string{"/echo/beta", "/echo/1.10.0", "/echo/1.2.0", "/echo/1.0.0"}, names)

	cands := candidates([]string{"/ipfs/ping/1.0.0", "/ipfs/id/1.0.0", "/ipfs/id/1.1.0"}, "/ipfs/id/")
	assert.Equal(t, []string{"/ipfs/id/1.1.0", "/ipfs/id/1.0.0"}, cands)

	assert.Equal(t, []string{"/ipfs/ping/1.0.0"}, candidates([]string{"/ipfs/ping/1.0.0"}, "/ipfs/ping/1.0.0"))
	assert.Empty(t, candidates([]string{"/ipfs/ping/1.0.0"}, "/ipfs/id"))
}

// ============================================================================
//                              握手
// ============================================================================

// TestPeerConnection_Handshake 测试握手信号
func TestPeerConnection_Handshake(t *testing.T) {
	out, in := newPair(t)

	for _, c := range []*PeerConnection{out, in} {
		assert.True(t, c.SecurityEstablished().IsSet())
		assert.NoError(t, c.SecurityEstablished().Err())
		mux, err := c.MuxerEstablished().Wait(context.Background())
		require.NoError(t, err)
		assert.Same(t, c.Muxer(), mux)
		assert.False(t, c.IdentityEstablished().IsSet())
		assert.NotNil(t, c.SecureConn())
		assert.True(t, c.IsActive())
	}

	assert.Equal(t, in.LocalPeer().ID(), out.RemotePeerID())
	assert.Equal(t, out.LocalPeer().ID(), in.RemotePeerID())
	assert.NotNil(t, in.RemotePeer().PublicKey())
	assert.NotEqual(t, out.ID(), in.ID())
	assert.Equal(t, DirOutbound, out.Direction())
	assert.Equal(t, DirInbound, in.Direction())

	// 不能重复握手
	assert.ErrorIs(t, out.Initiate(context.Background()), ErrAlreadyStarted)

	t.Log("✅ 握手完成")
}

// TestPeerConnection_NewStream 测试子流协议协商与回显
func TestPeerConnection_NewStream(t *testing.T) {
	out, in := newPair(t)
	in.AddProtocols(echoProtocol("/echo/1.0.0"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := out.NewStream(ctx, "/echo/1.0.0")
	require.NoError(t, err)

	_, err = s.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, s.CloseWrite())

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = out.NewStream(ctx, "/missing/1.0.0")
	var notSupported *ProtocolNotSupportedError
	require.ErrorAs(t, err, &notSupported)
	assert.Equal(t, in.LocalPeer().ID(), notSupported.Peer)

	t.Log("✅ 子流回显成功")
}

// TestPeerConnection_EstablishProtocol 测试按版本选择协议
func TestPeerConnection_EstablishProtocol(t *testing.T) {
	out, in := newPair(t)
	out.AddProtocols(echoProtocol("/echo/1.0.0"), echoProtocol("/echo/2.0.0"))
	in.AddProtocols(echoProtocol("/echo/1.0.0"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := out.Muxer().CreateStream(ctx, "")
	require.NoError(t, err)
	proto, err := out.EstablishProtocol(ctx, "/echo/", s)
	require.NoError(t, err)
	assert.Equal(t, "/echo/1.0.0", proto)

	_, err = out.EstablishProtocol(ctx, "/nothing/", s)
	assert.ErrorIs(t, err, ErrProtocolNotRegistered)

	// 对端全部拒绝
	out.AddProtocols(echoProtocol("/only-local/1.0.0"))
	s2, err := out.Muxer().CreateStream(ctx, "")
	require.NoError(t, err)
	_, err = out.EstablishProtocol(ctx, "/only-local/", s2)
	var notSupported *ProtocolNotSupportedError
	assert.ErrorAs(t, err, &notSupported)
}

// TestPeerConnection_Protocols 测试协议表
func TestPeerConnection_Protocols(t *testing.T) {
	c := New(Params{})
	c.AddProtocols(echoProtocol("/b/1.0.0"), echoProtocol("/a/1.0.0"))
	assert.Equal(t, []string{"/a/1.0.0", "/b/1.0.0"}, c.Protocols())
	c.RemoveProtocol("/a/1.0.0")
	assert.Equal(t, []string{"/b/1.0.0"}, c.Protocols())
}

type rejectedTransport struct{}

func (rejectedTransport) ID() string { return "/unsupported/1.0.0" }

func (rejectedTransport) SecureOutbound(context.Context, net.Conn, types.PeerID) (security.Conn, error) {
	return nil, errors.New("unreachable")
}

func (rejectedTransport) SecureInbound(context.Context, net.Conn) (security.Conn, error) {
	return nil, errors.New("unreachable")
}

// TestPeerConnection_SecurityRejected 测试对端拒绝所有安全协议
func TestPeerConnection_SecurityRejected(t *testing.T) {
	a, b := newNode(t), newNode(t)
	a.sec = rejectedTransport{}
	out, in := newConns(t, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- in.Respond(ctx)
	}()

	err := out.Initiate(ctx)
	assert.ErrorIs(t, err, ErrSecurityRejected)
	assert.Error(t, <-errCh)

	// 所有信号被中断，连接关闭
	assert.False(t, out.IsActive())
	assert.Error(t, out.SecurityEstablished().Err())
	assert.Error(t, out.MuxerEstablished().Err())
	assert.Error(t, out.IdentityEstablished().Err())
	assert.False(t, in.IsActive())
}

// TestPeerConnection_HandshakeTimeout 测试对端无响应时握手超时
func TestPeerConnection_HandshakeTimeout(t *testing.T) {
	a, b := newNode(t), newNode(t)
	out, _ := newConns(t, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := out.Initiate(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded), "err: %v", err)
	assert.False(t, out.IsActive())
}

// TestPeerConnection_Close 测试关闭级联与回调
func TestPeerConnection_Close(t *testing.T) {
	out, in := newPair(t)
	in.AddProtocols(echoProtocol("/echo/1.0.0"))

	var hooks atomic.Int32
	out.Notify(func(*PeerConnection) {
		hooks.Add(1)
	})

	s, err := out.NewStream(context.Background(), "/echo/1.0.0")
	require.NoError(t, err)

	require.NoError(t, out.Close())
	_ = out.Close()
	assert.Equal(t, int32(1), hooks.Load())
	assert.False(t, out.IsActive())

	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	// 对端读循环退出后也会关闭
	select {
	case <-in.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("对端未关闭")
	}

	// 关闭后注册的回调立即执行
	out.Notify(func(*PeerConnection) {
		hooks.Add(1)
	})
	assert.Equal(t, int32(2), hooks.Load())

	_, err = out.NewStream(context.Background(), "/echo/1.0.0")
	assert.Error(t, err)
}

type countingConn struct {
	net.Conn
	closes atomic.Int32
}

func (c *countingConn) Close() error {
	if c.closes.Add(1) > 1 {
		return net.ErrClosed
	}
	return c.Conn.Close()
}

// TestPeerConnection_CloseOnce 测试关闭已挂载复用器的连接只关闭底层连接一次
func TestPeerConnection_CloseOnce(t *testing.T) {
	a, b := newNode(t), newNode(t)
	p1, p2 := net.Pipe()
	raw := &countingConn{Conn: p1}

	out := New(Params{
		Direction:  DirOutbound,
		LocalPeer:  a.peer,
		RemotePeer: types.NewPeer(types.PeerInfo{ID: b.peer.ID()}),
		Conn:       raw,
		Security:   []security.Transport{a.sec},
	})
	in := New(Params{
		Direction: DirInbound,
		LocalPeer: b.peer,
		Conn:      p2,
		Security:  []security.Transport{b.sec},
	})
	t.Cleanup(func() {
		in.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- in.Respond(ctx)
	}()
	require.NoError(t, out.Initiate(ctx))
	require.NoError(t, <-errCh)

	require.NoError(t, out.Close())
	assert.Equal(t, int32(1), raw.closes.Load())

	t.Log("✅ 底层连接只关闭一次")
}
