package identify

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security/plaintext"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	pb "github.com/dep2p/go-dep2p-swarm/pkg/lib/proto/identify"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

type node struct {
	peer *types.Peer
	sec  security.Transport
}

func newNode(t *testing.T, addrs ...string) node {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	id, err := types.IDFromPublicKey(pub)
	require.NoError(t, err)
	sec, err := plaintext.New(priv)
	require.NoError(t, err)
	info := types.PeerInfo{ID: id, PublicKey: pub}
	for _, a := range addrs {
		info.Addrs = append(info.Addrs, ma.StringCast(a))
	}
	return node{peer: types.NewPeer(info), sec: sec}
}

// connect 建立已握手的连接对，返回 a 侧出站连接与 b 侧入站连接
func connect(t *testing.T, a, b node) (*peerconn.PeerConnection, *peerconn.PeerConnection) {
	t.Helper()
	c1, c2 := net.Pipe()
	out := peerconn.New(peerconn.Params{
		Direction:  peerconn.DirOutbound,
		LocalPeer:  a.peer,
		RemotePeer: types.NewPeer(types.PeerInfo{ID: b.peer.ID()}),
		Conn:       c1,
		RemoteAddr: ma.StringCast("/ip4/10.0.0.2/tcp/4001"),
		Security:   []security.Transport{a.sec},
	})
	in := peerconn.New(peerconn.Params{
		Direction:  peerconn.DirInbound,
		LocalPeer:  b.peer,
		Conn:       c2,
		RemoteAddr: ma.StringCast("/ip4/10.0.0.1/tcp/5555"),
		Security:   []security.Transport{b.sec},
	})
	t.Cleanup(func() {
		out.Close()
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
	return out, in
}

// TestService_Identify 测试身份交换
func TestService_Identify(t *testing.T) {
	a := newNode(t)
	b := newNode(t, "/ip4/10.0.0.2/tcp/4001", "/ip4/127.0.0.1/tcp/4001")
	out, in := connect(t, a, b)

	svc, err := New(b.peer,
		WithAgentVersion("test-agent/1.0"),
		WithProtocols(func() []string { return []string{ProtocolID, "/echo/1.0.0"} }))
	require.NoError(t, err)
	in.AddProtocols(svc)

	client, err := New(a.peer)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := client.Identify(ctx, out)
	require.NoError(t, err)

	assert.Equal(t, b.peer.ID(), info.ID)
	assert.True(t, crypto.KeyEqual(b.peer.PublicKey(), info.PublicKey))
	assert.Equal(t, "test-agent/1.0", info.AgentVersion)
	assert.Equal(t, DefaultProtocolVersion, info.ProtocolVersion)
	require.Len(t, info.Addrs, 2)
	for _, addr := range info.Addrs {
		assert.Equal(t, string(b.peer.ID()), ma.GetPeerID(addr))
	}

	t.Log("✅ identify 交换成功")
}

// TestService_IdentifyMismatch 测试对端 ID 不符
func TestService_IdentifyMismatch(t *testing.T) {
	a, b, c := newNode(t), newNode(t), newNode(t)
	out, in := connect(t, a, b)

	// b 冒充 c 的公钥
	svc, err := New(c.peer)
	require.NoError(t, err)
	in.AddProtocols(svc)

	client, err := New(a.peer)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = client.Identify(ctx, out)
	assert.ErrorIs(t, err, ErrPeerIDMismatch)
}

// TestService_NotSupported 测试对端未挂载 identify
func TestService_NotSupported(t *testing.T) {
	a, b := newNode(t), newNode(t)
	out, _ := connect(t, a, b)

	client, err := New(a.peer)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = client.Identify(ctx, out)
	var notSupported *peerconn.ProtocolNotSupportedError
	assert.ErrorAs(t, err, &notSupported)
}

// TestParse 测试消息解析
func TestParse(t *testing.T) {
	_, err := parse(&pb.Identify{})
	assert.ErrorIs(t, err, ErrMissingPublicKey)

	_, err = parse(&pb.Identify{PublicKey: []byte{1, 2, 3}})
	assert.Error(t, err)

	n := newNode(t)
	raw, err := crypto.MarshalPublicKey(n.peer.PublicKey())
	require.NoError(t, err)
	info, err := parse(&pb.Identify{
		PublicKey:   raw,
		ListenAddrs: [][]byte{ma.StringCast("/ip4/1.2.3.4/tcp/1").Bytes(), {0xff, 0xff}},
	})
	require.NoError(t, err)
	assert.Equal(t, n.peer.ID(), info.ID)
	require.Len(t, info.Addrs, 1, "无效地址被跳过")

	_, err = New(types.NewPeer(types.PeerInfo{ID: n.peer.ID()}))
	assert.ErrorIs(t, err, ErrNoLocalKey)
}
