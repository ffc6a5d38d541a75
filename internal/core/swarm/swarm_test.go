package swarm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-swarm/internal/core/eventbus"
	"github.com/dep2p/go-dep2p-swarm/internal/core/mplex"
	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security/plaintext"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport/memory"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport/tcp"
	"github.com/dep2p/go-dep2p-swarm/internal/protocol/identify"
	"github.com/dep2p/go-dep2p-swarm/internal/protocol/ping"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

func newKey(t *testing.T) crypto.PrivateKey {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	return priv
}

func newPeerID(t *testing.T) types.PeerID {
	t.Helper()
	id, err := types.IDFromPrivateKey(newKey(t))
	require.NoError(t, err)
	return id
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.TransportTimeout = 5 * time.Second
	cfg.NegotiationTimeout = 5 * time.Second
	return cfg
}

// newSwarm 创建使用内存传输与明文安全传输的 Swarm
func newSwarm(t *testing.T, opts ...Option) *Swarm {
	t.Helper()
	priv := newKey(t)
	sec, err := plaintext.New(priv)
	require.NoError(t, err)

	base := []Option{
		WithConfig(testConfig()),
		WithTransports(memory.New()),
		WithSecurity(sec),
	}
	s, err := NewSwarm(priv, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// listen 在自动分配的内存地址上监听
func listen(t *testing.T, s *Swarm) ma.Multiaddr {
	t.Helper()
	addrs, err := s.Listen(ma.StringCast("/memory/0"))
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	return addrs[0]
}

func subscribe(t *testing.T, bus *eventbus.Bus, evt interface{}) *eventbus.Subscription {
	t.Helper()
	sub, err := bus.Subscribe(evt, eventbus.BufSize(16))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sub.Close()
	})
	return sub
}

func nextEvent(t *testing.T, sub *eventbus.Subscription) interface{} {
	t.Helper()
	select {
	case e := <-sub.Out():
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("等待事件超时")
		return nil
	}
}

func noEvent(t *testing.T, sub *eventbus.Subscription) {
	t.Helper()
	select {
	case e := <-sub.Out():
		t.Fatalf("不应收到事件: %#v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================================
//                              构造与配置
// ============================================================================

// TestConfig_Validate 测试配置校验
func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.TransportTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.NegotiationTimeout = -time.Second
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := NewSwarm(newKey(t), WithConfig(nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// TestNewSwarm 测试默认构造
func TestNewSwarm(t *testing.T) {
	_, err := NewSwarm(nil)
	assert.ErrorIs(t, err, ErrNilPrivateKey)

	priv := newKey(t)
	s, err := NewSwarm(priv)
	require.NoError(t, err)
	defer s.Close()

	id, err := types.IDFromPrivateKey(priv)
	require.NoError(t, err)
	assert.Equal(t, id, s.LocalPeer().ID())
	assert.NotNil(t, s.LocalPeer().PublicKey())

	// 默认传输与安全传输
	assert.True(t, s.transports.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001")))
	assert.True(t, s.transports.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001/ws")))
	require.Len(t, s.security, 1)
	assert.Equal(t, "/noise", s.security[0].ID())

	// identify 与 ping 始终挂载
	assert.Equal(t, []string{identify.ProtocolID, ping.ProtocolID}, s.Protocols())

	t.Log("✅ 默认构造成功")
}

// TestDialError 测试聚合错误
func TestDialError(t *testing.T) {
	id := newPeerID(t)
	cause := errors.New("refused")

	e := &DialError{Peer: id}
	assert.Contains(t, e.Error(), "unknown error")

	e = &DialError{Peer: id, Errors: []error{cause}}
	assert.Contains(t, e.Error(), string(id))
	assert.ErrorIs(t, e, cause)

	e = &DialError{Peer: id, Errors: []error{errors.New("a"), ErrNoAddresses}}
	assert.Contains(t, e.Error(), "2 errors")
	assert.ErrorIs(t, e, ErrNoAddresses)
}

// ============================================================================
//                              节点注册表
// ============================================================================

// TestSwarm_RegisterPeer 测试注册与合并
func TestSwarm_RegisterPeer(t *testing.T) {
	s := newSwarm(t)
	sub := subscribe(t, s.EventBus(), new(EvtPeerDiscovered))

	_, err := s.RegisterPeer(types.PeerInfo{})
	assert.ErrorIs(t, err, ErrEmptyPeerID)
	_, err = s.RegisterPeer(types.PeerInfo{ID: s.LocalPeer().ID()})
	assert.ErrorIs(t, err, ErrRegisterSelf)

	id := newPeerID(t)
	a1 := ma.StringCast("/ip4/10.0.0.1/tcp/4001/p2p/" + string(id))
	a2 := ma.StringCast("/ip4/10.0.0.2/tcp/4001/p2p/" + string(id))

	p, err := s.RegisterPeer(types.PeerInfo{ID: id, Addrs: []ma.Multiaddr{a1}, AgentVersion: "old"})
	require.NoError(t, err)
	evt := nextEvent(t, sub).(EvtPeerDiscovered)
	assert.Same(t, p, evt.Peer)

	// 再次注册：合并地址，非空字段覆盖，不再触发发现事件
	again, err := s.RegisterPeer(types.PeerInfo{ID: id, Addrs: []ma.Multiaddr{a2, a1}, AgentVersion: "new"})
	require.NoError(t, err)
	assert.Same(t, p, again)
	assert.Len(t, p.Addrs(), 2)
	assert.Equal(t, "new", p.AgentVersion())
	noEvent(t, sub)

	// 空字段不覆盖
	_, err = s.RegisterPeer(types.PeerInfo{ID: id})
	require.NoError(t, err)
	assert.Equal(t, "new", p.AgentVersion())

	got, ok := s.Peer(id)
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Len(t, s.KnownPeers(), 1)

	t.Log("✅ 注册与合并符合规则")
}

// TestSwarm_RegisterAddress 测试按地址注册
func TestSwarm_RegisterAddress(t *testing.T) {
	s := newSwarm(t)
	id := newPeerID(t)

	p, err := s.RegisterAddress(ma.StringCast("/memory/42/p2p/" + string(id)))
	require.NoError(t, err)
	assert.Equal(t, id, p.ID())
	assert.Len(t, p.Addrs(), 1)

	_, err = s.RegisterAddress(ma.StringCast("/memory/42"))
	assert.Error(t, err)
}

// TestSwarm_RegisterPeerPolicy 测试被策略拒绝的节点不会注册
func TestSwarm_RegisterPeerPolicy(t *testing.T) {
	s := newSwarm(t)
	banned := newPeerID(t)
	s.BlackList().Add(ma.StringCast("/p2p/" + string(banned)))
	s.BlackList().Add(ma.StringCast("/ip4/10.9.9.9"))

	_, err := s.RegisterPeer(types.PeerInfo{ID: banned})
	assert.ErrorIs(t, err, ErrPeerNotAllowed)

	other := newPeerID(t)
	_, err = s.RegisterPeer(types.PeerInfo{
		ID:    other,
		Addrs: []ma.Multiaddr{ma.StringCast("/ip4/10.9.9.9/tcp/1")},
	})
	assert.ErrorIs(t, err, ErrPeerNotAllowed)
	assert.Empty(t, s.KnownPeers())

	assert.False(t, s.IsAllowed(ma.StringCast("/ip4/10.9.9.9/tcp/1")))
	assert.True(t, s.IsAllowed(ma.StringCast("/ip4/10.0.0.1/tcp/1")))
	assert.False(t, s.IsPeerAllowed(types.NewPeer(types.PeerInfo{ID: banned})))
	assert.Equal(t, 0, s.WhiteList().Len())
}

// TestSwarm_DeregisterPeer 测试移除节点
func TestSwarm_DeregisterPeer(t *testing.T) {
	s := newSwarm(t)
	sub := subscribe(t, s.EventBus(), new(EvtPeerRemoved))

	id := newPeerID(t)
	p, err := s.RegisterPeer(types.PeerInfo{ID: id})
	require.NoError(t, err)

	s.DeregisterPeer(id)
	evt := nextEvent(t, sub).(EvtPeerRemoved)
	assert.Same(t, p, evt.Peer)
	_, ok := s.Peer(id)
	assert.False(t, ok)
	assert.Empty(t, s.KnownPeers())
}

// ============================================================================
//                              监听
// ============================================================================

// TestSwarm_Listen 测试监听地址登记与撤销
func TestSwarm_Listen(t *testing.T) {
	s := newSwarm(t)
	sub := subscribe(t, s.EventBus(), new(EvtListenerEstablished))

	laddr := ma.StringCast("/memory/0")
	addrs, err := s.Listen(laddr)
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, string(s.LocalPeer().ID()), ma.GetPeerID(addrs[0]))
	assert.NotEqual(t, "/memory/0", ma.WithoutPeerID(addrs[0]).String(), "端口 0 应被替换")
	assert.True(t, ma.Contains(s.LocalPeer().Addrs(), addrs[0]))
	assert.True(t, ma.Contains(s.ListenAddresses(), addrs[0]))

	evt := nextEvent(t, sub).(EvtListenerEstablished)
	assert.Equal(t, addrs, evt.Addrs)

	_, err = s.Listen(laddr)
	assert.ErrorIs(t, err, ErrAlreadyListening)

	require.NoError(t, s.StopListening(laddr))
	assert.Empty(t, s.ListenAddresses())
	assert.False(t, ma.Contains(s.LocalPeer().Addrs(), addrs[0]))
	require.NoError(t, s.StopListening(laddr), "重复停止")

	// 停止后可以重新监听
	again, err := s.Listen(laddr)
	require.NoError(t, err)

	// 也可以按实际地址停止
	require.NoError(t, s.StopListening(again[0]))
	assert.Empty(t, s.ListenAddresses())

	_, err = s.Listen(ma.StringCast("/ip4/127.0.0.1/udp/1"))
	assert.ErrorIs(t, err, transport.ErrNoTransport)

	t.Log("✅ 监听地址登记与撤销正确")
}

// TestSwarm_ListenUnspecified 测试未指定 IP 展开为接口地址
func TestSwarm_ListenUnspecified(t *testing.T) {
	s := newSwarm(t, WithTransports(tcp.New()))

	addrs, err := s.Listen(ma.StringCast("/ip4/0.0.0.0/tcp/0"))
	require.NoError(t, err)
	require.NotEmpty(t, addrs)
	for _, a := range addrs {
		assert.False(t, ma.IsIPUnspecified(a), "addr %s", a)
		assert.NotEqual(t, "0", mustValue(t, a, ma.P_TCP))
		assert.Equal(t, string(s.LocalPeer().ID()), ma.GetPeerID(a))
	}
}

func mustValue(t *testing.T, a ma.Multiaddr, code int) string {
	t.Helper()
	v, err := a.ValueForProtocol(code)
	require.NoError(t, err)
	return v
}

// ============================================================================
//                              协议表
// ============================================================================

func echoProtocol(name string) peerconn.Protocol {
	return peerconn.ProtocolFunc{
		Name: name,
		Handler: func(ctx context.Context, conn *peerconn.PeerConnection, s *mplex.Substream) error {
			_, err := io.Copy(s, s)
			return err
		},
	}
}

// TestSwarm_Protocols 测试协议表增删
func TestSwarm_Protocols(t *testing.T) {
	s := newSwarm(t)

	s.AddProtocol(echoProtocol("/echo/1.0.0"))
	assert.Equal(t, []string{"/echo/1.0.0", identify.ProtocolID, ping.ProtocolID}, s.Protocols())

	// 同名替换
	s.AddProtocol(echoProtocol("/echo/1.0.0"))
	assert.Len(t, s.Protocols(), 3)

	s.RemoveProtocol("/echo/1.0.0")
	assert.Equal(t, []string{identify.ProtocolID, ping.ProtocolID}, s.Protocols())
	s.RemoveProtocol("/missing/1.0.0")
	assert.Len(t, s.Protocols(), 2)
}

// TestSwarm_Close 测试关闭
func TestSwarm_Close(t *testing.T) {
	s := newSwarm(t)
	addr := listen(t, s)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Empty(t, s.ListenAddresses())
	_, err := s.Listen(ma.StringCast("/memory/0"))
	assert.ErrorIs(t, err, ErrSwarmClosed)
	_, err = s.Connect(context.Background(), types.PeerInfo{ID: newPeerID(t)})
	assert.ErrorIs(t, err, ErrSwarmClosed)
	_, err = s.ConnectAddress(context.Background(), addr)
	assert.ErrorIs(t, err, ErrSwarmClosed)
}

// TestSwarm_RegisterAfterClose 测试关闭后完成握手的连接被丢弃
func TestSwarm_RegisterAfterClose(t *testing.T) {
	s := newSwarm(t)
	require.NoError(t, s.Close())

	conn := peerconn.New(peerconn.Params{
		Direction:  peerconn.DirOutbound,
		RemotePeer: types.NewPeer(types.PeerInfo{ID: newPeerID(t)}),
	})
	got, err := s.register(conn)
	assert.ErrorIs(t, err, ErrSwarmClosed)
	assert.Nil(t, got)
	assert.False(t, conn.IsActive())
	assert.Equal(t, 0, s.ConnectionCount())
}
