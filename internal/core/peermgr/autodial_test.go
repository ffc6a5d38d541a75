package peermgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-dep2p-swarm/internal/core/swarm"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

func testDialerConfig() *AutoDialerConfig {
	cfg := DefaultAutoDialerConfig()
	cfg.MinConnections = 2
	cfg.MaxAttempts = 2
	cfg.DialRate = rate.Inf
	cfg.DialTimeout = 5 * time.Second
	return cfg
}

func startDialer(t *testing.T, net Network, cfg *AutoDialerConfig, clk clock.Clock) *AutoDialer {
	t.Helper()
	a, err := NewAutoDialer(net, cfg, WithAutoDialerClock(clk))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		_ = a.Stop()
	})
	return a
}

// TestAutoDialer_Discovered 测试连接不足时拨号新发现的节点
func TestAutoDialer_Discovered(t *testing.T) {
	net := newFakeNetwork()
	startDialer(t, net, testDialerConfig(), clock.NewMock())

	em, err := net.bus.Emitter(new(swarm.EvtPeerDiscovered))
	require.NoError(t, err)
	defer em.Close()

	p1, p2, p3 := newPeer(t), newPeer(t), newPeer(t)
	require.NoError(t, em.Emit(swarm.EvtPeerDiscovered{Peer: p1}))
	require.Eventually(t, func() bool { return net.IsConnected(p1.ID()) }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, em.Emit(swarm.EvtPeerDiscovered{Peer: p2}))
	require.Eventually(t, func() bool { return net.IsConnected(p2.ID()) }, 5*time.Second, 10*time.Millisecond)

	// 已达到下限，不再拨号
	require.NoError(t, em.Emit(swarm.EvtPeerDiscovered{Peer: p3}))
	time.Sleep(100 * time.Millisecond)
	assert.False(t, net.IsConnected(p3.ID()))
	assert.Equal(t, 2, net.connectCount())

	t.Log("✅ 连接数达到下限后停止自动拨号")
}

// TestAutoDialer_Disconnected 测试断开后依次尝试未连接节点
func TestAutoDialer_Disconnected(t *testing.T) {
	net := newFakeNetwork()
	net.setConnectErr(errors.New("refused"))
	connected := newPeer(t)
	net.connected[connected.ID()] = true
	net.known = []*types.Peer{connected, newPeer(t), newPeer(t), newPeer(t)}

	clk := clock.NewMock()
	startDialer(t, net, testDialerConfig(), clk)

	em, err := net.bus.Emitter(new(swarm.EvtPeerDisconnected))
	require.NoError(t, err)
	defer em.Close()
	require.NoError(t, em.Emit(swarm.EvtPeerDisconnected{Peer: newPeer(t)}))

	require.Eventually(t, func() bool { return net.connectCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	// 下一次尝试等待 RetryInterval
	require.Eventually(t, func() bool {
		clk.Add(time.Second)
		return net.connectCount() == 2
	}, 5*time.Second, 10*time.Millisecond)

	// 最多尝试 MaxAttempts 个节点
	clk.Add(10 * time.Second)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, net.connectCount())

	net.mu.Lock()
	for _, id := range net.connects {
		assert.NotEqual(t, connected.ID(), id, "已连接节点不重复拨号")
	}
	net.mu.Unlock()
}

// TestAutoDialer_Swarm 测试与 Swarm 协作自动建立连接
func TestAutoDialer_Swarm(t *testing.T) {
	a, b := newSwarm(t), newSwarm(t)
	baddrs, err := b.Listen(ma.StringCast("/memory/0"))
	require.NoError(t, err)

	cfg := DefaultAutoDialerConfig()
	cfg.DialTimeout = 5 * time.Second
	startDialer(t, a, cfg, clock.New())

	_, err = a.RegisterPeer(types.PeerInfo{ID: b.LocalPeer().ID(), Addrs: baddrs})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return a.IsConnected(b.LocalPeer().ID())
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, a.ConnectionCount())

	t.Log("✅ 发现节点后自动连接")
}
