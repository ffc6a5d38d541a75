package connmgr

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

func newPeerID(t *testing.T) types.PeerID {
	t.Helper()
	_, pub, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	id, err := types.IDFromPublicKey(pub)
	require.NoError(t, err)
	return id
}

// newConn 创建指向 id 的连接（无底层传输）
func newConn(id types.PeerID) *peerconn.PeerConnection {
	return peerconn.New(peerconn.Params{
		Direction:  peerconn.DirOutbound,
		RemotePeer: types.NewPeer(types.PeerInfo{ID: id}),
	})
}

// TestManager_Add 测试每个节点只保留一条权威连接
func TestManager_Add(t *testing.T) {
	m := New()
	id := newPeerID(t)

	first := newConn(id)
	assert.Same(t, first, m.Add(first))
	assert.Same(t, first, m.Add(first))

	second := newConn(id)
	assert.Same(t, first, m.Add(second))
	assert.False(t, second.IsActive(), "重复连接应被关闭")
	assert.True(t, first.IsActive())
	assert.Equal(t, 1, m.Count())

	got, ok := m.TryGet(id)
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.True(t, m.IsConnected(id))

	t.Log("✅ 重复连接被拒绝")
}

// TestManager_Disconnect 测试连接关闭后移除并回调一次
func TestManager_Disconnect(t *testing.T) {
	m := New()
	var fired atomic.Int32
	m.OnDisconnected(func(*peerconn.PeerConnection) {
		fired.Add(1)
	})

	id := newPeerID(t)
	c := newConn(id)
	m.Add(c)

	require.NoError(t, c.Close())
	_ = c.Close()

	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, m.IsConnected(id))
	_, ok := m.TryGet(id)
	assert.False(t, ok)

	// 断开后新连接可以注册
	c2 := newConn(id)
	assert.Same(t, c2, m.Add(c2))
	assert.True(t, m.IsConnected(id))
}

// TestManager_DuplicateCloseNoCallback 测试被拒绝的重复连接关闭时不触发回调
func TestManager_DuplicateCloseNoCallback(t *testing.T) {
	m := New()
	var fired atomic.Int32
	m.OnDisconnected(func(*peerconn.PeerConnection) {
		fired.Add(1)
	})

	id := newPeerID(t)
	m.Add(newConn(id))
	m.Add(newConn(id))

	assert.Equal(t, int32(0), fired.Load())
	assert.True(t, m.IsConnected(id))
}

// TestManager_Remove 测试移除关闭连接
func TestManager_Remove(t *testing.T) {
	m := New()
	var fired atomic.Int32
	m.OnDisconnected(func(*peerconn.PeerConnection) {
		fired.Add(1)
	})

	id := newPeerID(t)
	c := newConn(id)
	m.Add(c)

	assert.True(t, m.Remove(id))
	assert.False(t, c.IsActive())
	assert.False(t, m.Remove(id))
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, m.Count())
}

// TestManager_Clear 测试清空
func TestManager_Clear(t *testing.T) {
	m := New()
	conns := make([]*peerconn.PeerConnection, 5)
	for i := range conns {
		conns[i] = newConn(newPeerID(t))
		m.Add(conns[i])
	}
	assert.Equal(t, 5, m.Count())
	assert.Len(t, m.Connections(), 5)

	m.Clear()
	assert.Equal(t, 0, m.Count())
	for _, c := range conns {
		assert.False(t, c.IsActive())
	}
}

// TestManager_ConcurrentAdd 测试并发注册同一节点
func TestManager_ConcurrentAdd(t *testing.T) {
	m := New()
	id := newPeerID(t)

	const n = 16
	results := make([]*peerconn.PeerConnection, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Add(newConn(id))
		}(i)
	}
	wg.Wait()

	winner, ok := m.TryGet(id)
	require.True(t, ok)
	for _, r := range results {
		assert.Same(t, winner, r)
	}
	assert.True(t, winner.IsActive())
	assert.Equal(t, 1, m.Count())

	t.Log("✅ 并发注册只保留一条连接")
}
