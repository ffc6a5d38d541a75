// Package connmgr 维护节点到连接的映射
//
// 每个对端节点最多一条权威连接：重复连接以先到者为准，后到者被关闭。
// 已注册的连接关闭后自动移出映射，并触发一次断开回调。
package connmgr

import (
	"sync"

	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var logger = log.Logger("core/connmgr")

// DisconnectFunc 连接断开回调
type DisconnectFunc func(conn *peerconn.PeerConnection)

// Manager 连接管理器
type Manager struct {
	// conns types.PeerID -> *peerconn.PeerConnection
	conns sync.Map

	// mu 串行化复合操作（查找并替换）
	mu sync.Mutex

	cbMu         sync.RWMutex
	onDisconnect []DisconnectFunc
}

// New 创建连接管理器
func New() *Manager {
	return &Manager{}
}

// OnDisconnected 注册断开回调
//
// 回调在关闭连接的 goroutine 中同步执行，不应阻塞。
func (m *Manager) OnDisconnected(fn DisconnectFunc) {
	m.cbMu.Lock()
	m.onDisconnect = append(m.onDisconnect, fn)
	m.cbMu.Unlock()
}

// Add 注册连接，返回该节点的权威连接
//
// 已有活跃连接时保留旧连接并关闭 conn；否则 conn 成为权威连接。
// 调用方通过比较返回值与 conn 判断新连接是否生效。
func (m *Manager) Add(conn *peerconn.PeerConnection) *peerconn.PeerConnection {
	id := conn.RemotePeerID()

	m.mu.Lock()
	if v, ok := m.conns.Load(id); ok {
		existing := v.(*peerconn.PeerConnection)
		if existing == conn {
			m.mu.Unlock()
			return existing
		}
		if existing.IsActive() {
			m.mu.Unlock()
			logger.Debug("已存在活跃连接，关闭重复连接",
				"peer", log.TruncateID(string(id), 8),
				"existing", existing.ID(),
				"duplicate", conn.ID())
			_ = conn.Close()
			return existing
		}
		// 旧连接正在关闭，其关闭回调尚未执行
		if m.conns.CompareAndDelete(id, existing) {
			defer m.fireDisconnected(existing)
		}
	}
	m.conns.Store(id, conn)
	m.mu.Unlock()

	conn.Notify(m.connClosed)

	logger.Debug("连接已注册",
		"peer", log.TruncateID(string(id), 8),
		"conn", conn.ID(),
		"direction", conn.Direction())
	return conn
}

// connClosed 连接关闭回调，仅当 c 仍是权威连接时移除
func (m *Manager) connClosed(c *peerconn.PeerConnection) {
	if m.conns.CompareAndDelete(c.RemotePeerID(), c) {
		m.fireDisconnected(c)
	}
}

func (m *Manager) fireDisconnected(c *peerconn.PeerConnection) {
	logger.Debug("连接已断开",
		"peer", log.TruncateID(string(c.RemotePeerID()), 8),
		"conn", c.ID())

	m.cbMu.RLock()
	cbs := make([]DisconnectFunc, len(m.onDisconnect))
	copy(cbs, m.onDisconnect)
	m.cbMu.RUnlock()

	for _, fn := range cbs {
		fn(c)
	}
}

// TryGet 获取节点的连接
func (m *Manager) TryGet(id types.PeerID) (*peerconn.PeerConnection, bool) {
	v, ok := m.conns.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*peerconn.PeerConnection), true
}

// IsConnected 是否存在到该节点的活跃连接
func (m *Manager) IsConnected(id types.PeerID) bool {
	c, ok := m.TryGet(id)
	return ok && c.IsActive()
}

// Remove 移除并关闭节点的连接
//
// 返回是否存在该连接。
func (m *Manager) Remove(id types.PeerID) bool {
	v, ok := m.conns.LoadAndDelete(id)
	if !ok {
		return false
	}
	c := v.(*peerconn.PeerConnection)
	_ = c.Close()
	m.fireDisconnected(c)
	return true
}

// Clear 移除并关闭全部连接
func (m *Manager) Clear() {
	m.conns.Range(func(key, _ any) bool {
		m.Remove(key.(types.PeerID))
		return true
	})
}

// Connections 当前全部连接
func (m *Manager) Connections() []*peerconn.PeerConnection {
	var out []*peerconn.PeerConnection
	m.conns.Range(func(_, v any) bool {
		out = append(out, v.(*peerconn.PeerConnection))
		return true
	})
	return out
}

// Count 连接数
func (m *Manager) Count() int {
	n := 0
	m.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
