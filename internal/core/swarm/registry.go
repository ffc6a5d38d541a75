package swarm

import (
	"fmt"

	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// RegisterPeer 注册节点，已知节点按合并规则更新
//
// 新节点触发一次 EvtPeerDiscovered。返回注册表中的规范记录。
func (s *Swarm) RegisterPeer(info types.PeerInfo) (*types.Peer, error) {
	if info.ID == types.EmptyPeerID {
		return nil, ErrEmptyPeerID
	}
	if info.ID == s.localPeer.ID() {
		return nil, ErrRegisterSelf
	}
	if !s.policy.IsPeerAllowed(types.NewPeer(info)) {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotAllowed, info.ID)
	}

	s.peersMu.Lock()
	if v, ok := s.peers.Load(info.ID); ok {
		p := v.(*types.Peer)
		p.Merge(info)
		s.peersMu.Unlock()
		return p, nil
	}
	p := types.NewPeer(info)
	s.peers.Store(info.ID, p)
	s.peersMu.Unlock()

	logger.Debug("发现新节点",
		"peer", log.TruncateID(string(p.ID()), 8),
		"addrs", len(p.Addrs()))
	s.emitEvent(s.emit.peerDiscovered, EvtPeerDiscovered{Peer: p})
	return p, nil
}

// RegisterAddress 注册地址中 /p2p/<id> 指明的节点
func (s *Swarm) RegisterAddress(addr ma.Multiaddr) (*types.Peer, error) {
	info, err := types.PeerInfoFromAddr(addr)
	if err != nil {
		return nil, err
	}
	return s.RegisterPeer(info)
}

// DeregisterPeer 从注册表移除节点并触发 EvtPeerRemoved
//
// 不会断开已有连接。
func (s *Swarm) DeregisterPeer(id types.PeerID) {
	v, ok := s.peers.LoadAndDelete(id)
	p, _ := v.(*types.Peer)
	if !ok {
		p = types.NewPeer(types.PeerInfo{ID: id})
	}
	logger.Debug("节点已移除", "peer", log.TruncateID(string(id), 8))
	s.emitEvent(s.emit.peerRemoved, EvtPeerRemoved{Peer: p})
}

// Peer 查找已注册节点
func (s *Swarm) Peer(id types.PeerID) (*types.Peer, bool) {
	v, ok := s.peers.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*types.Peer), true
}

// KnownPeers 全部已注册节点
func (s *Swarm) KnownPeers() []*types.Peer {
	var out []*types.Peer
	s.peers.Range(func(_, v any) bool {
		out = append(out, v.(*types.Peer))
		return true
	})
	return out
}

// onDisconnected 权威连接断开
func (s *Swarm) onDisconnected(conn *peerconn.PeerConnection) {
	s.metrics.connections.Dec()

	p, ok := s.Peer(conn.RemotePeerID())
	if !ok {
		p = conn.RemotePeer()
	}
	if p == nil {
		return
	}
	logger.Debug("节点已断开",
		"peer", log.TruncateID(string(p.ID()), 8),
		"conn", conn.ID())
	s.emitEvent(s.emit.peerDisconnected, EvtPeerDisconnected{Peer: p})
}
