package swarm

import (
	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// 订阅方式：
//
//	sub, _ := bus.Subscribe(new(swarm.EvtPeerDiscovered))
//	for e := range sub.Out() {
//	    evt := e.(swarm.EvtPeerDiscovered)
//	}

// EvtListenerEstablished 开始监听
type EvtListenerEstablished struct {
	// Addrs 实际监听地址，带 /p2p/<本地 ID>
	Addrs []ma.Multiaddr
}

// EvtConnectionEstablished 新连接成为该节点的权威连接
type EvtConnectionEstablished struct {
	Conn *peerconn.PeerConnection
}

// EvtPeerDiscovered 注册表中出现新节点，每个节点只触发一次
type EvtPeerDiscovered struct {
	Peer *types.Peer
}

// EvtPeerDisconnected 节点的权威连接已断开
type EvtPeerDisconnected struct {
	Peer *types.Peer
}

// EvtPeerRemoved 节点从注册表移除
type EvtPeerRemoved struct {
	Peer *types.Peer
}

// EvtPeerNotReachable 连接节点失败
type EvtPeerNotReachable struct {
	Peer *types.Peer
	Err  error
}
