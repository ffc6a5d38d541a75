package peermgr

import (
	"context"

	"github.com/dep2p/go-dep2p-swarm/internal/core/eventbus"
	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/internal/core/policy"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// Network 节点管理依赖的网络能力，由 *swarm.Swarm 实现
type Network interface {
	Connect(ctx context.Context, info types.PeerInfo) (*peerconn.PeerConnection, error)
	DeregisterPeer(id types.PeerID)
	KnownPeers() []*types.Peer
	BlackList() *policy.AddressList
	EventBus() *eventbus.Bus
	ConnectionCount() int
	IsConnected(id types.PeerID) bool
}
