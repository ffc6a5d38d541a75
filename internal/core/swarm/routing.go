package swarm

import (
	"context"

	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

//go:generate mockgen -destination=mocks/routing.go -package=mocks . PeerRouting,Resolver

// PeerRouting 节点路由
//
// 仅在注册表中没有节点地址时使用。
type PeerRouting interface {
	FindPeer(ctx context.Context, id types.PeerID) (types.PeerInfo, error)
}

// Resolver 地址解析，将 /dns* 地址展开为具体传输地址
type Resolver interface {
	Resolve(ctx context.Context, addr ma.Multiaddr) ([]ma.Multiaddr, error)
}
