// Package policy 实现基于多地址的黑白名单
//
// 过滤地址 f 覆盖目标地址 t，当且仅当 f 的每个组件（协议和值）都出现在 t 中。
// 地址被允许当且仅当：不被任何黑名单地址覆盖，并且白名单为空或被某个白名单地址覆盖。
package policy

import (
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var logger = log.Logger("core/policy")

// Policy 黑白名单策略
type Policy struct {
	black *AddressList
	white *AddressList
}

// New 创建空策略（全部允许）
func New() *Policy {
	return &Policy{
		black: NewAddressList(),
		white: NewAddressList(),
	}
}

// NewFromLists 用给定黑白名单创建策略，nil 表示空列表
func NewFromLists(black, white *AddressList) *Policy {
	if black == nil {
		black = NewAddressList()
	}
	if white == nil {
		white = NewAddressList()
	}
	return &Policy{black: black, white: white}
}

// BlackList 黑名单
func (p *Policy) BlackList() *AddressList { return p.black }

// WhiteList 白名单
func (p *Policy) WhiteList() *AddressList { return p.white }

// IsAllowed 地址是否允许
func (p *Policy) IsAllowed(addr ma.Multiaddr) bool {
	if p.black.Matches(addr) {
		return false
	}
	return p.white.Len() == 0 || p.white.Matches(addr)
}

// IsPeerAllowed 节点的全部地址是否都允许
//
// 检查前为每个地址补上 /p2p/<id>，使按节点 ID 的过滤同样生效；
// 没有地址的节点按 /p2p/<id> 检查。
func (p *Policy) IsPeerAllowed(peer *types.Peer) bool {
	id := peer.ID()
	addrs := peer.Addrs()
	if len(addrs) == 0 {
		addr, err := peerAddr(id)
		if err != nil {
			return false
		}
		return p.IsAllowed(addr)
	}
	for _, a := range addrs {
		full, err := ma.WithPeerID(a, string(id))
		if err != nil {
			return false
		}
		if !p.IsAllowed(full) {
			return false
		}
	}
	return true
}

// ============================================================================
//                              门控钩子
// ============================================================================

// InterceptPeerDial 拨号前按节点 ID 检查
//
// 只检查黑名单；白名单在地址级别生效。
func (p *Policy) InterceptPeerDial(id types.PeerID) bool {
	addr, err := peerAddr(id)
	if err != nil {
		return false
	}
	if p.black.Matches(addr) {
		logger.Debug("拨号被黑名单拦截", "peer", log.TruncateID(string(id), 8))
		return false
	}
	return true
}

// InterceptAddrDial 拨号前检查单个地址
func (p *Policy) InterceptAddrDial(id types.PeerID, addr ma.Multiaddr) bool {
	full, err := ma.WithPeerID(addr, string(id))
	if err != nil {
		return false
	}
	return p.IsAllowed(full)
}

// InterceptAccept 接受入站连接前检查对端地址
func (p *Policy) InterceptAccept(remote ma.Multiaddr) bool {
	if remote == nil {
		return true
	}
	if !p.IsAllowed(remote) {
		logger.Debug("入站连接被拦截", "remote", remote)
		return false
	}
	return true
}

// InterceptSecured 安全握手后结合对端 ID 再次检查
func (p *Policy) InterceptSecured(id types.PeerID, remote ma.Multiaddr) bool {
	if remote == nil {
		addr, err := peerAddr(id)
		if err != nil {
			return false
		}
		return p.IsAllowed(addr)
	}
	return p.InterceptAddrDial(id, remote)
}

func peerAddr(id types.PeerID) (ma.Multiaddr, error) {
	return ma.NewMultiaddr("/p2p/" + string(id))
}
