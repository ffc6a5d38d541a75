package types

import (
	"fmt"
	"sync"
	"time"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// PeerInfo 节点信息快照
//
// 作为注册/合并的输入时，零值字段表示"未知"，不会覆盖已有值。
type PeerInfo struct {
	ID              PeerID
	Addrs           []ma.Multiaddr
	PublicKey       crypto.PublicKey
	AgentVersion    string
	ProtocolVersion string
	Latency         time.Duration
}

// PeerInfoFromAddr 从带 /p2p/ 组件的地址构造节点信息
func PeerInfoFromAddr(addr ma.Multiaddr) (PeerInfo, error) {
	id, err := ParsePeerID(ma.GetPeerID(addr))
	if err != nil {
		return PeerInfo{}, fmt.Errorf("address %s: %w", addr, err)
	}
	return PeerInfo{ID: id, Addrs: []ma.Multiaddr{addr}}, nil
}

// Peer 节点记录
//
// 身份由 ID 决定；地址集合只增不减（监听地址撤销时显式移除），
// 其余字段在重新发现时按合并规则原地更新。并发安全。
type Peer struct {
	id PeerID

	mu              sync.RWMutex
	addrs           []ma.Multiaddr
	pubKey          crypto.PublicKey
	agentVersion    string
	protocolVersion string
	latency         time.Duration
}

// NewPeer 从快照创建节点记录
func NewPeer(info PeerInfo) *Peer {
	p := &Peer{id: info.ID}
	p.Merge(info)
	return p
}

// ID 返回节点 ID
func (p *Peer) ID() PeerID {
	return p.id
}

// String 返回节点 ID 字符串
func (p *Peer) String() string {
	return string(p.id)
}

// Addrs 返回地址副本
func (p *Peer) Addrs() []ma.Multiaddr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ma.Multiaddr(nil), p.addrs...)
}

// PublicKey 返回公钥，未知时为 nil
func (p *Peer) PublicKey() crypto.PublicKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pubKey
}

// AgentVersion 返回代理版本
func (p *Peer) AgentVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.agentVersion
}

// ProtocolVersion 返回协议版本
func (p *Peer) ProtocolVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.protocolVersion
}

// Latency 返回最近一次测得的延迟
func (p *Peer) Latency() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latency
}

// SetLatency 记录延迟
func (p *Peer) SetLatency(d time.Duration) {
	p.mu.Lock()
	p.latency = d
	p.mu.Unlock()
}

// Info 返回当前快照
func (p *Peer) Info() PeerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PeerInfo{
		ID:              p.id,
		Addrs:           append([]ma.Multiaddr(nil), p.addrs...),
		PublicKey:       p.pubKey,
		AgentVersion:    p.agentVersion,
		ProtocolVersion: p.protocolVersion,
		Latency:         p.latency,
	}
}

// Merge 合并节点信息
//
// 非零字段覆盖已有值，地址取并集。ID 不参与合并。
func (p *Peer) Merge(info PeerInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if info.PublicKey != nil {
		p.pubKey = info.PublicKey
	}
	if info.AgentVersion != "" {
		p.agentVersion = info.AgentVersion
	}
	if info.ProtocolVersion != "" {
		p.protocolVersion = info.ProtocolVersion
	}
	if info.Latency != 0 {
		p.latency = info.Latency
	}
	p.addAddrsLocked(info.Addrs)
}

// AddAddrs 添加地址，返回新增数量
func (p *Peer) AddAddrs(addrs ...ma.Multiaddr) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addAddrsLocked(addrs)
}

func (p *Peer) addAddrsLocked(addrs []ma.Multiaddr) int {
	added := 0
	for _, a := range addrs {
		if a == nil || ma.Contains(p.addrs, a) {
			continue
		}
		p.addrs = append(p.addrs, a)
		added++
	}
	return added
}

// RemoveAddrs 移除地址，返回移除数量
func (p *Peer) RemoveAddrs(addrs ...ma.Multiaddr) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.addrs[:0]
	removed := 0
	for _, a := range p.addrs {
		if ma.Contains(addrs, a) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	p.addrs = kept
	return removed
}
