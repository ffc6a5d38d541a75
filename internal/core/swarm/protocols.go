package swarm

import (
	"sort"

	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
)

// AddProtocol 挂载应用协议，同名协议被替换
//
// 新协议同时挂载到已有连接上。
func (s *Swarm) AddProtocol(p peerconn.Protocol) {
	s.protoMu.Lock()
	replaced := false
	for i, existing := range s.protocols {
		if existing.ID() == p.ID() {
			s.protocols[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		s.protocols = append(s.protocols, p)
	}
	s.protoMu.Unlock()

	for _, c := range s.manager.Connections() {
		c.AddProtocols(p)
	}
	logger.Debug("协议已挂载", "protocol", p.ID())
}

// RemoveProtocol 卸载应用协议
func (s *Swarm) RemoveProtocol(id string) {
	s.protoMu.Lock()
	for i, p := range s.protocols {
		if p.ID() == id {
			s.protocols = append(s.protocols[:i], s.protocols[i+1:]...)
			break
		}
	}
	s.protoMu.Unlock()

	for _, c := range s.manager.Connections() {
		c.RemoveProtocol(id)
	}
}

// Protocols 已挂载协议名，按字典序
func (s *Swarm) Protocols() []string {
	s.protoMu.Lock()
	ids := make([]string, len(s.protocols))
	for i, p := range s.protocols {
		ids[i] = p.ID()
	}
	s.protoMu.Unlock()
	sort.Strings(ids)
	return ids
}

// mount 将当前协议表挂载到连接上
func (s *Swarm) mount(conn *peerconn.PeerConnection) {
	s.protoMu.Lock()
	protos := make([]peerconn.Protocol, len(s.protocols))
	copy(protos, s.protocols)
	s.protoMu.Unlock()
	conn.AddProtocols(protos...)
}
