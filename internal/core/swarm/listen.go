package swarm

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// listenerEntry 一个监听器及其登记到本地节点的地址
type listenerEntry struct {
	listener transport.Listener
	addrs    []ma.Multiaddr
}

// Listen 在 addr 上开始监听
//
// 返回实际监听地址：端口 0 替换为分配端口，未指定 IP 展开为本机接口地址，
// 全部带 /p2p/<本地 ID>。这些地址同时加入本地节点的地址集合。
func (s *Swarm) Listen(addr ma.Multiaddr) ([]ma.Multiaddr, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	base := ma.WithoutPeerID(addr)
	if base == nil {
		return nil, fmt.Errorf("%w: %s", transport.ErrInvalidAddress, addr)
	}
	key := string(base.Bytes())

	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	if _, ok := s.listeners.Load(key); ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyListening, base)
	}

	t, err := s.transports.TransportFor(base)
	if err != nil {
		return nil, err
	}
	l, err := t.Listen(base)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", base, err)
	}

	actual := l.Multiaddr()
	expanded, err := ma.ExpandUnspecified(actual, nil)
	if err != nil || len(expanded) == 0 {
		expanded = []ma.Multiaddr{actual}
	}
	addrs := make([]ma.Multiaddr, 0, len(expanded))
	for _, a := range expanded {
		full, err := ma.WithPeerID(a, string(s.localPeer.ID()))
		if err != nil {
			continue
		}
		addrs = append(addrs, full)
	}

	s.localPeer.AddAddrs(addrs...)
	s.listeners.Store(key, &listenerEntry{listener: l, addrs: addrs})

	s.wg.Add(1)
	go s.acceptLoop(l)

	logger.Info("开始监听", "addr", actual, "addrs", len(addrs))
	s.emitEvent(s.emit.listenerEstablished, EvtListenerEstablished{Addrs: addrs})
	return addrs, nil
}

// StopListening 停止在 addr 上监听，可重复调用
//
// addr 可以是传给 Listen 的地址，也可以是 Listen 返回的实际地址。
func (s *Swarm) StopListening(addr ma.Multiaddr) error {
	base := ma.WithoutPeerID(addr)
	if base == nil {
		return nil
	}

	s.listenMu.Lock()
	key := s.listenerKey(base)
	v, ok := s.listeners.LoadAndDelete(key)
	s.listenMu.Unlock()
	if !ok {
		return nil
	}

	entry := v.(*listenerEntry)
	s.localPeer.RemoveAddrs(entry.addrs...)
	logger.Info("停止监听", "addr", entry.listener.Multiaddr())
	if err := entry.listener.Close(); err != nil && !errors.Is(err, transport.ErrListenerClosed) {
		return err
	}
	return nil
}

// listenerKey 查找 addr 对应的监听表键，调用方持有 listenMu
func (s *Swarm) listenerKey(base ma.Multiaddr) string {
	key := string(base.Bytes())
	if _, ok := s.listeners.Load(key); ok {
		return key
	}
	s.listeners.Range(func(k, v any) bool {
		entry := v.(*listenerEntry)
		if entry.listener.Multiaddr().Equal(base) {
			key = k.(string)
			return false
		}
		for _, a := range entry.addrs {
			if ma.WithoutPeerID(a).Equal(base) {
				key = k.(string)
				return false
			}
		}
		return true
	})
	return key
}

// ListenAddresses 当前全部监听地址
func (s *Swarm) ListenAddresses() []ma.Multiaddr {
	var out []ma.Multiaddr
	s.listeners.Range(func(_, v any) bool {
		out = append(out, v.(*listenerEntry).addrs...)
		return true
	})
	return out
}

// acceptLoop 接受入站连接直到监听器关闭
func (s *Swarm) acceptLoop(l transport.Listener) {
	defer s.wg.Done()
	for {
		c, err := l.Accept()
		if err != nil {
			if !errors.Is(err, transport.ErrListenerClosed) && !s.closed.Load() {
				logger.Warn("监听器退出", "addr", l.Multiaddr(), "error", err)
			}
			return
		}
		if s.closed.Load() {
			_ = c.Close()
			return
		}
		logger.Debug("接受入站连接",
			"remote", c.RemoteMultiaddr(),
			"local", log.TruncateID(string(s.localPeer.ID()), 8))

		s.wg.Add(1)
		go s.handleInbound(c)
	}
}
