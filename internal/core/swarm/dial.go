package swarm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dep2p/go-dep2p-swarm/internal/core/mplex"
	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// Connect 连接到节点
//
// 已有活跃连接时直接返回。对同一节点的并发调用共享一次拨号，
// 各调用方只受自己的 ctx 约束，拨号本身运行在 Swarm 的上下文中。
// 失败时触发 EvtPeerNotReachable，返回的错误包含节点 ID。
func (s *Swarm) Connect(ctx context.Context, info types.PeerInfo) (*peerconn.PeerConnection, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	p, err := s.RegisterPeer(info)
	if err != nil {
		return nil, err
	}
	if c, ok := s.manager.TryGet(p.ID()); ok && c.IsActive() {
		return c, nil
	}

	ch := s.dials.DoChan(string(p.ID()), func() (interface{}, error) {
		s.pending.Store(p.ID(), struct{}{})
		defer s.pending.Delete(p.ID())

		conn, err := s.dialPeer(s.ctx, p)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Debug("节点不可达",
					"peer", log.TruncateID(string(p.ID()), 8),
					"error", err)
			}
			s.emitEvent(s.emit.peerNotReachable, EvtPeerNotReachable{Peer: p, Err: err})
			return nil, err
		}
		return conn, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var de *DialError
			if errors.As(res.Err, &de) {
				return nil, res.Err
			}
			return nil, fmt.Errorf("connect %s: %w", p.ID(), res.Err)
		}
		return res.Val.(*peerconn.PeerConnection), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ConnectAddress 连接到地址
//
// 地址带 /p2p/<id> 时先注册该节点再走 Connect；否则直接拨号，
// 对端身份由安全握手与 identify 得出。
func (s *Swarm) ConnectAddress(ctx context.Context, addr ma.Multiaddr) (*peerconn.PeerConnection, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	if ma.GetPeerID(addr) != "" {
		info, err := types.PeerInfoFromAddr(addr)
		if err != nil {
			return nil, err
		}
		return s.Connect(ctx, info)
	}

	if !s.policy.IsAllowed(addr) {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotAllowed, addr)
	}
	start := time.Now()
	raw, err := s.race(ctx, types.EmptyPeerID, []ma.Multiaddr{addr})
	if err != nil {
		return nil, err
	}
	conn, err := s.upgradeOutbound(ctx, nil, raw)
	s.metrics.dialDuration.Observe(time.Since(start).Seconds())
	return conn, err
}

// HasPendingConnection 是否有到该节点的拨号正在进行
func (s *Swarm) HasPendingConnection(id types.PeerID) bool {
	_, ok := s.pending.Load(id)
	return ok
}

// Disconnect 断开到节点的连接，返回是否存在连接
func (s *Swarm) Disconnect(id types.PeerID) bool {
	return s.manager.Remove(id)
}

// Dial 连接节点并打开协商好 protocol 的子流
func (s *Swarm) Dial(ctx context.Context, info types.PeerInfo, protocol string) (*mplex.Substream, error) {
	conn, err := s.Connect(ctx, info)
	if err != nil {
		return nil, err
	}
	st, err := conn.NewStream(ctx, protocol)
	if err != nil {
		return nil, err
	}
	s.metrics.streamsOpened.Inc()
	return st, nil
}

// ============================================================================
//                              拨号
// ============================================================================

// dialPeer 拨号并升级到指定节点
func (s *Swarm) dialPeer(ctx context.Context, p *types.Peer) (*peerconn.PeerConnection, error) {
	if p.ID() == s.localPeer.ID() {
		return nil, ErrDialToSelf
	}
	if !s.policy.InterceptPeerDial(p.ID()) {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotAllowed, p.ID())
	}

	start := time.Now()
	addrs := p.Addrs()
	if len(addrs) == 0 && s.routing != nil {
		info, err := s.routing.FindPeer(ctx, p.ID())
		if err != nil {
			logger.Debug("路由查找失败", "peer", log.TruncateID(string(p.ID()), 8), "error", err)
		} else {
			info.ID = p.ID()
			p.Merge(info)
			addrs = p.Addrs()
		}
	}
	if len(addrs) == 0 {
		return nil, &DialError{Peer: p.ID(), Errors: []error{ErrNoAddresses}}
	}

	cands := s.candidates(ctx, p.ID(), addrs)
	if len(cands) == 0 {
		return nil, &DialError{Peer: p.ID(), Errors: []error{ErrNoAddresses}}
	}

	raw, err := s.race(ctx, p.ID(), cands)
	if err != nil {
		return nil, err
	}
	conn, err := s.upgradeOutbound(ctx, p, raw)
	s.metrics.dialDuration.Observe(time.Since(start).Seconds())
	return conn, err
}

// candidates 生成拨号候选地址
//
// 排除本地监听地址，解析 DNS 地址，统一带上 /p2p/<id>，去重后按策略过滤。
func (s *Swarm) candidates(ctx context.Context, id types.PeerID, addrs []ma.Multiaddr) []ma.Multiaddr {
	var own []ma.Multiaddr
	for _, a := range s.ListenAddresses() {
		if base := ma.WithoutPeerID(a); base != nil {
			own = append(own, base)
		}
	}

	var out []ma.Multiaddr
	for _, a := range addrs {
		base := ma.WithoutPeerID(a)
		if base == nil || ma.Contains(own, base) {
			continue
		}

		resolved := []ma.Multiaddr{base}
		if s.resolver != nil {
			r, err := s.resolver.Resolve(ctx, base)
			if err != nil {
				logger.Debug("地址解析失败", "addr", base, "error", err)
				continue
			}
			resolved = r
		}

		for _, r := range resolved {
			r = ma.WithoutPeerID(r)
			if r == nil || ma.Contains(own, r) {
				continue
			}
			full, err := ma.WithPeerID(r, string(id))
			if err != nil {
				continue
			}
			out = append(out, full)
		}
	}

	out = ma.UniqueAddrs(out)
	return ma.FilterAddrs(out, func(a ma.Multiaddr) bool {
		return s.policy.InterceptAddrDial(id, a)
	})
}

type dialResult struct {
	conn transport.Conn
	addr ma.Multiaddr
	err  error
}

// race 并发拨号全部地址，取第一个成功的连接
//
// 胜出后取消其余拨号，迟到的成功连接被关闭。全部失败时返回 DialError。
func (s *Swarm) race(ctx context.Context, id types.PeerID, addrs []ma.Multiaddr) (transport.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TransportTimeout)
	defer cancel()

	results := make(chan dialResult, len(addrs))
	for _, addr := range addrs {
		go func(addr ma.Multiaddr) {
			conn, err := s.dialAddr(ctx, addr)
			results <- dialResult{conn: conn, addr: addr, err: err}
		}(addr)
	}

	var errs []error
	for i := 0; i < len(addrs); i++ {
		select {
		case res := <-results:
			if res.err == nil {
				cancel()
				go drain(results, len(addrs)-i-1)
				logger.Debug("拨号成功",
					"peer", log.TruncateID(string(id), 8),
					"addr", res.addr)
				return res.conn, nil
			}
			errs = append(errs, res.err)
		case <-ctx.Done():
			go drain(results, len(addrs)-i)
			errs = append(errs, ctx.Err())
			return nil, &DialError{Peer: id, Errors: errs}
		}
	}
	return nil, &DialError{Peer: id, Errors: errs}
}

// drain 收取剩余的拨号结果并关闭成功的连接
func drain(results <-chan dialResult, n int) {
	for i := 0; i < n; i++ {
		res := <-results
		if res.conn != nil {
			logger.Debug("关闭落败的拨号连接", "addr", res.addr)
			_ = res.conn.Close()
		}
	}
}

// dialAddr 通过匹配的传输拨号单个地址
func (s *Swarm) dialAddr(ctx context.Context, addr ma.Multiaddr) (transport.Conn, error) {
	base := ma.WithoutPeerID(addr)
	t, err := s.transports.TransportFor(base)
	if err != nil {
		s.metrics.dialAttempts.WithLabelValues("no_transport").Inc()
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	conn, err := t.Dial(ctx, base)
	s.metrics.dialAttempts.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	return conn, nil
}

// ============================================================================
//                              升级
// ============================================================================

// upgradeOutbound 在原始连接上完成出站握手与身份交换
//
// p 为 nil 时不校验对端身份。
func (s *Swarm) upgradeOutbound(ctx context.Context, p *types.Peer, raw transport.Conn) (*peerconn.PeerConnection, error) {
	nc, err := s.protect(raw)
	if err != nil {
		return nil, err
	}

	raddr := raw.RemoteMultiaddr()
	if p != nil && raddr != nil {
		if full, err := ma.WithPeerID(raddr, string(p.ID())); err == nil {
			raddr = full
		}
	}

	conn := peerconn.New(peerconn.Params{
		Direction:          peerconn.DirOutbound,
		LocalPeer:          s.localPeer,
		RemotePeer:         p,
		Conn:               nc,
		LocalAddr:          raw.LocalMultiaddr(),
		RemoteAddr:         raddr,
		Security:           s.security,
		NegotiationTimeout: s.cfg.NegotiationTimeout,
	})
	s.mount(conn)

	err = conn.Initiate(ctx)
	if err == nil {
		err = s.secured(ctx, conn, raw.RemoteMultiaddr())
	}
	s.metrics.handshakes.WithLabelValues(peerconn.DirOutbound.String(), resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	return s.register(conn)
}

// handleInbound 入站连接：策略检查、去重、握手与身份交换
func (s *Swarm) handleInbound(raw transport.Conn) {
	defer s.wg.Done()

	raddr := raw.RemoteMultiaddr()
	if !s.policy.InterceptAccept(raddr) {
		_ = raw.Close()
		return
	}

	var key string
	if raddr != nil {
		key = string(raddr.Bytes())
		if _, loaded := s.pendingRemote.LoadOrStore(key, struct{}{}); loaded {
			logger.Debug("重复的入站连接", "remote", raddr)
			_ = raw.Close()
			return
		}
		defer s.pendingRemote.Delete(key)
	}

	nc, err := s.protect(raw)
	if err != nil {
		return
	}

	conn := peerconn.New(peerconn.Params{
		Direction:          peerconn.DirInbound,
		LocalPeer:          s.localPeer,
		Conn:               nc,
		LocalAddr:          raw.LocalMultiaddr(),
		RemoteAddr:         raddr,
		Security:           s.security,
		NegotiationTimeout: s.cfg.NegotiationTimeout,
	})
	s.mount(conn)

	err = conn.Respond(s.ctx)
	if err == nil {
		err = s.secured(s.ctx, conn, raddr)
	}
	s.metrics.handshakes.WithLabelValues(peerconn.DirInbound.String(), resultLabel(err)).Inc()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Debug("入站握手失败", "remote", raddr, "error", err)
		}
		return
	}
	_, _ = s.register(conn)
}

// protect 启用私有网络时包装原始连接
func (s *Swarm) protect(raw transport.Conn) (net.Conn, error) {
	if s.protector == nil {
		return raw, nil
	}
	nc, err := s.protector.Protect(raw)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("protect connection: %w", err)
	}
	return nc, nil
}

// secured 安全握手之后：策略复查，identify，注册对端
func (s *Swarm) secured(ctx context.Context, conn *peerconn.PeerConnection, raddr ma.Multiaddr) error {
	if !s.policy.InterceptSecured(conn.RemotePeerID(), raddr) {
		err := fmt.Errorf("%w: %s", ErrPeerNotAllowed, conn.RemotePeerID())
		conn.Fail(err)
		return err
	}

	ictx, cancel := context.WithTimeout(ctx, s.cfg.NegotiationTimeout)
	defer cancel()

	info, err := s.identify.Identify(ictx, conn)
	if err != nil {
		err = fmt.Errorf("identify %s: %w", conn.RemotePeerID(), err)
		conn.Fail(err)
		return err
	}
	p, err := s.RegisterPeer(info)
	if err != nil {
		conn.Fail(err)
		return err
	}
	conn.SetRemotePeer(p)
	conn.IdentityEstablished().Complete(p)
	return nil
}

// register 登记连接，新连接成为权威连接时触发 EvtConnectionEstablished
func (s *Swarm) register(conn *peerconn.PeerConnection) (*peerconn.PeerConnection, error) {
	if s.closed.Load() {
		_ = conn.Close()
		return nil, ErrSwarmClosed
	}
	winner := s.manager.Add(conn)
	// Close 可能在 Add 前后清空了管理器
	if s.closed.Load() {
		s.manager.Remove(conn.RemotePeerID())
		_ = conn.Close()
		return nil, ErrSwarmClosed
	}
	if winner != conn {
		return winner, nil
	}
	s.metrics.connections.Inc()

	logger.Info("连接已建立",
		"peer", log.TruncateID(string(conn.RemotePeerID()), 8),
		"direction", conn.Direction(),
		"remote", conn.RemoteAddr())
	s.emitEvent(s.emit.connectionEstablished, EvtConnectionEstablished{Conn: conn})
	return conn, nil
}
