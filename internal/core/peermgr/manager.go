package peermgr

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-dep2p-swarm/internal/core/eventbus"
	"github.com/dep2p/go-dep2p-swarm/internal/core/swarm"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var logger = log.Logger("core/peermgr")

// DeadPeer 不可达节点
type DeadPeer struct {
	Peer    *types.Peer
	Backoff time.Duration

	// NextAttempt 下次重连时间，永久失效时为零值
	NextAttempt time.Time
}

// Permanent 是否永久失效
func (d DeadPeer) Permanent() bool {
	return d.NextAttempt.IsZero()
}

// Option 管理器选项
type Option func(*Manager)

// WithClock 设置时钟，测试中使用 clock.NewMock()
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// Manager 节点可达性管理器
type Manager struct {
	cfg   *Config
	net   Network
	clock clock.Clock

	mu   sync.Mutex
	dead map[types.PeerID]*DeadPeer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建管理器
func New(net Network, cfg *Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:   cfg,
		net:   net,
		clock: clock.New(),
		dead:  make(map[types.PeerID]*DeadPeer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start 订阅连接事件并启动重连循环
func (m *Manager) Start(_ context.Context) error {
	bus := m.net.EventBus()
	established, err := bus.Subscribe(new(swarm.EvtConnectionEstablished))
	if err != nil {
		return err
	}
	unreachable, err := bus.Subscribe(new(swarm.EvtPeerNotReachable))
	if err != nil {
		_ = established.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	// 同步创建 ticker，保证 Start 返回后推进模拟时钟能触发重连
	ticker := m.clock.Ticker(m.cfg.InitialBackoff)

	m.wg.Add(2)
	go m.handleEvents(ctx, established, unreachable)
	go m.phoenix(ctx, ticker)

	logger.Debug("节点管理器已启动")
	return nil
}

// Stop 停止重连并清空不可达列表
func (m *Manager) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	m.dead = make(map[types.PeerID]*DeadPeer)
	m.mu.Unlock()

	logger.Debug("节点管理器已停止")
	return nil
}

func (m *Manager) handleEvents(ctx context.Context, established, unreachable *eventbus.Subscription) {
	defer m.wg.Done()
	defer established.Close()
	defer unreachable.Close()

	for {
		select {
		case e, ok := <-established.Out():
			if !ok {
				return
			}
			evt := e.(swarm.EvtConnectionEstablished)
			if p := evt.Conn.RemotePeer(); p != nil {
				m.SetReachable(p)
			}
		case e, ok := <-unreachable.Out():
			if !ok {
				return
			}
			m.SetNotReachable(e.(swarm.EvtPeerNotReachable).Peer)
		case <-ctx.Done():
			return
		}
	}
}

// SetNotReachable 标记节点不可达
//
// 首次退避 InitialBackoff，之后每次翻倍；超过 MaxBackoff 时永久失效并从注册表移除。
// 不可达期间节点被加入黑名单。
func (m *Manager) SetNotReachable(p *types.Peer) {
	now := m.clock.Now()

	m.mu.Lock()
	d, ok := m.dead[p.ID()]
	if !ok {
		d = &DeadPeer{Peer: p, Backoff: m.cfg.InitialBackoff, NextAttempt: now.Add(m.cfg.InitialBackoff)}
		m.dead[p.ID()] = d
	} else if !d.Permanent() {
		d.Backoff += d.Backoff
		if d.Backoff <= m.cfg.MaxBackoff {
			d.NextAttempt = now.Add(d.Backoff)
		} else {
			d.NextAttempt = time.Time{}
		}
	}
	snapshot := *d
	m.mu.Unlock()

	if filter, err := peerFilter(p.ID()); err == nil {
		m.net.BlackList().Add(filter)
	}

	if snapshot.Permanent() {
		m.net.DeregisterPeer(p.ID())
		logger.Debug("节点永久失效", "peer", log.TruncateID(string(p.ID()), 8))
		return
	}
	logger.Debug("节点暂时不可达",
		"peer", log.TruncateID(string(p.ID()), 8),
		"backoff", snapshot.Backoff)
}

// SetReachable 标记节点可达，移出不可达列表与黑名单
func (m *Manager) SetReachable(p *types.Peer) {
	m.mu.Lock()
	_, ok := m.dead[p.ID()]
	delete(m.dead, p.ID())
	m.mu.Unlock()

	if !ok {
		return
	}
	if filter, err := peerFilter(p.ID()); err == nil {
		m.net.BlackList().Remove(filter)
	}
	logger.Debug("节点恢复可达", "peer", log.TruncateID(string(p.ID()), 8))
}

// DeadPeers 不可达节点快照
func (m *Manager) DeadPeers() []DeadPeer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeadPeer, 0, len(m.dead))
	for _, d := range m.dead {
		out = append(out, *d)
	}
	return out
}

// DeadPeer 查询节点的不可达记录
func (m *Manager) DeadPeer(id types.PeerID) (DeadPeer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dead[id]
	if !ok {
		return DeadPeer{}, false
	}
	return *d, true
}

// phoenix 周期性重连退避到期的节点
func (m *Manager) phoenix(ctx context.Context, ticker *clock.Ticker) {
	defer m.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reconnect(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// reconnect 并发重连到期节点，并发数受 MaxConcurrentReconnects 限制
func (m *Manager) reconnect(ctx context.Context) {
	now := m.clock.Now()

	m.mu.Lock()
	var due []*types.Peer
	for _, d := range m.dead {
		if !d.Permanent() && !d.NextAttempt.After(now) {
			due = append(due, d.Peer)
		}
	}
	m.mu.Unlock()
	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrentReconnects)
	for _, p := range due {
		p := p
		g.Go(func() error {
			logger.Debug("尝试重连", "peer", log.TruncateID(string(p.ID()), 8))
			if filter, err := peerFilter(p.ID()); err == nil {
				m.net.BlackList().Remove(filter)
			}
			// 失败由 EvtPeerNotReachable 回到 SetNotReachable
			_, _ = m.net.Connect(gctx, p.Info())
			return nil
		})
	}
	_ = g.Wait()
}

func peerFilter(id types.PeerID) (ma.Multiaddr, error) {
	return ma.NewMultiaddr("/p2p/" + string(id))
}
