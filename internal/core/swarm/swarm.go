package swarm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-dep2p-swarm/internal/core/connmgr"
	"github.com/dep2p/go-dep2p-swarm/internal/core/eventbus"
	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/internal/core/pnet"
	"github.com/dep2p/go-dep2p-swarm/internal/core/policy"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security/noise"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport/tcp"
	"github.com/dep2p/go-dep2p-swarm/internal/core/transport/websocket"
	"github.com/dep2p/go-dep2p-swarm/internal/protocol/identify"
	"github.com/dep2p/go-dep2p-swarm/internal/protocol/ping"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var logger = log.Logger("core/swarm")

// Swarm 连接群管理
type Swarm struct {
	cfg *Config

	localKey  crypto.PrivateKey
	localPeer *types.Peer

	// 传输与升级
	transports     *transport.Registry
	ownsTransports bool
	security       []security.Transport
	protector      pnet.Protector

	// 可选协作者
	resolver Resolver
	routing  PeerRouting

	policy  *policy.Policy
	manager *connmgr.Manager
	bus     *eventbus.Bus
	emit    emitters

	metricsReg prometheus.Registerer
	metrics    *metrics

	identify *identify.Service
	ping     *ping.Service

	// peers types.PeerID -> *types.Peer
	peers   sync.Map
	peersMu sync.Mutex

	// 单飞拨号，键为节点 ID
	dials singleflight.Group
	// pending types.PeerID -> struct{}，拨号进行中
	pending sync.Map
	// pendingRemote 远端地址 -> struct{}，入站握手进行中
	pendingRemote sync.Map

	// listeners 监听地址 -> *listenerEntry
	listeners sync.Map
	listenMu  sync.Mutex

	protoMu   sync.Mutex
	protocols []peerconn.Protocol

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup
}

type emitters struct {
	listenerEstablished   *eventbus.Emitter
	connectionEstablished *eventbus.Emitter
	peerDiscovered        *eventbus.Emitter
	peerDisconnected      *eventbus.Emitter
	peerRemoved           *eventbus.Emitter
	peerNotReachable      *eventbus.Emitter
}

// NewSwarm 创建 Swarm
//
// 未指定时默认使用 TCP 与 WebSocket 传输、Noise 安全传输。
func NewSwarm(priv crypto.PrivateKey, opts ...Option) (*Swarm, error) {
	if priv == nil {
		return nil, ErrNilPrivateKey
	}
	id, err := types.IDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("derive local peer id: %w", err)
	}

	s := &Swarm{
		cfg:       DefaultConfig(),
		localKey:  priv,
		localPeer: types.NewPeer(types.PeerInfo{ID: id, PublicKey: priv.GetPublic()}),
		policy:    policy.New(),
		manager:   connmgr.New(),
		bus:       eventbus.NewBus(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.transports == nil {
		reg, err := transport.NewRegistry(tcp.New(), websocket.New())
		if err != nil {
			return nil, err
		}
		s.transports = reg
		s.ownsTransports = true
	}
	if len(s.security) == 0 {
		nt, err := noise.New(priv)
		if err != nil {
			return nil, err
		}
		s.security = []security.Transport{nt}
	}
	s.metrics = newMetrics(s.metricsReg)

	if err := s.initEmitters(); err != nil {
		return nil, err
	}

	s.identify, err = identify.New(s.localPeer,
		identify.WithAgentVersion(s.cfg.AgentVersion),
		identify.WithProtocolVersion(s.cfg.ProtocolVersion),
		identify.WithProtocols(s.Protocols),
	)
	if err != nil {
		return nil, err
	}
	s.ping = ping.New()
	s.protocols = []peerconn.Protocol{s.identify, s.ping}

	s.manager.OnDisconnected(s.onDisconnected)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	logger.Info("Swarm 已创建",
		"peer", log.TruncateID(string(id), 8),
		"transports", len(s.transports.Transports()),
		"security", len(s.security))
	return s, nil
}

func (s *Swarm) initEmitters() error {
	var err error
	em := func(evt interface{}) *eventbus.Emitter {
		if err != nil {
			return nil
		}
		var e *eventbus.Emitter
		e, err = s.bus.Emitter(evt)
		return e
	}
	s.emit = emitters{
		listenerEstablished:   em(new(EvtListenerEstablished)),
		connectionEstablished: em(new(EvtConnectionEstablished)),
		peerDiscovered:        em(new(EvtPeerDiscovered)),
		peerDisconnected:      em(new(EvtPeerDisconnected)),
		peerRemoved:           em(new(EvtPeerRemoved)),
		peerNotReachable:      em(new(EvtPeerNotReachable)),
	}
	return err
}

// LocalPeer 本地节点
func (s *Swarm) LocalPeer() *types.Peer {
	return s.localPeer
}

// EventBus Swarm 使用的事件总线
func (s *Swarm) EventBus() *eventbus.Bus {
	return s.bus
}

// Manager 连接管理器
func (s *Swarm) Manager() *connmgr.Manager {
	return s.manager
}

// ConnectionCount 当前权威连接数
func (s *Swarm) ConnectionCount() int {
	return s.manager.Count()
}

// IsConnected 是否存在到该节点的活跃连接
func (s *Swarm) IsConnected(id types.PeerID) bool {
	return s.manager.IsConnected(id)
}

// Ping 测量到已连接节点的往返时延
func (s *Swarm) Ping(ctx context.Context, conn *peerconn.PeerConnection) (time.Duration, error) {
	return s.ping.Ping(ctx, conn)
}

// Close 停止监听并关闭全部连接
func (s *Swarm) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	var errs error
	s.listeners.Range(func(key, v any) bool {
		s.listeners.Delete(key)
		errs = multierr.Append(errs, v.(*listenerEntry).listener.Close())
		return true
	})

	s.manager.Clear()
	s.wg.Wait()

	if s.ownsTransports {
		errs = multierr.Append(errs, s.transports.Close())
	}

	for _, e := range []*eventbus.Emitter{
		s.emit.listenerEstablished,
		s.emit.connectionEstablished,
		s.emit.peerDiscovered,
		s.emit.peerDisconnected,
		s.emit.peerRemoved,
		s.emit.peerNotReachable,
	} {
		_ = e.Close()
	}

	logger.Info("Swarm 已关闭", "peer", log.TruncateID(string(s.localPeer.ID()), 8))
	return errs
}

// ============================================================================
//                              准入策略
// ============================================================================

// IsAllowed 地址是否被黑白名单允许
func (s *Swarm) IsAllowed(addr ma.Multiaddr) bool {
	return s.policy.IsAllowed(addr)
}

// IsPeerAllowed 节点是否被允许，任一地址被拒即拒绝
func (s *Swarm) IsPeerAllowed(p *types.Peer) bool {
	return s.policy.IsPeerAllowed(p)
}

// BlackList 黑名单
func (s *Swarm) BlackList() *policy.AddressList {
	return s.policy.BlackList()
}

// WhiteList 白名单
func (s *Swarm) WhiteList() *policy.AddressList {
	return s.policy.WhiteList()
}

func (s *Swarm) emitEvent(e *eventbus.Emitter, evt interface{}) {
	if err := e.Emit(evt); err != nil && !s.closed.Load() {
		logger.Debug("事件发送失败", "error", err)
	}
}
