package dep2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-swarm/config"
	"github.com/dep2p/go-dep2p-swarm/internal/core/eventbus"
	"github.com/dep2p/go-dep2p-swarm/internal/core/mplex"
	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/internal/core/peermgr"
	"github.com/dep2p/go-dep2p-swarm/internal/core/swarm"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var logger = log.Logger("dep2p")

// stopTimeout 关闭 Fx 应用的超时
const stopTimeout = 15 * time.Second

// StreamHandler 协议子流处理函数
type StreamHandler func(ctx context.Context, conn *peerconn.PeerConnection, s *mplex.Substream) error

// Node 节点
type Node struct {
	cfg *nodeConfig
	app *fx.App

	registry *prometheus.Registry

	// 由 Fx 注入
	swarm      *swarm.Swarm
	peerMgr    *peermgr.Manager
	autoDialer *peermgr.AutoDialer

	mu         sync.Mutex
	started    bool
	closed     bool
	metricsSrv *http.Server
	logFile    *os.File
}

// New 创建节点，不启动
func New(opts ...Option) (*Node, error) {
	cfg, err := newNodeConfig(opts)
	if err != nil {
		return nil, err
	}
	n := &Node{cfg: cfg}
	if err := n.configureLog(cfg.config.Log); err != nil {
		return nil, err
	}
	if cfg.config.Metrics.Enabled {
		n.registry = prometheus.NewRegistry()
	}

	app, err := buildFxApp(cfg, n)
	if err == nil {
		err = app.Err()
	}
	if err != nil {
		if n.logFile != nil {
			_ = n.logFile.Close()
		}
		return nil, fmt.Errorf("build node: %w", err)
	}
	n.app = app
	return n, nil
}

// configureLog 应用日志配置，File 非空时追加写入该文件
func (n *Node) configureLog(lc config.LogConfig) error {
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		n.logFile = f
		log.ConfigureWriter(f, lc.Level, lc.Format)
		return nil
	}
	if lc.Level != "" || lc.Format != "" {
		log.Configure(lc.Level, lc.Format)
	}
	return nil
}

// Start 创建并启动节点
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	n, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}

// Start 启动模块、开始监听并连接已知节点
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	if err := n.app.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	n.started = true

	for _, s := range n.cfg.config.Transport.ListenAddrs {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return err
		}
		if _, err := n.swarm.Listen(addr); err != nil {
			return err
		}
	}

	if mc := n.cfg.config.Metrics; mc.Enabled && mc.ListenAddr != "" {
		if err := n.serveMetrics(mc.ListenAddr); err != nil {
			return err
		}
	}

	if len(n.cfg.config.KnownPeers) > 0 {
		go n.connectKnownPeers(n.cfg.config.KnownPeers)
	}

	logger.Info("节点已启动",
		"peer", n.ID(),
		"addrs", len(n.swarm.ListenAddresses()))
	return nil
}

func (n *Node) serveMetrics(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	n.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := n.metricsSrv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("指标服务退出", "error", err)
		}
	}()
	logger.Info("指标服务已启动", "addr", l.Addr().String())
	return nil
}

// connectKnownPeers 连接配置中的已知节点，失败只记录
func (n *Node) connectKnownPeers(peers []config.KnownPeer) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.config.Transport.DialTimeout.Duration())
	defer cancel()

	for _, kp := range peers {
		id, err := types.ParsePeerID(kp.PeerID)
		if err != nil {
			logger.Warn("已知节点 ID 无效", "peer", kp.PeerID, "error", err)
			continue
		}
		info := types.PeerInfo{ID: id}
		for _, s := range kp.Addrs {
			if addr, err := ma.NewMultiaddr(s); err == nil {
				info.Addrs = append(info.Addrs, addr)
			}
		}
		if _, err := n.swarm.Connect(ctx, info); err != nil {
			logger.Warn("连接已知节点失败", "peer", log.TruncateID(kp.PeerID, 8), "error", err)
		}
	}
}

// Close 关闭节点，可重复调用
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true

	var errs error
	if n.metricsSrv != nil {
		errs = multierr.Append(errs, n.metricsSrv.Close())
	}
	if n.started {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		errs = multierr.Append(errs, n.app.Stop(ctx))
	}
	logger.Info("节点已关闭")
	if n.logFile != nil {
		log.Configure(n.cfg.config.Log.Level, n.cfg.config.Log.Format)
		errs = multierr.Append(errs, n.logFile.Close())
	}
	return errs
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询
// ════════════════════════════════════════════════════════════════════════════

// ID 本地节点 ID
func (n *Node) ID() types.PeerID {
	return n.swarm.LocalPeer().ID()
}

// ListenAddrs 实际监听地址
func (n *Node) ListenAddrs() []ma.Multiaddr {
	return n.swarm.ListenAddresses()
}

// ConnectionCount 当前连接数
func (n *Node) ConnectionCount() int {
	return n.swarm.ConnectionCount()
}

// Peers 已知节点
func (n *Node) Peers() []*types.Peer {
	return n.swarm.KnownPeers()
}

// Swarm 底层连接群
func (n *Node) Swarm() *swarm.Swarm {
	return n.swarm
}

// PeerManager 节点管理器
func (n *Node) PeerManager() *peermgr.Manager {
	return n.peerMgr
}

// EventBus 事件总线
func (n *Node) EventBus() *eventbus.Bus {
	return n.swarm.EventBus()
}

// Metrics 指标注册表，未启用指标时为 nil
func (n *Node) Metrics() *prometheus.Registry {
	return n.registry
}

// ════════════════════════════════════════════════════════════════════════════
//                              连接与协议
// ════════════════════════════════════════════════════════════════════════════

func (n *Node) checkRunning() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	if !n.started {
		return ErrNotStarted
	}
	return nil
}

// Connect 连接到地址，地址可带或不带 /p2p/<id>
func (n *Node) Connect(ctx context.Context, addr string) (*peerconn.PeerConnection, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, err
	}
	return n.swarm.ConnectAddress(ctx, m)
}

// ConnectPeer 连接到节点
func (n *Node) ConnectPeer(ctx context.Context, info types.PeerInfo) (*peerconn.PeerConnection, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.swarm.Connect(ctx, info)
}

// Disconnect 断开到节点的连接
func (n *Node) Disconnect(id types.PeerID) bool {
	return n.swarm.Disconnect(id)
}

// NewStream 打开到节点的协议子流，必要时先建立连接
func (n *Node) NewStream(ctx context.Context, id types.PeerID, protocol string) (*mplex.Substream, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.swarm.Dial(ctx, types.PeerInfo{ID: id}, protocol)
}

// Handle 注册协议处理函数，同名协议被替换
func (n *Node) Handle(protocol string, handler StreamHandler) {
	n.swarm.AddProtocol(peerconn.ProtocolFunc{
		Name:    protocol,
		Handler: handler,
	})
}

// RemoveHandler 注销协议
func (n *Node) RemoveHandler(protocol string) {
	n.swarm.RemoveProtocol(protocol)
}

// Ping 测量到节点的往返时延
func (n *Node) Ping(ctx context.Context, id types.PeerID) (time.Duration, error) {
	conn, err := n.ConnectPeer(ctx, types.PeerInfo{ID: id})
	if err != nil {
		return 0, err
	}
	return n.swarm.Ping(ctx, conn)
}
