// Package peerconn 实现到单个对端的认证连接
//
// 握手状态机（出站 Initiate / 入站 Respond）：
//
//  1. multistream-select 协商安全协议并完成安全握手 → SecurityEstablished
//  2. multistream-select 协商 /mplex/6.7.0 并挂载复用器 → MuxerEstablished
//  3. 调用方完成身份确认（identify）→ IdentityEstablished
//
// 任一阶段失败都会中断所有未触发的信号并关闭连接。
package peerconn

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-dep2p-swarm/internal/core/mplex"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var logger = log.Logger("core/peerconn")

// DefaultNegotiationTimeout 每个协商阶段的默认超时
const DefaultNegotiationTimeout = 30 * time.Second

// Direction 连接方向
type Direction int

const (
	// DirOutbound 本端发起
	DirOutbound Direction = iota
	// DirInbound 对端发起
	DirInbound
)

func (d Direction) String() string {
	if d == DirInbound {
		return "inbound"
	}
	return "outbound"
}

// Params 连接参数
type Params struct {
	Direction Direction
	LocalPeer *types.Peer
	// RemotePeer 出站时为拨号目标，入站时可为 nil（安全握手后确定）
	RemotePeer *types.Peer
	Conn       net.Conn
	LocalAddr  ma.Multiaddr
	RemoteAddr ma.Multiaddr
	// Security 按优先级排列的安全传输
	Security           []security.Transport
	NegotiationTimeout time.Duration
}

// PeerConnection 到单个对端的连接
type PeerConnection struct {
	id         string
	dir        Direction
	localPeer  *types.Peer
	localAddr  ma.Multiaddr
	remoteAddr ma.Multiaddr
	security   []security.Transport
	timeout    time.Duration
	opened     time.Time

	mu         sync.RWMutex
	remotePeer *types.Peer
	stream     net.Conn
	secured    security.Conn
	muxer      *mplex.Muxer
	started    bool
	hooks      []func(*PeerConnection)

	protoMu   sync.RWMutex
	protocols map[string]Protocol

	securitySig *Signal[struct{}]
	muxerSig    *Signal[*mplex.Muxer]
	identitySig *Signal[*types.Peer]

	// ctx 连接生命周期，Close 时取消
	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
}

// New 创建连接，尚未握手
func New(p Params) *PeerConnection {
	timeout := p.NegotiationTimeout
	if timeout <= 0 {
		timeout = DefaultNegotiationTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PeerConnection{
		id:          uuid.NewString(),
		dir:         p.Direction,
		localPeer:   p.LocalPeer,
		localAddr:   p.LocalAddr,
		remoteAddr:  p.RemoteAddr,
		security:    p.Security,
		timeout:     timeout,
		opened:      time.Now(),
		remotePeer:  p.RemotePeer,
		stream:      p.Conn,
		protocols:   make(map[string]Protocol),
		securitySig: NewSignal[struct{}](),
		muxerSig:    NewSignal[*mplex.Muxer](),
		identitySig: NewSignal[*types.Peer](),
		ctx:         ctx,
		cancel:      cancel,
		closed:      make(chan struct{}),
	}
}

// ============================================================================
//                              访问器
// ============================================================================

// ID 连接 UUID
func (c *PeerConnection) ID() string { return c.id }

// Direction 连接方向
func (c *PeerConnection) Direction() Direction { return c.dir }

// LocalPeer 本地节点
func (c *PeerConnection) LocalPeer() *types.Peer { return c.localPeer }

// LocalAddr 本地地址
func (c *PeerConnection) LocalAddr() ma.Multiaddr { return c.localAddr }

// RemoteAddr 对端地址
func (c *PeerConnection) RemoteAddr() ma.Multiaddr { return c.remoteAddr }

// Opened 连接创建时间
func (c *PeerConnection) Opened() time.Time { return c.opened }

// RemotePeer 对端节点，入站连接在安全握手前为 nil
func (c *PeerConnection) RemotePeer() *types.Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remotePeer
}

// RemotePeerID 对端节点 ID，未知时为空
func (c *PeerConnection) RemotePeerID() types.PeerID {
	if p := c.RemotePeer(); p != nil {
		return p.ID()
	}
	return types.EmptyPeerID
}

// SetRemotePeer 替换对端节点记录（注册表合并后的规范记录）
func (c *PeerConnection) SetRemotePeer(p *types.Peer) {
	c.mu.Lock()
	c.remotePeer = p
	c.mu.Unlock()
}

// Stream 当前底层流，安全握手后为加密连接
func (c *PeerConnection) Stream() net.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stream
}

// SecureConn 安全连接，握手前为 nil
func (c *PeerConnection) SecureConn() security.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.secured
}

// Muxer 复用器，握手前为 nil
func (c *PeerConnection) Muxer() *mplex.Muxer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muxer
}

// SecurityEstablished 安全握手完成信号
func (c *PeerConnection) SecurityEstablished() *Signal[struct{}] { return c.securitySig }

// MuxerEstablished 复用器就绪信号
func (c *PeerConnection) MuxerEstablished() *Signal[*mplex.Muxer] { return c.muxerSig }

// IdentityEstablished 身份确认信号，由调用方在 identify 后完成
func (c *PeerConnection) IdentityEstablished() *Signal[*types.Peer] { return c.identitySig }

// Context 连接生命周期 ctx
func (c *PeerConnection) Context() context.Context { return c.ctx }

// ============================================================================
//                              协议表
// ============================================================================

// AddProtocols 挂载协议，同名覆盖
func (c *PeerConnection) AddProtocols(protos ...Protocol) {
	c.protoMu.Lock()
	defer c.protoMu.Unlock()
	for _, p := range protos {
		c.protocols[p.ID()] = p
	}
}

// RemoveProtocol 卸载协议
func (c *PeerConnection) RemoveProtocol(id string) {
	c.protoMu.Lock()
	delete(c.protocols, id)
	c.protoMu.Unlock()
}

// Protocols 已挂载的协议名（排序）
func (c *PeerConnection) Protocols() []string {
	c.protoMu.RLock()
	defer c.protoMu.RUnlock()
	out := make([]string, 0, len(c.protocols))
	for id := range c.protocols {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (c *PeerConnection) protocol(id string) (Protocol, bool) {
	c.protoMu.RLock()
	defer c.protoMu.RUnlock()
	p, ok := c.protocols[id]
	return p, ok
}

// ============================================================================
//                              生命周期
// ============================================================================

// Notify 注册关闭回调；已关闭时立即调用
func (c *PeerConnection) Notify(fn func(*PeerConnection)) {
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		fn(c)
		return
	default:
	}
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// IsActive 连接是否仍可用
func (c *PeerConnection) IsActive() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// Done 关闭后返回的通道
func (c *PeerConnection) Done() <-chan struct{} {
	return c.closed
}

// Close 关闭连接，级联关闭复用器、所有子流与底层传输
func (c *PeerConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.securitySig.Break(ErrConnClosed)
		c.muxerSig.Break(ErrConnClosed)
		c.identitySig.Break(ErrConnClosed)

		c.mu.Lock()
		close(c.closed)
		mux := c.muxer
		stream := c.stream
		hooks := c.hooks
		c.hooks = nil
		c.mu.Unlock()

		c.cancel()
		// 复用器持有安全连接，关闭复用器即关闭底层连接
		switch {
		case mux != nil:
			err = mux.Close()
		case stream != nil:
			err = stream.Close()
		}

		logger.Debug("连接已关闭",
			"conn", c.id,
			"peer", log.TruncateID(string(c.RemotePeerID()), 8),
			"direction", c.dir)

		for _, fn := range hooks {
			fn(c)
		}
	})
	return err
}

// Fail 以错误中断所有未触发的信号并关闭连接
func (c *PeerConnection) Fail(err error) {
	c.securitySig.Break(err)
	c.muxerSig.Break(err)
	c.identitySig.Break(err)
	_ = c.Close()
}

func (c *PeerConnection) String() string {
	return c.dir.String() + " " + c.id + " " + c.RemotePeerID().ShortString()
}
