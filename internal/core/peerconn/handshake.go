package peerconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	mss "github.com/multiformats/go-multistream"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-swarm/internal/core/mplex"
	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// Initiate 出站握手：安全协商与握手，然后协商并挂载复用器
func (c *PeerConnection) Initiate(ctx context.Context) error {
	return c.handshake(ctx, true)
}

// Respond 入站握手，与 Initiate 对称
func (c *PeerConnection) Respond(ctx context.Context) error {
	return c.handshake(ctx, false)
}

func (c *PeerConnection) handshake(ctx context.Context, initiator bool) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	if !c.IsActive() {
		return ErrConnClosed
	}

	// ctx 取消时让阻塞中的握手读写立即超时
	stop := context.AfterFunc(ctx, func() {
		if s := c.Stream(); s != nil {
			_ = s.SetDeadline(time.Unix(1, 0))
		}
	})

	err := c.upgrade(ctx, initiator)
	if !stop() && err == nil {
		// 取消回调已执行，底层截止时间已被破坏
		err = ctx.Err()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		logger.Debug("握手失败",
			"conn", c.id,
			"direction", c.dir,
			"peer", log.TruncateID(string(c.RemotePeerID()), 8),
			"error", err)
		c.Fail(err)
		return err
	}
	return nil
}

func (c *PeerConnection) upgrade(ctx context.Context, initiator bool) error {
	if len(c.security) == 0 {
		return ErrNoSecurityTransport
	}

	// 1. 安全协议
	st, err := c.negotiateSecurity(ctx, initiator)
	if err != nil {
		return err
	}

	raw := c.Stream()
	var sc security.Conn
	if initiator {
		sc, err = st.SecureOutbound(ctx, raw, c.RemotePeerID())
	} else {
		sc, err = st.SecureInbound(ctx, raw)
	}
	if err != nil {
		return fmt.Errorf("security handshake %s: %w", st.ID(), err)
	}

	c.mu.Lock()
	c.secured = sc
	c.stream = sc
	if c.remotePeer == nil {
		c.remotePeer = types.NewPeer(types.PeerInfo{ID: sc.RemotePeer(), PublicKey: sc.RemotePublicKey()})
	} else {
		c.remotePeer.Merge(types.PeerInfo{PublicKey: sc.RemotePublicKey()})
	}
	c.mu.Unlock()

	// 握手期间 Close 可能已经关闭旧的原始连接，此时新的安全连接也必须关闭
	if !c.IsActive() {
		_ = sc.Close()
		return ErrConnClosed
	}
	c.securitySig.Complete(struct{}{})
	logger.Debug("安全握手完成",
		"conn", c.id,
		"security", st.ID(),
		"peer", log.TruncateID(string(sc.RemotePeer()), 8))

	// 2. 复用器
	if err := c.negotiate(ctx, sc, []string{mplex.ProtocolID}, initiator); err != nil {
		return fmt.Errorf("muxer negotiation: %w", err)
	}

	_ = sc.SetDeadline(time.Time{})
	mux := mplex.NewMuxer(sc, c)
	mux.OnStreamCreated(c.onInboundStream)

	c.mu.Lock()
	c.muxer = mux
	c.mu.Unlock()
	if !c.IsActive() {
		_ = mux.Close()
		return ErrConnClosed
	}

	c.muxerSig.Complete(mux)
	go func() {
		if err := mux.ProcessRequests(c.ctx); err != nil {
			logger.Debug("复用器退出", "conn", c.id, "error", err)
		}
	}()
	return nil
}

// negotiateSecurity 选择安全传输
//
// 发起方按配置顺序逐个提议，对端拒绝的协议会被记录；全部被拒时返回聚合错误。
func (c *PeerConnection) negotiateSecurity(ctx context.Context, initiator bool) (security.Transport, error) {
	raw := c.Stream()
	done := c.applyDeadline(ctx, raw)
	defer done()

	var selected string
	if initiator {
		ids := make([]string, len(c.security))
		for i, st := range c.security {
			ids[i] = st.ID()
		}
		proto, err := mss.SelectOneOf(ids, raw)
		if err != nil {
			var ns mss.ErrNotSupported[string]
			if errors.As(err, &ns) {
				var errs error
				for _, p := range ns.Protos {
					errs = multierr.Append(errs, fmt.Errorf("%s: %w", p, ErrSecurityRejected))
				}
				return nil, errs
			}
			return nil, fmt.Errorf("security negotiation: %w", err)
		}
		selected = proto
	} else {
		mux := mss.NewMultistreamMuxer[string]()
		for _, st := range c.security {
			mux.AddHandler(st.ID(), nil)
		}
		proto, _, err := mux.Negotiate(raw)
		if err != nil {
			return nil, fmt.Errorf("security negotiation: %w", err)
		}
		selected = proto
	}

	for _, st := range c.security {
		if st.ID() == selected {
			return st, nil
		}
	}
	return nil, fmt.Errorf("negotiated security %s not configured", selected)
}

// negotiate 在 rw 上用 multistream-select 协商 protos 之一
func (c *PeerConnection) negotiate(ctx context.Context, rw io.ReadWriteCloser, protos []string, initiator bool) error {
	done := c.applyDeadline(ctx, rw)
	defer done()

	if initiator {
		_, err := mss.SelectOneOf(protos, rw)
		return err
	}
	mux := mss.NewMultistreamMuxer[string]()
	for _, p := range protos {
		mux.AddHandler(p, nil)
	}
	_, _, err := mux.Negotiate(rw)
	return err
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// applyDeadline 为协商阶段设置截止时间，返回清除函数
func (c *PeerConnection) applyDeadline(ctx context.Context, rw interface{}) func() {
	d, ok := rw.(deadliner)
	if !ok {
		return func() {}
	}
	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = d.SetDeadline(deadline)
	return func() {
		_ = d.SetDeadline(time.Time{})
	}
}

// ============================================================================
//                              应用协议
// ============================================================================

// EstablishProtocol 在 rw 上协商应用协议
//
// 候选为已挂载的、与 name 相同或以 name 为前缀的协议，按版本降序提议。
// 返回对端接受的协议名。
//
// 供调用方在自行创建的子流上按协议族协商版本；握手与 NewStream
// 使用确定的协议 ID，不经过此函数。
func (c *PeerConnection) EstablishProtocol(ctx context.Context, name string, rw io.ReadWriteCloser) (string, error) {
	cands := candidates(c.Protocols(), name)
	if len(cands) == 0 {
		return "", fmt.Errorf("%w: %s", ErrProtocolNotRegistered, name)
	}

	done := c.applyDeadline(ctx, rw)
	defer done()

	proto, err := mss.SelectOneOf(cands, rw)
	if err != nil {
		var ns mss.ErrNotSupported[string]
		if errors.As(err, &ns) {
			return "", &ProtocolNotSupportedError{Peer: c.RemotePeerID(), Protocol: name}
		}
		return "", err
	}
	return proto, nil
}

// NewStream 打开子流并协商协议，要求对端原样确认
func (c *PeerConnection) NewStream(ctx context.Context, protocol string) (*mplex.Substream, error) {
	mux, err := c.muxerSig.Wait(ctx)
	if err != nil {
		return nil, err
	}

	s, err := mux.CreateStream(ctx, protocol)
	if err != nil {
		return nil, err
	}

	done := c.applyDeadline(ctx, s)
	err = mss.SelectProtoOrFail(protocol, s)
	done()
	if err != nil {
		_ = s.Reset()
		var ns mss.ErrNotSupported[string]
		if errors.As(err, &ns) {
			return nil, &ProtocolNotSupportedError{Peer: c.RemotePeerID(), Protocol: protocol}
		}
		return nil, fmt.Errorf("negotiate %s: %w", protocol, err)
	}
	return s, nil
}

// onInboundStream 对端新建子流：在协议表上协商后交给协议处理
func (c *PeerConnection) onInboundStream(s *mplex.Substream) {
	go c.serveStream(s)
}

func (c *PeerConnection) serveStream(s *mplex.Substream) {
	mux := mss.NewMultistreamMuxer[string]()
	for _, id := range c.Protocols() {
		mux.AddHandler(id, nil)
	}

	done := c.applyDeadline(c.ctx, s)
	proto, _, err := mux.Negotiate(s)
	done()
	if err != nil {
		logger.Debug("入站子流协商失败", "conn", c.id, "stream", s.ID(), "error", err)
		_ = s.Reset()
		return
	}

	p, ok := c.protocol(proto)
	if !ok {
		_ = s.Reset()
		return
	}
	if err := p.Handle(c.ctx, c, s); err != nil {
		logger.Debug("协议处理失败",
			"protocol", proto,
			"peer", log.TruncateID(string(c.RemotePeerID()), 8),
			"error", err)
		_ = s.Reset()
		return
	}
	_ = s.Close()
}
