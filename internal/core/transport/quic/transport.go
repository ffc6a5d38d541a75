// Package quic 提供 /quic-v1 传输
//
// 每个 QUIC 连接只使用一条双向流作为原始字节流，多路复用仍由上层完成。
package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

var logger = log.Logger("core/transport/quic")

// Transport QUIC 传输
type Transport struct {
	serverTLS *tls.Config
	clientTLS *tls.Config
	config    *quic.Config

	mu        sync.Mutex
	listeners map[*Listener]struct{}
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 QUIC 传输
func New() (*Transport, error) {
	server, client, err := newTLSConfigs()
	if err != nil {
		return nil, err
	}
	return &Transport{
		serverTLS: server,
		clientTLS: client,
		config: &quic.Config{
			MaxIdleTimeout:  30 * time.Second,
			KeepAlivePeriod: 10 * time.Second,
		},
		listeners: make(map[*Listener]struct{}),
	}, nil
}

// Protocols 返回支持的协议
func (t *Transport) Protocols() []string {
	return []string{"quic-v1"}
}

// CanDial 只接受 /ip4|ip6/.../udp/<port>/quic-v1
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return transport.ThinWaist(addr, ma.P_UDP, ma.P_QUIC_V1)
}

// Dial 建立 QUIC 连接并打开唯一的双向流
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (transport.Conn, error) {
	if t.isClosed() {
		return nil, transport.ErrTransportClosed
	}
	if !t.CanDial(raddr) {
		return nil, fmt.Errorf("%w: %s", transport.ErrInvalidAddress, raddr)
	}
	_, address, err := ma.ToNetAddr(raddr)
	if err != nil {
		return nil, err
	}

	qc, err := quic.DialAddr(ctx, address, t.clientTLS, t.config)
	if err != nil {
		return nil, err
	}
	s, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(1, "open stream")
		return nil, fmt.Errorf("打开流失败: %w", err)
	}
	c, err := newConn(qc, s)
	if err != nil {
		_ = qc.CloseWithError(1, "bad address")
		return nil, err
	}
	return c, nil
}

// Listen 监听入站连接
func (t *Transport) Listen(laddr ma.Multiaddr) (transport.Listener, error) {
	if !t.CanDial(laddr) {
		return nil, fmt.Errorf("%w: %s", transport.ErrInvalidAddress, laddr)
	}
	_, address, err := ma.ToNetAddr(laddr)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrTransportClosed
	}

	ql, err := quic.ListenAddr(address, t.serverTLS, t.config)
	if err != nil {
		return nil, fmt.Errorf("监听失败: %w", err)
	}
	l, err := newListener(ql, t)
	if err != nil {
		_ = ql.Close()
		return nil, err
	}
	t.listeners[l] = struct{}{}

	logger.Debug("QUIC 监听已启动", "addr", l.Multiaddr())
	return l, nil
}

// Close 关闭传输及其全部监听器
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ls := t.listeners
	t.listeners = nil
	t.mu.Unlock()

	for l := range ls {
		_ = l.Close()
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) removeListener(l *Listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}
