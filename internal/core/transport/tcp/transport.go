// Package tcp 提供基于 TCP 的传输层实现
//
// 原始 TCP 连接不带安全和多路复用，需要经过连接握手升级。
package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

var logger = log.Logger("core/transport/tcp")

// DefaultKeepAlive 默认 keep-alive 周期
const DefaultKeepAlive = 30 * time.Second

// Transport TCP 传输
type Transport struct {
	dialer net.Dialer

	mu        sync.Mutex
	listeners map[*Listener]struct{}
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 TCP 传输
func New() *Transport {
	return &Transport{
		dialer:    net.Dialer{KeepAlive: DefaultKeepAlive},
		listeners: make(map[*Listener]struct{}),
	}
}

// Protocols 返回支持的协议
func (t *Transport) Protocols() []string {
	return []string{"tcp"}
}

// CanDial 只接受 /ip4|ip6/.../tcp/<port>，DNS 地址需先解析
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return transport.ThinWaist(addr, ma.P_TCP)
}

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (transport.Conn, error) {
	if t.isClosed() {
		return nil, transport.ErrTransportClosed
	}
	if !t.CanDial(raddr) {
		return nil, fmt.Errorf("%w: %s", transport.ErrInvalidAddress, raddr)
	}
	network, address, err := ma.ToNetAddr(raddr)
	if err != nil {
		return nil, err
	}

	c, err := t.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return wrap(c)
}

// Listen 监听入站连接
func (t *Transport) Listen(laddr ma.Multiaddr) (transport.Listener, error) {
	if !transport.ThinWaist(laddr, ma.P_TCP) {
		return nil, fmt.Errorf("%w: %s", transport.ErrInvalidAddress, laddr)
	}
	network, address, err := ma.ToNetAddr(laddr)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrTransportClosed
	}

	nl, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("监听失败: %w", err)
	}
	l, err := newListener(nl, t)
	if err != nil {
		_ = nl.Close()
		return nil, err
	}
	t.listeners[l] = struct{}{}

	logger.Debug("TCP 监听已启动", "addr", l.Multiaddr())
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

// wrap 为 TCP 连接附加多地址
func wrap(c net.Conn) (transport.Conn, error) {
	laddr, err := ma.FromNetAddr(c.LocalAddr())
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	raddr, err := ma.FromNetAddr(c.RemoteAddr())
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return transport.WrapConn(c, laddr, raddr), nil
}
