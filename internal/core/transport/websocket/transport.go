// Package websocket 提供 /ws 传输
//
// 拨号方发起 HTTP 升级，之后每次 Write 作为一条二进制消息发送。
package websocket

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

var logger = log.Logger("core/transport/websocket")

// DefaultHandshakeTimeout HTTP 升级超时
const DefaultHandshakeTimeout = 10 * time.Second

var wsComponent = ma.StringCast("/ws")

// Transport WebSocket 传输
type Transport struct {
	dialer ws.Dialer

	mu        sync.Mutex
	listeners map[*Listener]struct{}
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 WebSocket 传输
func New() *Transport {
	return &Transport{
		dialer: ws.Dialer{
			HandshakeTimeout: DefaultHandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		listeners: make(map[*Listener]struct{}),
	}
}

// Protocols 返回支持的协议
func (t *Transport) Protocols() []string {
	return []string{"ws"}
}

// CanDial 只接受 /ip4|ip6/.../tcp/<port>/ws
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return transport.ThinWaist(addr, ma.P_TCP, ma.P_WS)
}

// Dial 建立出站连接
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

	c, resp, err := t.dialer.DialContext(ctx, "ws://"+address+"/", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return wrap(newConn(c))
}

// Listen 监听入站连接
func (t *Transport) Listen(laddr ma.Multiaddr) (transport.Listener, error) {
	if !t.CanDial(laddr) {
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

	logger.Debug("WebSocket 监听已启动", "addr", l.Multiaddr())
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

// wrap 附加 /ip*/tcp/*/ws 多地址
func wrap(c *Conn) (transport.Conn, error) {
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
	return transport.WrapConn(c, laddr.Encapsulate(wsComponent), raddr.Encapsulate(wsComponent)), nil
}
