package websocket

import (
	"errors"
	"net"
	"net/http"
	"sync"

	ws "github.com/gorilla/websocket"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// Listener WebSocket 监听器
//
// 内部运行 http.Server，升级成功的连接经 incoming 交给 Accept。
type Listener struct {
	nl       net.Listener
	addr     ma.Multiaddr
	owner    *Transport
	srv      *http.Server
	upgrader ws.Upgrader

	incoming  chan transport.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

var _ transport.Listener = (*Listener)(nil)

func newListener(nl net.Listener, owner *Transport) (*Listener, error) {
	base, err := ma.FromNetAddr(nl.Addr())
	if err != nil {
		return nil, err
	}
	l := &Listener{
		nl:    nl,
		addr:  base.Encapsulate(wsComponent),
		owner: owner,
		upgrader: ws.Upgrader{
			HandshakeTimeout: DefaultHandshakeTimeout,
			// 节点之间没有浏览器同源约束
			CheckOrigin: func(*http.Request) bool { return true },
		},
		incoming: make(chan transport.Conn),
		closed:   make(chan struct{}),
	}
	l.srv = &http.Server{
		Handler:           l,
		ReadHeaderTimeout: DefaultHandshakeTimeout,
	}
	go func() {
		if err := l.srv.Serve(nl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Debug("HTTP 服务退出", "error", err)
		}
	}()
	return l, nil
}

// ServeHTTP 升级连接并交给 Accept
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("WebSocket 升级失败", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn, err := wrap(newConn(c))
	if err != nil {
		return
	}

	select {
	case l.incoming <- conn:
	case <-l.closed:
		_ = conn.Close()
	}
}

// Accept 接受连接
func (l *Listener) Accept() (transport.Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.closed:
		return nil, transport.ErrListenerClosed
	}
}

// Addr 返回监听地址
func (l *Listener) Addr() net.Addr {
	return l.nl.Addr()
}

// Multiaddr 返回多地址格式的监听地址
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

// Close 关闭监听器
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.srv.Close()
		if l.owner != nil {
			l.owner.removeListener(l)
		}
	})
	return err
}
