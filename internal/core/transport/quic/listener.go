package quic

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// streamAcceptTimeout 新连接打开首条流的期限
const streamAcceptTimeout = 10 * time.Second

// Listener QUIC 监听器
//
// 后台接受 QUIC 连接并等待对端打开首条流，就绪的连接经 incoming 交给 Accept。
type Listener struct {
	ql    *quic.Listener
	addr  ma.Multiaddr
	owner *Transport

	incoming  chan transport.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ transport.Listener = (*Listener)(nil)

func newListener(ql *quic.Listener, owner *Transport) (*Listener, error) {
	addr, err := toMultiaddr(ql.Addr())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		ql:       ql,
		addr:     addr,
		owner:    owner,
		incoming: make(chan transport.Conn),
		ctx:      ctx,
		cancel:   cancel,
	}
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	for {
		qc, err := l.ql.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil {
				logger.Debug("QUIC 接受循环退出", "error", err)
			}
			return
		}
		go l.acceptStream(qc)
	}
}

func (l *Listener) acceptStream(qc quic.Connection) {
	ctx, cancel := context.WithTimeout(l.ctx, streamAcceptTimeout)
	defer cancel()

	s, err := qc.AcceptStream(ctx)
	if err != nil {
		logger.Debug("等待首条流失败", "remote", qc.RemoteAddr(), "error", err)
		_ = qc.CloseWithError(1, "no stream")
		return
	}
	c, err := newConn(qc, s)
	if err != nil {
		_ = qc.CloseWithError(1, "bad address")
		return
	}

	select {
	case l.incoming <- c:
	case <-l.ctx.Done():
		_ = c.Close()
	}
}

// Accept 接受连接
func (l *Listener) Accept() (transport.Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.ctx.Done():
		return nil, transport.ErrListenerClosed
	}
}

// Addr 返回监听地址
func (l *Listener) Addr() net.Addr {
	return l.ql.Addr()
}

// Multiaddr 返回多地址格式的监听地址
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

// Close 关闭监听器
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.ql.Close()
		if l.owner != nil {
			l.owner.removeListener(l)
		}
	})
	return err
}
