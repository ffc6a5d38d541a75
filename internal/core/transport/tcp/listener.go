package tcp

import (
	"errors"
	"net"
	"sync"

	tec "github.com/jbenet/go-temp-err-catcher"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// Listener TCP 监听器
type Listener struct {
	nl        net.Listener
	addr      ma.Multiaddr
	owner     *Transport
	closeOnce sync.Once
}

var _ transport.Listener = (*Listener)(nil)

func newListener(nl net.Listener, owner *Transport) (*Listener, error) {
	addr, err := ma.FromNetAddr(nl.Addr())
	if err != nil {
		return nil, err
	}
	return &Listener{nl: nl, addr: addr, owner: owner}, nil
}

// Accept 接受连接，临时错误（如 fd 耗尽）退避后重试
func (l *Listener) Accept() (transport.Conn, error) {
	var catcher tec.TempErrCatcher
	for {
		c, err := l.nl.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, transport.ErrListenerClosed
			}
			if catcher.IsTemporary(err) {
				logger.Warn("接受连接临时错误", "error", err)
				continue
			}
			return nil, err
		}
		conn, err := wrap(c)
		if err != nil {
			logger.Debug("包装入站连接失败", "error", err)
			continue
		}
		return conn, nil
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
		err = l.nl.Close()
		if l.owner != nil {
			l.owner.removeListener(l)
		}
	})
	return err
}
