package memory

import (
	"net"
	"strconv"
	"sync"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// Listener 进程内监听器
type Listener struct {
	id        uint64
	addr      ma.Multiaddr
	owner     *Transport
	incoming  chan transport.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

var _ transport.Listener = (*Listener)(nil)

// Accept 等待下一个连接
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
	return addr(l.id)
}

// Multiaddr 返回 /memory/<id>
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

// Close 关闭监听器
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		listeners.CompareAndDelete(l.id, l)
		l.owner.removeListener(l)
	})
	return nil
}

type addr uint64

func (a addr) Network() string { return "memory" }

func (a addr) String() string { return strconv.FormatUint(uint64(a), 10) }
