// Package memory 实现进程内传输 /memory/<id>
//
// 连接为 net.Pipe，同一进程内的所有 Transport 共享监听表。
package memory

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

var logger = log.Logger("core/transport/memory")

var (
	// listeners id -> *Listener
	listeners sync.Map
	nextID    atomic.Uint64
)

func init() {
	nextID.Store(1 << 32)
}

// Transport 进程内传输
type Transport struct {
	mu     sync.Mutex
	owned  map[*Listener]struct{}
	closed bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建进程内传输
func New() *Transport {
	return &Transport{owned: make(map[*Listener]struct{})}
}

// Protocols 返回 ["memory"]
func (t *Transport) Protocols() []string {
	return []string{"memory"}
}

// CanDial 地址是否为 /memory/<id>[/p2p/<peer>]
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	_, err := memoryID(addr)
	return err == nil
}

// Dial 连接到同进程内的监听器
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (transport.Conn, error) {
	id, err := memoryID(raddr)
	if err != nil {
		return nil, err
	}
	v, ok := listeners.Load(id)
	if !ok {
		return nil, fmt.Errorf("memory: dial %d: connection refused", id)
	}
	l := v.(*Listener)

	local := ma.StringCast("/memory/" + strconv.FormatUint(nextID.Add(1), 10))
	c1, c2 := net.Pipe()
	select {
	case l.incoming <- transport.WrapConn(c2, l.addr, local):
		return transport.WrapConn(c1, local, l.addr), nil
	case <-l.closed:
		c1.Close()
		c2.Close()
		return nil, fmt.Errorf("memory: dial %d: connection refused", id)
	case <-ctx.Done():
		c1.Close()
		c2.Close()
		return nil, ctx.Err()
	}
}

// Listen 监听 /memory/<id>，id 为 0 时自动分配
func (t *Transport) Listen(laddr ma.Multiaddr) (transport.Listener, error) {
	id, err := memoryID(laddr)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		id = nextID.Add(1)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrTransportClosed
	}

	l := &Listener{
		id:       id,
		addr:     ma.StringCast("/memory/" + strconv.FormatUint(id, 10)),
		owner:    t,
		incoming: make(chan transport.Conn),
		closed:   make(chan struct{}),
	}
	if _, loaded := listeners.LoadOrStore(id, l); loaded {
		return nil, fmt.Errorf("memory: listen %d: address in use", id)
	}
	t.owned[l] = struct{}{}
	logger.Debug("开始监听", "addr", l.addr)
	return l, nil
}

// Close 关闭全部监听器
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	ls := make([]*Listener, 0, len(t.owned))
	for l := range t.owned {
		ls = append(ls, l)
	}
	t.mu.Unlock()

	for _, l := range ls {
		_ = l.Close()
	}
	return nil
}

func (t *Transport) removeListener(l *Listener) {
	t.mu.Lock()
	delete(t.owned, l)
	t.mu.Unlock()
}

func memoryID(addr ma.Multiaddr) (uint64, error) {
	if addr == nil {
		return 0, transport.ErrInvalidAddress
	}
	base := ma.WithoutPeerID(addr)
	if base == nil || len(base.Protocols()) != 1 || base.Protocols()[0].Code != ma.P_MEMORY {
		return 0, fmt.Errorf("%w: %s", transport.ErrInvalidAddress, addr)
	}
	v, err := base.ValueForProtocol(ma.P_MEMORY)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}
