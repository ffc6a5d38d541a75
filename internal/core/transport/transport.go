package transport

import (
	"context"
	"net"

	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// Conn 传输层原始连接
type Conn interface {
	net.Conn

	// LocalMultiaddr 本端多地址
	LocalMultiaddr() ma.Multiaddr

	// RemoteMultiaddr 对端多地址
	RemoteMultiaddr() ma.Multiaddr
}

// Listener 传输层监听器
type Listener interface {
	// Accept 阻塞直到有新连接；关闭后返回 ErrListenerClosed
	Accept() (Conn, error)

	Close() error

	Addr() net.Addr

	// Multiaddr 实际监听地址（端口 0 已替换为分配的端口）
	Multiaddr() ma.Multiaddr
}

// Transport 传输
type Transport interface {
	// Dial 建立出站连接
	Dial(ctx context.Context, raddr ma.Multiaddr) (Conn, error)

	// Listen 监听入站连接
	Listen(laddr ma.Multiaddr) (Listener, error)

	// CanDial 是否能拨号该地址
	CanDial(addr ma.Multiaddr) bool

	// Protocols 传输处理的多地址协议名
	Protocols() []string

	Close() error
}

// ============================================================================
//                              连接包装
// ============================================================================

type wrappedConn struct {
	net.Conn
	laddr ma.Multiaddr
	raddr ma.Multiaddr
}

// WrapConn 为 net.Conn 附加多地址
func WrapConn(c net.Conn, laddr, raddr ma.Multiaddr) Conn {
	return &wrappedConn{Conn: c, laddr: laddr, raddr: raddr}
}

func (c *wrappedConn) LocalMultiaddr() ma.Multiaddr {
	return c.laddr
}

func (c *wrappedConn) RemoteMultiaddr() ma.Multiaddr {
	return c.raddr
}

// ThinWaist 地址是否为 /ip4|ip6/<host>/<tcp|udp>/<port> 后接 suffix 的形式
//
// 末尾的 /p2p/ 组件被忽略。各传输的 CanDial 以此判断地址形状。
func ThinWaist(addr ma.Multiaddr, transport int, suffix ...int) bool {
	if addr == nil {
		return false
	}
	addr = ma.WithoutPeerID(addr)
	if addr == nil {
		return false
	}
	protos := addr.Protocols()
	if len(protos) != 2+len(suffix) {
		return false
	}
	switch protos[0].Code {
	case ma.P_IP4, ma.P_IP6:
	default:
		return false
	}
	if protos[1].Code != transport {
		return false
	}
	for i, code := range suffix {
		if protos[2+i].Code != code {
			return false
		}
	}
	return true
}
