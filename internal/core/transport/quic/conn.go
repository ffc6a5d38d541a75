package quic

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// Conn 以单条双向流承载的 QUIC 连接
type Conn struct {
	quic.Stream
	qc    quic.Connection
	laddr ma.Multiaddr
	raddr ma.Multiaddr

	closeOnce sync.Once
	closeErr  error
}

var _ transport.Conn = (*Conn)(nil)

func newConn(qc quic.Connection, s quic.Stream) (*Conn, error) {
	laddr, err := toMultiaddr(qc.LocalAddr())
	if err != nil {
		return nil, err
	}
	raddr, err := toMultiaddr(qc.RemoteAddr())
	if err != nil {
		return nil, err
	}
	return &Conn{Stream: s, qc: qc, laddr: laddr, raddr: raddr}, nil
}

// Read 对端正常关闭连接时返回 io.EOF
func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Stream.Read(b)
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && appErr.ErrorCode == 0 {
		err = io.EOF
	}
	return n, err
}

// Close 关闭流和 QUIC 连接
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.Stream.Close()
		c.closeErr = c.qc.CloseWithError(0, "")
	})
	return c.closeErr
}

func (c *Conn) LocalAddr() net.Addr {
	return c.qc.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.qc.RemoteAddr()
}

// LocalMultiaddr 本端多地址
func (c *Conn) LocalMultiaddr() ma.Multiaddr {
	return c.laddr
}

// RemoteMultiaddr 对端多地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr {
	return c.raddr
}

var quicComponent = ma.StringCast("/quic-v1")

func toMultiaddr(a net.Addr) (ma.Multiaddr, error) {
	base, err := ma.FromNetAddr(a)
	if err != nil {
		return nil, err
	}
	return base.Encapsulate(quicComponent), nil
}
