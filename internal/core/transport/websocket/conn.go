package websocket

import (
	"io"
	"net"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// Conn 以二进制消息承载字节流的 net.Conn
//
// gorilla/websocket 只允许一个并发读者和一个并发写者，这里分别加锁。
type Conn struct {
	ws *ws.Conn

	rmu    sync.Mutex
	reader io.Reader

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ net.Conn = (*Conn)(nil)

func newConn(c *ws.Conn) *Conn {
	return &Conn{ws: c}
}

// Read 读取当前消息，消息读完后继续读下一条
func (c *Conn) Read(b []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		if c.reader == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != ws.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(b)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write 每次写入作为一条二进制消息
func (c *Conn) Write(b []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(ws.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close 发送关闭帧后关闭底层连接
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.ws.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
