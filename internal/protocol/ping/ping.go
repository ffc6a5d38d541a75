// Package ping 实现 /ipfs/ping/1.0.0
//
// 请求方写出 32 字节随机数据，响应方原样回显，往返时间记为对端延迟。
package ping

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/dep2p/go-dep2p-swarm/internal/core/mplex"
	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
)

var logger = log.Logger("protocol/ping")

// ProtocolID 协议名
const ProtocolID = "/ipfs/ping/1.0.0"

const (
	// PingSize 每次 ping 的字节数
	PingSize = 32

	// HandlerIdleTimeout 响应方空闲超时
	HandlerIdleTimeout = 60 * time.Second
)

// ErrDataMismatch 回显数据不一致
var ErrDataMismatch = errors.New("ping: echo data mismatch")

// Service ping 服务
type Service struct{}

var _ peerconn.Protocol = (*Service)(nil)

// New 创建 ping 服务
func New() *Service {
	return &Service{}
}

// ID 协议名
func (s *Service) ID() string {
	return ProtocolID
}

// Handle 回显对端数据直到对端关闭
func (s *Service) Handle(ctx context.Context, conn *peerconn.PeerConnection, st *mplex.Substream) error {
	buf := make([]byte, PingSize)
	for {
		_ = st.SetReadDeadline(time.Now().Add(HandlerIdleTimeout))
		if _, err := io.ReadFull(st, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if _, err := st.Write(buf); err != nil {
			return err
		}
	}
}

// Ping 测量到连接对端的往返时间，并记录为对端延迟
func (s *Service) Ping(ctx context.Context, conn *peerconn.PeerConnection) (time.Duration, error) {
	st, err := conn.NewStream(ctx, ProtocolID)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(dl)
	}

	buf := make([]byte, PingSize)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := st.Write(buf); err != nil {
		return 0, err
	}
	echo := make([]byte, PingSize)
	if _, err := io.ReadFull(st, echo); err != nil {
		return 0, err
	}
	rtt := time.Since(start)

	if !bytes.Equal(buf, echo) {
		return 0, ErrDataMismatch
	}
	if p := conn.RemotePeer(); p != nil {
		p.SetLatency(rtt)
	}
	logger.Debug("ping 完成", "peer", conn.RemotePeerID().ShortString(), "rtt", rtt)
	return rtt, nil
}
