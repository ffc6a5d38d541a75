// Package mplex 实现 mplex 流复用协议 (/mplex/6.7.0)
//
// 帧格式：uvarint(streamID<<3 | type) uvarint(len) payload。
// 所有写入由一把写锁串行化；读取由 ProcessRequests 单协程完成。
package mplex

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
)

var logger = log.Logger("core/mplex")

// ProtocolID mplex 协议标识
const ProtocolID = "/mplex/6.7.0"

// streamKey 流标识：ID 加上是否由本端发起
type streamKey struct {
	id    uint64
	local bool
}

func (k streamKey) String() string {
	if k.local {
		return fmt.Sprintf("%d/local", k.id)
	}
	return fmt.Sprintf("%d/remote", k.id)
}

// Muxer mplex 复用器
type Muxer struct {
	channel io.ReadWriteCloser
	reader  *bufio.Reader
	// owner 读循环退出时关闭的所属连接，为 nil 时关闭 channel
	owner io.Closer

	wlock *semaphore.Weighted

	mu        sync.Mutex
	nextID    uint64
	streams   map[streamKey]*Substream
	onCreated []func(*Substream)
	onClosed  []func(*Substream)

	closed    chan struct{}
	closeOnce sync.Once
}

// NewMuxer 在 channel 上创建复用器
//
// owner 可为 nil。调用方需要另起协程运行 ProcessRequests。
func NewMuxer(channel io.ReadWriteCloser, owner io.Closer) *Muxer {
	return &Muxer{
		channel: channel,
		reader:  bufio.NewReader(channel),
		owner:   owner,
		wlock:   semaphore.NewWeighted(1),
		streams: make(map[streamKey]*Substream),
		closed:  make(chan struct{}),
	}
}

// OnStreamCreated 注册对端新建流回调
//
// 回调在读循环中同步执行，不得阻塞。
func (m *Muxer) OnStreamCreated(fn func(*Substream)) {
	m.mu.Lock()
	m.onCreated = append(m.onCreated, fn)
	m.mu.Unlock()
}

// OnStreamClosed 注册流注销回调，每个流至多触发一次
func (m *Muxer) OnStreamClosed(fn func(*Substream)) {
	m.mu.Lock()
	m.onClosed = append(m.onClosed, fn)
	m.mu.Unlock()
}

// CreateStream 新建本端发起的流
//
// 流在发送 NewStream 帧前注册，不等待对端确认。
func (m *Muxer) CreateStream(ctx context.Context, name string) (*Substream, error) {
	if m.IsClosed() {
		return nil, ErrMuxerClosed
	}

	m.mu.Lock()
	if m.nextID > MaxStreamID {
		m.mu.Unlock()
		return nil, ErrStreamIDOverflow
	}
	id := m.nextID
	m.nextID++
	s := newSubstream(id, name, true, m)
	m.streams[s.key()] = s
	m.mu.Unlock()

	logger.Debug("创建流", "stream", s.key(), "name", name)

	if err := m.writeFrame(ctx, Header{StreamID: id, Type: NewStream}, []byte(name)); err != nil {
		s.terminate(true, false)
		m.removeStream(s)
		return nil, fmt.Errorf("send new stream: %w", err)
	}
	return s, nil
}

// ProcessRequests 读循环，直到连接结束、出错或 ctx 取消
//
// 退出时关闭所属连接（无所属连接时关闭 channel）并终止所有剩余流。
// 正常结束（EOF、取消、本地关闭）返回 nil。
func (m *Muxer) ProcessRequests(ctx context.Context) (err error) {
	stop := context.AfterFunc(ctx, func() {
		_ = m.channel.Close()
	})
	defer stop()
	defer m.teardown()

	for {
		hdr, payload, rerr := ReadFrame(m.reader)
		if rerr != nil {
			if m.benignReadError(ctx, rerr) {
				return nil
			}
			logger.Warn("读取帧失败", "error", rerr)
			return rerr
		}

		key := streamKey{id: hdr.StreamID, local: hdr.Type.localInitiated()}

		switch hdr.Type {
		case NewStream:
			m.mu.Lock()
			if _, exists := m.streams[key]; exists {
				m.mu.Unlock()
				logger.Warn("流已存在", "stream", key)
				continue
			}
			s := newSubstream(hdr.StreamID, string(payload), false, m)
			m.streams[key] = s
			handlers := slices.Clone(m.onCreated)
			m.mu.Unlock()

			logger.Debug("对端创建流", "stream", key, "name", s.name)
			for _, fn := range handlers {
				fn(s)
			}

		case MessageReceiver, MessageInitiator:
			s := m.lookup(key)
			if s == nil {
				logger.Debug("未知流的消息", "stream", key)
				continue
			}
			s.addData(payload)

		case CloseReceiver, CloseInitiator:
			s := m.lookup(key)
			if s == nil {
				logger.Debug("未知流的关闭", "stream", key)
				continue
			}
			s.noMoreData()
			m.removeStream(s)

		case ResetReceiver, ResetInitiator:
			s := m.lookup(key)
			if s == nil {
				logger.Debug("未知流的重置", "stream", key)
				continue
			}
			logger.Debug("对端重置流", "stream", key)
			s.terminate(true, true)
			m.removeStream(s)

		default:
			logger.Warn("未知包类型", "type", hdr.Type, "stream", hdr.StreamID)
			return fmt.Errorf("%w: %d", ErrUnknownPacketType, uint8(hdr.Type))
		}
	}
}

func (m *Muxer) benignReadError(ctx context.Context, err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return ctx.Err() != nil || m.IsClosed()
}

func (m *Muxer) lookup(key streamKey) *Substream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[key]
}

// removeStream 注销流，注销成功时触发关闭回调
func (m *Muxer) removeStream(s *Substream) {
	m.mu.Lock()
	cur, ok := m.streams[s.key()]
	if !ok || cur != s {
		m.mu.Unlock()
		return
	}
	delete(m.streams, s.key())
	handlers := slices.Clone(m.onClosed)
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(s)
	}
}

// writeFrame 在写锁内发送一帧
func (m *Muxer) writeFrame(ctx context.Context, h Header, payload []byte) error {
	if err := m.wlock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.wlock.Release(1)

	if m.IsClosed() {
		return ErrMuxerClosed
	}
	return WriteFrame(m.channel, h, payload)
}

// teardown 读循环退出后的清理
func (m *Muxer) teardown() {
	m.markClosed()
	if m.owner != nil {
		_ = m.owner.Close()
	} else {
		_ = m.channel.Close()
	}
	m.terminateAll()
}

func (m *Muxer) markClosed() bool {
	first := false
	m.closeOnce.Do(func() {
		close(m.closed)
		first = true
	})
	return first
}

func (m *Muxer) terminateAll() {
	m.mu.Lock()
	streams := make([]*Substream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.Unlock()

	for _, s := range streams {
		s.terminate(false, false)
		m.removeStream(s)
	}
}

// Close 关闭复用器与底层 channel，终止所有流
func (m *Muxer) Close() error {
	if !m.markClosed() {
		return nil
	}
	err := m.channel.Close()
	m.terminateAll()
	return err
}

// IsClosed 是否已关闭
func (m *Muxer) IsClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// Done 关闭时返回的通道
func (m *Muxer) Done() <-chan struct{} {
	return m.closed
}

// NumStreams 当前注册的流数量
func (m *Muxer) NumStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Streams 当前注册的流
func (m *Muxer) Streams() []*Substream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Substream, 0, len(m.streams))
	for _, s := range m.streams {
		out = append(out, s)
	}
	return out
}
