package mplex

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// Substream 复用连接上的逻辑字节流
//
// 读端在收到对端关闭/重置、本地 Close/Reset 或复用器拆除后返回 io.EOF。
// 对端半关闭时已缓冲的数据仍可读完。
type Substream struct {
	id        uint64
	name      string
	initiator bool
	mux       *Muxer

	mu         sync.Mutex
	buf        [][]byte
	eof        bool
	wclosed    bool
	reset      bool
	terminated bool
	rdl, wdl   time.Time

	// notify 有数据、EOF 或截止时间变化时唤醒读者
	notify chan struct{}

	closeWriteOnce sync.Once
	closeOnce      sync.Once
}

func newSubstream(id uint64, name string, initiator bool, mux *Muxer) *Substream {
	return &Substream{
		id:        id,
		name:      name,
		initiator: initiator,
		mux:       mux,
		notify:    make(chan struct{}, 1),
	}
}

// ID 返回流 ID
func (s *Substream) ID() uint64 {
	return s.id
}

// Name 返回创建时携带的名称
func (s *Substream) Name() string {
	return s.name
}

// Initiator 是否由本端发起
func (s *Substream) Initiator() bool {
	return s.initiator
}

func (s *Substream) key() streamKey {
	return streamKey{id: s.id, local: s.initiator}
}

// 本端发送时使用的包类型
func (s *Substream) messageType() PacketType {
	if s.initiator {
		return MessageInitiator
	}
	return MessageReceiver
}

func (s *Substream) closeType() PacketType {
	if s.initiator {
		return CloseInitiator
	}
	return CloseReceiver
}

func (s *Substream) resetType() PacketType {
	if s.initiator {
		return ResetInitiator
	}
	return ResetReceiver
}

func (s *Substream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Read 读取数据
func (s *Substream) Read(p []byte) (int, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			n := copy(p, s.buf[0])
			if n == len(s.buf[0]) {
				s.buf[0] = nil
				s.buf = s.buf[1:]
			} else {
				s.buf[0] = s.buf[0][n:]
			}
			s.mu.Unlock()
			return n, nil
		}
		if s.eof {
			s.mu.Unlock()
			return 0, io.EOF
		}
		deadline := s.rdl
		s.mu.Unlock()

		if len(p) == 0 {
			return 0, nil
		}

		if deadline.IsZero() {
			<-s.notify
			continue
		}
		d := time.Until(deadline)
		if d <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		t := time.NewTimer(d)
		select {
		case <-s.notify:
			t.Stop()
		case <-t.C:
			return 0, os.ErrDeadlineExceeded
		}
	}
}

// Write 写入数据，超过单帧上限时拆分为多帧
func (s *Substream) Write(p []byte) (int, error) {
	written := 0
	for {
		s.mu.Lock()
		err := s.writeErrLocked()
		deadline := s.wdl
		s.mu.Unlock()
		if err != nil {
			return written, err
		}
		if len(p) == 0 {
			return written, nil
		}

		n := len(p)
		if n > MaxMessageSize {
			n = MaxMessageSize
		}
		if err := s.send(deadline, s.messageType(), p[:n]); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
}

func (s *Substream) writeErrLocked() error {
	switch {
	case s.reset:
		return ErrStreamReset
	case s.wclosed, s.terminated:
		return ErrStreamClosed
	}
	return nil
}

func (s *Substream) send(deadline time.Time, typ PacketType, payload []byte) error {
	ctx := context.Background()
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}
	err := s.mux.writeFrame(ctx, Header{StreamID: s.id, Type: typ}, payload)
	if errors.Is(err, context.DeadlineExceeded) {
		return os.ErrDeadlineExceeded
	}
	return err
}

// CloseWrite 半关闭：通知对端本端不再发送，仍可继续读取
func (s *Substream) CloseWrite() error {
	var err error
	s.closeWriteOnce.Do(func() {
		s.mu.Lock()
		skip := s.reset || s.wclosed || s.terminated
		s.wclosed = true
		deadline := s.wdl
		s.mu.Unlock()

		if !skip {
			err = s.send(deadline, s.closeType(), nil)
		}
	})
	return err
}

// Close 关闭写端并终止读端，从复用器注销
func (s *Substream) Close() error {
	err := s.CloseWrite()
	s.closeOnce.Do(func() {
		s.terminate(true, false)
		s.mux.removeStream(s)
	})
	if errors.Is(err, ErrMuxerClosed) {
		return nil
	}
	return err
}

// Reset 重置流，双向终止
func (s *Substream) Reset() error {
	s.mu.Lock()
	skip := s.reset || s.terminated
	deadline := s.wdl
	s.mu.Unlock()

	var err error
	if !skip {
		err = s.send(deadline, s.resetType(), nil)
	}
	s.terminate(true, true)
	s.mux.removeStream(s)
	if errors.Is(err, ErrMuxerClosed) {
		return nil
	}
	return err
}

// SetDeadline 设置读写截止时间
func (s *Substream) SetDeadline(t time.Time) error {
	s.mu.Lock()
	s.rdl, s.wdl = t, t
	s.mu.Unlock()
	s.wake()
	return nil
}

// SetReadDeadline 设置读截止时间
func (s *Substream) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.rdl = t
	s.mu.Unlock()
	s.wake()
	return nil
}

// SetWriteDeadline 设置写截止时间
func (s *Substream) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.wdl = t
	s.mu.Unlock()
	return nil
}

// ============================================================================
//                              复用器回调
// ============================================================================

// addData 追加收到的负载
func (s *Substream) addData(b []byte) {
	if len(b) == 0 {
		return
	}
	s.mu.Lock()
	if s.eof {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, b)
	s.mu.Unlock()
	s.wake()
}

// noMoreData 对端关闭写端
func (s *Substream) noMoreData() {
	s.mu.Lock()
	s.eof = true
	s.mu.Unlock()
	s.wake()
}

// terminate 终止流
//
// discard 丢弃未读数据；reset 使后续写返回 ErrStreamReset。
func (s *Substream) terminate(discard, reset bool) {
	s.mu.Lock()
	s.eof = true
	s.terminated = true
	if discard {
		s.buf = nil
	}
	if reset {
		s.reset = true
	}
	s.mu.Unlock()
	s.wake()
}
