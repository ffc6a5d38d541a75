package mplex

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//                              帧编解码
// ============================================================================

// TestWriteFrame 测试帧编码
func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Header{StreamID: 1, Type: NewStream}, []byte("a")))
	assert.Equal(t, []byte{0x08, 0x01, 'a'}, buf.Bytes())

	buf.Reset()
	require.NoError(t, WriteFrame(&buf, Header{StreamID: 17, Type: MessageInitiator}, nil))
	// 17<<3|2 = 138 = 0x8a 0x01
	assert.Equal(t, []byte{0x8a, 0x01, 0x00}, buf.Bytes())

	h, payload, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, Header{StreamID: 17, Type: MessageInitiator}, h)
	assert.Empty(t, payload)

	t.Log("✅ 帧编码正确")
}

// TestReadFrame_Limits 测试帧上限
func TestReadFrame_Limits(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00})
	buf.Write(varintBytes(MaxMessageSize + 1))
	_, _, err := ReadFrame(bufio.NewReader(&buf))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	buf.Reset()
	buf.Write(varintBytes((MaxStreamID + 1) << 3))
	_, _, err = ReadFrame(bufio.NewReader(&buf))
	assert.Error(t, err)

	err = WriteFrame(io.Discard, Header{StreamID: MaxStreamID + 1}, nil)
	assert.ErrorIs(t, err, ErrStreamIDOverflow)

	err = WriteFrame(io.Discard, Header{}, make([]byte, MaxMessageSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	// 截断的负载
	buf.Reset()
	buf.Write([]byte{0x08, 0x05, 'a'})
	_, _, err = ReadFrame(bufio.NewReader(&buf))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func varintBytes(v uint64) []byte {
	var out []byte
	for v >= 0x80 {
		out = append(out, byte(v)|0x80)
		v >>= 7
	}
	return append(out, byte(v))
}

// TestPacketType_LocalInitiated 测试接收方向判定
func TestPacketType_LocalInitiated(t *testing.T) {
	assert.False(t, NewStream.localInitiated())
	assert.True(t, MessageReceiver.localInitiated())
	assert.False(t, MessageInitiator.localInitiated())
	assert.True(t, CloseReceiver.localInitiated())
	assert.False(t, CloseInitiator.localInitiated())
	assert.True(t, ResetReceiver.localInitiated())
	assert.False(t, ResetInitiator.localInitiated())
}

// ============================================================================
//                              复用器
// ============================================================================

// rawPeer 直接读写帧的对端
type rawPeer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newRawPair(t *testing.T) (*Muxer, *rawPeer) {
	c1, c2 := net.Pipe()
	t.Cleanup(func() {
		c1.Close()
		c2.Close()
	})
	return NewMuxer(c1, nil), &rawPeer{t: t, conn: c2, r: bufio.NewReader(c2)}
}

func (p *rawPeer) send(id uint64, typ PacketType, payload string) {
	p.t.Helper()
	require.NoError(p.t, WriteFrame(p.conn, Header{StreamID: id, Type: typ}, []byte(payload)))
}

func (p *rawPeer) recv() (Header, []byte) {
	p.t.Helper()
	h, payload, err := ReadFrame(p.r)
	require.NoError(p.t, err)
	return h, payload
}

func run(m *Muxer) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- m.ProcessRequests(context.Background())
	}()
	return done
}

func collectCreated(m *Muxer) <-chan *Substream {
	ch := make(chan *Substream, 16)
	m.OnStreamCreated(func(s *Substream) {
		ch <- s
	})
	return ch
}

func nextStream(t *testing.T, ch <-chan *Substream) *Substream {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("等待新流超时")
		return nil
	}
}

// TestMuxer_CreateStream 测试流 ID 从 0 开始单调递增
func TestMuxer_CreateStream(t *testing.T) {
	m, peer := newRawPair(t)

	errCh := make(chan error, 1)
	go func() {
		for _, name := range []string{"a", "b", "c"} {
			s, err := m.CreateStream(context.Background(), name)
			if err != nil {
				errCh <- err
				return
			}
			assert.True(t, s.Initiator())
		}
		errCh <- nil
	}()

	for i, name := range []string{"a", "b", "c"} {
		h, payload := peer.recv()
		assert.Equal(t, uint64(i), h.StreamID)
		assert.Equal(t, NewStream, h.Type)
		assert.Equal(t, name, string(payload))
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, 3, m.NumStreams())

	t.Log("✅ 流 ID 单调递增")
}

// TestMuxer_Demux 测试交错帧按流分发
func TestMuxer_Demux(t *testing.T) {
	m, peer := newRawPair(t)
	created := collectCreated(m)
	done := run(m)

	peer.send(0, NewStream, "a")
	peer.send(1, NewStream, "b")
	peer.send(0, MessageInitiator, "x")
	peer.send(1, MessageInitiator, "y")
	peer.send(0, MessageInitiator, "z")
	peer.send(0, CloseInitiator, "")

	s0 := nextStream(t, created)
	s1 := nextStream(t, created)
	assert.Equal(t, "a", s0.Name())
	assert.Equal(t, "b", s1.Name())
	assert.False(t, s0.Initiator())

	data, err := io.ReadAll(s0)
	require.NoError(t, err)
	assert.Equal(t, "xz", string(data))

	buf := make([]byte, 8)
	n, err := s1.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "y", string(buf[:n]))

	peer.conn.Close()
	require.NoError(t, <-done)

	// 拆除后读取返回 EOF
	_, err = s1.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	t.Log("✅ 交错帧分发正确")
}

// TestMuxer_SameIDBothDirections 测试同一 ID 在两个方向上互不干扰
func TestMuxer_SameIDBothDirections(t *testing.T) {
	m, peer := newRawPair(t)
	created := collectCreated(m)
	run(m)

	go func() {
		_, _ = m.CreateStream(context.Background(), "mine")
	}()
	h, _ := peer.recv()
	require.Equal(t, uint64(0), h.StreamID)

	peer.send(0, NewStream, "theirs")
	theirs := nextStream(t, created)

	// 发往本端发起的 0 号流
	peer.send(0, MessageReceiver, "to-mine")
	// 发往对端发起的 0 号流
	peer.send(0, MessageInitiator, "to-theirs")

	buf := make([]byte, 32)
	n, err := theirs.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "to-theirs", string(buf[:n]))
	assert.Equal(t, 2, m.NumStreams())
}

// TestMuxer_UnknownStream 测试未知流与重复流被忽略
func TestMuxer_UnknownStream(t *testing.T) {
	m, peer := newRawPair(t)
	created := collectCreated(m)
	done := run(m)

	peer.send(9, MessageInitiator, "lost")
	peer.send(9, CloseInitiator, "")
	peer.send(9, ResetInitiator, "")
	peer.send(3, NewStream, "first")
	peer.send(3, NewStream, "dup")
	peer.send(3, MessageInitiator, "ok")

	s := nextStream(t, created)
	assert.Equal(t, "first", s.Name())

	buf := make([]byte, 8)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf[:n]))
	assert.Len(t, created, 0)

	select {
	case err := <-done:
		t.Fatalf("读循环意外退出: %v", err)
	default:
	}

	t.Log("✅ 未知流被容忍")
}

// TestMuxer_FatalFraming 测试未知包类型终止复用器
func TestMuxer_FatalFraming(t *testing.T) {
	m, peer := newRawPair(t)
	created := collectCreated(m)
	done := run(m)

	peer.send(0, NewStream, "victim")
	victim := nextStream(t, created)

	peer.send(0, PacketType(7), "")

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrUnknownPacketType)
	case <-time.After(2 * time.Second):
		t.Fatal("读循环未退出")
	}

	assert.True(t, m.IsClosed())
	_, err := victim.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	_, err = victim.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrStreamClosed)
	_, err = m.CreateStream(context.Background(), "late")
	assert.ErrorIs(t, err, ErrMuxerClosed)

	t.Log("✅ 非法帧拆除复用器")
}

type countingCloser struct {
	n atomic.Int32
}

func (c *countingCloser) Close() error {
	c.n.Add(1)
	return nil
}

// TestMuxer_ClosesOwner 测试读循环退出时关闭所属连接
func TestMuxer_ClosesOwner(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	owner := &countingCloser{}
	m := NewMuxer(c1, owner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.ProcessRequests(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("取消后读循环未退出")
	}
	assert.Equal(t, int32(1), owner.n.Load())
	c2.Close()
}

// ============================================================================
//                              成对复用器
// ============================================================================

func newMuxerPair(t *testing.T) (a, b *Muxer, bCreated <-chan *Substream) {
	c1, c2 := net.Pipe()
	a = NewMuxer(c1, nil)
	b = NewMuxer(c2, nil)
	bCreated = collectCreated(b)
	run(a)
	run(b)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b, bCreated
}

// TestSubstream_Echo 测试双向读写与半关闭
func TestSubstream_Echo(t *testing.T) {
	a, _, created := newMuxerPair(t)

	s, err := a.CreateStream(context.Background(), "echo")
	require.NoError(t, err)
	remote := nextStream(t, created)

	go func() {
		data, _ := io.ReadAll(remote)
		_, _ = remote.Write(data)
		_ = remote.Close()
	}()

	_, err = s.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, s.CloseWrite())

	// 半关闭后写失败，读仍可用
	_, err = s.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrStreamClosed)

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	t.Log("✅ 回显成功")
}

// TestSubstream_LargeWrite 测试大块写入拆分
func TestSubstream_LargeWrite(t *testing.T) {
	a, _, created := newMuxerPair(t)

	payload := bytes.Repeat([]byte{0xab}, MaxMessageSize+100)
	s, err := a.CreateStream(context.Background(), "")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Write(payload)
		if err == nil {
			err = s.CloseWrite()
		}
		errCh <- err
	}()

	remote := nextStream(t, created)
	got, err := io.ReadAll(remote)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, len(payload), len(got))
	assert.True(t, bytes.Equal(payload, got))
}

// TestSubstream_Reset 测试重置
func TestSubstream_Reset(t *testing.T) {
	a, _, created := newMuxerPair(t)

	closedCh := make(chan *Substream, 1)
	a.OnStreamClosed(func(s *Substream) {
		closedCh <- s
	})

	s, err := a.CreateStream(context.Background(), "")
	require.NoError(t, err)
	remote := nextStream(t, created)

	require.NoError(t, remote.Reset())
	_, err = remote.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrStreamReset)

	// 本端读到 EOF，写失败
	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	_, err = s.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrStreamReset)

	select {
	case closed := <-closedCh:
		assert.Same(t, s, closed)
	case <-time.After(time.Second):
		t.Fatal("未触发关闭回调")
	}
	assert.Equal(t, 0, a.NumStreams())
}

// TestSubstream_Close 测试关闭后读写
func TestSubstream_Close(t *testing.T) {
	a, _, created := newMuxerPair(t)

	s, err := a.CreateStream(context.Background(), "")
	require.NoError(t, err)
	remote := nextStream(t, created)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, a.NumStreams())

	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	_, err = s.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrStreamClosed)

	_, err = remote.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

// TestSubstream_ReadDeadline 测试读截止时间
func TestSubstream_ReadDeadline(t *testing.T) {
	a, _, _ := newMuxerPair(t)

	s, err := a.CreateStream(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, s.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	start := time.Now()
	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

// TestMuxer_Close 测试关闭复用器终止所有流
func TestMuxer_Close(t *testing.T) {
	a, _, _ := newMuxerPair(t)

	s1, err := a.CreateStream(context.Background(), "")
	require.NoError(t, err)
	s2, err := a.CreateStream(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, a.Streams(), 2)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	for _, s := range []*Substream{s1, s2} {
		_, err := s.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)
	}
	assert.Equal(t, 0, a.NumStreams())
}
