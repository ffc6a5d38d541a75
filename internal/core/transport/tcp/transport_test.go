package tcp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-swarm/internal/core/transport"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// TestTransport_CanDial 测试地址判断
func TestTransport_CanDial(t *testing.T) {
	tr := New()
	assert.True(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001")))
	assert.True(t, tr.CanDial(ma.StringCast("/ip6/::1/tcp/4001")))
	assert.True(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001/p2p/QmYyQSo1c1Ym7orWxLYvCrM2EmxFTANf8wXmmE7DWjhx5N")))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001/ws")))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/udp/4001/quic-v1")))
	assert.False(t, tr.CanDial(ma.StringCast("/dns4/example.com/tcp/4001")))
}

// TestTransport_DialListen 测试回环拨号与收发
func TestTransport_DialListen(t *testing.T) {
	tr := New()
	defer tr.Close()

	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer l.Close()

	port, err := l.Multiaddr().ValueForProtocol(ma.P_TCP)
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)

	accepted := make(chan transport.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := tr.Dial(ctx, l.Multiaddr())
	require.NoError(t, err)
	defer out.Close()

	var in transport.Conn
	select {
	case in = <-accepted:
	case <-ctx.Done():
		t.Fatal("未接受连接")
	}
	defer in.Close()

	assert.True(t, out.RemoteMultiaddr().Equal(l.Multiaddr()))
	assert.True(t, in.RemoteMultiaddr().Equal(out.LocalMultiaddr()))

	_, err = out.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(in, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	t.Log("✅ TCP 收发成功")
}

// TestListener_Close 测试关闭后 Accept 返回
func TestListener_Close(t *testing.T) {
	tr := New()
	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		errCh <- err
	}()

	require.NoError(t, tr.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, transport.ErrListenerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept 未返回")
	}

	_, err = tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	assert.ErrorIs(t, err, transport.ErrTransportClosed)
	_, err = tr.Dial(context.Background(), ma.StringCast("/ip4/127.0.0.1/tcp/1"))
	assert.ErrorIs(t, err, transport.ErrTransportClosed)
}
