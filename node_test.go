package dep2p

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-swarm/config"
	"github.com/dep2p/go-dep2p-swarm/internal/core/mplex"
	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/internal/core/swarm"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// testConfig 回环 TCP、关闭 DNS 与自动拨号
func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Transport.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.Transport.EnableWebSocket = false
	cfg.Transport.DialTimeout = config.Duration(5 * time.Second)
	cfg.Security.NegotiateTimeout = config.Duration(5 * time.Second)
	cfg.Swarm.EnableDNS = false
	cfg.AutoDialer.Enabled = false
	cfg.Log.Level = ""
	cfg.Log.Format = ""
	return cfg
}

func startNode(t *testing.T, opts ...Option) *Node {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := Start(ctx, append([]Option{WithConfig(testConfig())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = n.Close()
	})
	return n
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func echo(_ context.Context, _ *peerconn.PeerConnection, s *mplex.Substream) error {
	_, err := io.Copy(s, s)
	return err
}

// TestNode_Lifecycle 测试启动与关闭
func TestNode_Lifecycle(t *testing.T) {
	n, err := New(WithConfig(testConfig()))
	require.NoError(t, err)

	_, err = n.Connect(context.Background(), "/ip4/127.0.0.1/tcp/1")
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, n.Start(testCtx(t)))
	assert.ErrorIs(t, n.Start(testCtx(t)), ErrAlreadyStarted)

	addrs := n.ListenAddrs()
	require.Len(t, addrs, 1)
	assert.Equal(t, string(n.ID()), ma.GetPeerID(addrs[0]))
	assert.Nil(t, n.Metrics())

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.ErrorIs(t, n.Start(testCtx(t)), ErrNodeClosed)
	assert.Empty(t, n.Swarm().ListenAddresses())

	t.Log("✅ 节点生命周期正确")
}

// TestNode_InvalidConfig 测试配置校验
func TestNode_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnableNoise = false
	_, err := New(WithConfig(cfg))
	assert.Error(t, err)

	_, err = New(WithConfig(nil))
	assert.ErrorIs(t, err, config.ErrNilConfig)

	_, err = New(WithIdentity(nil))
	assert.ErrorIs(t, err, ErrNilIdentity)
}

// TestNode_Stream 测试两个节点间的协议子流
func TestNode_Stream(t *testing.T) {
	a, b := startNode(t), startNode(t)
	b.Handle("/echo/1.0.0", echo)

	conn, err := a.Connect(testCtx(t), b.ListenAddrs()[0].String())
	require.NoError(t, err)
	assert.Equal(t, b.ID(), conn.RemotePeerID())
	assert.Equal(t, 1, a.ConnectionCount())

	st, err := a.NewStream(testCtx(t), b.ID(), "/echo/1.0.0")
	require.NoError(t, err)
	_, err = st.Write([]byte("hello node"))
	require.NoError(t, err)
	require.NoError(t, st.CloseWrite())
	data, err := io.ReadAll(st)
	require.NoError(t, err)
	assert.Equal(t, "hello node", string(data))

	rtt, err := a.Ping(testCtx(t), b.ID())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	b.RemoveHandler("/echo/1.0.0")
	_, err = a.NewStream(testCtx(t), b.ID(), "/echo/1.0.0")
	assert.Error(t, err)

	assert.True(t, a.Disconnect(b.ID()))
	assert.Equal(t, 0, a.ConnectionCount())

	t.Log("✅ 节点间子流回显成功")
}

// TestNode_KnownPeers 测试启动后连接已知节点
func TestNode_KnownPeers(t *testing.T) {
	b := startNode(t)
	addr := ma.WithoutPeerID(b.ListenAddrs()[0])

	a := startNode(t, WithKnownPeers(config.KnownPeer{
		PeerID: string(b.ID()),
		Addrs:  []string{addr.String()},
	}))
	require.Eventually(t, func() bool {
		return a.Swarm().IsConnected(b.ID())
	}, 5*time.Second, 10*time.Millisecond)
}

// TestNode_Policy 测试配置中的黑名单生效
func TestNode_Policy(t *testing.T) {
	b := startNode(t)
	a := startNode(t, WithBlackList("/p2p/"+string(b.ID())))

	_, err := a.Connect(testCtx(t), b.ListenAddrs()[0].String())
	assert.ErrorIs(t, err, swarm.ErrPeerNotAllowed)
}

// TestNode_Identity 测试注入私钥与密钥文件
func TestNode_Identity(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	want, err := types.IDFromPrivateKey(priv)
	require.NoError(t, err)

	n := startNode(t, WithIdentity(priv))
	assert.Equal(t, want, n.ID())

	keyFile := filepath.Join(t.TempDir(), "node.key")
	first := startNode(t, WithKeyFile(keyFile))
	id := first.ID()
	require.NoError(t, first.Close())

	second := startNode(t, WithKeyFile(keyFile))
	assert.Equal(t, id, second.ID(), "重启后身份不变")
}

// TestNode_ConfigFile 测试从 TOML 文件启动
func TestNode_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dep2p.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[transport]
listen_addrs = ["/ip4/127.0.0.1/tcp/0"]
enable_websocket = false

[swarm]
enable_dns = false
agent_version = "test-agent/1.0"

[auto_dialer]
enabled = false
`), 0o600))

	n, err := Start(testCtx(t), WithConfigFile(path))
	require.NoError(t, err)
	defer n.Close()
	require.Len(t, n.ListenAddrs(), 1)

	_, err = New(WithConfigFile(filepath.Join(t.TempDir(), "missing.toml")))
	assert.Error(t, err)
}

// TestNode_Metrics 测试指标注册
func TestNode_Metrics(t *testing.T) {
	a := startNode(t, WithMetrics(""))
	b := startNode(t)
	require.NotNil(t, a.Metrics())

	_, err := a.Connect(testCtx(t), b.ListenAddrs()[0].String())
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(a.Metrics())
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}
