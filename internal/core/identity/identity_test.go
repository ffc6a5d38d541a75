package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// TestPrivateKeyPEM 测试私钥文件保存与加载
func TestPrivateKeyPEM(t *testing.T) {
	for _, kt := range []crypto.KeyType{crypto.KeyTypeEd25519, crypto.KeyTypeSecp256k1} {
		kt := kt
		t.Run(kt.String(), func(t *testing.T) {
			priv, _, err := crypto.GenerateKeyPair(kt)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "node.key")
			require.NoError(t, SavePrivateKeyPEM(priv, path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

			loaded, err := LoadPrivateKeyPEM(path)
			require.NoError(t, err)
			assert.True(t, crypto.KeyEqual(priv, loaded))
		})
	}

	_, err := LoadPrivateKeyPEM(filepath.Join(t.TempDir(), "missing.key"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	bad := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o600))
	_, err = LoadPrivateKeyPEM(bad)
	assert.ErrorIs(t, err, ErrInvalidPEM)

	t.Log("✅ 私钥持久化正确")
}

// TestLoadOrGenerate 测试加载优先级
func TestLoadOrGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	// 文件不存在时生成并保存
	first, err := LoadOrGenerate(Config{KeyType: crypto.KeyTypeEd25519, KeyFile: path, AutoGenerate: true})
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	// 再次加载得到同一身份
	second, err := LoadOrGenerate(Config{KeyFile: path})
	require.NoError(t, err)
	assert.True(t, crypto.KeyEqual(first, second))

	// 注入的私钥优先
	injected, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	got, err := LoadOrGenerate(Config{PrivateKey: injected, KeyFile: path})
	require.NoError(t, err)
	assert.Same(t, injected, got)

	_, err = LoadOrGenerate(Config{KeyFile: filepath.Join(t.TempDir(), "missing.key")})
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = LoadOrGenerate(Config{})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

// TestModule 测试 Fx 模块提供私钥与 PeerID
func TestModule(t *testing.T) {
	var (
		priv crypto.PrivateKey
		id   types.PeerID
	)
	app := fx.New(
		Module(),
		fx.Populate(&priv, &id),
		fx.NopLogger,
	)
	require.NoError(t, app.Err())
	require.NotNil(t, priv)

	want, err := types.IDFromPrivateKey(priv)
	require.NoError(t, err)
	assert.Equal(t, want, id)
}
