package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-swarm/config"
)

// TestApplyEnvOverrides 测试环境变量覆盖
func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DEP2P_LISTEN_ADDRS", "/ip4/127.0.0.1/tcp/4001, /ip4/127.0.0.1/tcp/4002/ws")
	t.Setenv("DEP2P_ENABLE_QUIC", "yes")
	t.Setenv("DEP2P_METRICS_ADDR", "127.0.0.1:9090")

	cfg := config.NewConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001", "/ip4/127.0.0.1/tcp/4002/ws"}, cfg.Transport.ListenAddrs)
	assert.True(t, cfg.Transport.EnableQUIC)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.ListenAddr)
	assert.Empty(t, cfg.Identity.KeyFile)
}

// TestParseKnownPeers 测试已知节点地址解析
func TestParseKnownPeers(t *testing.T) {
	const id = "12D3KooWGzBzQk8qcnR4Uu6pHKmZJ8yz5J5CEG4F2WnL1tHmkA2E"
	peers := parseKnownPeers("/ip4/1.2.3.4/tcp/1/p2p/" + id + ",/ip4/5.6.7.8/tcp/2/p2p/" + id + ",/ip4/9.9.9.9/tcp/3,/p2p/other")

	require.Len(t, peers, 2)
	assert.Equal(t, id, peers[0].PeerID)
	assert.Equal(t, []string{"/ip4/1.2.3.4/tcp/1", "/ip4/5.6.7.8/tcp/2"}, peers[0].Addrs)
	assert.Equal(t, "other", peers[1].PeerID)
	assert.Empty(t, peers[1].Addrs)
}

// TestParseBool 测试布尔解析
func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "1", "YES", " on "} {
		assert.True(t, parseBool(s), s)
	}
	for _, s := range []string{"false", "0", "", "maybe"} {
		assert.False(t, parseBool(s), s)
	}
}
