package main

import (
	"os"
	"strings"

	"github.com/dep2p/go-dep2p-swarm/config"
)

// ============================================================================
//                              环境变量覆盖
// ============================================================================

const envPrefix = "DEP2P_"

type envVar struct {
	name  string
	usage string
	apply func(cfg *config.Config, v string)
}

// envVars 支持的环境变量，均使用 DEP2P_ 前缀
var envVars = []envVar{
	{"LISTEN_ADDRS", "监听地址，逗号分隔", func(cfg *config.Config, v string) {
		cfg.Transport.ListenAddrs = splitAndTrim(v, ",")
	}},
	{"IDENTITY_KEY_FILE", "身份密钥文件", func(cfg *config.Config, v string) {
		cfg.Identity.KeyFile = v
	}},
	{"ENABLE_QUIC", "启用 QUIC 传输 (true/false)", func(cfg *config.Config, v string) {
		cfg.Transport.EnableQUIC = parseBool(v)
	}},
	{"PSK_FILE", "私有网络密钥文件", func(cfg *config.Config, v string) {
		cfg.Security.PSKFile = v
	}},
	{"KNOWN_PEERS", "已知节点地址（含 /p2p/），逗号分隔", func(cfg *config.Config, v string) {
		cfg.KnownPeers = append(cfg.KnownPeers, parseKnownPeers(v)...)
	}},
	{"LOG_FILE", "日志文件路径", func(cfg *config.Config, v string) {
		cfg.Log.File = v
	}},
	{"METRICS_ADDR", "Prometheus 指标监听地址", func(cfg *config.Config, v string) {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = v
	}},
}

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// DEP2P_LOG_LEVEL / DEP2P_LOG_FORMAT 由日志包直接读取。
func applyEnvOverrides(cfg *config.Config) {
	for _, e := range envVars {
		if v := os.Getenv(envPrefix + e.name); v != "" {
			e.apply(cfg, v)
		}
	}
}

// parseKnownPeers 解析 /.../p2p/<id> 形式的地址列表，按节点 ID 合并
func parseKnownPeers(s string) []config.KnownPeer {
	var out []config.KnownPeer
	index := make(map[string]int)
	for _, addr := range splitAndTrim(s, ",") {
		i := strings.LastIndex(addr, "/p2p/")
		if i < 0 {
			continue
		}
		id := addr[i+len("/p2p/"):]
		base := addr[:i]
		if j, ok := index[id]; ok {
			if base != "" {
				out[j].Addrs = append(out[j].Addrs, base)
			}
			continue
		}
		kp := config.KnownPeer{PeerID: id}
		if base != "" {
			kp.Addrs = []string{base}
		}
		index[id] = len(out)
		out = append(out, kp)
	}
	return out
}

// ============================================================================
//                              辅助函数
// ============================================================================

// parseBool 解析布尔值字符串
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
