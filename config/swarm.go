package config

import (
	"errors"
	"time"
)

// SwarmConfig 连接群配置
type SwarmConfig struct {
	// AgentVersion identify 中通告的代理版本，为空时使用内置值
	AgentVersion string `json:"agent_version,omitempty" toml:"agent_version,omitempty"`

	// ProtocolVersion identify 中通告的协议版本，为空时使用内置值
	ProtocolVersion string `json:"protocol_version,omitempty" toml:"protocol_version,omitempty"`

	// EnableDNS 是否解析 /dns、/dns4、/dns6、/dnsaddr 地址
	EnableDNS bool `json:"enable_dns" toml:"enable_dns"`

	// DNSServers DNS 服务器 host:port，为空时读取系统配置
	DNSServers []string `json:"dns_servers,omitempty" toml:"dns_servers,omitempty"`

	// DNSCacheTTL 解析结果缓存时长
	DNSCacheTTL Duration `json:"dns_cache_ttl" toml:"dns_cache_ttl"`
}

// DefaultSwarmConfig 返回默认连接群配置
func DefaultSwarmConfig() SwarmConfig {
	return SwarmConfig{
		EnableDNS:   true,
		DNSCacheTTL: Duration(5 * time.Minute),
	}
}

// Validate 验证连接群配置
func (c SwarmConfig) Validate() error {
	if c.EnableDNS && c.DNSCacheTTL <= 0 {
		return errors.New("swarm: dns cache ttl must be positive")
	}
	return nil
}
