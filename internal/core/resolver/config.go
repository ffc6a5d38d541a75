package resolver

import (
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Config 解析器配置
type Config struct {
	// Servers DNS 服务器 host:port，为空时读取 /etc/resolv.conf
	Servers []string

	// Timeout 单次查询超时
	Timeout time.Duration

	// CacheSize 缓存条目上限
	CacheSize int

	// CacheTTL 缓存有效期
	CacheTTL time.Duration

	// MaxDepth dnsaddr 最大递归深度
	MaxDepth int
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Timeout:   5 * time.Second,
		CacheSize: 256,
		CacheTTL:  5 * time.Minute,
		MaxDepth:  4,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("resolver: timeout must be positive")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("resolver: cache size must be positive")
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("resolver: max depth must be positive")
	}
	return nil
}

// systemServers 读取系统 DNS 配置
func systemServers() ([]string, error) {
	cc, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(cc.Servers))
	for _, s := range cc.Servers {
		out = append(out, s+":"+cc.Port)
	}
	return out, nil
}
