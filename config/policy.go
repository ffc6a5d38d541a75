package config

import "fmt"

// PolicyConfig 准入策略
//
// 条目为过滤地址：目标地址包含过滤地址的全部组件时视为匹配，
// 例如 "/ip4/10.0.0.1" 或 "/p2p/<id>"。
type PolicyConfig struct {
	// BlackList 黑名单
	BlackList []string `json:"blacklist,omitempty" toml:"blacklist,omitempty"`

	// WhiteList 白名单，为空时不限制
	WhiteList []string `json:"whitelist,omitempty" toml:"whitelist,omitempty"`
}

// DefaultPolicyConfig 返回默认策略（全部允许）
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{}
}

// Validate 验证策略配置
func (c PolicyConfig) Validate() error {
	if err := validateAddrs(c.BlackList); err != nil {
		return fmt.Errorf("policy: blacklist: %w", err)
	}
	if err := validateAddrs(c.WhiteList); err != nil {
		return fmt.Errorf("policy: whitelist: %w", err)
	}
	return nil
}
