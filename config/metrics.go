package config

import "errors"

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否采集 Prometheus 指标
	Enabled bool `json:"enabled" toml:"enabled"`

	// ListenAddr /metrics HTTP 端点地址，为空时只采集不暴露
	ListenAddr string `json:"listen_addr,omitempty" toml:"listen_addr,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.ListenAddr != "" && !c.Enabled {
		return errors.New("metrics: listen_addr set but metrics disabled")
	}
	return nil
}
