package config

import "fmt"

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别: debug, info, warn, error
	Level string `json:"level" toml:"level"`

	// Format 输出格式: text, json
	Format string `json:"format" toml:"format"`

	// File 日志文件，为空时输出到标准错误
	File string `json:"file,omitempty" toml:"file,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log: invalid level %q", c.Level)
	}
	switch c.Format {
	case "text", "json", "":
	default:
		return fmt.Errorf("log: invalid format %q", c.Format)
	}
	return nil
}
