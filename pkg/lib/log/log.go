// Package log 提供统一日志接口
//
// 基于 Go 标准库 log/slog 封装，各组件通过 Logger(component) 获取
// 懒加载 logger，运行时切换输出目标或级别后立即生效。
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// 环境变量
const (
	// EnvLogLevel 日志级别（debug/info/warn/error）
	EnvLogLevel = "DEP2P_LOG_LEVEL"
	// EnvLogFormat 日志格式（text/json）
	EnvLogFormat = "DEP2P_LOG_FORMAT"
)

// SetDefault 设置默认 logger
func SetDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// Default 返回默认 logger
func Default() *slog.Logger {
	return slog.Default()
}

// New 创建文本格式 logger
func New(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewJSON 创建 JSON 格式的 logger
func NewJSON(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetOutput 设置日志输出目标（Info 级别）
func SetOutput(w io.Writer) {
	SetOutputWithLevel(w, slog.LevelInfo)
}

// SetOutputWithLevel 同时设置日志输出目标和级别
func SetOutputWithLevel(w io.Writer, level slog.Level) {
	slog.SetDefault(New(w, &slog.HandlerOptions{Level: level}))
}

// SetLevel 设置日志级别，输出到 stderr
func SetLevel(level slog.Level) {
	SetOutputWithLevel(os.Stderr, level)
}

// Configure 按级别和格式重建默认 logger
//
// level: debug/info/warn/error，format: text/json。
// 环境变量 DEP2P_LOG_LEVEL / DEP2P_LOG_FORMAT 优先于参数。
func Configure(level, format string) {
	ConfigureWriter(os.Stderr, level, format)
}

// ConfigureWriter 同 Configure，输出到 w
func ConfigureWriter(w io.Writer, level, format string) {
	if v := os.Getenv(EnvLogLevel); v != "" {
		level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		format = v
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		slog.SetDefault(NewJSON(w, opts))
		return
	}
	slog.SetDefault(New(w, opts))
}

// ParseLevel 解析日志级别字符串，无法识别时返回 Info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 每次日志调用时都从 slog.Default() 获取最新的 handler。
//
//	var logger = log.Logger("core/mplex")
//	logger.Debug("子流已创建", "id", id)
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) base() *slog.Logger {
	return slog.Default().With("component", l.component)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) { l.base().Debug(msg, args...) }

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) { l.base().Info(msg, args...) }

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) { l.base().Warn(msg, args...) }

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) { l.base().Error(msg, args...) }

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.base().DebugContext(ctx, msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.base().WarnContext(ctx, msg, args...)
}

// Enabled 判断级别是否启用，用于跳过昂贵的参数构造
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return slog.Default().Enabled(context.Background(), level)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return l.base().With(args...)
}

// Component 返回组件名
func (l *LazyLogger) Component() string {
	return l.component
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func init() {
	slog.SetDefault(New(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
