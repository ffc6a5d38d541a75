// Package main 提供 dep2p 命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	dep2p "github.com/dep2p/go-dep2p-swarm"
	"github.com/dep2p/go-dep2p-swarm/config"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
)

var logger = log.Logger("dep2p/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
// 命令行参数只覆盖「这次运行」，其余配置写在配置文件中。
// 优先级：命令行 > 环境变量 > 配置文件 > 默认值。
var (
	configFile   = flag.String("config", "", "配置文件路径（.json 或 .toml）")
	listenAddrs  = flag.String("listen", "", "监听地址，逗号分隔")
	identityFile = flag.String("identity", "", "身份密钥文件路径")
	logLevel     = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")
	logFile      = flag.String("log", "", "日志文件路径")
	metricsAddr  = flag.String("metrics", "", "Prometheus 指标监听地址，如 127.0.0.1:9090")
	connectTo    = flag.String("connect", "", "启动后连接的节点地址，逗号分隔")
	dumpConfig   = flag.Bool("dump-config", false, "打印合并后的配置并退出")

	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		fmt.Println(dep2p.VersionInfo())
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	if *dumpConfig {
		data, err := cfg.ToTOML()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("📦 %s\n", dep2p.VersionInfo())
	node, err := dep2p.Start(ctx, dep2p.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	printNodeInfo(node)

	for _, addr := range splitAndTrim(*connectTo, ",") {
		if _, err := node.Connect(ctx, addr); err != nil {
			logger.Warn("连接节点失败", "addr", addr, "error", err)
			continue
		}
		fmt.Printf("已连接 %s\n", addr)
	}

	fmt.Println("节点已启动，按 Ctrl+C 退出")
	<-ctx.Done()

	fmt.Println("\n正在关闭节点...")
	return nil
}

// loadConfig 合并配置文件、环境变量与命令行参数
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if isFlagSet("listen") {
		cfg.Transport.ListenAddrs = splitAndTrim(*listenAddrs, ",")
	}
	if isFlagSet("identity") {
		cfg.Identity.KeyFile = *identityFile
		cfg.Identity.AutoGenerate = true
	}
	if isFlagSet("log-level") {
		cfg.Log.Level = *logLevel
	}
	if isFlagSet("log") {
		cfg.Log.File = *logFile
	}
	if isFlagSet("metrics") {
		cfg.Metrics.Enabled = *metricsAddr != ""
		cfg.Metrics.ListenAddr = *metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// printNodeInfo 打印节点信息
func printNodeInfo(node *dep2p.Node) {
	fmt.Println()
	fmt.Println("╔════════════════════════════════════════════════════════════════════════╗")
	fmt.Printf("║  Node ID: %-60s  ║\n", node.ID())
	fmt.Println("║  Addresses (copy to share):                                            ║")
	for _, addr := range node.ListenAddrs() {
		fmt.Printf("║    %s\n", addr)
	}
	if reg := node.Metrics(); reg != nil && *metricsAddr != "" {
		fmt.Printf("║  Metrics: http://%s/metrics\n", *metricsAddr)
	}
	fmt.Println("╚════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printHelp 打印帮助信息
func printHelp() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "dep2p - 点对点连接节点")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "用法:")
	fmt.Fprintln(out, "  dep2p [选项]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "选项:")
	flag.PrintDefaults()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "环境变量:")
	for _, e := range envVars {
		fmt.Fprintf(out, "  %-28s %s\n", envPrefix+e.name, e.usage)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "示例:")
	fmt.Fprintln(out, "  dep2p -listen /ip4/0.0.0.0/tcp/4001 -identity ~/.dep2p/identity.key")
	fmt.Fprintln(out, "  dep2p -config dep2p.toml -metrics 127.0.0.1:9090")
	fmt.Fprintln(out, "  dep2p -connect /ip4/1.2.3.4/tcp/4001/p2p/12D3KooW...")
	fmt.Fprintln(out, strings.Repeat("─", 72))
}
