// Package dep2p 提供节点入口
//
// Node 把连接群、节点管理、自动拨号等内部模块通过 Fx 组装在一起，
// 对外暴露连接、子流与协议注册接口。
//
// 快速开始：
//
//	node, err := dep2p.Start(ctx,
//	    dep2p.WithListenAddrs("/ip4/0.0.0.0/tcp/4001"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	conn, err := node.Connect(ctx, "/ip4/1.2.3.4/tcp/4001/p2p/Qm...")
//
// 从配置文件启动：
//
//	node, err := dep2p.Start(ctx, dep2p.WithConfigFile("dep2p.toml"))
package dep2p
