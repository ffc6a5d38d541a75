// Package swarm 连接群
//
// Swarm 是节点网络层的编排者：
//   - 节点注册表：按 PeerID 合并地址与身份信息
//   - 出站连接：同一节点的并发连接请求合并为一次拨号，多地址并发竞速
//   - 入站连接：监听器接受连接后执行对称握手
//   - 协议表：在每条连接上挂载应用协议，identify 与 ping 始终挂载
//   - 准入策略：黑白名单在任何 I/O 之前拒绝
//
// 状态变化通过事件总线广播，见 events.go。
//
// 使用示例：
//
//	s, err := swarm.NewSwarm(priv, swarm.WithTransports(tcp.New()))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	addrs, err := s.Listen(ma.StringCast("/ip4/0.0.0.0/tcp/4001"))
//	conn, err := s.ConnectAddress(ctx, remote)
package swarm
