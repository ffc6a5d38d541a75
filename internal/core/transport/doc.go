// Package transport 定义传输层抽象与注册表
//
// 传输负责把多地址变成原始双向字节流（net.Conn），安全与多路复用由上层
// 连接握手完成。
//
// # 支持的传输
//
//   - TCP: /ip4/.../tcp/...
//   - WebSocket: /ip4/.../tcp/.../ws
//   - QUIC: /ip4/.../udp/.../quic-v1（每个连接使用一条双向流）
//
// # 传输选择
//
// 注册表按地址中从后往前的第一个已注册协议名选择传输，
// 因此 /ip4/1.2.3.4/tcp/80/ws 交给 ws 而不是 tcp。
package transport
