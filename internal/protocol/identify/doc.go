// Package identify 实现 /ipfs/id/1.0.0 身份交换
//
// 响应方在子流上写出一条 varint 长度前缀的 protobuf 消息后关闭：
//
//	publicKey=1 listenAddrs=2 protocols=3 observedAddr=4
//	protocolVersion=5 agentVersion=6
//
// 请求方要求消息携带公钥，节点 ID 由公钥推导，并与连接上已知的对端 ID 比对。
package identify
