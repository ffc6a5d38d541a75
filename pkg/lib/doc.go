// Package lib 包含基础设施工具库
//
// 本目录包含与具体组件无关的通用工具库：
//
//   - crypto: 密码学原语（密钥、签名）
//   - multiaddr: 多地址格式解析
//   - log: 日志封装
//   - proto: 握手与 identify 的 Protobuf 消息及长度前缀读写
//
// pkg/types 定义节点 ID 与节点记录，依赖本目录的 crypto 与 multiaddr。
//
// # 使用示例
//
//	import (
//	    "github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
//	    "github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
//	    "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
//	)
package lib
