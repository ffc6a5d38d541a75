// Package identity 管理节点身份密钥
//
// 私钥以 PEM 文件持久化，块内容为 libp2p 格式的序列化私钥，
// 因此 Ed25519 与 Secp256k1 密钥使用同一种文件格式。
//
// # 快速开始
//
//	priv, err := identity.LoadOrGenerate(identity.Config{
//	    KeyType:      crypto.KeyTypeEd25519,
//	    KeyFile:      "node.key",
//	    AutoGenerate: true,
//	})
//
// # Fx 模块
//
//	app := fx.New(
//	    fx.Supply(&identity.Config{KeyFile: "node.key", AutoGenerate: true}),
//	    identity.Module(),
//	    fx.Invoke(func(id types.PeerID) {
//	        fmt.Printf("PeerID: %s\n", id)
//	    }),
//	)
package identity
