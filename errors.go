package dep2p

import "errors"

// 节点错误
var (
	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ErrNilIdentity 注入的私钥为空
	ErrNilIdentity = errors.New("identity: nil private key")
)
