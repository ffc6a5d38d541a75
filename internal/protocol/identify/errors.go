package identify

import "errors"

var (
	// ErrMissingPublicKey 对端未提供公钥
	ErrMissingPublicKey = errors.New("identify: missing public key")

	// ErrPeerIDMismatch 公钥推导的 ID 与连接对端不符
	ErrPeerIDMismatch = errors.New("identify: peer id mismatch")

	// ErrNoLocalKey 本地节点没有公钥
	ErrNoLocalKey = errors.New("identify: local peer has no public key")
)
