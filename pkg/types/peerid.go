// Package types 定义节点身份与节点记录等基础类型
package types

import (
	"errors"
	"fmt"

	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-varint"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
)

// multihash sha2-256
const (
	mhSHA256     = 0x12
	mhSHA256Size = 32
	mhIdentity   = 0x00
)

// 错误定义
var (
	ErrEmptyPeerID   = errors.New("types: empty peer id")
	ErrInvalidPeerID = errors.New("types: invalid peer id")
)

// PeerID 节点标识
//
// 值为 base58 编码的公钥 multihash（sha2-256），即常见的 "Qm..." 形式。
type PeerID string

// EmptyPeerID 空节点 ID
const EmptyPeerID PeerID = ""

// IDFromPublicKey 从公钥派生 PeerID
func IDFromPublicKey(pub crypto.PublicKey) (PeerID, error) {
	b, err := crypto.MarshalPublicKey(pub)
	if err != nil {
		return EmptyPeerID, err
	}
	sum := sha256.Sum256(b)
	mh := make([]byte, 0, 2+mhSHA256Size)
	mh = append(mh, mhSHA256, mhSHA256Size)
	mh = append(mh, sum[:]...)
	return PeerID(base58.Encode(mh)), nil
}

// IDFromPrivateKey 从私钥派生 PeerID
func IDFromPrivateKey(priv crypto.PrivateKey) (PeerID, error) {
	if priv == nil {
		return EmptyPeerID, crypto.ErrNilPrivateKey
	}
	return IDFromPublicKey(priv.GetPublic())
}

// ParsePeerID 解析并校验 base58 PeerID
func ParsePeerID(s string) (PeerID, error) {
	id := PeerID(s)
	if err := id.Validate(); err != nil {
		return EmptyPeerID, err
	}
	return id, nil
}

// String 返回字符串形式
func (id PeerID) String() string {
	return string(id)
}

// ShortString 返回日志使用的短形式
func (id PeerID) ShortString() string {
	s := string(id)
	if len(s) > 8 {
		return s[len(s)-8:]
	}
	return s
}

// IsEmpty 是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// Validate 校验 base58 与 multihash 结构
func (id PeerID) Validate() error {
	if id.IsEmpty() {
		return ErrEmptyPeerID
	}
	b, err := base58.Decode(string(id))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	code, n, err := varint.FromUvarint(b)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	size, m, err := varint.FromUvarint(b[n:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	if code != mhSHA256 && code != mhIdentity {
		return fmt.Errorf("%w: unsupported multihash 0x%x", ErrInvalidPeerID, code)
	}
	if uint64(len(b)-n-m) != size {
		return fmt.Errorf("%w: digest length mismatch", ErrInvalidPeerID)
	}
	return nil
}

// MatchesPublicKey 判断 PeerID 是否由该公钥派生
func (id PeerID) MatchesPublicKey(pub crypto.PublicKey) bool {
	other, err := IDFromPublicKey(pub)
	if err != nil {
		return false
	}
	return other == id
}
