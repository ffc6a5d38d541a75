// Package crypto 提供节点身份密钥
//
// 支持 Ed25519（默认）和 Secp256k1，序列化格式与 libp2p 的
// PublicKey/PrivateKey protobuf 消息兼容：
//
//	message PublicKey { KeyType Type = 1; bytes Data = 2; }
package crypto

import (
	"crypto/rand"
	"errors"
	"io"
)

// KeyType 密钥类型，取值与 libp2p crypto.pb 一致
type KeyType int

const (
	// KeyTypeRSA RSA（仅保留取值，不支持）
	KeyTypeRSA KeyType = 0
	// KeyTypeEd25519 Ed25519 密钥（默认）
	KeyTypeEd25519 KeyType = 1
	// KeyTypeSecp256k1 Secp256k1 密钥
	KeyTypeSecp256k1 KeyType = 2
	// KeyTypeECDSA ECDSA（仅保留取值，不支持）
	KeyTypeECDSA KeyType = 3
)

// String 返回密钥类型名称
func (kt KeyType) String() string {
	switch kt {
	case KeyTypeRSA:
		return "RSA"
	case KeyTypeEd25519:
		return "Ed25519"
	case KeyTypeSecp256k1:
		return "Secp256k1"
	case KeyTypeECDSA:
		return "ECDSA"
	default:
		return "Unknown"
	}
}

// ParseKeyType 按名称解析密钥类型（不区分大小写）
func ParseKeyType(s string) (KeyType, error) {
	switch s {
	case "ed25519", "Ed25519", "ED25519", "":
		return KeyTypeEd25519, nil
	case "secp256k1", "Secp256k1", "SECP256K1":
		return KeyTypeSecp256k1, nil
	default:
		return 0, ErrBadKeyType
	}
}

// 错误定义
var (
	ErrBadKeyType      = errors.New("crypto: invalid or unsupported key type")
	ErrNilPublicKey    = errors.New("crypto: nil public key")
	ErrNilPrivateKey   = errors.New("crypto: nil private key")
	ErrInvalidKeySize  = errors.New("crypto: invalid key size")
	ErrUnmarshalFailed = errors.New("crypto: unmarshal failed")
)

// Key 基础密钥接口
type Key interface {
	// Raw 返回原始密钥字节
	Raw() ([]byte, error)

	// Type 返回密钥类型
	Type() KeyType

	// Equals 比较两个密钥是否相等
	Equals(Key) bool
}

// PublicKey 公钥
type PublicKey interface {
	Key

	// Verify 验证签名
	Verify(data, sig []byte) (bool, error)
}

// PrivateKey 私钥
type PrivateKey interface {
	Key

	// Sign 签名数据
	Sign(data []byte) ([]byte, error)

	// GetPublic 返回对应的公钥
	GetPublic() PublicKey
}

// GenerateKeyPair 生成密钥对
func GenerateKeyPair(keyType KeyType) (PrivateKey, PublicKey, error) {
	return GenerateKeyPairWithReader(keyType, rand.Reader)
}

// GenerateKeyPairWithReader 使用指定随机源生成密钥对
func GenerateKeyPairWithReader(keyType KeyType, r io.Reader) (PrivateKey, PublicKey, error) {
	switch keyType {
	case KeyTypeEd25519:
		return GenerateEd25519Key(r)
	case KeyTypeSecp256k1:
		return GenerateSecp256k1Key(r)
	default:
		return nil, nil, ErrBadKeyType
	}
}

// UnmarshalPublicKeyRaw 按类型解析原始公钥字节
func UnmarshalPublicKeyRaw(keyType KeyType, data []byte) (PublicKey, error) {
	switch keyType {
	case KeyTypeEd25519:
		return UnmarshalEd25519PublicKey(data)
	case KeyTypeSecp256k1:
		return UnmarshalSecp256k1PublicKey(data)
	default:
		return nil, ErrBadKeyType
	}
}

// UnmarshalPrivateKeyRaw 按类型解析原始私钥字节
func UnmarshalPrivateKeyRaw(keyType KeyType, data []byte) (PrivateKey, error) {
	switch keyType {
	case KeyTypeEd25519:
		return UnmarshalEd25519PrivateKey(data)
	case KeyTypeSecp256k1:
		return UnmarshalSecp256k1PrivateKey(data)
	default:
		return nil, ErrBadKeyType
	}
}

// KeyEqual 通过类型和原始字节比较两个密钥
func KeyEqual(a, b Key) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type() != b.Type() {
		return false
	}
	ra, err := a.Raw()
	if err != nil {
		return false
	}
	rb, err := b.Raw()
	if err != nil {
		return false
	}
	return string(ra) == string(rb)
}
