package crypto

import (
	"crypto/ed25519"
	"crypto/subtle"
	"io"
)

// Ed25519PublicKey Ed25519 公钥
type Ed25519PublicKey struct {
	k ed25519.PublicKey
}

// Raw 返回 32 字节公钥
func (k *Ed25519PublicKey) Raw() ([]byte, error) {
	return append([]byte(nil), k.k...), nil
}

// Type 返回密钥类型
func (k *Ed25519PublicKey) Type() KeyType {
	return KeyTypeEd25519
}

// Equals 常量时间比较
func (k *Ed25519PublicKey) Equals(other Key) bool {
	ek, ok := other.(*Ed25519PublicKey)
	if !ok {
		return KeyEqual(k, other)
	}
	return subtle.ConstantTimeCompare(k.k, ek.k) == 1
}

// Verify 验证签名
func (k *Ed25519PublicKey) Verify(data, sig []byte) (bool, error) {
	if len(sig) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(k.k, data, sig), nil
}

// Ed25519PrivateKey Ed25519 私钥
type Ed25519PrivateKey struct {
	k ed25519.PrivateKey
}

// Raw 返回 64 字节私钥（种子 + 公钥）
func (k *Ed25519PrivateKey) Raw() ([]byte, error) {
	return append([]byte(nil), k.k...), nil
}

// Type 返回密钥类型
func (k *Ed25519PrivateKey) Type() KeyType {
	return KeyTypeEd25519
}

// Equals 常量时间比较
func (k *Ed25519PrivateKey) Equals(other Key) bool {
	ek, ok := other.(*Ed25519PrivateKey)
	if !ok {
		return KeyEqual(k, other)
	}
	return subtle.ConstantTimeCompare(k.k, ek.k) == 1
}

// Sign 签名
func (k *Ed25519PrivateKey) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.k, data), nil
}

// GetPublic 返回公钥
func (k *Ed25519PrivateKey) GetPublic() PublicKey {
	return &Ed25519PublicKey{k: k.k.Public().(ed25519.PublicKey)}
}

// GenerateEd25519Key 生成 Ed25519 密钥对
func GenerateEd25519Key(r io.Reader) (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, nil, err
	}
	return &Ed25519PrivateKey{k: priv}, &Ed25519PublicKey{k: pub}, nil
}

// UnmarshalEd25519PublicKey 解析 32 字节公钥
func UnmarshalEd25519PublicKey(data []byte) (PublicKey, error) {
	if len(data) != ed25519.PublicKeySize {
		return nil, ErrInvalidKeySize
	}
	return &Ed25519PublicKey{k: append(ed25519.PublicKey(nil), data...)}, nil
}

// UnmarshalEd25519PrivateKey 解析 64 字节私钥或 32 字节种子
func UnmarshalEd25519PrivateKey(data []byte) (PrivateKey, error) {
	switch len(data) {
	case ed25519.PrivateKeySize:
		return &Ed25519PrivateKey{k: append(ed25519.PrivateKey(nil), data...)}, nil
	case ed25519.SeedSize:
		return &Ed25519PrivateKey{k: ed25519.NewKeyFromSeed(data)}, nil
	default:
		return nil, ErrInvalidKeySize
	}
}
