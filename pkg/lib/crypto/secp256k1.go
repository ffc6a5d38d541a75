package crypto

import (
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/minio/sha256-simd"
)

// Secp256k1 密钥大小
const (
	Secp256k1PrivateKeySize = 32
	Secp256k1PublicKeySize  = 33
)

// Secp256k1PublicKey Secp256k1 公钥
type Secp256k1PublicKey struct {
	k *secp256k1.PublicKey
}

// Raw 返回 33 字节压缩公钥
func (k *Secp256k1PublicKey) Raw() ([]byte, error) {
	return k.k.SerializeCompressed(), nil
}

// Type 返回密钥类型
func (k *Secp256k1PublicKey) Type() KeyType {
	return KeyTypeSecp256k1
}

// Equals 比较
func (k *Secp256k1PublicKey) Equals(other Key) bool {
	sk, ok := other.(*Secp256k1PublicKey)
	if !ok {
		return KeyEqual(k, other)
	}
	return k.k.IsEqual(sk.k)
}

// Verify 验证 DER 编码的 ECDSA 签名（对 SHA-256 摘要签名）
func (k *Secp256k1PublicKey) Verify(data, sig []byte) (bool, error) {
	s, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, nil
	}
	hash := sha256.Sum256(data)
	return s.Verify(hash[:], k.k), nil
}

// Secp256k1PrivateKey Secp256k1 私钥
type Secp256k1PrivateKey struct {
	k *secp256k1.PrivateKey
}

// Raw 返回 32 字节私钥
func (k *Secp256k1PrivateKey) Raw() ([]byte, error) {
	return k.k.Serialize(), nil
}

// Type 返回密钥类型
func (k *Secp256k1PrivateKey) Type() KeyType {
	return KeyTypeSecp256k1
}

// Equals 比较
func (k *Secp256k1PrivateKey) Equals(other Key) bool {
	return KeyEqual(k, other)
}

// Sign 对 SHA-256 摘要签名，返回 DER 编码
func (k *Secp256k1PrivateKey) Sign(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	return ecdsa.Sign(k.k, hash[:]).Serialize(), nil
}

// GetPublic 返回公钥
func (k *Secp256k1PrivateKey) GetPublic() PublicKey {
	return &Secp256k1PublicKey{k: k.k.PubKey()}
}

// GenerateSecp256k1Key 生成 Secp256k1 密钥对
func GenerateSecp256k1Key(r io.Reader) (PrivateKey, PublicKey, error) {
	seed := make([]byte, Secp256k1PrivateKeySize)
	for {
		if _, err := io.ReadFull(r, seed); err != nil {
			return nil, nil, err
		}
		var s secp256k1.ModNScalar
		if overflow := s.SetByteSlice(seed); !overflow && !s.IsZero() {
			priv := secp256k1.NewPrivateKey(&s)
			return &Secp256k1PrivateKey{k: priv}, &Secp256k1PublicKey{k: priv.PubKey()}, nil
		}
	}
}

// UnmarshalSecp256k1PublicKey 解析压缩或未压缩公钥
func UnmarshalSecp256k1PublicKey(data []byte) (PublicKey, error) {
	pk, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, err
	}
	return &Secp256k1PublicKey{k: pk}, nil
}

// UnmarshalSecp256k1PrivateKey 解析 32 字节私钥
func UnmarshalSecp256k1PrivateKey(data []byte) (PrivateKey, error) {
	if len(data) != Secp256k1PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	return &Secp256k1PrivateKey{k: secp256k1.PrivKeyFromBytes(data)}, nil
}
