package crypto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// 字段号（crypto.pb）
const (
	fieldKeyType protowire.Number = 1
	fieldKeyData protowire.Number = 2
)

// MarshalPublicKey 序列化公钥为 PublicKey 消息
func MarshalPublicKey(k PublicKey) ([]byte, error) {
	if k == nil {
		return nil, ErrNilPublicKey
	}
	return marshalKey(k)
}

// MarshalPrivateKey 序列化私钥为 PrivateKey 消息
func MarshalPrivateKey(k PrivateKey) ([]byte, error) {
	if k == nil {
		return nil, ErrNilPrivateKey
	}
	return marshalKey(k)
}

func marshalKey(k Key) ([]byte, error) {
	raw, err := k.Raw()
	if err != nil {
		return nil, err
	}
	var b []byte
	b = protowire.AppendTag(b, fieldKeyType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(k.Type()))
	b = protowire.AppendTag(b, fieldKeyData, protowire.BytesType)
	b = protowire.AppendBytes(b, raw)
	return b, nil
}

// UnmarshalPublicKey 解析 PublicKey 消息
func UnmarshalPublicKey(b []byte) (PublicKey, error) {
	kt, data, err := unmarshalKey(b)
	if err != nil {
		return nil, err
	}
	return UnmarshalPublicKeyRaw(kt, data)
}

// UnmarshalPrivateKey 解析 PrivateKey 消息
func UnmarshalPrivateKey(b []byte) (PrivateKey, error) {
	kt, data, err := unmarshalKey(b)
	if err != nil {
		return nil, err
	}
	return UnmarshalPrivateKeyRaw(kt, data)
}

func unmarshalKey(b []byte) (KeyType, []byte, error) {
	var (
		kt      KeyType
		data    []byte
		hasType bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKeyType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(m))
			}
			kt, hasType = KeyType(v), true
			n = m
		case num == fieldKeyData && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(m))
			}
			data = v
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	if !hasType || data == nil {
		return 0, nil, fmt.Errorf("%w: missing type or data", ErrUnmarshalFailed)
	}
	return kt, data, nil
}
