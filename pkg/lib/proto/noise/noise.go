// Package noise 包含 Noise 握手 payload 定义
package noise

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/proto"
)

// NoiseHandshakePayload Noise 握手 payload
//
//   - IdentityKey: 序列化的身份公钥
//   - IdentitySig: Sign("noise-libp2p-static-key:" + 静态 DH 公钥)
type NoiseHandshakePayload struct {
	IdentityKey []byte
	IdentitySig []byte
}

// Marshal 序列化
func (p *NoiseHandshakePayload) Marshal() []byte {
	var b []byte
	b = proto.AppendBytesField(b, 1, p.IdentityKey)
	b = proto.AppendBytesField(b, 2, p.IdentitySig)
	return b
}

// Unmarshal 反序列化，未知字段忽略
func (p *NoiseHandshakePayload) Unmarshal(data []byte) error {
	return proto.RangeFields(data, func(f proto.Field) error {
		if f.Type != protowire.BytesType {
			return nil
		}
		switch f.Num {
		case 1:
			p.IdentityKey = f.Bytes
		case 2:
			p.IdentitySig = f.Bytes
		}
		return nil
	})
}
