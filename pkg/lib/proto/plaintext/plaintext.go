// Package plaintext 包含 /plaintext/2.0.0 的身份交换消息
package plaintext

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/proto"
)

// Exchange 身份交换：节点 ID 的 multihash 字节与序列化公钥
type Exchange struct {
	ID     []byte
	Pubkey []byte
}

// Marshal 序列化
func (e *Exchange) Marshal() []byte {
	var b []byte
	b = proto.AppendBytesField(b, 1, e.ID)
	b = proto.AppendBytesField(b, 2, e.Pubkey)
	return b
}

// Unmarshal 反序列化
func (e *Exchange) Unmarshal(data []byte) error {
	return proto.RangeFields(data, func(f proto.Field) error {
		if f.Type != protowire.BytesType {
			return nil
		}
		switch f.Num {
		case 1:
			e.ID = f.Bytes
		case 2:
			e.Pubkey = f.Bytes
		}
		return nil
	})
}
