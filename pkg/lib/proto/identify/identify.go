// Package identify 包含 /ipfs/id/1.0.0 消息定义
package identify

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/proto"
)

// Identify identify 消息
//
// 地址字段为二进制 multiaddr。
type Identify struct {
	PublicKey       []byte
	ListenAddrs     [][]byte
	Protocols       []string
	ObservedAddr    []byte
	ProtocolVersion string
	AgentVersion    string
}

// Marshal 序列化
func (m *Identify) Marshal() []byte {
	var b []byte
	b = proto.AppendBytesField(b, 1, m.PublicKey)
	for _, a := range m.ListenAddrs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, a)
	}
	for _, p := range m.Protocols {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, p)
	}
	b = proto.AppendBytesField(b, 4, m.ObservedAddr)
	b = proto.AppendStringField(b, 5, m.ProtocolVersion)
	b = proto.AppendStringField(b, 6, m.AgentVersion)
	return b
}

// Unmarshal 反序列化，未知字段忽略
func (m *Identify) Unmarshal(data []byte) error {
	return proto.RangeFields(data, func(f proto.Field) error {
		if f.Type != protowire.BytesType {
			return nil
		}
		switch f.Num {
		case 1:
			m.PublicKey = f.Bytes
		case 2:
			m.ListenAddrs = append(m.ListenAddrs, f.Bytes)
		case 3:
			m.Protocols = append(m.Protocols, string(f.Bytes))
		case 4:
			m.ObservedAddr = f.Bytes
		case 5:
			m.ProtocolVersion = string(f.Bytes)
		case 6:
			m.AgentVersion = string(f.Bytes)
		}
		return nil
	})
}
