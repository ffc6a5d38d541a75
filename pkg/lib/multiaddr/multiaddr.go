package multiaddr

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-varint"
)

// 通用错误
var (
	ErrInvalidMultiaddr = errors.New("multiaddr: invalid multiaddr")
	ErrUnknownProtocol  = errors.New("multiaddr: unknown protocol")
	ErrInvalidValue     = errors.New("multiaddr: invalid value")
	ErrProtocolNotFound = errors.New("multiaddr: protocol not found")
)

// Multiaddr 自描述网络地址
type Multiaddr interface {
	// Bytes 返回二进制表示（不要修改返回值）
	Bytes() []byte

	// String 返回字符串表示
	String() string

	// Equal 判断两个地址是否逐字节相等
	Equal(Multiaddr) bool

	// Protocols 返回地址包含的协议列表
	Protocols() []Protocol

	// Components 返回地址的组件列表
	Components() []Component

	// Encapsulate 在末尾追加另一个地址
	Encapsulate(Multiaddr) Multiaddr

	// Decapsulate 移除最后一次出现的 other 及其后所有组件
	Decapsulate(Multiaddr) Multiaddr

	// ValueForProtocol 获取第一个指定协议的值
	ValueForProtocol(code int) (string, error)
}

// Component 地址中的单个 /proto/value 组件
type Component struct {
	proto Protocol
	raw   []byte
	value string
}

// Protocol 返回组件协议
func (c Component) Protocol() Protocol { return c.proto }

// Value 返回组件的字符串值
func (c Component) Value() string { return c.value }

// RawValue 返回组件的二进制值
func (c Component) RawValue() []byte { return c.raw }

// Equal 比较协议和值
func (c Component) Equal(o Component) bool {
	return c.proto.Code == o.proto.Code && bytes.Equal(c.raw, o.raw)
}

// String 返回 /proto[/value]
func (c Component) String() string {
	if c.proto.Size == 0 {
		return "/" + c.proto.Name
	}
	return "/" + c.proto.Name + "/" + c.value
}

func (c Component) bytes() []byte {
	buf := append([]byte(nil), c.proto.VCode...)
	if c.proto.Size == LengthPrefixedVarSize {
		buf = append(buf, varint.ToUvarint(uint64(len(c.raw)))...)
	}
	return append(buf, c.raw...)
}

// multiaddr 是 Multiaddr 接口的实现，构造时完成解析
type multiaddr struct {
	bytes []byte
	comps []Component
}

// NewMultiaddr 从字符串创建多地址
func NewMultiaddr(s string) (Multiaddr, error) {
	comps, err := parseString(s)
	if err != nil {
		return nil, err
	}
	return fromComponents(comps), nil
}

// NewMultiaddrBytes 从二进制创建多地址
func NewMultiaddrBytes(b []byte) (Multiaddr, error) {
	comps, err := parseBytes(b)
	if err != nil {
		return nil, err
	}
	return fromComponents(comps), nil
}

// StringCast 从字符串创建多地址，失败时 panic，仅用于常量地址
func StringCast(s string) Multiaddr {
	m, err := NewMultiaddr(s)
	if err != nil {
		panic(err)
	}
	return m
}

func fromComponents(comps []Component) *multiaddr {
	var buf []byte
	for _, c := range comps {
		buf = append(buf, c.bytes()...)
	}
	return &multiaddr{bytes: buf, comps: comps}
}

func parseString(s string) ([]Component, error) {
	s = strings.TrimRight(s, "/")
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("%w: %q must begin with /", ErrInvalidMultiaddr, s)
	}

	parts := strings.Split(s[1:], "/")
	comps := make([]Component, 0, len(parts)/2+1)
	for i := 0; i < len(parts); i++ {
		proto, ok := ProtocolWithName(parts[i])
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, parts[i])
		}
		if proto.Size == 0 {
			comps = append(comps, Component{proto: proto})
			continue
		}

		i++
		if i >= len(parts) {
			return nil, fmt.Errorf("%w: protocol %s requires a value", ErrInvalidMultiaddr, proto.Name)
		}
		raw, err := proto.Transcoder.StringToBytes(parts[i])
		if err != nil {
			return nil, err
		}
		value, err := proto.Transcoder.BytesToString(raw)
		if err != nil {
			return nil, err
		}
		comps = append(comps, Component{proto: proto, raw: raw, value: value})
	}
	if len(comps) == 0 {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidMultiaddr)
	}
	return comps, nil
}

func parseBytes(b []byte) ([]Component, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidMultiaddr)
	}

	var comps []Component
	for len(b) > 0 {
		code, n, err := varint.FromUvarint(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMultiaddr, err)
		}
		b = b[n:]

		proto, ok := ProtocolWithCode(int(code))
		if !ok {
			return nil, fmt.Errorf("%w: code 0x%x", ErrUnknownProtocol, code)
		}

		var size int
		switch {
		case proto.Size == 0:
			comps = append(comps, Component{proto: proto})
			continue
		case proto.Size == LengthPrefixedVarSize:
			l, m, err := varint.FromUvarint(b)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMultiaddr, err)
			}
			b = b[m:]
			size = int(l)
		default:
			size = proto.Size / 8
		}
		if size > len(b) {
			return nil, fmt.Errorf("%w: value of %s truncated", ErrInvalidMultiaddr, proto.Name)
		}

		raw := append([]byte(nil), b[:size]...)
		b = b[size:]
		value, err := proto.Transcoder.BytesToString(raw)
		if err != nil {
			return nil, err
		}
		comps = append(comps, Component{proto: proto, raw: raw, value: value})
	}
	return comps, nil
}

// Bytes 返回二进制表示
func (m *multiaddr) Bytes() []byte {
	return m.bytes
}

// String 返回字符串表示
func (m *multiaddr) String() string {
	var sb strings.Builder
	for _, c := range m.comps {
		sb.WriteString(c.String())
	}
	return sb.String()
}

// Equal 判断两个地址是否相等
func (m *multiaddr) Equal(other Multiaddr) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(m.bytes, other.Bytes())
}

// Protocols 返回协议列表
func (m *multiaddr) Protocols() []Protocol {
	out := make([]Protocol, len(m.comps))
	for i, c := range m.comps {
		out[i] = c.proto
	}
	return out
}

// Components 返回组件列表副本
func (m *multiaddr) Components() []Component {
	return append([]Component(nil), m.comps...)
}

// Encapsulate 封装另一个地址
func (m *multiaddr) Encapsulate(other Multiaddr) Multiaddr {
	if other == nil {
		return m
	}
	comps := append(m.Components(), other.Components()...)
	return fromComponents(comps)
}

// Decapsulate 解封装
//
// 移除最后一次出现的 other 及其后的组件；如果移除后为空返回 nil，
// 未找到时返回原地址。
func (m *multiaddr) Decapsulate(other Multiaddr) Multiaddr {
	if other == nil {
		return m
	}
	oc := other.Components()
	if len(oc) == 0 || len(oc) > len(m.comps) {
		return m
	}

	for i := len(m.comps) - len(oc); i >= 0; i-- {
		match := true
		for j := range oc {
			if !m.comps[i+j].Equal(oc[j]) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if i == 0 {
			return nil
		}
		return fromComponents(append([]Component(nil), m.comps[:i]...))
	}
	return m
}

// ValueForProtocol 获取指定协议代码的值
func (m *multiaddr) ValueForProtocol(code int) (string, error) {
	for _, c := range m.comps {
		if c.proto.Code == code {
			return c.value, nil
		}
	}
	return "", ErrProtocolNotFound
}
