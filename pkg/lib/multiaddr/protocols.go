package multiaddr

import (
	"github.com/multiformats/go-varint"
)

// Protocol 描述一个 multiaddr 协议
type Protocol struct {
	// Name 协议名称（如 "ip4", "tcp"）
	Name string

	// Code 协议代码（与 multicodec 表对齐）
	Code int

	// VCode 预计算的 varint 编码
	VCode []byte

	// Size 数据大小（位），0 表示无数据，LengthPrefixedVarSize 表示变长
	Size int

	// Transcoder 值编解码器，无数据协议为 nil
	Transcoder Transcoder
}

// String 返回协议名称
func (p Protocol) String() string {
	return p.Name
}

// LengthPrefixedVarSize 表示变长数据（使用 varint 前缀）
const LengthPrefixedVarSize = -1

// 协议代码常量
const (
	P_IP4     = 0x0004
	P_TCP     = 0x0006
	P_UDP     = 0x0111
	P_IP6     = 0x0029
	P_DNS     = 0x0035
	P_DNS4    = 0x0036
	P_DNS6    = 0x0037
	P_DNSADDR = 0x0038
	P_P2P     = 0x01A5
	P_QUIC    = 0x01CC
	P_QUIC_V1 = 0x01CD
	P_WS      = 0x01DD
	P_WSS     = 0x01DE
	P_MEMORY  = 0x0309
)

// 协议表
var protocols = []Protocol{
	newProtocol("ip4", P_IP4, 32, TranscoderIP4),
	newProtocol("tcp", P_TCP, 16, TranscoderPort),
	newProtocol("udp", P_UDP, 16, TranscoderPort),
	newProtocol("ip6", P_IP6, 128, TranscoderIP6),
	newProtocol("dns", P_DNS, LengthPrefixedVarSize, TranscoderDNS),
	newProtocol("dns4", P_DNS4, LengthPrefixedVarSize, TranscoderDNS),
	newProtocol("dns6", P_DNS6, LengthPrefixedVarSize, TranscoderDNS),
	newProtocol("dnsaddr", P_DNSADDR, LengthPrefixedVarSize, TranscoderDNS),
	newProtocol("p2p", P_P2P, LengthPrefixedVarSize, TranscoderP2P),
	newProtocol("quic", P_QUIC, 0, nil),
	newProtocol("quic-v1", P_QUIC_V1, 0, nil),
	newProtocol("ws", P_WS, 0, nil),
	newProtocol("wss", P_WSS, 0, nil),
	newProtocol("memory", P_MEMORY, 64, TranscoderMemory),
}

var (
	protocolsByName = make(map[string]Protocol)
	protocolsByCode = make(map[int]Protocol)
)

func init() {
	for _, p := range protocols {
		protocolsByName[p.Name] = p
		protocolsByCode[p.Code] = p
	}
	// ipfs 是 p2p 的历史名称，仅用于解析
	protocolsByName["ipfs"] = protocolsByCode[P_P2P]
}

func newProtocol(name string, code, size int, t Transcoder) Protocol {
	return Protocol{
		Name:       name,
		Code:       code,
		VCode:      varint.ToUvarint(uint64(code)),
		Size:       size,
		Transcoder: t,
	}
}

// ProtocolWithName 按名称查找协议
func ProtocolWithName(name string) (Protocol, bool) {
	p, ok := protocolsByName[name]
	return p, ok
}

// ProtocolWithCode 按代码查找协议
func ProtocolWithCode(code int) (Protocol, bool) {
	p, ok := protocolsByCode[code]
	return p, ok
}
