// Package proto 定义网络协议消息（wire format）
//
// 子包按协议划分，消息以 protobuf wire format 手工编解码（protowire）：
//
//   - noise: Noise 握手 payload
//   - plaintext: 明文安全协议的身份交换
//   - identify: identify 协议消息
//
// 本包提供 varint 长度前缀的消息读写与字段遍历。
package proto
