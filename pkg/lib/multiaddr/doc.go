// Package multiaddr 提供多地址（Multiaddr）的实现
//
// Multiaddr 是自描述的分层网络地址，例如：
//
//	/ip4/127.0.0.1/tcp/4001
//	/ip4/1.2.3.4/tcp/4001/p2p/QmYyQSo1c1Ym7orWxLYvCrM2EmxFTANf8wXmmE7DWjhx5N
//	/dns4/bootstrap.example.com/tcp/443/ws
//
// 二进制格式：
//
//	[varint:code][value]...   value 为定长字节或 [varint:len][bytes]
//
// 除编解码外，本包提供黑白名单使用的结构化覆盖关系 Covers，
// 以及 /p2p/ 组件的读取和替换。
package multiaddr
