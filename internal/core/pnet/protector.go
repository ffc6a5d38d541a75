// Package pnet 实现私有网络保护
//
// 持有同一预共享密钥的节点才能互通：连接建立后、安全握手前，双方各自
// 在首次写入时发送 24 字节随机 nonce，之后所有字节以 XSalsa20(psk, nonce)
// 流加密。密钥不符的对端只能读到乱码，后续协商随之失败。
package pnet

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net"
	"sync"

	"github.com/davidlazar/go-crypto/salsa20"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
)

var logger = log.Logger("core/pnet")

// NonceSize XSalsa20 nonce 长度
const NonceSize = 24

// Protector 网络保护器
type Protector interface {
	// Protect 包装原始连接
	Protect(conn net.Conn) (net.Conn, error)
}

// PSKProtector 基于预共享密钥的保护器
type PSKProtector struct {
	psk         *PSK
	fingerprint string
}

var _ Protector = (*PSKProtector)(nil)

// NewProtector 创建 PSK 保护器
func NewProtector(psk *PSK) (*PSKProtector, error) {
	if psk == nil {
		return nil, ErrNilKey
	}
	fp := hex.EncodeToString(psk.Fingerprint())
	logger.Info("私有网络已启用", "fingerprint", fp)
	return &PSKProtector{psk: psk, fingerprint: fp}, nil
}

// Fingerprint 十六进制密钥指纹
func (p *PSKProtector) Fingerprint() string {
	return p.fingerprint
}

// Protect 包装连接
func (p *PSKProtector) Protect(conn net.Conn) (net.Conn, error) {
	key := [KeySize]byte(*p.psk)
	return &pskConn{Conn: conn, psk: &key}, nil
}

// pskConn 流加密连接，nonce 在首次读写时交换
type pskConn struct {
	net.Conn
	psk *[KeySize]byte

	readMu  sync.Mutex
	readS20 cipher.Stream

	writeMu  sync.Mutex
	writeS20 cipher.Stream
}

func (c *pskConn) Read(out []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.readS20 == nil {
		nonce := make([]byte, NonceSize)
		if _, err := io.ReadFull(c.Conn, nonce); err != nil {
			return 0, err
		}
		c.readS20 = salsa20.New(c.psk, nonce)
	}

	n, err := c.Conn.Read(out)
	if n > 0 {
		c.readS20.XORKeyStream(out[:n], out[:n])
	}
	return n, err
}

func (c *pskConn) Write(in []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeS20 == nil {
		nonce := make([]byte, NonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return 0, err
		}
		if _, err := c.Conn.Write(nonce); err != nil {
			return 0, err
		}
		c.writeS20 = salsa20.New(c.psk, nonce)
	}

	out := make([]byte, len(in))
	c.writeS20.XORKeyStream(out, in)
	return c.Conn.Write(out)
}
