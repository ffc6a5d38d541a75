package noise

import (
	"net"
	"sync"

	"github.com/flynn/noise"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// maxPlaintext 单帧最大明文（帧上限减去 16 字节认证标签）
const maxPlaintext = maxFrameSize - 16

// secureConn Noise 加密连接
type secureConn struct {
	net.Conn

	local     types.PeerID
	remote    types.PeerID
	remoteKey crypto.PublicKey

	readMu  sync.Mutex
	recvCS  *noise.CipherState
	readBuf []byte

	writeMu sync.Mutex
	sendCS  *noise.CipherState
}

// Read 解密下一帧；上一帧未读完的部分优先返回
func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.readBuf) == 0 {
		frame, err := readFrame(c.Conn)
		if err != nil {
			return 0, err
		}
		plain, err := c.recvCS.Decrypt(frame[:0], nil, frame)
		if err != nil {
			return 0, err
		}
		c.readBuf = plain
		if len(p) == 0 {
			return 0, nil
		}
	}

	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

// Write 按最大明文切分加密
func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(p) {
		end := written + maxPlaintext
		if end > len(p) {
			end = len(p)
		}
		ciphertext, err := c.sendCS.Encrypt(nil, nil, p[written:end])
		if err != nil {
			return written, err
		}
		if err := writeFrame(c.Conn, ciphertext); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

func (c *secureConn) LocalPeer() types.PeerID {
	return c.local
}

func (c *secureConn) RemotePeer() types.PeerID {
	return c.remote
}

func (c *secureConn) RemotePublicKey() crypto.PublicKey {
	return c.remoteKey
}
