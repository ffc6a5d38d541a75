package noise

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/flynn/noise"

	"github.com/dep2p/go-dep2p-swarm/internal/core/security"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	pb "github.com/dep2p/go-dep2p-swarm/pkg/lib/proto/noise"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// payloadSigPrefix 签名前缀
const payloadSigPrefix = "noise-libp2p-static-key:"

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// handshake 执行 XX 握手，返回加密连接
func (t *Transport) handshake(conn net.Conn, remote types.PeerID, initiator bool) (*secureConn, error) {
	// 每次握手使用新的静态 DH 密钥，身份由 payload 签名绑定
	static, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate static key: %w", err)
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, fmt.Errorf("create handshake state: %w", err)
	}

	payload, err := t.localPayload(static.Public)
	if err != nil {
		return nil, err
	}

	var (
		sendCS, recvCS *noise.CipherState
		remoteKey      crypto.PublicKey
		remoteID       types.PeerID
	)
	if initiator {
		// -> e
		if err := writeMessage(conn, hs, nil); err != nil {
			return nil, err
		}
		// <- e, ee, s, es, payload
		remotePayload, _, _, err := readMessage(conn, hs)
		if err != nil {
			return nil, err
		}
		// 先校验响应方身份再发送本端 payload
		if remoteKey, remoteID, err = verifyRemote(remotePayload, hs.PeerStatic(), remote); err != nil {
			return nil, err
		}
		// -> s, se, payload
		msg, cs1, cs2, err := hs.WriteMessage(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("write message 3: %w", err)
		}
		if err := writeFrame(conn, msg); err != nil {
			return nil, err
		}
		sendCS, recvCS = cs1, cs2
	} else {
		// <- e
		if _, _, _, err := readMessage(conn, hs); err != nil {
			return nil, err
		}
		// -> e, ee, s, es, payload
		if err := writeMessage(conn, hs, payload); err != nil {
			return nil, err
		}
		// <- s, se, payload
		remotePayload, cs1, cs2, err := readMessage(conn, hs)
		if err != nil {
			return nil, err
		}
		if remoteKey, remoteID, err = verifyRemote(remotePayload, hs.PeerStatic(), remote); err != nil {
			return nil, err
		}
		sendCS, recvCS = cs2, cs1
	}
	if sendCS == nil || recvCS == nil {
		return nil, ErrInvalidHandshake
	}

	return &secureConn{
		Conn:      conn,
		sendCS:    sendCS,
		recvCS:    recvCS,
		local:     t.id,
		remote:    remoteID,
		remoteKey: remoteKey,
	}, nil
}

// localPayload 构造本端 payload
func (t *Transport) localPayload(staticPub []byte) ([]byte, error) {
	pub, err := crypto.MarshalPublicKey(t.key.GetPublic())
	if err != nil {
		return nil, fmt.Errorf("marshal identity key: %w", err)
	}
	sig, err := t.key.Sign(append([]byte(payloadSigPrefix), staticPub...))
	if err != nil {
		return nil, fmt.Errorf("sign static key: %w", err)
	}
	return (&pb.NoiseHandshakePayload{IdentityKey: pub, IdentitySig: sig}).Marshal(), nil
}

// verifyRemote 校验 payload 并确认对端身份
func verifyRemote(payload, remoteStatic []byte, expected types.PeerID) (crypto.PublicKey, types.PeerID, error) {
	pub, err := verifyPayload(payload, remoteStatic)
	if err != nil {
		return nil, types.EmptyPeerID, err
	}
	id, err := security.VerifyRemote(pub, expected)
	if err != nil {
		return nil, types.EmptyPeerID, err
	}
	return pub, id, nil
}

// verifyPayload 校验对端签名，返回身份公钥
func verifyPayload(data, remoteStatic []byte) (crypto.PublicKey, error) {
	if len(remoteStatic) != 32 {
		return nil, fmt.Errorf("%w: static key length %d", ErrInvalidHandshake, len(remoteStatic))
	}
	var payload pb.NoiseHandshakePayload
	if err := payload.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	pub, err := crypto.UnmarshalPublicKey(payload.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", security.ErrInvalidPublicKey, err)
	}
	ok, err := pub.Verify(append([]byte(payloadSigPrefix), remoteStatic...), payload.IdentitySig)
	if err != nil || !ok {
		return nil, ErrInvalidSignature
	}
	return pub, nil
}

func writeMessage(w io.Writer, hs *noise.HandshakeState, payload []byte) error {
	msg, _, _, err := hs.WriteMessage(nil, payload)
	if err != nil {
		return fmt.Errorf("write handshake message: %w", err)
	}
	return writeFrame(w, msg)
}

func readMessage(r io.Reader, hs *noise.HandshakeState) ([]byte, *noise.CipherState, *noise.CipherState, error) {
	msg, err := readFrame(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read handshake message: %w", err)
	}
	payload, cs1, cs2, err := hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}
	return payload, cs1, cs2, nil
}

// ============================================================================
//                              帧
// ============================================================================

// maxFrameSize 2 字节长度前缀能表示的最大帧
const maxFrameSize = 0xffff

// writeFrame 以单次写入发送 2 字节长度 + 数据
func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

// readFrame 读取 2 字节长度 + 数据
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
