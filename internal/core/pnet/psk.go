package pnet

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/salsa20"
	"golang.org/x/crypto/sha3"
)

// KeyHeader 密钥文件首行
const KeyHeader = "/key/swarm/psk/1.0.0/"

// KeySize 密钥长度（字节）
const KeySize = 32

// PSK 预共享密钥
type PSK [KeySize]byte

// GeneratePSK 生成随机密钥
func GeneratePSK() (*PSK, error) {
	var k PSK
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return nil, err
	}
	return &k, nil
}

// DecodeV1 读取 v1 密钥文件
//
//	/key/swarm/psk/1.0.0/
//	/base16/
//	<64 个十六进制字符>
//
// 编码支持 /base16/、/base64/ 与 /bin/。
func DecodeV1(r io.Reader) (*PSK, error) {
	br := bufio.NewReader(r)

	header, err := readLine(br)
	if err != nil {
		return nil, err
	}
	if header != KeyHeader {
		return nil, fmt.Errorf("%w: expected %q", ErrInvalidKeyFile, KeyHeader)
	}
	enc, err := readLine(br)
	if err != nil {
		return nil, err
	}

	var raw []byte
	switch enc {
	case "/base16/":
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		raw, err = hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
		}
	case "/base64/":
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(line, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
		}
	case "/bin/":
		raw, err = io.ReadAll(io.LimitReader(br, KeySize+1))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalidKeyFile, enc)
	}

	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKeyFile, KeySize, len(raw))
	}
	var k PSK
	copy(k[:], raw)
	return &k, nil
}

// EncodeV1 写出 v1 密钥文件，format 为 base16 或 base64
func (k *PSK) EncodeV1(w io.Writer, format string) error {
	var body string
	switch format {
	case "base16":
		body = hex.EncodeToString(k[:])
	case "base64":
		body = base64.RawStdEncoding.EncodeToString(k[:])
	default:
		return fmt.Errorf("%w: unknown encoding %q", ErrInvalidKeyFile, format)
	}
	_, err := fmt.Fprintf(w, "%s\n/%s/\n%s\n", KeyHeader, format, body)
	return err
}

// Fingerprint 密钥指纹，可安全写入日志
//
// 先以 Salsa20 加密零块，再取 SHAKE-128 的 16 字节输出。
func (k *PSK) Fingerprint() []byte {
	enc := make([]byte, 64)
	key := [KeySize]byte(*k)
	salsa20.XORKeyStream(enc, enc, []byte("finprint"), &key)
	out := make([]byte, 16)
	sha3.ShakeSum128(out, enc)
	return out
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	return string(bytes.TrimSpace([]byte(line))), nil
}
