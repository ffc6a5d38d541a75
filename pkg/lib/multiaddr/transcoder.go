package multiaddr

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-varint"
)

// Transcoder 协议值编解码
type Transcoder interface {
	// StringToBytes 将字符串值转换为字节
	StringToBytes(string) ([]byte, error)

	// BytesToString 将字节转换为字符串值
	BytesToString([]byte) (string, error)
}

type transcoderFuncs struct {
	s2b func(string) ([]byte, error)
	b2s func([]byte) (string, error)
}

func (t transcoderFuncs) StringToBytes(s string) ([]byte, error) { return t.s2b(s) }
func (t transcoderFuncs) BytesToString(b []byte) (string, error) { return t.b2s(b) }

var (
	// TranscoderIP4 IPv4 地址
	TranscoderIP4 Transcoder = transcoderFuncs{
		s2b: func(s string) ([]byte, error) {
			ip := net.ParseIP(s).To4()
			if ip == nil {
				return nil, fmt.Errorf("%w: bad ip4 %q", ErrInvalidValue, s)
			}
			return ip, nil
		},
		b2s: func(b []byte) (string, error) {
			if len(b) != net.IPv4len {
				return "", fmt.Errorf("%w: ip4 length %d", ErrInvalidValue, len(b))
			}
			return net.IP(b).String(), nil
		},
	}

	// TranscoderIP6 IPv6 地址
	TranscoderIP6 Transcoder = transcoderFuncs{
		s2b: func(s string) ([]byte, error) {
			if !strings.Contains(s, ":") {
				return nil, fmt.Errorf("%w: bad ip6 %q", ErrInvalidValue, s)
			}
			ip := net.ParseIP(s).To16()
			if ip == nil {
				return nil, fmt.Errorf("%w: bad ip6 %q", ErrInvalidValue, s)
			}
			return ip, nil
		},
		b2s: func(b []byte) (string, error) {
			if len(b) != net.IPv6len {
				return "", fmt.Errorf("%w: ip6 length %d", ErrInvalidValue, len(b))
			}
			ip := net.IP(b)
			if ip4 := ip.To4(); ip4 != nil {
				return "::ffff:" + ip4.String(), nil
			}
			return ip.String(), nil
		},
	}

	// TranscoderPort TCP/UDP 端口
	TranscoderPort Transcoder = transcoderFuncs{
		s2b: func(s string) ([]byte, error) {
			port, err := strconv.ParseUint(s, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("%w: bad port %q", ErrInvalidValue, s)
			}
			b := make([]byte, 2)
			binary.BigEndian.PutUint16(b, uint16(port))
			return b, nil
		},
		b2s: func(b []byte) (string, error) {
			if len(b) != 2 {
				return "", fmt.Errorf("%w: port length %d", ErrInvalidValue, len(b))
			}
			return strconv.Itoa(int(binary.BigEndian.Uint16(b))), nil
		},
	}

	// TranscoderDNS 域名
	TranscoderDNS Transcoder = transcoderFuncs{
		s2b: func(s string) ([]byte, error) {
			if s == "" || strings.Contains(s, "/") {
				return nil, fmt.Errorf("%w: bad dns name %q", ErrInvalidValue, s)
			}
			return []byte(s), nil
		},
		b2s: func(b []byte) (string, error) {
			if len(b) == 0 {
				return "", fmt.Errorf("%w: empty dns name", ErrInvalidValue)
			}
			return string(b), nil
		},
	}

	// TranscoderP2P 节点 ID（base58 编码的 multihash）
	TranscoderP2P Transcoder = transcoderFuncs{
		s2b: func(s string) ([]byte, error) {
			b, err := base58.Decode(s)
			if err != nil {
				return nil, fmt.Errorf("%w: bad peer id %q: %v", ErrInvalidValue, s, err)
			}
			if err := validateMultihash(b); err != nil {
				return nil, err
			}
			return b, nil
		},
		b2s: func(b []byte) (string, error) {
			if err := validateMultihash(b); err != nil {
				return "", err
			}
			return base58.Encode(b), nil
		},
	}

	// TranscoderMemory 内存传输地址
	TranscoderMemory Transcoder = transcoderFuncs{
		s2b: func(s string) ([]byte, error) {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad memory id %q", ErrInvalidValue, s)
			}
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, v)
			return b, nil
		},
		b2s: func(b []byte) (string, error) {
			if len(b) != 8 {
				return "", fmt.Errorf("%w: memory length %d", ErrInvalidValue, len(b))
			}
			return strconv.FormatUint(binary.BigEndian.Uint64(b), 10), nil
		},
	}
)

// validateMultihash 校验 <code><len><digest> 结构
func validateMultihash(b []byte) error {
	_, n, err := varint.FromUvarint(b)
	if err != nil {
		return fmt.Errorf("%w: multihash code: %v", ErrInvalidValue, err)
	}
	size, m, err := varint.FromUvarint(b[n:])
	if err != nil {
		return fmt.Errorf("%w: multihash length: %v", ErrInvalidValue, err)
	}
	if uint64(len(b)-n-m) != size {
		return fmt.Errorf("%w: multihash digest length mismatch", ErrInvalidValue)
	}
	return nil
}
