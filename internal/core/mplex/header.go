package mplex

import (
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// PacketType mplex 包类型
//
// 奇数类型由流的接收方发出，偶数类型（NewStream 除外）由发起方发出。
type PacketType uint8

const (
	NewStream        PacketType = 0
	MessageReceiver  PacketType = 1
	MessageInitiator PacketType = 2
	CloseReceiver    PacketType = 3
	CloseInitiator   PacketType = 4
	ResetReceiver    PacketType = 5
	ResetInitiator   PacketType = 6
)

const (
	// MaxStreamID 最大流 ID
	MaxStreamID uint64 = 1<<60 - 1

	// MaxMessageSize 单帧负载上限 (1 MiB)
	MaxMessageSize = 1 << 20
)

// String 返回包类型名称
func (t PacketType) String() string {
	switch t {
	case NewStream:
		return "NewStream"
	case MessageReceiver:
		return "MessageReceiver"
	case MessageInitiator:
		return "MessageInitiator"
	case CloseReceiver:
		return "CloseReceiver"
	case CloseInitiator:
		return "CloseInitiator"
	case ResetReceiver:
		return "ResetReceiver"
	case ResetInitiator:
		return "ResetInitiator"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// localInitiated 收到该类型的帧时，对应流是否由本端发起
func (t PacketType) localInitiated() bool {
	return t&1 == 1
}

// Header 帧头
type Header struct {
	StreamID uint64
	Type     PacketType
}

// ReadHeader 读取并解码帧头
func ReadHeader(r io.ByteReader) (Header, error) {
	v, err := varint.ReadUvarint(r)
	if err != nil {
		return Header{}, err
	}
	h := Header{StreamID: v >> 3, Type: PacketType(v & 0x07)}
	if h.StreamID > MaxStreamID {
		return Header{}, fmt.Errorf("%w: %d", ErrStreamIDOverflow, h.StreamID)
	}
	return h, nil
}

// frameReader 帧读取需要的能力
type frameReader interface {
	io.Reader
	io.ByteReader
}

// ReadFrame 读取一帧：帧头、长度、负载
func ReadFrame(r frameReader) (Header, []byte, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	length, err := varint.ReadUvarint(r)
	if err != nil {
		return Header{}, nil, unexpectedEOF(err)
	}
	if length > MaxMessageSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, unexpectedEOF(err)
	}
	return h, payload, nil
}

// WriteFrame 以一次写入发送一帧
func WriteFrame(w io.Writer, h Header, payload []byte) error {
	if h.StreamID > MaxStreamID {
		return fmt.Errorf("%w: %d", ErrStreamIDOverflow, h.StreamID)
	}
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	hv := h.StreamID<<3 | uint64(h.Type)
	buf := make([]byte, 0, varint.UvarintSize(hv)+varint.UvarintSize(uint64(len(payload)))+len(payload))
	buf = append(buf, varint.ToUvarint(hv)...)
	buf = append(buf, varint.ToUvarint(uint64(len(payload)))...)
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	return err
}

// 帧头之后的 EOF 视为截断
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
