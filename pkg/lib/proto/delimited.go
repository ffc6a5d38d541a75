package proto

import (
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
	"google.golang.org/protobuf/encoding/protowire"
)

// DefaultMaxMessageSize 默认单条消息上限
const DefaultMaxMessageSize = 64 << 10

var (
	// ErrMessageTooLarge 消息超过上限
	ErrMessageTooLarge = errors.New("proto: message too large")

	// ErrInvalidMessage 消息格式错误
	ErrInvalidMessage = errors.New("proto: invalid message")
)

// WriteDelimited 以一次写入发送 uvarint(len) + msg
func WriteDelimited(w io.Writer, msg []byte) error {
	buf := make([]byte, 0, varint.UvarintSize(uint64(len(msg)))+len(msg))
	buf = append(buf, varint.ToUvarint(uint64(len(msg)))...)
	buf = append(buf, msg...)
	_, err := w.Write(buf)
	return err
}

// ReadDelimited 读取一条 varint 长度前缀的消息
//
// 逐字节读取长度前缀，不会多读后续数据。
func ReadDelimited(r io.Reader, maxSize int) ([]byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}
	length, err := varint.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if length > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}
	msg := make([]byte, length)
	if _, err := io.ReadFull(r, msg); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}

type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}

// Field 解码出的字段
type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	Bytes  []byte
	Varint uint64
}

// RangeFields 遍历消息字段，不认识的字段类型按规则跳过
func RangeFields(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(m))
			}
			f.Bytes = append([]byte(nil), v...)
			n = m
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(m))
			}
			f.Varint = v
			n = m
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(m))
			}
			b = b[m:]
			continue
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// AppendBytesField 追加 bytes 字段，空值省略
func AppendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendStringField 追加 string 字段，空值省略
func AppendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
