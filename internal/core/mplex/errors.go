package mplex

import "errors"

var (
	// ErrStreamClosed 流已关闭
	ErrStreamClosed = errors.New("mplex: stream closed")

	// ErrStreamReset 流被重置
	ErrStreamReset = errors.New("mplex: stream reset")

	// ErrMuxerClosed 复用器已关闭
	ErrMuxerClosed = errors.New("mplex: muxer closed")

	// ErrFrameTooLarge 帧负载超过上限
	ErrFrameTooLarge = errors.New("mplex: frame payload too large")

	// ErrStreamIDOverflow 流 ID 超过 2^60-1
	ErrStreamIDOverflow = errors.New("mplex: stream id overflow")

	// ErrUnknownPacketType 未知的包类型
	ErrUnknownPacketType = errors.New("mplex: unknown packet type")
)
