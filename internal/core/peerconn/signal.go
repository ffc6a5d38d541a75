package peerconn

import (
	"context"
	"sync"
)

// Signal 一次性信号：只能完成或中断一次
type Signal[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewSignal 创建信号
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{done: make(chan struct{})}
}

// Complete 以值完成，已完成或已中断时返回 false
func (s *Signal[T]) Complete(v T) bool {
	fired := false
	s.once.Do(func() {
		s.val = v
		close(s.done)
		fired = true
	})
	return fired
}

// Break 以错误中断，已完成或已中断时返回 false
func (s *Signal[T]) Break(err error) bool {
	fired := false
	s.once.Do(func() {
		if err == nil {
			err = ErrConnClosed
		}
		s.err = err
		close(s.done)
		fired = true
	})
	return fired
}

// Wait 等待信号或 ctx 结束
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.val, s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done 信号触发后关闭的通道
func (s *Signal[T]) Done() <-chan struct{} {
	return s.done
}

// Err 中断原因，未触发或已完成时为 nil
func (s *Signal[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// IsSet 是否已触发
func (s *Signal[T]) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
