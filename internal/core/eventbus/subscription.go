package eventbus

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Subscription 订阅
type Subscription struct {
	bus       *Bus
	typ       reflect.Type
	out       chan interface{}
	closeOnce sync.Once
}

// Out 返回事件通道，Close 后通道被关闭
func (s *Subscription) Out() <-chan interface{} {
	return s.out
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.removeSub(s)
	})
	return nil
}

// Emitter 事件发射器
type Emitter struct {
	bus       *Bus
	node      *node
	typ       reflect.Type
	closed    atomic.Bool
	closeOnce sync.Once
}

// Emit 发射事件，事件值类型必须与发射器类型一致
func (e *Emitter) Emit(event interface{}) error {
	if e.closed.Load() {
		return ErrEmitterClosed
	}
	if reflect.TypeOf(event) != e.typ {
		return ErrWrongEventType
	}
	e.node.emit(event)
	return nil
}

// Close 关闭发射器
func (e *Emitter) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.node.nEmitters.Add(-1) == 0 {
			e.bus.tryDropNode(e.typ)
		}
	})
	return nil
}

// ============================================================================
//                              选项
// ============================================================================

type subscriptionSettings struct {
	buffer int
}

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*subscriptionSettings)

// BufSize 设置订阅缓冲区大小
func BufSize(n int) SubscriptionOpt {
	return func(s *subscriptionSettings) {
		if n >= 0 {
			s.buffer = n
		}
	}
}

type emitterSettings struct {
	stateful bool
}

// EmitterOpt 发射器选项
type EmitterOpt func(*emitterSettings)

// Stateful 新订阅者会立即收到最后一个事件
func Stateful() EmitterOpt {
	return func(s *emitterSettings) {
		s.stateful = true
	}
}
