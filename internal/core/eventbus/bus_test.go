package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	N int
}

type otherEvent struct{}

func recv(t *testing.T, sub *Subscription) interface{} {
	t.Helper()
	select {
	case e := <-sub.Out():
		return e
	case <-time.After(time.Second):
		t.Fatal("等待事件超时")
		return nil
	}
}

// ============================================================================
//                              订阅与发射
// ============================================================================

// TestBus_SubscribeEmit 测试基本订阅发射
func TestBus_SubscribeEmit(t *testing.T) {
	bus := NewBus()

	sub1, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	defer sub2.Close()
	other, err := bus.Subscribe(new(otherEvent))
	require.NoError(t, err)
	defer other.Close()

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, em.Emit(testEvent{N: 7}))

	assert.Equal(t, testEvent{N: 7}, recv(t, sub1))
	assert.Equal(t, testEvent{N: 7}, recv(t, sub2))
	assert.Len(t, other.Out(), 0)

	t.Log("✅ 事件按类型分发")
}

// TestBus_InvalidType 测试非指针类型
func TestBus_InvalidType(t *testing.T) {
	bus := NewBus()

	_, err := bus.Subscribe(testEvent{})
	assert.ErrorIs(t, err, ErrNonPointerType)

	_, err = bus.Emitter(nil)
	assert.ErrorIs(t, err, ErrInvalidEventType)

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	assert.ErrorIs(t, em.Emit(otherEvent{}), ErrWrongEventType)
}

// TestEmitter_Close 测试关闭后发射失败
func TestEmitter_Close(t *testing.T) {
	bus := NewBus()
	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)

	require.NoError(t, em.Close())
	require.NoError(t, em.Close())
	assert.ErrorIs(t, em.Emit(testEvent{}), ErrEmitterClosed)
}

// TestSubscription_Close 测试取消订阅后通道关闭
func TestSubscription_Close(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Out()
	assert.False(t, ok)

	// 无订阅者时发射不阻塞
	require.NoError(t, em.Emit(testEvent{N: 1}))
}

// TestBus_SlowConsumer 测试缓冲区满时丢弃而不阻塞
func TestBus_SlowConsumer(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(new(testEvent), BufSize(2))
	require.NoError(t, err)
	defer sub.Close()
	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	defer em.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = em.Emit(testEvent{N: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("发射被阻塞")
	}
	assert.Len(t, sub.Out(), 2)
	assert.Equal(t, testEvent{N: 0}, recv(t, sub))
}

// TestEmitter_Stateful 测试有状态发射器
func TestEmitter_Stateful(t *testing.T) {
	bus := NewBus()
	em, err := bus.Emitter(new(testEvent), Stateful())
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, em.Emit(testEvent{N: 1}))
	require.NoError(t, em.Emit(testEvent{N: 2}))

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, testEvent{N: 2}, recv(t, sub))
	t.Log("✅ 新订阅者收到最后一个事件")
}
