// Package eventbus 实现按类型分发的事件总线
//
// 订阅和发射都以事件指针类型为键：
//
//	sub, _ := bus.Subscribe(new(swarm.EvtPeerDiscovered))
//	em, _ := bus.Emitter(new(swarm.EvtPeerDiscovered))
//	em.Emit(swarm.EvtPeerDiscovered{Peer: p})
//
// 订阅者缓冲区满时事件被丢弃并告警，发射方永不阻塞。
package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
)

var logger = log.Logger("core/eventbus")

// 默认订阅缓冲区
const defaultBufSize = 64

// 错误定义
var (
	// ErrInvalidEventType 无效的事件类型
	ErrInvalidEventType = errors.New("eventbus: invalid event type")
	// ErrNonPointerType 非指针类型
	ErrNonPointerType = errors.New("eventbus: subscribe called with non-pointer type")
	// ErrEmitterClosed 发射器已关闭
	ErrEmitterClosed = errors.New("eventbus: emitter is closed")
	// ErrWrongEventType 发射的事件类型与发射器不符
	ErrWrongEventType = errors.New("eventbus: emitted event has wrong type")
)

// Bus 事件总线
type Bus struct {
	mu    sync.Mutex
	nodes map[reflect.Type]*node
}

// node 单个事件类型的订阅者集合
type node struct {
	lk        sync.Mutex
	typ       reflect.Type
	sinks     []*Subscription
	nEmitters atomic.Int32
	keepLast  bool
	last      interface{}
	dropCount atomic.Int64
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{nodes: make(map[reflect.Type]*node)}
}

// Subscribe 订阅事件，eventType 为事件指针，如 new(EvtX)
func (b *Bus) Subscribe(eventType interface{}, opts ...SubscriptionOpt) (*Subscription, error) {
	typ, err := elemType(eventType)
	if err != nil {
		return nil, err
	}

	settings := subscriptionSettings{buffer: defaultBufSize}
	for _, opt := range opts {
		opt(&settings)
	}

	sub := &Subscription{
		bus: b,
		typ: typ,
		out: make(chan interface{}, settings.buffer),
	}
	b.withNode(typ, func(n *node) {
		n.sinks = append(n.sinks, sub)
		if n.keepLast && n.last != nil {
			select {
			case sub.out <- n.last:
			default:
			}
		}
	})
	return sub, nil
}

// Emitter 获取发射器
func (b *Bus) Emitter(eventType interface{}, opts ...EmitterOpt) (*Emitter, error) {
	typ, err := elemType(eventType)
	if err != nil {
		return nil, err
	}

	settings := emitterSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	var n *node
	b.withNode(typ, func(nd *node) {
		n = nd
		n.nEmitters.Add(1)
		if settings.stateful {
			n.keepLast = true
		}
	})
	return &Emitter{bus: b, node: n, typ: typ}, nil
}

func elemType(eventType interface{}) (reflect.Type, error) {
	if eventType == nil {
		return nil, ErrInvalidEventType
	}
	typ := reflect.TypeOf(eventType)
	if typ.Kind() != reflect.Ptr {
		return nil, ErrNonPointerType
	}
	return typ.Elem(), nil
}

// withNode 在节点锁内执行 cb，节点不存在时创建
func (b *Bus) withNode(typ reflect.Type, cb func(*node)) {
	b.mu.Lock()
	n, ok := b.nodes[typ]
	if !ok {
		n = &node{typ: typ}
		b.nodes[typ] = n
	}
	n.lk.Lock()
	b.mu.Unlock()

	cb(n)
	n.lk.Unlock()
}

// tryDropNode 没有订阅者和发射器时删除节点
func (b *Bus) tryDropNode(typ reflect.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[typ]
	if !ok {
		return
	}
	n.lk.Lock()
	empty := len(n.sinks) == 0 && n.nEmitters.Load() == 0
	n.lk.Unlock()
	if empty {
		delete(b.nodes, typ)
	}
}

// removeSub 移除订阅并关闭其通道
func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	n, ok := b.nodes[sub.typ]
	if !ok {
		b.mu.Unlock()
		close(sub.out)
		return
	}
	n.lk.Lock()
	b.mu.Unlock()

	for i, s := range n.sinks {
		if s == sub {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			break
		}
	}
	// 在节点锁内关闭，emit 不会再向其写入
	close(sub.out)
	shouldDrop := len(n.sinks) == 0 && n.nEmitters.Load() == 0
	n.lk.Unlock()

	if shouldDrop {
		b.tryDropNode(sub.typ)
	}
}

// emit 发送事件到所有订阅者
func (n *node) emit(event interface{}) {
	n.lk.Lock()
	defer n.lk.Unlock()

	if n.keepLast {
		n.last = event
	}
	for _, sub := range n.sinks {
		select {
		case sub.out <- event:
		default:
			dropped := n.dropCount.Add(1)
			if dropped%100 == 1 {
				logger.Warn("慢消费者检测",
					"dropped", dropped,
					"type", n.typ.String())
			}
		}
	}
}
