package transport

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

var logger = log.Logger("core/transport")

// Registry 协议名到传输的映射
type Registry struct {
	mu         sync.RWMutex
	byProtocol map[string]Transport
	transports []Transport
}

// NewRegistry 创建注册表并注册 ts
func NewRegistry(ts ...Transport) (*Registry, error) {
	r := &Registry{byProtocol: make(map[string]Transport)}
	for _, t := range ts {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add 注册传输，协议名冲突时返回 ErrDuplicateTransport
func (r *Registry) Add(t Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range t.Protocols() {
		if _, ok := r.byProtocol[p]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTransport, p)
		}
	}
	for _, p := range t.Protocols() {
		r.byProtocol[p] = t
	}
	r.transports = append(r.transports, t)
	logger.Debug("注册传输", "protocols", t.Protocols())
	return nil
}

// Lookup 按协议名查找
func (r *Registry) Lookup(protocol string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byProtocol[protocol]
	return t, ok
}

// TransportFor 选择处理 addr 的传输
//
// 从后往前取第一个已注册的协议名。
func (r *Registry) TransportFor(addr ma.Multiaddr) (Transport, error) {
	if addr == nil {
		return nil, ErrInvalidAddress
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	protos := addr.Protocols()
	for i := len(protos) - 1; i >= 0; i-- {
		if t, ok := r.byProtocol[protos[i].Name]; ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoTransport, addr)
}

// CanDial 是否有传输能拨号 addr
func (r *Registry) CanDial(addr ma.Multiaddr) bool {
	t, err := r.TransportFor(addr)
	return err == nil && t.CanDial(addr)
}

// Transports 已注册的传输
func (r *Registry) Transports() []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transport, len(r.transports))
	copy(out, r.transports)
	return out
}

// Close 关闭全部传输
func (r *Registry) Close() error {
	var errs error
	for _, t := range r.Transports() {
		errs = multierr.Append(errs, t.Close())
	}
	return errs
}
