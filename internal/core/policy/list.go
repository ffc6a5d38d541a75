package policy

import (
	"sync"

	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

// AddressList 并发安全的过滤地址集合
type AddressList struct {
	mu    sync.RWMutex
	addrs []ma.Multiaddr
}

// NewAddressList 创建地址集合
func NewAddressList(addrs ...ma.Multiaddr) *AddressList {
	l := &AddressList{}
	for _, a := range addrs {
		l.Add(a)
	}
	return l
}

// ParseAddressList 从字符串创建地址集合
func ParseAddressList(ss []string) (*AddressList, error) {
	addrs, err := ma.ParseAll(ss)
	if err != nil {
		return nil, err
	}
	return NewAddressList(addrs...), nil
}

// Add 添加过滤地址，已存在时返回 false
func (l *AddressList) Add(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if ma.Contains(l.addrs, addr) {
		return false
	}
	l.addrs = append(l.addrs, addr)
	return true
}

// Remove 移除过滤地址
func (l *AddressList) Remove(addr ma.Multiaddr) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, a := range l.addrs {
		if a.Equal(addr) {
			l.addrs = append(l.addrs[:i], l.addrs[i+1:]...)
			return true
		}
	}
	return false
}

// Contains 集合中是否有与 addr 相等的过滤地址
func (l *AddressList) Contains(addr ma.Multiaddr) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ma.Contains(l.addrs, addr)
}

// Matches 是否有过滤地址覆盖 target
func (l *AddressList) Matches(target ma.Multiaddr) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, f := range l.addrs {
		if ma.Covers(f, target) {
			return true
		}
	}
	return false
}

// Len 过滤地址数
func (l *AddressList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.addrs)
}

// List 过滤地址副本
func (l *AddressList) List() []ma.Multiaddr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ma.Multiaddr, len(l.addrs))
	copy(out, l.addrs)
	return out
}
