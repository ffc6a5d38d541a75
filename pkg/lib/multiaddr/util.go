package multiaddr

// Covers 判断 filter 是否覆盖 target
//
// filter 的每个组件都必须在 target 中出现（协议和值都相等），
// 顺序和其它组件不限。例如 /p2p/QmX 覆盖 /ip4/1.2.3.4/tcp/4001/p2p/QmX。
func Covers(filter, target Multiaddr) bool {
	if filter == nil || target == nil {
		return false
	}
	tc := target.Components()
	for _, fc := range filter.Components() {
		found := false
		for _, c := range tc {
			if c.Equal(fc) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// GetPeerID 返回地址中最后一个 /p2p/ 组件的值
func GetPeerID(m Multiaddr) string {
	if m == nil {
		return ""
	}
	comps := m.Components()
	for i := len(comps) - 1; i >= 0; i-- {
		if comps[i].proto.Code == P_P2P {
			return comps[i].value
		}
	}
	return ""
}

// WithoutPeerID 去掉末尾的 /p2p/ 组件
func WithoutPeerID(m Multiaddr) Multiaddr {
	if m == nil {
		return nil
	}
	comps := m.Components()
	if n := len(comps); n > 0 && comps[n-1].proto.Code == P_P2P {
		if n == 1 {
			return nil
		}
		return fromComponents(comps[:n-1])
	}
	return m
}

// WithPeerID 确保地址以 /p2p/<id> 结尾
//
// 已有其它 /p2p/ 结尾时会被替换。
func WithPeerID(m Multiaddr, peerID string) (Multiaddr, error) {
	p2p, err := NewMultiaddr("/p2p/" + peerID)
	if err != nil {
		return nil, err
	}
	base := WithoutPeerID(m)
	if base == nil {
		return p2p, nil
	}
	return base.Encapsulate(p2p), nil
}

// SplitPeerID 分离传输地址和 P2P 组件
func SplitPeerID(m Multiaddr) (transport Multiaddr, peerID string) {
	return WithoutPeerID(m), GetPeerID(m)
}

// HasProtocol 检查地址是否包含指定协议
func HasProtocol(m Multiaddr, code int) bool {
	if m == nil {
		return false
	}
	for _, p := range m.Protocols() {
		if p.Code == code {
			return true
		}
	}
	return false
}

// FilterAddrs 过滤多地址列表
func FilterAddrs(addrs []Multiaddr, keep func(Multiaddr) bool) []Multiaddr {
	out := make([]Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// UniqueAddrs 去重（保持顺序）
func UniqueAddrs(addrs []Multiaddr) []Multiaddr {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		k := string(a.Bytes())
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Contains 判断列表中是否有相等的地址
func Contains(addrs []Multiaddr, m Multiaddr) bool {
	for _, a := range addrs {
		if a.Equal(m) {
			return true
		}
	}
	return false
}

// ParseAll 解析字符串列表，遇到错误立即返回
func ParseAll(ss []string) ([]Multiaddr, error) {
	out := make([]Multiaddr, 0, len(ss))
	for _, s := range ss {
		m, err := NewMultiaddr(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Strings 转换为字符串列表
func Strings(addrs []Multiaddr) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
