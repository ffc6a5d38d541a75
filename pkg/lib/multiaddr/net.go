package multiaddr

import (
	"fmt"
	"net"
	"strconv"
)

// ToNetAddr 将 /ip4|ip6|dns*/<host>/tcp|udp/<port> 前缀转换为 net 拨号参数
//
// 返回的 network 为 "tcp4"/"tcp6"/"tcp"/"udp4"/...，address 为 host:port。
func ToNetAddr(m Multiaddr) (network, address string, err error) {
	if m == nil {
		return "", "", ErrInvalidMultiaddr
	}
	comps := m.Components()
	if len(comps) < 2 {
		return "", "", fmt.Errorf("%w: %s is not a thin waist address", ErrInvalidMultiaddr, m)
	}

	host, port := comps[0], comps[1]
	var family string
	switch host.proto.Code {
	case P_IP4, P_DNS4:
		family = "4"
	case P_IP6, P_DNS6:
		family = "6"
	case P_DNS:
	default:
		return "", "", fmt.Errorf("%w: unsupported host protocol %s", ErrInvalidMultiaddr, host.proto.Name)
	}

	switch port.proto.Code {
	case P_TCP:
		network = "tcp" + family
	case P_UDP:
		network = "udp" + family
	default:
		return "", "", fmt.Errorf("%w: unsupported transport protocol %s", ErrInvalidMultiaddr, port.proto.Name)
	}
	return network, net.JoinHostPort(host.value, port.value), nil
}

// FromNetAddr 从 net.TCPAddr / net.UDPAddr 构造多地址
func FromNetAddr(a net.Addr) (Multiaddr, error) {
	switch v := a.(type) {
	case *net.TCPAddr:
		return fromIPPort(v.IP, "tcp", v.Port)
	case *net.UDPAddr:
		return fromIPPort(v.IP, "udp", v.Port)
	default:
		return nil, fmt.Errorf("%w: unsupported net.Addr %T", ErrInvalidMultiaddr, a)
	}
}

func fromIPPort(ip net.IP, proto string, port int) (Multiaddr, error) {
	if ip4 := ip.To4(); ip4 != nil {
		return NewMultiaddr("/ip4/" + ip4.String() + "/" + proto + "/" + strconv.Itoa(port))
	}
	if ip.To16() != nil {
		return NewMultiaddr("/ip6/" + ip.String() + "/" + proto + "/" + strconv.Itoa(port))
	}
	return nil, fmt.Errorf("%w: bad ip %v", ErrInvalidMultiaddr, ip)
}

// IsIPUnspecified 地址的 IP 组件是否为 0.0.0.0 或 ::
func IsIPUnspecified(m Multiaddr) bool {
	ip := firstIP(m)
	return ip != nil && ip.IsUnspecified()
}

// IsIPLoopback 地址的 IP 组件是否为回环地址
func IsIPLoopback(m Multiaddr) bool {
	ip := firstIP(m)
	return ip != nil && ip.IsLoopback()
}

func firstIP(m Multiaddr) net.IP {
	if m == nil {
		return nil
	}
	comps := m.Components()
	if len(comps) == 0 {
		return nil
	}
	switch comps[0].proto.Code {
	case P_IP4, P_IP6:
		return net.IP(comps[0].raw)
	}
	return nil
}

// ExpandUnspecified 将未指定 IP 展开为给定的接口地址
//
// 非未指定地址原样返回。ifaceAddrs 为 nil 时读取本机接口。
func ExpandUnspecified(m Multiaddr, ifaceAddrs []net.IP) ([]Multiaddr, error) {
	if !IsIPUnspecified(m) {
		return []Multiaddr{m}, nil
	}
	if ifaceAddrs == nil {
		var err error
		if ifaceAddrs, err = InterfaceIPs(); err != nil {
			return nil, err
		}
	}

	comps := m.Components()
	want4 := comps[0].proto.Code == P_IP4
	var out []Multiaddr
	for _, ip := range ifaceAddrs {
		is4 := ip.To4() != nil
		if is4 != want4 {
			continue
		}
		proto := protocolsByCode[P_IP6]
		raw := []byte(ip.To16())
		if is4 {
			proto = protocolsByCode[P_IP4]
			raw = ip.To4()
		}
		value, err := proto.Transcoder.BytesToString(raw)
		if err != nil {
			continue
		}
		expanded := append([]Component{{proto: proto, raw: raw, value: value}}, comps[1:]...)
		out = append(out, fromComponents(expanded))
	}
	return out, nil
}

// InterfaceIPs 返回本机所有接口 IP
func InterfaceIPs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			ips = append(ips, ipnet.IP)
		}
	}
	return ips, nil
}
