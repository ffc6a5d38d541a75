// Package resolver 将 /dns、/dns4、/dns6、/dnsaddr 地址解析为具体地址
//
// 查询走 UDP DNS，结果按 (类型, 名称) 缓存。
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/miekg/dns"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
)

var logger = log.Logger("core/resolver")

const dnsaddrPrefix = "dnsaddr="

// Resolver DNS 地址解析器
type Resolver struct {
	cfg     Config
	servers []string
	client  *dns.Client
	cache   *expirable.LRU[string, []string]
}

// New 创建解析器
func New(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	servers := cfg.Servers
	if len(servers) == 0 {
		var err error
		if servers, err = systemServers(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoServers, err)
		}
	}
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	return &Resolver{
		cfg:     cfg,
		servers: servers,
		client:  &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		cache:   expirable.NewLRU[string, []string](cfg.CacheSize, nil, cfg.CacheTTL),
	}, nil
}

// IsDNSAddr 首个组件是否为 DNS 名称
func IsDNSAddr(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	comps := addr.Components()
	if len(comps) == 0 {
		return false
	}
	switch comps[0].Protocol().Code {
	case ma.P_DNS, ma.P_DNS4, ma.P_DNS6, ma.P_DNSADDR:
		return true
	}
	return false
}

// Resolve 解析地址
//
// 非 DNS 地址原样返回。/dnsaddr 地址按 TXT 记录递归展开，若带 /p2p/ 则只保留同一节点的记录。
func (r *Resolver) Resolve(ctx context.Context, addr ma.Multiaddr) ([]ma.Multiaddr, error) {
	return r.resolve(ctx, addr, 0)
}

func (r *Resolver) resolve(ctx context.Context, addr ma.Multiaddr, depth int) ([]ma.Multiaddr, error) {
	if !IsDNSAddr(addr) {
		return []ma.Multiaddr{addr}, nil
	}
	if depth >= r.cfg.MaxDepth {
		return nil, ErrMaxDepth
	}

	comps := addr.Components()
	host := comps[0].Value()
	rest := ""
	for _, c := range comps[1:] {
		rest += c.String()
	}

	switch comps[0].Protocol().Code {
	case ma.P_DNS4:
		return r.resolveIP(ctx, host, rest, dns.TypeA)
	case ma.P_DNS6:
		return r.resolveIP(ctx, host, rest, dns.TypeAAAA)
	case ma.P_DNS:
		v4, err4 := r.resolveIP(ctx, host, rest, dns.TypeA)
		v6, err6 := r.resolveIP(ctx, host, rest, dns.TypeAAAA)
		if len(v4)+len(v6) == 0 {
			if err4 != nil {
				return nil, err4
			}
			return nil, err6
		}
		return append(v4, v6...), nil
	default:
		return r.resolveDNSAddr(ctx, host, addr, depth)
	}
}

func (r *Resolver) resolveIP(ctx context.Context, host, rest string, qtype uint16) ([]ma.Multiaddr, error) {
	ips, err := r.lookup(ctx, host, qtype)
	if err != nil {
		return nil, err
	}
	proto := "/ip4/"
	if qtype == dns.TypeAAAA {
		proto = "/ip6/"
	}
	out := make([]ma.Multiaddr, 0, len(ips))
	for _, ip := range ips {
		m, err := ma.NewMultiaddr(proto + ip + rest)
		if err != nil {
			logger.Debug("跳过无效解析结果", "host", host, "ip", ip, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *Resolver) resolveDNSAddr(ctx context.Context, host string, addr ma.Multiaddr, depth int) ([]ma.Multiaddr, error) {
	txts, err := r.lookup(ctx, "_dnsaddr."+host, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	want := ma.GetPeerID(addr)

	var out []ma.Multiaddr
	for _, txt := range txts {
		if !strings.HasPrefix(txt, dnsaddrPrefix) {
			continue
		}
		m, err := ma.NewMultiaddr(strings.TrimPrefix(txt, dnsaddrPrefix))
		if err != nil {
			logger.Debug("跳过无效 dnsaddr 记录", "host", host, "record", txt, "error", err)
			continue
		}
		if want != "" && ma.GetPeerID(m) != want {
			continue
		}
		resolved, err := r.resolve(ctx, m, depth+1)
		if err != nil {
			logger.Debug("dnsaddr 记录解析失败", "record", txt, "error", err)
			continue
		}
		out = append(out, resolved...)
	}
	return ma.UniqueAddrs(out), nil
}

// lookup 查询一种记录，按服务器顺序重试
func (r *Resolver) lookup(ctx context.Context, name string, qtype uint16) ([]string, error) {
	key := dns.TypeToString[qtype] + " " + strings.ToLower(dns.Fqdn(name))
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
			lastErr = fmt.Errorf("resolver: %s %s: %s", dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
			continue
		}

		values := records(resp.Answer, qtype)
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrNoRecords, dns.TypeToString[qtype], name)
		}
		r.cache.Add(key, values)
		return values, nil
	}
	return nil, lastErr
}

func records(answer []dns.RR, qtype uint16) []string {
	var out []string
	for _, rr := range answer {
		switch v := rr.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				out = append(out, v.A.String())
			}
		case *dns.AAAA:
			if qtype == dns.TypeAAAA {
				out = append(out, v.AAAA.String())
			}
		case *dns.TXT:
			if qtype == dns.TypeTXT {
				out = append(out, strings.Join(v.Txt, ""))
			}
		}
	}
	return out
}

// Purge 清空缓存
func (r *Resolver) Purge() {
	r.cache.Purge()
}
