package resolver

import "errors"

var (
	// ErrNoServers 没有可用的 DNS 服务器
	ErrNoServers = errors.New("resolver: no dns servers")

	// ErrMaxDepth dnsaddr 递归过深
	ErrMaxDepth = errors.New("resolver: max dnsaddr recursion depth exceeded")

	// ErrNoRecords 名称没有对应记录
	ErrNoRecords = errors.New("resolver: no records")
)
