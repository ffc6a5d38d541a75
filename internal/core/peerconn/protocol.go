package peerconn

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/dep2p/go-dep2p-swarm/internal/core/mplex"
)

// Protocol 挂载在连接上的应用协议
type Protocol interface {
	// ID 协议名，如 /ipfs/id/1.0.0
	ID() string

	// Handle 处理对端发起并已协商成功的子流
	//
	// 返回后子流会被关闭；返回错误时子流被重置。
	Handle(ctx context.Context, conn *PeerConnection, s *mplex.Substream) error
}

// ProtocolFunc 以函数实现 Protocol
type ProtocolFunc struct {
	Name    string
	Handler func(ctx context.Context, conn *PeerConnection, s *mplex.Substream) error
}

// ID 返回协议名
func (p ProtocolFunc) ID() string {
	return p.Name
}

// Handle 调用处理函数
func (p ProtocolFunc) Handle(ctx context.Context, conn *PeerConnection, s *mplex.Substream) error {
	return p.Handler(ctx, conn, s)
}

// candidates 返回与 name 相同或以 name 为前缀的协议名，按版本降序
func candidates(names []string, name string) []string {
	var out []string
	for _, n := range names {
		if n == name || strings.HasPrefix(n, name) {
			out = append(out, n)
		}
	}
	SortByVersion(out)
	return out
}

// SortByVersion 按版本降序排列协议名
//
// 版本取最后一个路径段；两者都是合法语义版本时按语义版本比较，否则按字典序。
func SortByVersion(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return compareVersion(names[i], names[j]) > 0
	})
}

func compareVersion(a, b string) int {
	va, vb := versionOf(a), versionOf(b)
	if semver.IsValid(va) && semver.IsValid(vb) {
		if c := semver.Compare(va, vb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

func versionOf(name string) string {
	seg := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		seg = name[i+1:]
	}
	if !strings.HasPrefix(seg, "v") {
		seg = "v" + seg
	}
	return seg
}
