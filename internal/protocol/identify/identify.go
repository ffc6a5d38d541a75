package identify

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-dep2p-swarm/internal/core/mplex"
	"github.com/dep2p/go-dep2p-swarm/internal/core/peerconn"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	ma "github.com/dep2p/go-dep2p-swarm/pkg/lib/multiaddr"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/proto"
	pb "github.com/dep2p/go-dep2p-swarm/pkg/lib/proto/identify"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

var logger = log.Logger("protocol/identify")

// ProtocolID 协议名
const ProtocolID = "/ipfs/id/1.0.0"

const (
	// DefaultAgentVersion 默认代理版本
	DefaultAgentVersion = "go-dep2p-swarm/0.1.0"

	// DefaultProtocolVersion 默认协议版本
	DefaultProtocolVersion = "ipfs/0.1.0"

	// maxMessageSize identify 消息上限
	maxMessageSize = 8 << 10
)

// Service identify 服务
type Service struct {
	local           *types.Peer
	pubKey          []byte
	protocols       func() []string
	agentVersion    string
	protocolVersion string
}

var _ peerconn.Protocol = (*Service)(nil)

// Option 服务选项
type Option func(*Service)

// WithAgentVersion 设置代理版本
func WithAgentVersion(v string) Option {
	return func(s *Service) {
		if v != "" {
			s.agentVersion = v
		}
	}
}

// WithProtocolVersion 设置协议版本
func WithProtocolVersion(v string) Option {
	return func(s *Service) {
		if v != "" {
			s.protocolVersion = v
		}
	}
}

// WithProtocols 设置本地协议表来源
func WithProtocols(fn func() []string) Option {
	return func(s *Service) {
		s.protocols = fn
	}
}

// New 创建 identify 服务，local 必须带公钥
func New(local *types.Peer, opts ...Option) (*Service, error) {
	if local == nil || local.PublicKey() == nil {
		return nil, ErrNoLocalKey
	}
	raw, err := crypto.MarshalPublicKey(local.PublicKey())
	if err != nil {
		return nil, err
	}
	s := &Service{
		local:           local,
		pubKey:          raw,
		protocols:       func() []string { return nil },
		agentVersion:    DefaultAgentVersion,
		protocolVersion: DefaultProtocolVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID 协议名
func (s *Service) ID() string {
	return ProtocolID
}

// Handle 响应方：写出本地身份信息
func (s *Service) Handle(ctx context.Context, conn *peerconn.PeerConnection, st *mplex.Substream) error {
	msg := &pb.Identify{
		PublicKey:       s.pubKey,
		Protocols:       s.protocols(),
		ProtocolVersion: s.protocolVersion,
		AgentVersion:    s.agentVersion,
	}
	for _, a := range s.local.Addrs() {
		msg.ListenAddrs = append(msg.ListenAddrs, a.Bytes())
	}
	if observed := conn.RemoteAddr(); observed != nil {
		if base := ma.WithoutPeerID(observed); base != nil {
			msg.ObservedAddr = base.Bytes()
		}
	}

	_ = st.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := proto.WriteDelimited(st, msg.Marshal()); err != nil {
		return fmt.Errorf("write identify: %w", err)
	}
	return st.CloseWrite()
}

// Identify 请求方：获取并校验对端身份
//
// 返回的地址都带 /p2p/<id>。
func (s *Service) Identify(ctx context.Context, conn *peerconn.PeerConnection) (types.PeerInfo, error) {
	st, err := conn.NewStream(ctx, ProtocolID)
	if err != nil {
		return types.PeerInfo{}, err
	}
	defer st.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = st.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	data, err := proto.ReadDelimited(st, maxMessageSize)
	if err != nil {
		if ctx.Err() != nil {
			return types.PeerInfo{}, ctx.Err()
		}
		return types.PeerInfo{}, fmt.Errorf("read identify: %w", err)
	}

	var msg pb.Identify
	if err := msg.Unmarshal(data); err != nil {
		return types.PeerInfo{}, err
	}
	info, err := parse(&msg)
	if err != nil {
		return types.PeerInfo{}, err
	}

	if expected := conn.RemotePeerID(); expected != types.EmptyPeerID && expected != info.ID {
		return types.PeerInfo{}, fmt.Errorf("%w: expected %s, got %s", ErrPeerIDMismatch, expected.ShortString(), info.ID.ShortString())
	}

	if len(msg.ObservedAddr) > 0 {
		if observed, err := ma.NewMultiaddrBytes(msg.ObservedAddr); err == nil {
			logger.Debug("对端观测到的本地地址",
				"peer", log.TruncateID(string(info.ID), 8),
				"observed", observed)
		}
	}
	return info, nil
}

func parse(msg *pb.Identify) (types.PeerInfo, error) {
	if len(msg.PublicKey) == 0 {
		return types.PeerInfo{}, ErrMissingPublicKey
	}
	pub, err := crypto.UnmarshalPublicKey(msg.PublicKey)
	if err != nil {
		return types.PeerInfo{}, fmt.Errorf("identify: %w", err)
	}
	id, err := types.IDFromPublicKey(pub)
	if err != nil {
		return types.PeerInfo{}, err
	}

	info := types.PeerInfo{
		ID:              id,
		PublicKey:       pub,
		AgentVersion:    msg.AgentVersion,
		ProtocolVersion: msg.ProtocolVersion,
	}
	for _, raw := range msg.ListenAddrs {
		a, err := ma.NewMultiaddrBytes(raw)
		if err != nil {
			continue
		}
		if a, err = ma.WithPeerID(a, string(id)); err == nil {
			info.Addrs = append(info.Addrs, a)
		}
	}
	return info, nil
}
