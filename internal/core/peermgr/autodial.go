package peermgr

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-dep2p-swarm/internal/core/eventbus"
	"github.com/dep2p/go-dep2p-swarm/internal/core/swarm"
	"github.com/dep2p/go-dep2p-swarm/pkg/lib/log"
	"github.com/dep2p/go-dep2p-swarm/pkg/types"
)

// AutoDialer 连接数不足时自动拨号
//
// 发现新节点且连接数低于 MinConnections 时拨号该节点；
// 节点断开后从已知未连接节点中依次尝试，最多 MaxAttempts 个。
type AutoDialer struct {
	cfg     *AutoDialerConfig
	net     Network
	clock   clock.Clock
	limiter *rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// AutoDialerOption 自动拨号选项
type AutoDialerOption func(*AutoDialer)

// WithAutoDialerClock 设置时钟
func WithAutoDialerClock(c clock.Clock) AutoDialerOption {
	return func(a *AutoDialer) {
		a.clock = c
	}
}

// NewAutoDialer 创建自动拨号器
func NewAutoDialer(net Network, cfg *AutoDialerConfig, opts ...AutoDialerOption) (*AutoDialer, error) {
	if cfg == nil {
		cfg = DefaultAutoDialerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &AutoDialer{
		cfg:     cfg,
		net:     net,
		clock:   clock.New(),
		limiter: rate.NewLimiter(cfg.DialRate, cfg.DialBurst),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start 订阅发现与断开事件
func (a *AutoDialer) Start(_ context.Context) error {
	bus := a.net.EventBus()
	discovered, err := bus.Subscribe(new(swarm.EvtPeerDiscovered), eventbus.BufSize(64))
	if err != nil {
		return err
	}
	disconnected, err := bus.Subscribe(new(swarm.EvtPeerDisconnected))
	if err != nil {
		_ = discovered.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go a.loop(ctx, discovered, disconnected)
	logger.Debug("自动拨号已启动", "minConnections", a.cfg.MinConnections)
	return nil
}

// Stop 停止自动拨号，等待进行中的拨号返回
func (a *AutoDialer) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	return nil
}

func (a *AutoDialer) loop(ctx context.Context, discovered, disconnected *eventbus.Subscription) {
	defer a.wg.Done()
	defer discovered.Close()
	defer disconnected.Close()

	for {
		select {
		case e, ok := <-discovered.Out():
			if !ok {
				return
			}
			p := e.(swarm.EvtPeerDiscovered).Peer
			if a.belowMinimum() {
				a.wg.Add(1)
				go func() {
					defer a.wg.Done()
					a.dial(ctx, p)
				}()
			}
		case _, ok := <-disconnected.Out():
			if !ok {
				return
			}
			if a.belowMinimum() {
				a.wg.Add(1)
				go func() {
					defer a.wg.Done()
					a.refill(ctx)
				}()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *AutoDialer) belowMinimum() bool {
	return a.net.ConnectionCount() < a.cfg.MinConnections
}

// dial 受速率限制的单次拨号，返回是否连接成功
func (a *AutoDialer) dial(ctx context.Context, p *types.Peer) bool {
	if a.net.IsConnected(p.ID()) {
		return true
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return false
	}
	dctx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
	defer cancel()

	if _, err := a.net.Connect(dctx, p.Info()); err != nil {
		logger.Debug("自动拨号失败", "peer", log.TruncateID(string(p.ID()), 8), "error", err)
		return false
	}
	logger.Debug("自动拨号成功", "peer", log.TruncateID(string(p.ID()), 8))
	return true
}

// refill 断开后补充连接
func (a *AutoDialer) refill(ctx context.Context) {
	var candidates []*types.Peer
	for _, p := range a.net.KnownPeers() {
		if !a.net.IsConnected(p.ID()) {
			candidates = append(candidates, p)
		}
	}

	for i := 0; i < len(candidates) && i < a.cfg.MaxAttempts; i++ {
		if !a.belowMinimum() {
			return
		}
		if i > 0 {
			t := a.clock.Timer(a.cfg.RetryInterval)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return
			}
		}
		if a.dial(ctx, candidates[i]) {
			return
		}
	}
}
