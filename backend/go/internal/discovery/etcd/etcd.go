package etcd

import (
	"ai_mem/backend/go/internal/config"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/services"

// ServiceDiscovery 通过 etcd 租约注册和发现服务实例。
type ServiceDiscovery struct {
	cli *clientv3.Client // etcd client
}

// Registration 是一次服务注册，Close 会停止续约并撤销租约。
type Registration struct {
	cli     *clientv3.Client
	leaseID clientv3.LeaseID
	key     string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewClientConfig 将配置转换为 etcd 客户端配置。
func NewClientConfig(cfg *config.EtcdConfig) clientv3.Config {
	return clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: 5 * time.Second,
	}
}

// NewServiceDiscovery 创建一个新的 ServiceDiscovery。
func NewServiceDiscovery(cfg *config.EtcdConfig) (*ServiceDiscovery, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("未配置 etcd endpoints")
	}
	cli, err := clientv3.New(NewClientConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("无法连接到 etcd: %w", err)
	}
	return &ServiceDiscovery{cli: cli}, nil
}

// ServiceKey 返回服务实例在 etcd 中的键。
func ServiceKey(serviceName, addr string) string {
	return ServicePrefix(serviceName) + addr
}

// ServicePrefix 返回某个服务所有实例共享的键前缀。
func ServicePrefix(serviceName string) string {
	return keyPrefix + "/" + strings.Trim(serviceName, "/") + "/"
}

// Register 以 ttl 秒的租约注册服务实例，并在后台持续续约。
//
// 参数:
//
//	ctx: 用于授予租约与写入键的上下文。
//	serviceName: 服务名。
//	addr: 实例地址。
//	ttl: 租约 TTL (秒)。
//
// 返回值:
//
//	*Registration: 注册句柄，调用 Close 注销。
//	error: 授予租约、写入或续约失败时返回错误。
func (s *ServiceDiscovery) Register(ctx context.Context, serviceName, addr string, ttl int64) (*Registration, error) {
	leaseResp, err := s.cli.Grant(ctx, ttl)
	if err != nil {
		return nil, fmt.Errorf("授予 etcd 租约失败: %w", err)
	}

	key := ServiceKey(serviceName, addr)
	if _, err := s.cli.Put(ctx, key, addr, clientv3.WithLease(leaseResp.ID)); err != nil {
		return nil, fmt.Errorf("写入服务注册信息失败: %w", err)
	}

	keepCtx, cancel := context.WithCancel(context.Background())
	keepAliveCh, err := s.cli.KeepAlive(keepCtx, leaseResp.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("etcd 租约续约失败: %w", err)
	}

	reg := &Registration{cli: s.cli, leaseID: leaseResp.ID, key: key, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(reg.done)
		for range keepAliveCh {
		}
		if keepCtx.Err() == nil {
			logrus.WithField("key", key).Warn("etcd 租约已失效")
		}
	}()
	return reg, nil
}

// Close 停止续约并撤销租约，键随之删除。
func (r *Registration) Close(ctx context.Context) error {
	r.cancel()
	<-r.done
	if _, err := r.cli.Revoke(ctx, r.leaseID); err != nil {
		return fmt.Errorf("撤销 etcd 租约失败: %w", err)
	}
	return nil
}

// Key 返回注册使用的键。
func (r *Registration) Key() string {
	return r.key
}

// Discover 返回某个服务当前注册的所有实例地址。
func (s *ServiceDiscovery) Discover(ctx context.Context, serviceName string) ([]string, error) {
	resp, err := s.cli.Get(ctx, ServicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	var addrs []string
	for _, ev := range resp.Kvs {
		addrs = append(addrs, string(ev.Value))
	}

	return addrs, nil
}

// Close closes the etcd client.
func (s *ServiceDiscovery) Close() error {
	return s.cli.Close()
}
