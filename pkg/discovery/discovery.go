package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/craftshop/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const leaseTTL = 30

// ServiceDiscovery registers this process in etcd and reads shared
// configuration (offer codes) kept under a key prefix.
type ServiceDiscovery struct {
	client *clientv3.Client
	config *config.EtcdConfig
	logger *zap.Logger
}

type ServiceInstance struct {
	Name string
	Host string
	Port int
}

func (i *ServiceInstance) Addr() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

func NewServiceDiscovery(cfg *config.EtcdConfig, logger *zap.Logger) (*ServiceDiscovery, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &ServiceDiscovery{
		client: cli,
		config: cfg,
		logger: logger.Named("discovery"),
	}, nil
}

func (sd *ServiceDiscovery) instanceKey(instance *ServiceInstance) string {
	return fmt.Sprintf("%s%s/%s", sd.config.Prefix, instance.Name, instance.Addr())
}

// Register puts the instance under a lease and keeps the lease alive until ctx ends.
func (sd *ServiceDiscovery) Register(ctx context.Context, instance *ServiceInstance) error {
	lease, err := sd.client.Grant(ctx, leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	_, err = sd.client.Put(ctx, sd.instanceKey(instance), instance.Addr(), clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	ch, kaerr := sd.client.KeepAlive(ctx, lease.ID)
	if kaerr != nil {
		return fmt.Errorf("failed to keep alive: %w", kaerr)
	}

	go func() {
		for range ch {
		}
		sd.logger.Info("Lease keep-alive stopped", zap.String("key", sd.instanceKey(instance)))
	}()

	return nil
}

func (sd *ServiceDiscovery) Deregister(ctx context.Context, instance *ServiceInstance) error {
	_, err := sd.client.Delete(ctx, sd.instanceKey(instance))
	if err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	return nil
}

// LoadPrefix returns every key under prefix, with the prefix stripped.
func (sd *ServiceDiscovery) LoadPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	resp, err := sd.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", prefix, err)
	}

	values := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		values[strings.TrimPrefix(string(kv.Key), prefix)] = string(kv.Value)
	}
	return values, nil
}

// WatchPrefix reloads the whole prefix after every change and hands the
// result to onChange. It returns when ctx is cancelled.
func (sd *ServiceDiscovery) WatchPrefix(ctx context.Context, prefix string, onChange func(map[string]string)) {
	for resp := range sd.client.Watch(ctx, prefix, clientv3.WithPrefix()) {
		if err := resp.Err(); err != nil {
			sd.logger.Warn("Watch error", zap.String("prefix", prefix), zap.Error(err))
			continue
		}

		loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		values, err := sd.LoadPrefix(loadCtx, prefix)
		cancel()
		if err != nil {
			sd.logger.Warn("Failed to reload prefix", zap.String("prefix", prefix), zap.Error(err))
			continue
		}
		onChange(values)
	}
}

func (sd *ServiceDiscovery) Close() error {
	return sd.client.Close()
}
