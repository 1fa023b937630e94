package nacos

import (
	"fmt"

	"GreenChat/logger"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// Registry announces one gateway instance in the naming service.
type Registry struct {
	ServiceName string
	IP          string
	Port        uint64
	Group       string
	Metadata    map[string]string

	client naming_client.INamingClient
	log    *zap.Logger
}

func NewRegistry(client naming_client.INamingClient, serviceName, ip string, port uint64, meta map[string]string) *Registry {
	return &Registry{
		ServiceName: serviceName,
		IP:          ip,
		Port:        port,
		Group:       "DEFAULT_GROUP",
		Metadata:    meta,
		client:      client,
		log:         logger.Named("nacos"),
	}
}

func (r *Registry) Register() error {
	ok, err := r.client.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          r.IP,
		Port:        r.Port,
		ServiceName: r.ServiceName,
		GroupName:   r.Group,
		ClusterName: "DEFAULT",
		Weight:      1,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		Metadata:    r.Metadata,
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", r.ServiceName, err)
	}
	if !ok {
		return fmt.Errorf("register %s: returned false", r.ServiceName)
	}
	r.log.Info("instance registered", zap.String("service", r.ServiceName), zap.String("ip", r.IP), zap.Uint64("port", r.Port))
	return nil
}

func (r *Registry) Deregister() error {
	ok, err := r.client.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          r.IP,
		Port:        r.Port,
		ServiceName: r.ServiceName,
		GroupName:   r.Group,
		Cluster:     "DEFAULT",
		Ephemeral:   true,
	})
	if err != nil {
		return fmt.Errorf("deregister %s: %w", r.ServiceName, err)
	}
	if !ok {
		r.log.Warn("instance already gone", zap.String("service", r.ServiceName))
	}
	return nil
}
