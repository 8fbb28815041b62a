// Package cluster registers the game server with a Consul agent so that
// load balancers and ops tooling can discover healthy instances.
package cluster

import (
	"fmt"
	"os"
	"strings"

	consul "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger().WithField("component", "cluster")

// NewConsulClient connects to the first reachable agent in a comma-separated
// address list.
func NewConsulClient(addrs string) (*consul.Client, error) {
	for _, node := range strings.Split(addrs, ",") {
		node = strings.TrimSpace(node)
		cfg := consul.DefaultConfig()
		cfg.Address = node

		client, err := consul.NewClient(cfg)
		if err != nil {
			logger.WithField("node", node).WithError(err).Warn("consul client failed")
			continue
		}
		if _, err := client.Status().Leader(); err != nil {
			logger.WithField("node", node).WithError(err).Warn("consul node unhealthy")
			continue
		}
		return client, nil
	}
	return nil, errors.Errorf("no consul node reachable in %q", addrs)
}

// Register announces the service with an HTTP health check on the same port
// as the websocket listener. Returns a deregister func for shutdown.
func Register(consulAddrs, serviceName string, servicePort int) (func(), error) {
	client, err := NewConsulClient(consulAddrs)
	if err != nil {
		return nil, err
	}

	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	serviceID := fmt.Sprintf("%s-%s", serviceName, hostname)

	registration := &consul.AgentServiceRegistration{
		ID:   serviceID,
		Name: serviceName,
		Port: servicePort,
		Check: &consul.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", hostname, servicePort),
			Timeout:                        "5s",
			Interval:                       "10s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(registration); err != nil {
		return nil, errors.Wrap(err, "register service failed")
	}
	logger.WithFields(logrus.Fields{
		"service": serviceName,
		"id":      serviceID,
	}).Info("registered with consul")

	return func() {
		if err := client.Agent().ServiceDeregister(serviceID); err != nil {
			logger.WithField("id", serviceID).WithError(err).Warn("deregister failed")
		}
	}, nil
}
