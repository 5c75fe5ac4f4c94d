package reconciler

import (
	"context"
	"log/slog"

	"github.com/kuberdock/kuberdock/pkg/k8s"
)

// NodeIPBinder programs a node's DNAT rules so a floating public IP reaches
// whichever pod is currently backing a Service, the role the original
// implementation's modify_node_ips played over SSH against the node agent.
// Wiring a real node agent (the firewall/iptables installer) is out of
// scope here, same as pkg/firewallports' allowed-ports CRUD never reaches a
// live firewall; the default implementation only logs the intent so the
// reconciler's CAS bookkeeping around it is still exercised and testable.
type NodeIPBinder interface {
	Bind(ctx context.Context, host, podIP, publicIP string, ports []k8s.ServicePort) error
	Unbind(ctx context.Context, host, podIP, publicIP string, ports []k8s.ServicePort) error
}

type loggingNodeIPBinder struct {
	logger *slog.Logger
}

func (b loggingNodeIPBinder) Bind(_ context.Context, host, podIP, publicIP string, ports []k8s.ServicePort) error {
	b.logger.Info("node ip binder: bind (no node agent wired)", "host", host, "pod_ip", podIP, "public_ip", publicIP, "ports", len(ports))
	return nil
}

func (b loggingNodeIPBinder) Unbind(_ context.Context, host, podIP, publicIP string, ports []k8s.ServicePort) error {
	b.logger.Info("node ip binder: unbind (no node agent wired)", "host", host, "pod_ip", podIP, "public_ip", publicIP, "ports", len(ports))
	return nil
}

// FSLimitSetter pushes per-container filesystem quota limits to the node
// running a pod, the role the original implementation's set_limit played.
// Same as NodeIPBinder, the node agent it would talk to is out of scope;
// the default implementation only logs.
type FSLimitSetter interface {
	SetLimit(ctx context.Context, host, podID string, containerDockerIDs map[string]string) error
}

type loggingFSLimitSetter struct {
	logger *slog.Logger
}

func (f loggingFSLimitSetter) SetLimit(_ context.Context, host, podID string, containerDockerIDs map[string]string) error {
	f.logger.Debug("fs limit setter: set (no node agent wired)", "host", host, "pod_id", podID, "containers", len(containerDockerIDs))
	return nil
}
