// Package reconciler mirrors the live state of Kubernetes pods, service
// endpoints, and nodes back into the control plane's database and Redis
// caches. It runs three independent watch loops — grounded line-for-line on
// original_source/kubedock/listeners.py's process_pods_event,
// process_endpoints_event, and process_nodes_event — restructured as Go
// goroutines with channel-based cancellation instead of gevent greenlets.
package reconciler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kuberdock/kuberdock/internal/sse"
	"github.com/kuberdock/kuberdock/pkg/k8s"
	"github.com/kuberdock/kuberdock/pkg/pod"
)

// Config wires the Reconciler to its collaborators.
type Config struct {
	DB     *pgxpool.Pool
	Redis  *redis.Client
	K8s    *k8s.Client
	Events *sse.Hub
	Logger *slog.Logger
}

// Reconciler supervises the pods, endpoints, and nodes watch loops.
type Reconciler struct {
	pods   *pod.Store
	state  *stateStore
	redis  *redis.Client
	k8s    *k8s.Client
	events *sse.Hub
	logger *slog.Logger

	nodeIPs  NodeIPBinder
	fsLimits FSLimitSetter
}

// New builds a Reconciler. The node-IP binder and filesystem-limit setter
// default to logging stand-ins: this deployment has no node agent to carry
// their effects out, the same boundary pkg/firewallports draws around the
// allowed-ports CRUD never reaching a live firewall.
func New(cfg Config) *Reconciler {
	return &Reconciler{
		pods:     pod.NewStore(cfg.DB),
		state:    newStateStore(cfg.DB),
		redis:    cfg.Redis,
		k8s:      cfg.K8s,
		events:   cfg.Events,
		logger:   cfg.Logger,
		nodeIPs:  loggingNodeIPBinder{logger: cfg.Logger},
		fsLimits: loggingFSLimitSetter{logger: cfg.Logger},
	}
}

// watchedResource names one of the three cluster-wide resources a loop
// follows, and the function that processes each decoded event.
type watchedResource struct {
	resource string
	process  func(ctx context.Context, ev k8s.WatchEvent)
}

// Run starts the three watch loops and blocks until ctx is cancelled and
// every loop has exited.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler: starting watch loops")

	resources := []watchedResource{
		{resource: "pods", process: r.processPodEvent},
		{resource: "endpoints", process: r.processEndpointsEvent},
		{resource: "nodes", process: r.processNodeEvent},
	}

	var wg sync.WaitGroup
	for _, wr := range resources {
		wg.Add(1)
		go func(wr watchedResource) {
			defer wg.Done()
			r.runLoop(ctx, wr)
		}(wr)
	}
	wg.Wait()

	r.logger.Info("reconciler: all watch loops stopped")
	return nil
}

// runLoop drains a single watch resource until ctx is cancelled. Watch
// itself already drops the kubernetes/kubernetes-ro system objects
// listen_fabric's filter_event filtered.
func (r *Reconciler) runLoop(ctx context.Context, wr watchedResource) {
	events := r.k8s.Watch(ctx, wr.resource, "", r.logger)
	for ev := range events {
		wr.process(ctx, ev)
	}
}
