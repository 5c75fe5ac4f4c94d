package reconciler

import (
	"context"
	"encoding/json"

	"github.com/kuberdock/kuberdock/internal/sse"
	"github.com/kuberdock/kuberdock/pkg/k8s"
)

// nodeStateVector mirrors get_node_state: a flattened [type, status, type,
// status, ...] list over the node's conditions.
func nodeStateVector(node k8s.Node) string {
	var vec []string
	for _, c := range node.Status.Conditions {
		vec = append(vec, c.Type, c.Status)
	}
	if vec == nil {
		vec = []string{""}
	}
	raw, _ := json.Marshal(vec)
	return string(raw)
}

func (r *Reconciler) processNodeEvent(ctx context.Context, ev k8s.WatchEvent) {
	var node k8s.Node
	if err := json.Unmarshal(ev.Object, &node); err != nil {
		r.logger.Warn("reconciler: malformed node event", "error", err)
		return
	}
	if node.Metadata.Name == "" {
		return
	}

	deleted := ev.Type == "DELETED"
	key := "node_state_" + node.Metadata.Name
	isChange, err := changed(ctx, r.redis, key, nodeStateVector(node), deleted)
	if err != nil {
		r.logger.Warn("reconciler: node state cache lookup failed", "node", node.Metadata.Name, "error", err)
		return
	}
	if !isChange {
		return
	}

	if err := r.events.Publish(ctx, sse.ChannelCommon, "pull_nodes_state", "ping"); err != nil {
		r.logger.Warn("reconciler: publishing pull_nodes_state failed", "error", err)
	}
}
