package reconciler

import (
	"context"
	"encoding/json"

	"github.com/kuberdock/kuberdock/pkg/k8s"
)

const publicIPStateAnnotation = "public-ip-state"

// publicIPState is the Service annotation tracking which node currently
// holds the DNAT rules for a pod's floating public IP.
type publicIPState struct {
	AssignedPublicIP string  `json:"assigned-public-ip"`
	AssignedTo       *string `json:"assigned-to,omitempty"`
	AssignedPodIP    *string `json:"assigned-pod-ip,omitempty"`
}

const endpointCASAttempts = 3

func (r *Reconciler) processEndpointsEvent(ctx context.Context, ev k8s.WatchEvent) {
	var ep k8s.Endpoints
	if err := json.Unmarshal(ev.Object, &ep); err != nil {
		r.logger.Warn("reconciler: malformed endpoints event", "error", err)
		return
	}
	name := ep.Metadata.Name
	namespace := ep.Metadata.Namespace

	for attempt := 1; attempt <= endpointCASAttempts; attempt++ {
		done, err := r.reconcileServiceBinding(ctx, name, namespace, ev)
		if err == nil {
			return
		}
		if !k8s.Conflict(err) || done {
			r.logger.Warn("reconciler: endpoint binding reconcile failed", "service", name, "namespace", namespace, "error", err)
			return
		}
	}
	r.logger.Warn("reconciler: endpoint binding reconcile exhausted retries", "service", name, "namespace", namespace)
}

// reconcileServiceBinding performs one fetch-decide-write attempt. done is
// true once the caller should stop retrying regardless of error (anything
// other than a stale-resourceVersion conflict).
func (r *Reconciler) reconcileServiceBinding(ctx context.Context, name, namespace string, ev k8s.WatchEvent) (done bool, err error) {
	var svc k8s.Service
	if err := r.k8s.Get(ctx, "services", namespace, name, &svc); err != nil {
		if k8s.NotFound(err) {
			return true, nil
		}
		return true, err
	}

	state, err := decodePublicIPState(svc)
	if err != nil {
		return true, err
	}

	var ep k8s.Endpoints
	if err := json.Unmarshal(ev.Object, &ep); err != nil {
		return true, err
	}

	changedState, err := r.resolveBinding(ctx, ep, ev.Type, svc.Spec.Ports, &state)
	if err != nil {
		return true, err
	}
	if !changedState {
		return true, nil
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return true, err
	}
	if svc.Metadata.Annotations == nil {
		svc.Metadata.Annotations = map[string]string{}
	}
	svc.Metadata.Annotations[publicIPStateAnnotation] = string(raw)

	if err := r.k8s.Update(ctx, "services", namespace, name, svc, nil); err != nil {
		return false, err
	}
	return true, nil
}

func decodePublicIPState(svc k8s.Service) (publicIPState, error) {
	var state publicIPState
	raw := svc.Metadata.Annotations[publicIPStateAnnotation]
	if raw == "" {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return publicIPState{}, err
	}
	return state, nil
}

// resolveBinding applies the endpoints-watcher decision table (spec.md
// §4.E) for the subsets currently backing the service, mutating state in
// place and returning whether it changed (and so must be written back).
func (r *Reconciler) resolveBinding(ctx context.Context, ep k8s.Endpoints, eventType string, ports []k8s.ServicePort, state *publicIPState) (bool, error) {
	switch len(ep.Subsets) {
	case 0:
		if eventType != "MODIFIED" || state.AssignedTo == nil {
			return false, nil
		}
		podIP := ""
		if state.AssignedPodIP != nil {
			podIP = *state.AssignedPodIP
		}
		if err := r.nodeIPs.Unbind(ctx, *state.AssignedTo, podIP, state.AssignedPublicIP, ports); err != nil {
			return false, err
		}
		state.AssignedTo = nil
		state.AssignedPodIP = nil
		return true, nil

	case 1:
		if state.AssignedPublicIP == "" {
			return false, nil
		}
		addrs := ep.Subsets[0].Addresses
		if len(addrs) == 0 || addrs[0].TargetRef == nil {
			return false, nil
		}
		podName := addrs[0].TargetRef.Name
		podIP := addrs[0].IP

		var kubePod k8s.Pod
		if err := r.k8s.Get(ctx, "pods", ep.Metadata.Namespace, podName, &kubePod); err != nil {
			if k8s.NotFound(err) {
				return false, nil
			}
			return false, err
		}
		currentHost := kubePod.Spec.NodeName
		if currentHost == "" {
			return false, nil
		}

		if state.AssignedTo == nil {
			if err := r.nodeIPs.Bind(ctx, currentHost, podIP, state.AssignedPublicIP, ports); err != nil {
				return false, err
			}
			state.AssignedTo = &currentHost
			state.AssignedPodIP = &podIP
			return true, nil
		}
		if *state.AssignedTo != currentHost {
			oldPodIP := ""
			if state.AssignedPodIP != nil {
				oldPodIP = *state.AssignedPodIP
			}
			if err := r.nodeIPs.Unbind(ctx, *state.AssignedTo, oldPodIP, state.AssignedPublicIP, ports); err != nil {
				return false, err
			}
			if err := r.nodeIPs.Bind(ctx, currentHost, podIP, state.AssignedPublicIP, ports); err != nil {
				return false, err
			}
			state.AssignedTo = &currentHost
			state.AssignedPodIP = &podIP
			return true, nil
		}
		return false, nil

	default:
		// More than one backing address is the replica case, out of scope
		// for the single-pod public-IP binding.
		return false, nil
	}
}
