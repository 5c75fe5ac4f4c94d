package reconciler

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/kuberdock/kuberdock/internal/apierr"
	"github.com/kuberdock/kuberdock/internal/sse"
	"github.com/kuberdock/kuberdock/pkg/k8s"
)

// dockerTimeFormat is the RFC3339-without-fraction timestamp containerStatus
// start/finish times arrive in.
const dockerTimeFormat = "2006-01-02T15:04:05Z"

const podUIDLabel = "kuberdock-pod-uid"

func (r *Reconciler) processPodEvent(ctx context.Context, ev k8s.WatchEvent) {
	var pod k8s.Pod
	if err := json.Unmarshal(ev.Object, &pod); err != nil {
		r.logger.Warn("reconciler: malformed pod event", "error", err)
		return
	}
	podID := pod.Metadata.Labels[podUIDLabel]
	if podID == "" {
		return
	}

	r.sendPodStatusUpdate(ctx, pod, podID, ev.Type)

	if ev.Type == "MODIFIED" || ev.Type == "DELETED" {
		if len(pod.Status.ContainerStatuses) > 0 {
			r.updateContainersState(ctx, ev.Type, podID, pod.Status.ContainerStatuses)
		}
	}

	if ev.Type == "MODIFIED" && pod.Spec.NodeName != "" {
		containers := map[string]string{}
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.ContainerID != "" {
				containers[cs.Name] = dockerID(cs.ContainerID)
			}
		}
		if len(containers) > 0 {
			if err := r.fsLimits.SetLimit(ctx, pod.Spec.NodeName, podID, containers); err != nil {
				r.logger.Warn("reconciler: setting fs limits failed", "pod_id", podID, "host", pod.Spec.NodeName, "error", err)
			}
		}
	}
}

func dockerID(containerID string) string {
	if i := strings.LastIndex(containerID, "docker://"); i >= 0 {
		return containerID[i+len("docker://"):]
	}
	return containerID
}

// podStateVector mirrors get_pod_state: [phase, readiness of each container...].
func podStateVector(pod k8s.Pod) string {
	vec := []any{pod.Status.Phase}
	for _, cs := range pod.Status.ContainerStatuses {
		vec = append(vec, cs.Ready)
	}
	raw, _ := json.Marshal(vec)
	return string(raw)
}

func (r *Reconciler) sendPodStatusUpdate(ctx context.Context, pod k8s.Pod, podID, eventType string) {
	deleted := eventType == "DELETED"
	key := "pod_state_" + podID
	isChange, err := changed(ctx, r.redis, key, podStateVector(pod), deleted)
	if err != nil {
		r.logger.Warn("reconciler: pod state cache lookup failed", "pod_id", podID, "error", err)
		return
	}
	if !isChange {
		return
	}

	dbPod, err := r.pods.GetByID(ctx, podID)
	if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.KindNotFound {
		r.logger.Warn("reconciler: pod event for unregistered pod", "pod_id", podID)
		return
	}
	if err != nil {
		r.logger.Warn("reconciler: fetching pod for state update failed", "pod_id", podID, "error", err)
		return
	}

	if err := r.events.Publish(ctx, sse.ChannelCommon, "pull_pods_state", "ping"); err != nil {
		r.logger.Warn("reconciler: publishing pull_pods_state to common failed", "error", err)
	}
	owner := strconv.Itoa(dbPod.OwnerID)
	if err := r.events.Publish(ctx, sse.UserChannel(owner), "pull_pods_state", "ping"); err != nil {
		r.logger.Warn("reconciler: publishing pull_pods_state to owner failed", "owner_id", owner, "error", err)
	}
}

func (r *Reconciler) updateContainersState(ctx context.Context, eventType, podID string, containers []k8s.ContainerStatus) {
	if _, err := r.pods.GetByID(ctx, podID); err != nil {
		r.logger.Warn("reconciler: container state event for unregistered pod", "pod_id", podID)
		return
	}

	corrupted := false
	for _, c := range containers {
		if c.ContainerID == "" {
			continue
		}
		kubes := c.Kubes
		if kubes == 0 {
			kubes = 1
		}

		for _, detail := range c.State {
			if detail.StartedAt == "" {
				continue
			}
			start, err := time.Parse(dockerTimeFormat, detail.StartedAt)
			if err != nil {
				r.logger.Warn("reconciler: malformed container startedAt", "pod_id", podID, "container", c.Name, "error", err)
				continue
			}

			var end *time.Time
			switch {
			case detail.FinishedAt != "":
				t, err := time.Parse(dockerTimeFormat, detail.FinishedAt)
				if err != nil {
					r.logger.Warn("reconciler: malformed container finishedAt", "pod_id", podID, "container", c.Name, "error", err)
				} else {
					end = &t
				}
			case eventType == "DELETED":
				now := time.Now().UTC().Truncate(time.Second)
				end = &now
			}

			cs := ContainerState{
				PodID: podID, ContainerName: c.Name, DockerID: dockerID(c.ContainerID),
				Kubes: kubes, StartTime: start, EndTime: end,
			}
			if err := r.state.upsert(ctx, cs); err != nil {
				r.logger.Error("reconciler: upserting container state failed", "pod_id", podID, "container", c.Name, "error", err)
				continue
			}

			matched, err := r.state.closeOverlapping(ctx, podID, c.Name, start)
			if err != nil {
				r.logger.Error("reconciler: closing overlapping container state failed", "pod_id", podID, "container", c.Name, "error", err)
				continue
			}
			if matched > 1 {
				corrupted = true
			}
		}
	}

	if corrupted {
		r.scheduleFixPodsTimelineHeavy()
	}
}

// scheduleFixPodsTimelineHeavy runs the repair pass in its own goroutine,
// the Go stand-in for fix_pods_timeline_heavy.delay() — this deployment has
// no celery-equivalent task broker, so "schedule" means "don't block the
// watcher loop on it".
func (r *Reconciler) scheduleFixPodsTimelineHeavy() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.state.fixPodsTimelineHeavy(ctx); err != nil {
			r.logger.Error("reconciler: fix_pods_timeline_heavy failed", "error", err)
		}
	}()
}

