// Package adminnotify posts unexpected-error notifications to a Slack
// admin channel, the Go form of the "notify:error" admin-channel report a
// caught-but-unclassified error triggers.
package adminnotify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/prometheus/client_golang/prometheus"
)

// Notifier posts admin notifications to a Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
	counter *prometheus.CounterVec
}

// New creates a Notifier. If botToken is empty, the notifier is a no-op
// (logging only) — useful in development where no Slack app is configured.
func New(botToken, channel string, logger *slog.Logger, counter *prometheus.CounterVec) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger, counter: counter}
}

// IsEnabled reports whether the notifier has a live Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyError reports an unexpected internal error, the kind a domain
// error taxonomy does not classify. source identifies the subsystem
// (e.g. "pod.commands", "reconciler.pods_watcher").
func (n *Notifier) NotifyError(ctx context.Context, source string, cause error) {
	n.counter.WithLabelValues("error").Inc()

	if !n.IsEnabled() {
		n.logger.Error("admin notify (slack disabled)", "source", source, "error", cause)
		return
	}

	text := fmt.Sprintf(":rotating_light: *notify:error* in `%s`\n```%s```", source, cause.Error())
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Error("posting admin notification to slack", "error", err)
	}
}

// NotifyMaintenance reports that the control plane entered or left
// maintenance mode.
func (n *Notifier) NotifyMaintenance(ctx context.Context, entering bool) {
	n.counter.WithLabelValues("maintenance").Inc()

	state := "exited"
	if entering {
		state = "entered"
	}

	if !n.IsEnabled() {
		n.logger.Info("admin notify (slack disabled)", "event", "maintenance", "state", state)
		return
	}

	text := fmt.Sprintf(":construction: control plane %s maintenance mode", state)
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Error("posting maintenance notification to slack", "error", err)
	}
}
