package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostsyncd_runs_total",
		Help: "Deployment runs triggered through the webhook server, by outcome.",
	}, []string{"outcome"})

	rollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostsyncd_rollbacks_total",
		Help: "Runs that failed after mutating the host and were rolled back.",
	})

	webhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostsyncd_webhooks_received_total",
		Help: "Incoming webhook requests, by handling status.",
	}, []string{"status"})
)

const (
	outcomeCompleted  = "completed"
	outcomeRolledBack = "rolled_back"
	outcomeFailed     = "failed"

	statusAccepted  = "accepted"
	statusIgnored   = "ignored"
	statusRejected  = "rejected"
	statusMalformed = "malformed"
)
