// Copyright (c) 2026 Griffin Hampton
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayCallDuration is the latency of Gmail API calls.
	GatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailflow_gateway_call_duration_seconds",
			Help:    "Gmail API call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"operation", "status"},
	)

	// WorkflowRuns counts workflow runs by source.
	WorkflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_workflow_runs_total",
			Help: "Total number of workflow runs",
		},
		[]string{"source"}, // manual, trigger, ...
	)

	// WorkflowActions counts action outcomes.
	WorkflowActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_workflow_actions_total",
			Help: "Total number of workflow actions by type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: ok, skipped, failed
	)

	// TriggerPolls counts per-workflow poll outcomes.
	TriggerPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_trigger_polls_total",
			Help: "Total number of workflow trigger checks by outcome",
		},
		[]string{"outcome"}, // checked, triggered, check_failed, run_failed
	)

	// Digests counts digest requests by outcome.
	Digests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_digests_total",
			Help: "Total number of digest requests by outcome",
		},
		[]string{"outcome"}, // generated, existing, empty
	)

	// DigestEmails counts scored messages by category.
	DigestEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_digest_emails_total",
			Help: "Total number of messages scored into digests by category",
		},
		[]string{"category"},
	)

	// SummarizerFallbacks counts overviews that fell back to the template.
	SummarizerFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailflow_summarizer_fallbacks_total",
			Help: "Total number of digest overviews produced by the deterministic template after a summarizer failure",
		},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordGatewayCall records one Gmail API call.
func RecordGatewayCall(operation string, err error, started time.Time) {
	GatewayCallDuration.WithLabelValues(operation, status(err)).Observe(time.Since(started).Seconds())
}

// RecordWorkflowRun records a completed run.
func RecordWorkflowRun(source string) {
	WorkflowRuns.WithLabelValues(source).Inc()
}

// RecordAction records one action outcome.
func RecordAction(actionType, outcome string) {
	WorkflowActions.WithLabelValues(actionType, outcome).Inc()
}

// RecordTriggerPoll records one per-workflow poll outcome.
func RecordTriggerPoll(outcome string) {
	TriggerPolls.WithLabelValues(outcome).Inc()
}

// RecordDigest records a digest request outcome.
func RecordDigest(outcome string) {
	Digests.WithLabelValues(outcome).Inc()
}

// RecordDigestEmail records one scored message.
func RecordDigestEmail(category string) {
	DigestEmails.WithLabelValues(category).Inc()
}

// RecordSummarizerFallback records a template fallback.
func RecordSummarizerFallback() {
	SummarizerFallbacks.Inc()
}
