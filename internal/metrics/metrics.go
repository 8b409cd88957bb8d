package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	WebhookMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_messages_total",
			Help: "Inbound webhook messages by outcome",
		},
		[]string{"result"},
	)
	OutboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_messages_total",
			Help: "Outbound platform sends by source and outcome",
		},
		[]string{"source", "result"},
	)
	BroadcastJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_jobs_total",
			Help: "Broadcast audience jobs by outcome",
		},
		[]string{"result"},
	)
	AutoResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auto_responses_total",
			Help: "Auto-response sends by rule and outcome",
		},
		[]string{"rule", "result"},
	)
	PlatformSendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "platform_send_duration_seconds",
			Help:    "Latency of messaging platform send calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func InitMetrics() {
	collectors := map[string]prometheus.Collector{
		"WebhookMessages":      WebhookMessages,
		"OutboundMessages":     OutboundMessages,
		"BroadcastJobs":        BroadcastJobs,
		"AutoResponses":        AutoResponses,
		"PlatformSendDuration": PlatformSendDuration,
	}
	for name, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
}
