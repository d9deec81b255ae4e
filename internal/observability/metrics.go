package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "doorgate",
		Name:      "frames_scored_total",
		Help:      "Total number of burst frames scored for quality",
	})

	FramesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorgate",
		Name:      "frames_skipped_total",
		Help:      "Frames dropped from a burst or recognition batch",
	}, []string{"reason"})

	HybridScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "doorgate",
		Name:      "selected_frame_score",
		Help:      "Hybrid quality score of the frame chosen from each burst",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "doorgate",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	})

	FacesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "doorgate",
		Name:      "faces_accepted_total",
		Help:      "Faces classified below the match threshold",
	})

	Recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorgate",
		Name:      "recognitions_total",
		Help:      "Resolved capture events by result",
	}, []string{"result"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "doorgate",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	VisitTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorgate",
		Name:      "visit_transitions_total",
		Help:      "Visit status transition attempts by target and result",
	}, []string{"target", "result"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorgate",
		Name:      "notifications_total",
		Help:      "Push deliveries by outcome",
	}, []string{"outcome"})

	DevicesPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "doorgate",
		Name:      "devices_pruned_total",
		Help:      "Device registrations removed after a permanent push failure",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "doorgate",
		Name:      "queue_depth",
		Help:      "Number of pending visit events in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "doorgate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "doorgate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
