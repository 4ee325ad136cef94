package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "labsite", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "labsite", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	ContentMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "labsite", Name: "content_mutations_total", Help: "Committed document mutations by section and operation."},
		[]string{"section", "op"},
	)
	BlobCleanups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "labsite", Name: "blob_cleanup_total", Help: "Best-effort blob deletions by result (deleted|missing|failed)."},
		[]string{"result"},
	)
	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "labsite",
			Name:      "upload_bytes",
			Help:      "Size of accepted image uploads.",
			Buckets:   prometheus.ExponentialBuckets(4096, 4, 7),
		},
	)
	UploadRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "labsite", Name: "upload_rejected_total", Help: "Rejected uploads by reason."},
		[]string{"reason"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ContentMutations)
	reg.MustRegister(BlobCleanups)
	reg.MustRegister(UploadBytes)
	reg.MustRegister(UploadRejected)
}
