package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatclient_api_requests_total",
		Help: "Total number of API requests issued, by operation and status",
	}, []string{"op", "status"})
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatclient_api_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	RedirectsFollowed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatclient_redirects_followed_total",
		Help: "Number of 307 responses re-issued against their Location",
	})
	StaleFetchesDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatclient_stale_fetches_discarded_total",
		Help: "Message fetches dropped because the active chat changed",
	})
	SessionInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatclient_session_invalidations_total",
		Help: "Credentials cleared after a 401 response",
	})
	ParticipantAddFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatclient_participant_add_failures_total",
		Help: "Participant add calls that failed during group chat creation",
	})
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal,
		APIRequestDuration,
		RedirectsFollowed,
		StaleFetchesDiscarded,
		SessionInvalidations,
		ParticipantAddFailures,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
