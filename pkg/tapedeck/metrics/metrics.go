// Package metrics holds the prometheus collectors tapedeck exposes on its remote control endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Playlist metrics
var (
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_batches_total",
			Help: "Total number of file selections processed, by result",
		},
		[]string{"result"}, // "loaded", "no_audio", "busy", "failed", "superseded"
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapedeck_batch_duration_seconds",
			Help:    "Time spent reading tags and probing durations for a batch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ProbeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_probe_failures_total",
			Help: "Per-file probe failures absorbed into fallback values",
		},
		[]string{"probe"}, // "metadata", "duration"
	)

	PlaylistTracks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapedeck_playlist_tracks",
			Help: "Number of tracks in the current playlist",
		},
	)

	HandlesOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapedeck_handles_open",
			Help: "Number of resource handles created and not yet released",
		},
	)
)

// Transport metrics
var (
	TransportActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_transport_actions_total",
			Help: "Transport actions applied to the session",
		},
		[]string{"action"}, // "play", "pause", "select", "next", "previous", "seek", "volume"
	)

	PlaybackRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapedeck_playback_rejections_total",
			Help: "Number of times the engine refused to start playback",
		},
	)
)

// Remote control metrics
var (
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_remote_requests_total",
			Help: "Total number of remote control HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tapedeck_remote_request_duration_seconds",
			Help:    "Remote control HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RemoteClientsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapedeck_remote_clients_connected",
			Help: "Number of connected websocket clients",
		},
	)
)
