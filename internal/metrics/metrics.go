package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamd",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamd",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamd",
		Name:      "active_streams",
		Help:      "Number of currently active progressive streams.",
	})

	ChunkDownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamd",
		Name:      "chunk_downloads_total",
		Help:      "Total chunk download attempts by outcome.",
	}, []string{"outcome"})

	ChunkDownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamd",
		Name:      "chunk_download_duration_seconds",
		Help:      "Duration of a single chunk download (init + all segments).",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	SegmentFetchBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamd",
		Name:      "segment_fetch_bytes_total",
		Help:      "Total bytes fetched across all segment downloads.",
	})

	ReprioritizeTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamd",
		Name:      "reprioritize_total",
		Help:      "Total number of seek-driven download queue reprioritizations.",
	})

	PreviewRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamd",
		Name:      "preview_manifest_rejections_total",
		Help:      "Total number of manifests rejected as previews.",
	})

	FinalizeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamd",
		Name:      "finalize_duration_seconds",
		Help:      "Duration of the finalize (transcoder join) step.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	FinalizeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamd",
		Name:      "finalize_failures_total",
		Help:      "Total number of failed finalize operations.",
	})

	PlaybackCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamd",
		Name:      "playback_commands_total",
		Help:      "Total playback commands processed by the audio thread, by command and outcome.",
	}, []string{"command", "outcome"})

	PlaybackPositionSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamd",
		Name:      "playback_position_seconds",
		Help:      "Current playback position in seconds.",
	})

	ResampleOpsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamd",
		Name:      "resample_ops_total",
		Help:      "Total number of resample operations performed.",
	})

	RechannelOpsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamd",
		Name:      "rechannel_ops_total",
		Help:      "Total number of rechannel operations performed.",
	})

	CacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamd",
		Name:      "library_cache_size_bytes",
		Help:      "Current total size of the stream cache directory in bytes.",
	})

	MusicSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamd",
		Name:      "library_music_size_bytes",
		Help:      "Current total size of the permanent music library in bytes.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveStreams,
		ChunkDownloadsTotal,
		ChunkDownloadDuration,
		SegmentFetchBytes,
		ReprioritizeTotal,
		PreviewRejectionsTotal,
		FinalizeDuration,
		FinalizeFailuresTotal,
		PlaybackCommandsTotal,
		PlaybackPositionSeconds,
		ResampleOpsTotal,
		RechannelOpsTotal,
		CacheSizeBytes,
		MusicSizeBytes,
	)
}
