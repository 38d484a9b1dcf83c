package apihttp

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"hiflacstream/internal/coordinator"
	"hiflacstream/internal/domain/ports"
	"hiflacstream/internal/finalize"
	"hiflacstream/internal/library"
	"hiflacstream/internal/playback"
)

// Server implements the Command Surface (spec §4.12 / §6): one HTTP
// endpoint per command, wired to the core engine/coordinator/finalizer/
// library components built elsewhere in this module.
type Server struct {
	engine         *playback.Engine
	coordinator    *coordinator.Coordinator
	finalizer      *finalize.Finalizer
	library        *library.Index
	devices        ports.DeviceLister
	logger         *slog.Logger
	hub            *wsHub
	allowedOrigins []string
	handler        http.Handler
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithAllowedOrigins restricts cross-origin requests (and websocket
// upgrades) to the given origin list; a nil/empty list allows all origins.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

func NewServer(
	engine *playback.Engine,
	coord *coordinator.Coordinator,
	finalizer *finalize.Finalizer,
	lib *library.Index,
	devices ports.DeviceLister,
	opts ...ServerOption,
) *Server {
	s := &Server{
		engine:      engine,
		coordinator: coord,
		finalizer:   finalizer,
		library:     lib,
		devices:     devices,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.hub = newWSHub(s.logger)
	go s.hub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /commands/play", s.handlePlay)
	mux.HandleFunc("POST /commands/append_samples", s.handleAppendSamples)
	mux.HandleFunc("POST /commands/pause", s.handlePause)
	mux.HandleFunc("POST /commands/resume", s.handleResume)
	mux.HandleFunc("POST /commands/stop", s.handleStop)
	mux.HandleFunc("POST /commands/seek", s.handleSeek)
	mux.HandleFunc("POST /commands/set_volume", s.handleSetVolume)
	mux.HandleFunc("GET /commands/get_playback_state", s.handleGetPlaybackState)
	mux.HandleFunc("POST /commands/next_track", s.handleNextTrack)
	mux.HandleFunc("POST /commands/previous_track", s.handlePreviousTrack)
	mux.HandleFunc("POST /commands/set_shuffle", s.handleSetShuffle)
	mux.HandleFunc("POST /commands/set_repeat_mode", s.handleSetRepeatMode)
	mux.HandleFunc("GET /commands/get_audio_devices", s.handleGetAudioDevices)
	mux.HandleFunc("POST /commands/set_audio_device", s.handleSetAudioDevice)

	mux.HandleFunc("POST /commands/start_progressive_stream", s.handleStartProgressiveStream)
	mux.HandleFunc("POST /commands/download_next_chunk", s.handleDownloadNextChunk)
	mux.HandleFunc("POST /commands/advance_to_next_chunk", s.handleAdvanceToNextChunk)
	mux.HandleFunc("POST /commands/get_chunk_by_index", s.handleGetChunkByIndex)
	mux.HandleFunc("POST /commands/get_chunk_duration", s.handleGetChunkDuration)
	mux.HandleFunc("POST /commands/is_chunk_ready", s.handleIsChunkReady)
	mux.HandleFunc("POST /commands/get_total_chunks", s.handleGetTotalChunks)
	mux.HandleFunc("POST /commands/get_stream_progress", s.handleGetStreamProgress)
	mux.HandleFunc("POST /commands/get_chunk_for_position", s.handleGetChunkForPosition)
	mux.HandleFunc("POST /commands/seek_reprioritize", s.handleSeekReprioritize)
	mux.HandleFunc("POST /commands/download_all_chunks_mt", s.handleDownloadAllChunksMT)
	mux.HandleFunc("POST /commands/cleanup_stream", s.handleCleanupStream)
	mux.HandleFunc("POST /commands/play_chunk", s.handlePlayChunk)
	mux.HandleFunc("POST /commands/append_chunk", s.handleAppendChunk)
	mux.HandleFunc("POST /commands/finalize_stream", s.handleFinalizeStream)

	mux.HandleFunc("POST /commands/is_cached", s.handleIsCached)
	mux.HandleFunc("GET /commands/get_cache_size", s.handleCacheSize)
	mux.HandleFunc("POST /commands/clear_cache", s.handleClearCache)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "streamd",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && !strings.HasPrefix(p, "/ws")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close gracefully shuts down the websocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.hub != nil {
		s.hub.Close()
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{"ok"})
}
