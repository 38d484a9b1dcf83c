package apihttp

import (
	"net/http"

	"hiflacstream/internal/domain"
)

// Progressive streaming commands (spec §4.8/§4.9/§4.12).

type startProgressiveStreamRequest struct {
	TrackID            domain.TrackID      `json:"trackId"`
	ManifestB64        string              `json:"manifestB64"`
	ExpectedDurationMs int64               `json:"expectedDurationMs"`
	Metadata           domain.TrackMetadata `json:"metadata"`
	FirstChunkSegs     int                 `json:"firstChunkSegments"`
	RegularChunkSegs   int                 `json:"regularChunkSegments"`
}

func (s *Server) handleStartProgressiveStream(w http.ResponseWriter, r *http.Request) {
	var req startProgressiveStreamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.coordinator.StartProgressiveStream(r.Context(), req.TrackID, req.ManifestB64, req.ExpectedDurationMs, req.Metadata, req.FirstChunkSegs, req.RegularChunkSegs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type trackIDRequest struct {
	TrackID domain.TrackID `json:"trackId"`
}

func (s *Server) handleDownloadNextChunk(w http.ResponseWriter, r *http.Request) {
	var req trackIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.coordinator.DownloadNextChunk(r.Context(), req.TrackID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdvanceToNextChunk(w http.ResponseWriter, r *http.Request) {
	var req trackIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.coordinator.AdvanceChunk(req.TrackID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

type chunkIndexRequest struct {
	TrackID domain.TrackID `json:"trackId"`
	Index   int            `json:"index"`
}

func (s *Server) handleGetChunkByIndex(w http.ResponseWriter, r *http.Request) {
	var req chunkIndexRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chunk, err := s.coordinator.GetChunkByIndex(req.TrackID, req.Index)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (s *Server) handleGetChunkDuration(w http.ResponseWriter, r *http.Request) {
	var req chunkIndexRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chunk, err := s.coordinator.GetChunkByIndex(req.TrackID, req.Index)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		DurationSecs float64 `json:"durationSecs"`
	}{chunk.DurationSecs})
}

func (s *Server) handleIsChunkReady(w http.ResponseWriter, r *http.Request) {
	var req chunkIndexRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ready, err := s.coordinator.IsChunkReady(req.TrackID, req.Index)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Ready bool `json:"ready"`
	}{ready})
}

func (s *Server) handleGetTotalChunks(w http.ResponseWriter, r *http.Request) {
	var req trackIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	total, err := s.coordinator.GetTotalChunks(req.TrackID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Total int `json:"total"`
	}{total})
}

func (s *Server) handleGetStreamProgress(w http.ResponseWriter, r *http.Request) {
	var req trackIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	progress, err := s.coordinator.GetStreamProgress(req.TrackID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.hub.BroadcastStreamProgress(req.TrackID, progress)
	writeJSON(w, http.StatusOK, progress)
}

type seekPositionRequest struct {
	TrackID domain.TrackID `json:"trackId"`
	Seconds float64        `json:"seconds"`
}

func (s *Server) handleGetChunkForPosition(w http.ResponseWriter, r *http.Request) {
	var req seekPositionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	index, err := s.coordinator.GetChunkForPosition(req.TrackID, req.Seconds)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Index int `json:"index"`
	}{index})
}

func (s *Server) handleSeekReprioritize(w http.ResponseWriter, r *http.Request) {
	var req seekPositionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := s.coordinator.ReprioritizeForSeek(req.TrackID, req.Seconds)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Order []int `json:"order"`
	}{order})
}

func (s *Server) handleDownloadAllChunksMT(w http.ResponseWriter, r *http.Request) {
	var req trackIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	downloaded, err := s.coordinator.DownloadAllChunksMultithreaded(r.Context(), req.TrackID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	progress, _ := s.coordinator.GetStreamProgress(req.TrackID)
	s.hub.BroadcastStreamProgress(req.TrackID, progress)
	writeJSON(w, http.StatusOK, struct {
		Downloaded int `json:"downloaded"`
	}{downloaded})
}

func (s *Server) handleCleanupStream(w http.ResponseWriter, r *http.Request) {
	var req trackIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.coordinator.CleanupStream(r.Context(), req.TrackID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

type playChunkRequest struct {
	TrackID domain.TrackID `json:"trackId"`
	Index   int            `json:"index"`
}

func (s *Server) handlePlayChunk(w http.ResponseWriter, r *http.Request) {
	var req playChunkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chunk, err := s.coordinator.GetChunkByIndex(req.TrackID, req.Index)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.engine.Play(r.Context(), chunk.FilePath); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

func (s *Server) handleAppendChunk(w http.ResponseWriter, r *http.Request) {
	var req playChunkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chunk, err := s.coordinator.GetChunkByIndex(req.TrackID, req.Index)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.engine.AppendSamples(r.Context(), chunk.FilePath); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

type finalizeStreamRequest struct {
	TrackID    domain.TrackID       `json:"trackId"`
	ChunkPaths []string             `json:"chunkPaths"`
	Metadata   domain.TrackMetadata `json:"metadata"`
}

func (s *Server) handleFinalizeStream(w http.ResponseWriter, r *http.Request) {
	var req finalizeStreamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, err := s.finalizer.Finalize(r.Context(), req.TrackID, req.ChunkPaths, req.Metadata)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.coordinator.CleanupStream(r.Context(), req.TrackID); err != nil {
		s.logger.Warn("cleanup after finalize failed", "track", req.TrackID, "error", err)
	}
	writeJSON(w, http.StatusOK, struct {
		Path string `json:"path"`
	}{path})
}

// Library cache index commands.

func (s *Server) handleIsCached(w http.ResponseWriter, r *http.Request) {
	var req trackIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, ok := s.library.IsCached(req.TrackID)
	writeJSON(w, http.StatusOK, struct {
		Path   string `json:"path,omitempty"`
		Cached bool   `json:"cached"`
	}{path, ok})
}

func (s *Server) handleCacheSize(w http.ResponseWriter, r *http.Request) {
	size, err := s.library.CacheSize()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Bytes int64 `json:"bytes"`
	}{size})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.library.ClearCache(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
