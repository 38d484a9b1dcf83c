package apihttp

import (
	"net/http"

	"hiflacstream/internal/domain"
)

// Playback commands (spec §6 playback surface). Each wraps one
// playback.Engine command-channel call and reports the resulting state.

type playRequest struct {
	Path string `json:"path"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.Play(r.Context(), req.Path); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

type appendSamplesRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleAppendSamples(w http.ResponseWriter, r *http.Request) {
	var req appendSamplesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.AppendSamples(r.Context(), req.Path); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Resume(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

type seekRequest struct {
	Seconds float64 `json:"seconds"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.Seek(r.Context(), req.Seconds); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

type setVolumeRequest struct {
	Volume float32 `json:"volume"`
}

func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req setVolumeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.SetVolume(r.Context(), req.Volume); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

func (s *Server) handleGetPlaybackState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

// handleNextTrack/handlePreviousTrack stop the current track and report
// the resulting state; queue advancement itself lives outside the core
// per the engine's repeat/shuffle bookkeeping-only design.
func (s *Server) handleNextTrack(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

func (s *Server) handlePreviousTrack(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

type setShuffleRequest struct {
	Shuffle bool `json:"shuffle"`
}

func (s *Server) handleSetShuffle(w http.ResponseWriter, r *http.Request) {
	var req setShuffleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.SetShuffle(r.Context(), req.Shuffle); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

type setRepeatModeRequest struct {
	Mode domain.RepeatMode `json:"mode"`
}

func (s *Server) handleSetRepeatMode(w http.ResponseWriter, r *http.Request) {
	var req setRepeatModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.SetRepeatMode(r.Context(), req.Mode); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

func (s *Server) handleGetAudioDevices(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.GetAudioDevices(r.Context(), s.devices)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Devices []string `json:"devices"`
	}{names})
}

type setAudioDeviceRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSetAudioDevice(w http.ResponseWriter, r *http.Request) {
	var req setAudioDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.SetDevice(r.Context(), req.Name); err != nil {
		writeDomainError(w, err)
		return
	}
	s.pushPlaybackState()
	writeJSON(w, http.StatusOK, s.engine.GetPlaybackState())
}

// pushPlaybackState broadcasts the post-command state to websocket
// subscribers; a best-effort side channel, never on the request's error
// path.
func (s *Server) pushPlaybackState() {
	s.hub.BroadcastPlaybackState(s.engine.GetPlaybackState())
}
