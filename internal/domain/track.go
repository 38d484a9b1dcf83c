package domain

// TrackID identifies a track across both the progressive streaming
// pipeline and the library cache index. Its string form is whatever the
// upstream gateway uses (a Spotify track id, a Tidal url hash, …) — the
// core treats it as opaque.
type TrackID string

// TrackMetadata is the subset of library metadata the core needs to place
// a finalized file in Artist/Album/Track form. It is supplied by the
// caller on stream start; the core never derives it from a tag scanner.
type TrackMetadata struct {
	Name   string
	Artist string
	Album  string
}
