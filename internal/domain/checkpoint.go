package domain

import "time"

// StreamCheckpoint is the Mongo-persisted progress snapshot of one
// progressive stream (see SPEC_FULL §3 NEW), shaped after the teacher's
// TorrentRecord. The Coordinator upserts it on each chunk-ready transition
// and deletes it in CleanupStream; at startup, incomplete checkpoints are
// only listed and logged: no stream state is rebuilt from them and their
// ready chunks are not reused. It is NOT the out-of-scope
// track/album/folder metadata store.
type StreamCheckpoint struct {
	TrackID       TrackID       `bson:"_id"`
	TotalChunks   int           `bson:"totalChunks"`
	ReadyBitmap   []bool        `bson:"readyBitmap"`
	CurrentChunk  int           `bson:"currentChunk"`
	SampleRate    int           `bson:"rate,omitempty"`
	BitDepth      int           `bson:"bitDepth,omitempty"`
	TrackName     string        `bson:"trackName,omitempty"`
	ArtistName    string        `bson:"artistName,omitempty"`
	AlbumName     string        `bson:"albumName,omitempty"`
	UpdatedAt     time.Time     `bson:"updatedAt"`
}

// IsComplete reports whether every chunk in the bitmap is ready.
func (c StreamCheckpoint) IsComplete() bool {
	if len(c.ReadyBitmap) != c.TotalChunks {
		return false
	}
	for _, ready := range c.ReadyBitmap {
		if !ready {
			return false
		}
	}
	return true
}

// PlayHistoryEntry is a best-effort "recently played" record (see
// SPEC_FULL §3 NEW). A write failure here never blocks playback.
type PlayHistoryEntry struct {
	TrackID   TrackID   `bson:"trackId"`
	StartedAt time.Time `bson:"startedAt"`
	Completed bool      `bson:"completed"`
}
