// Package library implements the Library Cache Index (spec §4.11):
// looking up whether a track already has a finalized file, resolving a
// track's full Artist/Album/Track library path, and measuring/purging
// the on-disk cache.
package library

import (
	"fmt"
	"os"
	"path/filepath"

	"hiflacstream/internal/domain"
)

// Index resolves on-disk paths for the cache directory (stream_cache) and
// the permanent music library directory.
type Index struct {
	CacheDir string
	MusicDir string
	Ext      string
}

func New(cacheDir, musicDir, ext string) *Index {
	return &Index{CacheDir: cacheDir, MusicDir: musicDir, Ext: ext}
}

// IsCached implements spec §4.11 is_cached: a path exists iff
// music_dir/{id}.{ext} or cache_dir/{id}.{ext} exists, music_dir taking
// precedence since it is the permanent copy.
func (idx *Index) IsCached(id domain.TrackID) (string, bool) {
	musicPath := filepath.Join(idx.MusicDir, fmt.Sprintf("%s.%s", id, idx.Ext))
	if fileExists(musicPath) {
		return musicPath, true
	}
	cachePath := filepath.Join(idx.CacheDir, fmt.Sprintf("%s.%s", id, idx.Ext))
	if fileExists(cachePath) {
		return cachePath, true
	}
	return "", false
}

// FindInMusicLibraryFull implements spec §4.11
// find_in_music_library_full: the Artist/Album/Track layout, falling back
// to a flat "Artist - Track.{ext}" form.
func (idx *Index) FindInMusicLibraryFull(track, artist, album string) (string, bool) {
	nested := filepath.Join(idx.MusicDir, artist, album, fmt.Sprintf("%s.%s", track, idx.Ext))
	if fileExists(nested) {
		return nested, true
	}
	flat := filepath.Join(idx.MusicDir, fmt.Sprintf("%s - %s.%s", artist, track, idx.Ext))
	if fileExists(flat) {
		return flat, true
	}
	return "", false
}

// CacheSize and MusicSize recursively sum file sizes under their
// respective directories, per spec §4.11.
func (idx *Index) CacheSize() (int64, error) {
	return dirSize(idx.CacheDir)
}

func (idx *Index) MusicSize() (int64, error) {
	return dirSize(idx.MusicDir)
}

// ClearCache removes every file under the cache directory (not the
// permanent music library), per spec §4.11.
func (idx *Index) ClearCache() error {
	entries, err := os.ReadDir(idx.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read cache dir: %v", domain.ErrFileIO, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(idx.CacheDir, e.Name())); err != nil {
			return fmt.Errorf("%w: remove %s: %v", domain.ErrFileIO, e.Name(), err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: walk %s: %v", domain.ErrFileIO, root, err)
	}
	return total, nil
}
