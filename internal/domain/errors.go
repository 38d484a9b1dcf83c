package domain

import "errors"

// Sentinel errors for each failure category in the error handling design.
// Callers compare with errors.Is; packages attach context with
// fmt.Errorf("%w: ...") (decode's wrapProbeErr is the one named helper)
// without losing the sentinel.
var (
	ErrNoDevice          = errors.New("no output device available")
	ErrDeviceConfig      = errors.New("device configuration enumeration failed")
	ErrStreamBuild       = errors.New("output stream build or start failed")
	ErrUnsupportedFormat = errors.New("unsupported container or codec")
	ErrDecode            = errors.New("decode failed")
	ErrFileNotFound      = errors.New("file not found")
	ErrFileIO            = errors.New("file i/o error")
	ErrManifest          = errors.New("manifest parse failed")
	ErrPreviewManifest   = errors.New("manifest describes a preview, not a full track")
	ErrNetwork           = errors.New("network request failed")
	ErrTranscoder        = errors.New("transcoder tool failed")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
)
