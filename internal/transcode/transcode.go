// Package transcode provides the bundled-ffmpeg-backed ports.Transcoder
// the Finalizer drives (spec §4.10), following the same
// exec.CommandContext + captured-stderr pattern as the Decoder Adapter.
package transcode

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// maxRunTimeout bounds a transcode run when the caller's context carries
// no deadline; concat-joining a full album side can take a while.
const maxRunTimeout = 15 * time.Minute

// FFMPEG shells out to a bundled ffmpeg binary, implementing
// ports.Transcoder.
type FFMPEG struct {
	Path string
}

func New(path string) *FFMPEG {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	return &FFMPEG{Path: path}
}

func (t *FFMPEG) Run(ctx context.Context, args []string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxRunTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return strings.TrimSpace(stderr.String()), err
}
