// Package preview derives reduced samples from decrypted assets: the first
// chapters of an EPUB and the leading part of an audio track.
package preview

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"bookvault/internal/domain/content"
)

const (
	// SpineItems is how many reading-order entries a book preview keeps.
	SpineItems = 5
	// AudioBytes is the audio preview length (1.5 MiB).
	AudioBytes = 1572864
)

type Engine struct {
	sem *semaphore.Weighted
	log *zap.Logger
}

// New returns an engine running at most workers repackaging jobs at once.
func New(workers int, log *zap.Logger) *Engine {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{sem: semaphore.NewWeighted(int64(workers)), log: log}
}

// Of returns the preview of decrypted for an asset of the given kind and
// whether it is smaller than the input. It never fails: input it cannot
// reduce comes back unchanged with reduced set to false, and callers decide
// whether that may be shown.
func (e *Engine) Of(ctx context.Context, kind content.AssetKind, decrypted []byte) ([]byte, bool) {
	switch kind {
	case content.KindAudiobook:
		if len(decrypted) <= AudioBytes {
			return decrypted, false
		}
		return decrypted[:AudioBytes], true
	case content.KindBook:
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return decrypted, false
		}
		defer e.sem.Release(1)

		out, reduced, err := truncateEPUB(decrypted, SpineItems)
		if err != nil {
			e.log.Debug("book preview skipped", zap.Error(err))
			return decrypted, false
		}
		return out, reduced
	default:
		return decrypted, false
	}
}
