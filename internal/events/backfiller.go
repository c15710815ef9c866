package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/thesquelched/suggestive-sub000/internal/library"
)

// Backfiller walks the scrobble history older than anything stored
// locally, one batch at a time, until the service is exhausted. The
// synchronizer takes the write lock per batch, so playback stays
// responsive while the walk runs.
type Backfiller struct {
	sync   *library.Synchronizer
	logger *zerolog.Logger
	onDone func(ingested int, err error)
}

// NewBackfiller builds a backfiller over the synchronizer.
func NewBackfiller(sync *library.Synchronizer, logger *zerolog.Logger) *Backfiller {
	return &Backfiller{sync: sync, logger: logger}
}

// SetOnDone registers a completion callback, invoked from the
// backfiller's goroutine.
func (b *Backfiller) SetOnDone(fn func(ingested int, err error)) {
	b.onDone = fn
}

// Run performs the backfill once and returns. A no-op when the catalog
// is already marked initialized.
func (b *Backfiller) Run(ctx context.Context) {
	ingested, err := b.sync.BackfillOlderScrobbles(ctx)
	if err != nil && ctx.Err() == nil && b.logger != nil {
		b.logger.Error().Err(err).Msg("scrobble backfill failed")
	}
	if ingested > 0 && b.logger != nil {
		b.logger.Info().Int("scrobbles", ingested).Msg("scrobble backfill complete")
	}
	if b.onDone != nil {
		b.onDone(ingested, err)
	}
}
