package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/thesquelched/suggestive-sub000/internal/mpd"
)

// watchedSubsystems are the daemon subsystems the idle watcher listens
// on.
var watchedSubsystems = []string{"playlist", "player", "database", "update"}

// reconnectDelay paces watcher reconnect attempts after a transport
// failure.
const reconnectDelay = 2 * time.Second

// IdleWatcher loops on the daemon's idle notification stream over its
// own dedicated connection, emitting one event per changed subsystem.
type IdleWatcher struct {
	player     *mpd.Player
	dispatcher *Dispatcher
	logger     *zerolog.Logger
}

// NewIdleWatcher builds a watcher feeding the dispatcher.
func NewIdleWatcher(player *mpd.Player, dispatcher *Dispatcher, logger *zerolog.Logger) *IdleWatcher {
	return &IdleWatcher{player: player, dispatcher: dispatcher, logger: logger}
}

// Run watches until ctx is cancelled, reconnecting after failures.
// Cancellation closes the idle connection, which unblocks the wait.
func (w *IdleWatcher) Run(ctx context.Context) {
	for ctx.Err() == nil {
		watcher, err := w.player.Watcher(watchedSubsystems...)
		if err != nil {
			if w.logger != nil {
				w.logger.Warn().Err(err).Msg("idle watcher connect failed")
			}
			if !sleep(ctx, reconnectDelay) {
				return
			}
			continue
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				watcher.Close()
			case <-done:
			}
		}()

		w.consume(ctx, watcher.Event, watcher.Error)
		close(done)
		watcher.Close()

		if ctx.Err() == nil && !sleep(ctx, reconnectDelay) {
			return
		}
	}
}

func (w *IdleWatcher) consume(ctx context.Context, events <-chan string, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Debug().Err(err).Msg("idle watcher error")
			}
		case subsystem, ok := <-events:
			if !ok {
				return
			}
			w.dispatcher.Emit(Kind(subsystem))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
