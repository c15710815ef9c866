package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/thesquelched/suggestive-sub000/internal/library"
	"github.com/thesquelched/suggestive-sub000/internal/mpd"
	"github.com/thesquelched/suggestive-sub000/internal/store"
)

// PlayerStatus is the slice of the player API the updater polls while
// waiting for the daemon's rescan to finish.
type PlayerStatus interface {
	Update() error
	Status() (mpd.StatusInfo, error)
}

// updaterPoll bounds how long the updater waits between rescan checks
// when no update event arrives.
const updaterPoll = 2 * time.Second

// Updater serializes full library updates: trigger a daemon rescan,
// wait for it to clear, then run the three reconciles under the write
// lock.
type Updater struct {
	store      *store.Store
	player     PlayerStatus
	sync       *library.Synchronizer
	logger     *zerolog.Logger
	requests   chan bool
	updateSeen chan struct{}
	onComplete func(*library.Report, error)
}

// NewUpdater wires an updater. Subscribe it to the dispatcher's update
// events so rescan completion is noticed promptly.
func NewUpdater(st *store.Store, player PlayerStatus, sync *library.Synchronizer, dispatcher *Dispatcher, logger *zerolog.Logger) *Updater {
	u := &Updater{
		store:      st,
		player:     player,
		sync:       sync,
		logger:     logger,
		requests:   make(chan bool, 1),
		updateSeen: make(chan struct{}, 1),
	}
	if dispatcher != nil {
		dispatcher.Subscribe(KindUpdate, u.noteUpdateEvent)
		dispatcher.Subscribe(KindDatabase, u.noteUpdateEvent)
	}
	return u
}

// SetOnComplete registers the completion callback, invoked from the
// updater's goroutine.
func (u *Updater) SetOnComplete(fn func(*library.Report, error)) {
	u.onComplete = fn
}

// Request queues a library update; rescan controls whether the daemon
// database rescan runs first. Collapses into an already-pending
// request.
func (u *Updater) Request(rescan bool) {
	select {
	case u.requests <- rescan:
	default:
	}
}

func (u *Updater) noteUpdateEvent() {
	select {
	case u.updateSeen <- struct{}{}:
	default:
	}
}

// Run serves update requests until ctx is cancelled.
func (u *Updater) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rescan := <-u.requests:
			report, err := u.update(ctx, rescan)
			if u.onComplete != nil {
				u.onComplete(report, err)
			}
		}
	}
}

func (u *Updater) update(ctx context.Context, rescan bool) (*library.Report, error) {
	u.store.LockWrites()
	defer u.store.UnlockWrites()

	if rescan {
		if err := u.player.Update(); err != nil {
			return nil, err
		}
		if err := u.waitForRescan(ctx); err != nil {
			return nil, err
		}
	}

	report, err := u.sync.LoadLibrary(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if _, err := u.sync.LoadRecentScrobbles(ctx); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if _, err := u.sync.LoadLoved(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// waitForRescan blocks until the daemon reports updating_db cleared,
// waking on update events and on a poll interval.
func (u *Updater) waitForRescan(ctx context.Context) error {
	ticker := time.NewTicker(updaterPoll)
	defer ticker.Stop()

	for {
		status, err := u.player.Status()
		if err != nil {
			return err
		}
		if !status.UpdatingDB {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-u.updateSeen:
		case <-ticker.C:
		}
	}
}
