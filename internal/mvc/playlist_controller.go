package mvc

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/thesquelched/suggestive-sub000/internal/mpd"
	"github.com/thesquelched/suggestive-sub000/internal/store"
)

// QueuePlayer is the slice of the player API the playlist controller
// needs.
type QueuePlayer interface {
	PlaylistInfo() ([]mpd.PlaylistItem, error)
	Status() (mpd.StatusInfo, error)
	Play(pos int) error
	Pause() error
	Stop() error
	Next() error
	Previous() error
	Clear() error
	Delete(pos int) error
	Move(from, to int) error
	SeekCur(pos float64) error
	Load(name string) error
	Save(name string) error
	Remove(name string) error
}

// PlaylistController keeps the playlist model in step with the daemon
// queue and translates user intent into playback commands.
type PlaylistController struct {
	store  *store.Store
	player QueuePlayer
	model  *PlaylistModel
	logger *zerolog.Logger

	cacheMu sync.Mutex
	// loved flag per filename; invalidated when metadata changes
	trackCache map[string]bool
}

// NewPlaylistController builds the controller and registers it.
func NewPlaylistController(st *store.Store, player QueuePlayer, model *PlaylistModel, registry *Registry, logger *zerolog.Logger) *PlaylistController {
	c := &PlaylistController{
		store:  st,
		player: player,
		model:  model,
		logger: logger,
	}
	registry.Register(c)
	return c
}

func (c *PlaylistController) Name() string {
	return ControllerPlaylist
}

// InvalidateTrackCache drops the cached per-track metadata so the next
// refresh rereads it.
func (c *PlaylistController) InvalidateTrackCache() {
	c.cacheMu.Lock()
	c.trackCache = nil
	c.cacheMu.Unlock()
}

// TrackLoved reports the cached loved flag for a queue filename,
// filling the cache from the catalog on first use.
func (c *PlaylistController) TrackLoved(filename string) bool {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if c.trackCache == nil {
		c.trackCache = c.loadTrackCache()
	}
	return c.trackCache[filename]
}

func (c *PlaylistController) loadTrackCache() map[string]bool {
	cache := make(map[string]bool)
	err := c.store.Scoped(false, func(session *store.Session) error {
		items := c.model.Items()
		filenames := make([]string, len(items))
		for i, item := range items {
			filenames[i] = item.File
		}
		tracks, err := session.TracksByFilenames(filenames)
		if err != nil {
			return err
		}
		for _, track := range tracks {
			loved, err := session.Loved(track.ID)
			if err != nil {
				return err
			}
			cache[track.Filename] = loved
		}
		return nil
	})
	if err != nil && c.logger != nil {
		c.logger.Warn().Err(err).Msg("could not load playlist track cache")
	}
	return cache
}

// Refresh rereads the queue and playback status into the model.
func (c *PlaylistController) Refresh() error {
	items, err := c.player.PlaylistInfo()
	if err != nil {
		return err
	}
	status, err := c.player.Status()
	if err != nil {
		return err
	}
	nowPlaying := -1
	if status.State == "play" || status.State == "pause" {
		nowPlaying = status.SongPos
	}
	c.model.Set(items, nowPlaying, status.State)
	return nil
}

// Playback intents; each is a thin translation onto the player.

func (c *PlaylistController) Play(pos int) error      { return c.player.Play(pos) }
func (c *PlaylistController) Pause() error            { return c.player.Pause() }
func (c *PlaylistController) Stop() error             { return c.player.Stop() }
func (c *PlaylistController) Next() error             { return c.player.Next() }
func (c *PlaylistController) Previous() error         { return c.player.Previous() }
func (c *PlaylistController) Delete(pos int) error    { return c.player.Delete(pos) }
func (c *PlaylistController) Move(from, to int) error { return c.player.Move(from, to) }
func (c *PlaylistController) Seek(pos float64) error  { return c.player.SeekCur(pos) }

// Clear empties the daemon queue.
func (c *PlaylistController) Clear() error {
	return c.player.Clear()
}

// SaveAs stores the queue as a named playlist on the daemon,
// overwriting an existing one of the same name.
func (c *PlaylistController) SaveAs(name string) error {
	// the daemon refuses to overwrite, so drop any previous copy first
	_ = c.player.Remove(name)
	return c.player.Save(name)
}

// LoadNamed replaces the queue with the named playlist.
func (c *PlaylistController) LoadNamed(name string) error {
	if err := c.player.Clear(); err != nil {
		return err
	}
	return c.player.Load(name)
}
