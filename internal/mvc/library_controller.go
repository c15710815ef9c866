package mvc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/thesquelched/suggestive-sub000/internal/mpd"
	"github.com/thesquelched/suggestive-sub000/internal/order"
	"github.com/thesquelched/suggestive-sub000/internal/store"
)

// LibraryPlayer is the slice of the player API the library controller
// needs.
type LibraryPlayer interface {
	ListAllInfo(uri string) ([]mpd.TrackInfo, error)
	AddID(file string) (int, error)
}

// LoveService mirrors love mutations to the scrobble service.
type LoveService interface {
	LoveTrack(ctx context.Context, artist, track string) error
	UnloveTrack(ctx context.Context, artist, track string) error
}

// LibraryController owns the suggestion list: it runs the orderer
// pipeline over the catalog and pushes the result into its model.
type LibraryController struct {
	store    *store.Store
	player   LibraryPlayer
	love     LoveService
	parser   *order.Parser
	model    *LibraryModel
	registry *Registry
	logger   *zerolog.Logger

	defaults []order.Orderer
	active   []order.Orderer
}

// NewLibraryController builds the controller and registers it.
func NewLibraryController(st *store.Store, player LibraryPlayer, love LoveService, parser *order.Parser, defaults []order.Orderer, model *LibraryModel, registry *Registry, logger *zerolog.Logger) *LibraryController {
	c := &LibraryController{
		store:    st,
		player:   player,
		love:     love,
		parser:   parser,
		model:    model,
		registry: registry,
		logger:   logger,
		defaults: defaults,
		active:   append([]order.Orderer(nil), defaults...),
	}
	registry.Register(c)
	return c
}

func (c *LibraryController) Name() string {
	return ControllerLibrary
}

// Refresh recomputes the suggestion list from the catalog and the
// player's modification times.
func (c *LibraryController) Refresh() error {
	var (
		aggregates []store.AlbumAggregate
		files      []store.TrackAlbumFile
	)
	err := c.store.Scoped(false, func(session *store.Session) error {
		var err error
		if aggregates, err = session.AlbumAggregates(); err != nil {
			return err
		}
		files, err = session.TrackAlbumFiles()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to read album aggregates: %w", err)
	}

	modified, err := c.albumModTimes(files)
	if err != nil {
		// Modification times only feed the modified orderer; rank
		// without them rather than failing the whole refresh.
		if c.logger != nil {
			c.logger.Warn().Err(err).Msg("could not fetch modification times")
		}
		modified = map[int64]time.Time{}
	}

	state := order.NewState(aggregates, modified)
	pipeline := append([]order.Orderer{order.Base{}}, c.active...)
	order.Apply(state, pipeline)
	c.model.SetEntries(order.Ranked(state))
	return nil
}

func (c *LibraryController) albumModTimes(files []store.TrackAlbumFile) (map[int64]time.Time, error) {
	byFile := make(map[string]int64, len(files))
	for _, file := range files {
		byFile[file.Filename] = file.AlbumID
	}

	infos, err := c.player.ListAllInfo("")
	if err != nil {
		return nil, err
	}

	modified := make(map[int64]time.Time)
	for _, info := range infos {
		albumID, ok := byFile[info.File]
		if !ok {
			continue
		}
		if info.LastModified.After(modified[albumID]) {
			modified[albumID] = info.LastModified
		}
	}
	return modified, nil
}

// Command parses an orderer command line and appends the result to the
// active chain.
func (c *LibraryController) Command(line string) error {
	orderers, err := c.parser.Parse(line)
	if err != nil {
		return err
	}
	c.active = append(c.active, orderers...)
	return c.Refresh()
}

// Reset restores the configured default orderer chain.
func (c *LibraryController) Reset() error {
	c.active = append([]order.Orderer(nil), c.defaults...)
	return c.Refresh()
}

// Unorder clears the chain entirely, leaving only the base seeding.
func (c *LibraryController) Unorder() error {
	c.active = nil
	return c.Refresh()
}

// EnqueueAlbum appends every track of the album to the player queue.
func (c *LibraryController) EnqueueAlbum(albumID int64) error {
	var filenames []string
	err := c.store.Scoped(false, func(session *store.Session) error {
		var err error
		filenames, err = session.AlbumTrackFilenames(albumID)
		return err
	})
	if err != nil {
		return err
	}
	for _, filename := range filenames {
		if _, err := c.player.AddID(filename); err != nil {
			return err
		}
	}
	return nil
}

// SetAlbumIgnored flags an album in or out of the suggestion pool.
func (c *LibraryController) SetAlbumIgnored(albumID int64, ignored bool) error {
	err := c.store.WithWriteLock(func() error {
		return c.store.Scoped(true, func(session *store.Session) error {
			return session.SetAlbumIgnored(albumID, ignored)
		})
	})
	if err != nil {
		return err
	}
	return c.Refresh()
}

// LoveTrack mirrors a love flag to the scrobble service and the
// catalog, then invalidates the playlist controller's track cache.
func (c *LibraryController) LoveTrack(ctx context.Context, trackID int64, loved bool) error {
	var artist, title string
	err := c.store.Scoped(false, func(session *store.Session) error {
		track, err := session.TrackByID(trackID)
		if err != nil {
			return err
		}
		row, err := session.ArtistByID(track.ArtistID)
		if err != nil {
			return err
		}
		artist, title = row.Name, track.Name
		return nil
	})
	if err != nil {
		return err
	}

	if c.love != nil {
		if loved {
			err = c.love.LoveTrack(ctx, artist, title)
		} else {
			err = c.love.UnloveTrack(ctx, artist, title)
		}
		if err != nil {
			return err
		}
	}

	err = c.store.WithWriteLock(func() error {
		return c.store.Scoped(true, func(session *store.Session) error {
			return session.SetLoved(trackID, loved)
		})
	})
	if err != nil {
		return err
	}

	if playlist, ok := c.registry.Lookup(ControllerPlaylist); ok {
		if invalidator, ok := playlist.(TrackCacheInvalidator); ok {
			invalidator.InvalidateTrackCache()
		}
	}
	return c.Refresh()
}

// Stats reports catalog sizes for the status line.
func (c *LibraryController) Stats() (store.Counts, error) {
	var counts store.Counts
	err := c.store.Scoped(false, func(session *store.Session) error {
		var err error
		counts, err = session.Counts()
		return err
	})
	return counts, err
}

// LoveTrackByFilename resolves a queue filename to a catalog track and
// mirrors the love flag for it.
func (c *LibraryController) LoveTrackByFilename(ctx context.Context, filename string, loved bool) error {
	var trackID int64
	err := c.store.Scoped(false, func(session *store.Session) error {
		track, err := session.TrackByFilename(filename)
		if err != nil {
			return err
		}
		trackID = track.ID
		return nil
	})
	if err != nil {
		return err
	}
	return c.LoveTrack(ctx, trackID, loved)
}
