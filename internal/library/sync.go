package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/thesquelched/suggestive-sub000/internal/lastfm"
	"github.com/thesquelched/suggestive-sub000/internal/mpd"
	"github.com/thesquelched/suggestive-sub000/internal/store"
)

// unknownArtist groups files that carry no artist tag at all.
const unknownArtist = "Unknown Artist"

// PlayerClient is the slice of the player API the synchronizer needs.
type PlayerClient interface {
	ListFiles() ([]string, error)
	ListAllInfo(uri string) ([]mpd.TrackInfo, error)
}

// ScrobbleClient is the slice of the scrobble service API the
// synchronizer needs.
type ScrobbleClient interface {
	RecentTracks(ctx context.Context, user string, from, to *time.Time, fn func(lastfm.Scrobble) error) error
	LovedTracks(ctx context.Context, user string) ([]lastfm.LovedTrack, error)
	ArtistCorrection(ctx context.Context, name string) (string, error)
	AlbumCorrections(ctx context.Context, album, artist string) ([]string, error)
}

// Options tunes the synchronizer.
type Options struct {
	User          string
	RetentionDays int
	FuzzyCutoff   float64
	FuzzyTop      int
}

// Report summarizes one library reconciliation.
type Report struct {
	TracksAdded   int
	TracksDeleted int
	AlbumsDeleted int64
	Duplicates    []store.DuplicateAlbum
}

// Synchronizer reconciles the daemon's file tree and the scrobble
// service's history into the catalog. Every reconcile is idempotent.
// Callers that write concurrently must hold the store's write lock.
type Synchronizer struct {
	store     *store.Store
	player    PlayerClient
	scrobbler ScrobbleClient
	opts      Options
	logger    *zerolog.Logger
	now       func() time.Time
}

// NewSynchronizer wires a synchronizer over the given collaborators.
func NewSynchronizer(st *store.Store, player PlayerClient, scrobbler ScrobbleClient, opts Options, logger *zerolog.Logger) *Synchronizer {
	if opts.FuzzyCutoff == 0 {
		opts.FuzzyCutoff = 0.8
	}
	if opts.FuzzyTop == 0 {
		opts.FuzzyTop = 20
	}
	return &Synchronizer{
		store:     st,
		player:    player,
		scrobbler: scrobbler,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// LoadLibrary reconciles the daemon's file list with the catalog:
// vanished tracks are deleted (with their orphaned metadata), new files
// are grouped by album artist and inserted, and albums left trackless
// are removed. Albums holding several same-named tracks are reported
// but never fixed automatically.
func (s *Synchronizer) LoadLibrary(ctx context.Context) (*Report, error) {
	filesMPD, err := s.player.ListFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to list player files: %w", err)
	}
	mpdSet := make(map[string]bool, len(filesMPD))
	for _, file := range filesMPD {
		mpdSet[file] = true
	}

	report := &Report{}
	err = s.store.Scoped(true, func(session *store.Session) error {
		filesDB, err := session.TrackFilenames()
		if err != nil {
			return err
		}
		dbSet := make(map[string]bool, len(filesDB))
		for _, file := range filesDB {
			dbSet[file] = true
		}

		var vanished []string
		for _, file := range filesDB {
			if !mpdSet[file] {
				vanished = append(vanished, file)
			}
		}
		if len(vanished) > 0 {
			if err := session.DeleteTracksByFilenames(vanished); err != nil {
				return fmt.Errorf("failed to delete vanished tracks: %w", err)
			}
			if err := session.DeleteOrphanTrackMeta(); err != nil {
				return fmt.Errorf("failed to delete orphan track meta: %w", err)
			}
			report.TracksDeleted = len(vanished)
		}

		missing := make(map[string]bool, len(filesMPD))
		for _, file := range filesMPD {
			if !dbSet[file] {
				missing[file] = true
			}
		}
		if len(missing) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			added, err := s.insertMissing(session, missing)
			if err != nil {
				return err
			}
			report.TracksAdded = added
		}

		deleted, err := session.DeleteTracklessAlbums()
		if err != nil {
			return fmt.Errorf("failed to delete trackless albums: %w", err)
		}
		report.AlbumsDeleted = deleted

		report.Duplicates, err = session.DuplicateAlbums()
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info().
			Int("added", report.TracksAdded).
			Int("deleted", report.TracksDeleted).
			Int64("albums_deleted", report.AlbumsDeleted).
			Int("duplicate_albums", len(report.Duplicates)).
			Msg("library reconciled")
	}
	return report, nil
}

// insertMissing fetches full info for the missing files and inserts the
// artist/album/track rows, grouped by album artist (falling back to the
// track artist).
func (s *Synchronizer) insertMissing(session *store.Session, missing map[string]bool) (int, error) {
	infos, err := s.player.ListAllInfo("")
	if err != nil {
		return 0, fmt.Errorf("failed to fetch track info: %w", err)
	}

	grouped := make(map[string]map[string][]mpd.TrackInfo)
	for _, info := range infos {
		if !missing[info.File] {
			continue
		}
		artist := info.GroupArtist()
		if artist == "" {
			// Untagged files still need a Track row, or every
			// reconcile would re-fetch them as missing.
			artist = unknownArtist
		}
		albums, ok := grouped[artist]
		if !ok {
			albums = make(map[string][]mpd.TrackInfo)
			grouped[artist] = albums
		}
		albums[info.Album] = append(albums[info.Album], info)
	}

	added := 0
	for artistName, albums := range grouped {
		artist, err := session.FindOrCreateArtist(artistName)
		if err != nil {
			return added, err
		}
		for albumName, tracks := range albums {
			album, err := session.FindOrCreateAlbum(artist.ID, albumName)
			if err != nil {
				return added, err
			}
			for _, info := range tracks {
				if _, err := session.FindOrCreateTrack(info.File, info.Name(), album.ID, artist.ID); err != nil {
					return added, err
				}
				added++
			}
		}
	}
	return added, nil
}

// LoadRecentScrobbles ingests every scrobble since the newest one in
// the catalog (or the retention window when the catalog has none),
// matching each against a local track, and collapses duplicates.
// Returns the number of raw scrobbles processed.
func (s *Synchronizer) LoadRecentScrobbles(ctx context.Context) (int, error) {
	var start time.Time
	now := s.now().UTC()

	err := s.store.Scoped(false, func(session *store.Session) error {
		latest, err := session.LatestScrobbleTime()
		if err != nil {
			return err
		}
		if latest != nil {
			start = latest.UTC()
		} else {
			start = now.AddDate(0, 0, -s.opts.RetentionDays)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var batch []lastfm.Scrobble
	err = s.scrobbler.RecentTracks(ctx, s.opts.User, &start, &now, func(scrobble lastfm.Scrobble) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch = append(batch, scrobble)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch recent scrobbles: %w", err)
	}

	return s.ingest(ctx, batch)
}

// ingest writes a batch of raw scrobbles in a single session and
// coalesces duplicate rows afterwards.
func (s *Synchronizer) ingest(ctx context.Context, batch []lastfm.Scrobble) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	processed := 0
	corr := s.newCorrector()
	err := s.store.Scoped(true, func(session *store.Session) error {
		triples, err := session.TrackTriples()
		if err != nil {
			return err
		}
		matcher := NewMatcher(triples, s.opts.FuzzyCutoff, s.opts.FuzzyTop)

		for _, scrobble := range batch {
			if scrobble.NowPlaying || scrobble.Time.IsZero() ||
				scrobble.Artist == "" || scrobble.Album == "" || scrobble.Title == "" {
				continue
			}

			trackID, matched := matcher.Match(scrobble.Artist, scrobble.Album, scrobble.Title)
			if !matched {
				var err error
				trackID, matched, err = s.matchCorrected(ctx, session, matcher, corr,
					scrobble.Artist, scrobble.Album, scrobble.Title)
				if err != nil {
					return err
				}
			}

			info, err := session.FindOrCreateScrobbleInfo(scrobble.Title, scrobble.Artist, scrobble.Album)
			if err != nil {
				return err
			}
			row, err := session.FindOrCreateScrobble(scrobble.Time, info.ID)
			if err != nil {
				return err
			}
			if matched && row.TrackID == nil {
				if err := session.AttachScrobbleTrack(row.ID, trackID); err != nil {
					return err
				}
			}
			processed++
		}

		if _, err := session.CoalesceDuplicateScrobbles(); err != nil {
			return fmt.Errorf("failed to coalesce duplicate scrobbles: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.logger != nil && processed > 0 {
		s.logger.Info().Int("scrobbles", processed).Msg("scrobbles reconciled")
	}
	return processed, nil
}

// LoadLoved mirrors the service's loved list onto TrackMeta. The update
// is additive: flags are never cleared for tracks missing from the
// list.
func (s *Synchronizer) LoadLoved(ctx context.Context) (int, error) {
	loved, err := s.scrobbler.LovedTracks(ctx, s.opts.User)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch loved tracks: %w", err)
	}
	if len(loved) == 0 {
		return 0, nil
	}

	byArtist := make(map[string][]string)
	for _, track := range loved {
		byArtist[track.Artist] = append(byArtist[track.Artist], track.Title)
	}

	flagged := 0
	corr := s.newCorrector()
	err = s.store.Scoped(true, func(session *store.Session) error {
		artistNames, err := session.ArtistNames()
		if err != nil {
			return err
		}

		for artist, titles := range byArtist {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, title := range titles {
				track, err := s.locateLoved(ctx, session, corr, artistNames, artist, title)
				if err != nil {
					return err
				}
				if track == 0 {
					continue
				}
				if err := session.SetLoved(track, true); err != nil {
					return err
				}
				flagged++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.logger != nil {
		s.logger.Info().Int("flagged", flagged).Msg("loved tracks reconciled")
	}
	return flagged, nil
}

// locateLoved finds the local track for a loved (artist, title): exact
// case-insensitive first, then through an artist correction, then the
// best fuzzy artist and best fuzzy title within that artist. Returns 0
// on no match.
func (s *Synchronizer) locateLoved(ctx context.Context, session *store.Session, corr *corrector, artistNames []string, artist, title string) (int64, error) {
	track, err := session.TrackByArtistAndTitle(artist, title)
	if err == nil {
		return track.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	if fixed, err := corr.artist(ctx, session, artist); err != nil {
		return 0, err
	} else if fixed != "" {
		track, err := session.TrackByArtistAndTitle(fixed, title)
		if err == nil {
			return track.ID, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
	}

	bestArtist, ok := BestMatch(artist, artistNames, s.opts.FuzzyCutoff)
	if !ok {
		return 0, nil
	}
	row, err := session.ArtistByName(bestArtist)
	if err != nil {
		return 0, err
	}
	tracks, err := session.TracksByArtist(row.ID)
	if err != nil {
		return 0, err
	}
	names := make([]string, len(tracks))
	for i, t := range tracks {
		names[i] = t.Name
	}
	bestTitle, ok := BestMatch(title, names, s.opts.FuzzyCutoff)
	if !ok {
		return 0, nil
	}
	for i, name := range names {
		if name == bestTitle {
			return tracks[i].ID, nil
		}
	}
	return 0, nil
}

// BackfillOlderScrobbles pages backwards from the earliest stored
// scrobble until the service has nothing older, ingesting as it goes.
// Returns the number of scrobbles ingested; when the service is
// exhausted the initialized flag is set so later runs skip the walk.
func (s *Synchronizer) BackfillOlderScrobbles(ctx context.Context) (int, error) {
	var (
		earliest    *time.Time
		initialized bool
	)
	err := s.store.Scoped(false, func(session *store.Session) error {
		var err error
		if initialized, err = session.ScrobblesInitialized(); err != nil {
			return err
		}
		earliest, err = session.EarliestScrobbleTime()
		return err
	})
	if err != nil {
		return 0, err
	}
	if initialized || earliest == nil {
		return 0, nil
	}

	to := earliest.UTC().Add(-time.Second)
	total := 0
	var batch []lastfm.Scrobble

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		var err error
		s.store.LockWrites()
		defer s.store.UnlockWrites()
		if _, err = s.ingest(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err = s.scrobbler.RecentTracks(ctx, s.opts.User, nil, &to, func(scrobble lastfm.Scrobble) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch = append(batch, scrobble)
		if len(batch) >= 200 {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("failed to backfill scrobbles: %w", err)
	}
	if err := flush(); err != nil {
		return total, err
	}

	err = s.store.WithWriteLock(func() error {
		return s.store.Scoped(true, func(session *store.Session) error {
			return session.SetScrobblesInitialized(true)
		})
	})
	return total, err
}
