package library

import (
	"context"
	"errors"
	"strings"

	"github.com/thesquelched/suggestive-sub000/internal/store"
)

// corrector resolves external-service spellings to local catalog names
// through the corrections tables, falling back to the service and
// persisting what it learns. Service lookups are cached per run.
type corrector struct {
	sync    *Synchronizer
	artists map[string]string
	albums  map[string][]string
}

func (s *Synchronizer) newCorrector() *corrector {
	return &corrector{
		sync:    s,
		artists: make(map[string]string),
		albums:  make(map[string][]string),
	}
}

// artist returns the local artist name the raw spelling corrects to, or
// "" when no correction applies.
func (c *corrector) artist(ctx context.Context, session *store.Session, raw string) (string, error) {
	if name, ok := c.artists[raw]; ok {
		return name, nil
	}
	name, err := c.lookupArtist(ctx, session, raw)
	if err != nil {
		return "", err
	}
	c.artists[raw] = name
	return name, nil
}

func (c *corrector) lookupArtist(ctx context.Context, session *store.Session, raw string) (string, error) {
	stored, err := session.ArtistCorrection(raw)
	if err == nil {
		row, err := session.ArtistByID(stored.ArtistID)
		if err != nil {
			return "", err
		}
		return row.Name, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	corrected, err := c.sync.scrobbler.ArtistCorrection(ctx, raw)
	if err != nil {
		// Corrections are best effort; a service failure only means
		// this run matches without them.
		if c.sync.logger != nil {
			c.sync.logger.Debug().Err(err).Str("artist", raw).Msg("artist correction lookup failed")
		}
		return "", nil
	}
	if corrected == "" || strings.EqualFold(corrected, raw) {
		return "", nil
	}
	row, err := session.ArtistByName(corrected)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if err := session.SaveArtistCorrection(raw, row.ID); err != nil {
		return "", err
	}
	return row.Name, nil
}

// albumCandidates returns corrected album spellings to try for a raw
// (album, artist) pair: the stored correction when one exists,
// otherwise the service's suggestions.
func (c *corrector) albumCandidates(ctx context.Context, session *store.Session, album, artist string) ([]string, error) {
	key := album + keySep + artist
	if names, ok := c.albums[key]; ok {
		return names, nil
	}

	var names []string
	stored, err := session.AlbumCorrection(album)
	switch {
	case err == nil:
		row, err := session.AlbumByID(stored.AlbumID)
		if err != nil {
			return nil, err
		}
		names = append(names, row.Name)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	default:
		suggested, err := c.sync.scrobbler.AlbumCorrections(ctx, album, artist)
		if err != nil {
			if c.sync.logger != nil {
				c.sync.logger.Debug().Err(err).Str("album", album).Msg("album correction lookup failed")
			}
		} else {
			names = suggested
		}
	}

	c.albums[key] = names
	return names, nil
}

// rememberAlbum persists the correction once a suggested spelling has
// matched a local track.
func (c *corrector) rememberAlbum(session *store.Session, raw string, trackID int64) error {
	_, err := session.AlbumCorrection(raw)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	track, err := session.TrackByID(trackID)
	if err != nil {
		return err
	}
	return session.SaveAlbumCorrection(raw, track.AlbumID)
}

// matchCorrected retries a failed triple match through the corrections
// tables and the service's correction endpoints.
func (s *Synchronizer) matchCorrected(ctx context.Context, session *store.Session, matcher *Matcher, corr *corrector, artist, album, title string) (int64, bool, error) {
	fixed, err := corr.artist(ctx, session, artist)
	if err != nil {
		return 0, false, err
	}
	name := artist
	if fixed != "" {
		name = fixed
		if id, ok := matcher.Match(name, album, title); ok {
			return id, true, nil
		}
	}

	candidates, err := corr.albumCandidates(ctx, session, album, name)
	if err != nil {
		return 0, false, err
	}
	for _, candidate := range candidates {
		if strings.EqualFold(candidate, album) {
			continue
		}
		if id, ok := matcher.Match(name, candidate, title); ok {
			if err := corr.rememberAlbum(session, album, id); err != nil {
				return 0, false, err
			}
			return id, true, nil
		}
	}
	return 0, false, nil
}
