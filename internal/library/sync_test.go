package library

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesquelched/suggestive-sub000/internal/lastfm"
	"github.com/thesquelched/suggestive-sub000/internal/mpd"
	"github.com/thesquelched/suggestive-sub000/internal/store"
)

type fakePlayer struct {
	files []string
	infos []mpd.TrackInfo
}

func (f *fakePlayer) ListFiles() ([]string, error) {
	return f.files, nil
}

func (f *fakePlayer) ListAllInfo(uri string) ([]mpd.TrackInfo, error) {
	return f.infos, nil
}

type fakeScrobbler struct {
	recent []lastfm.Scrobble
	loved  []lastfm.LovedTrack

	// service corrections handed out on request
	artistCorrections map[string]string
	albumCorrections  map[string][]string
	artistCorrCalls   int
	albumCorrCalls    int

	// from/to of the last RecentTracks call
	lastFrom *time.Time
	lastTo   *time.Time
}

func (f *fakeScrobbler) RecentTracks(ctx context.Context, user string, from, to *time.Time, fn func(lastfm.Scrobble) error) error {
	f.lastFrom, f.lastTo = from, to
	for _, scrobble := range f.recent {
		if from != nil && scrobble.Time.Before(*from) {
			continue
		}
		if to != nil && scrobble.Time.After(*to) {
			continue
		}
		if err := fn(scrobble); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeScrobbler) LovedTracks(ctx context.Context, user string) ([]lastfm.LovedTrack, error) {
	return f.loved, nil
}

func (f *fakeScrobbler) ArtistCorrection(ctx context.Context, name string) (string, error) {
	f.artistCorrCalls++
	return f.artistCorrections[name], nil
}

func (f *fakeScrobbler) AlbumCorrections(ctx context.Context, album, artist string) ([]string, error) {
	f.albumCorrCalls++
	return f.albumCorrections[album], nil
}

func newSyncStore(t *testing.T) *store.Store {
	t.Helper()
	logger := zerolog.Nop()
	st, err := store.OpenMemory(&logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newSynchronizer(st *store.Store, player *fakePlayer, scrobbler *fakeScrobbler) *Synchronizer {
	logger := zerolog.Nop()
	return NewSynchronizer(st, player, scrobbler, Options{
		User:          "alice",
		RetentionDays: 180,
	}, &logger)
}

func trackInfo(file, artist, album, title string) mpd.TrackInfo {
	return mpd.TrackInfo{File: file, Artist: artist, Album: album, Title: title}
}

func TestLoadLibraryEmpty(t *testing.T) {
	st := newSyncStore(t)
	sync := newSynchronizer(st, &fakePlayer{}, &fakeScrobbler{})

	report, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.TracksAdded)
	assert.Zero(t, report.TracksDeleted)
	assert.Zero(t, report.AlbumsDeleted)
	assert.Empty(t, report.Duplicates)
}

func TestLoadLibraryFirstSync(t *testing.T) {
	st := newSyncStore(t)
	player := &fakePlayer{
		files: []string{
			"music/mbv/loveless/01.flac",
			"music/mbv/loveless/02.flac",
			"music/slowdive/souvlaki/01.flac",
		},
		infos: []mpd.TrackInfo{
			trackInfo("music/mbv/loveless/01.flac", "My Bloody Valentine", "Loveless", "Only Shallow"),
			trackInfo("music/mbv/loveless/02.flac", "My Bloody Valentine", "Loveless", "Loomer"),
			trackInfo("music/slowdive/souvlaki/01.flac", "Slowdive", "Souvlaki", "Alison"),
		},
	}
	sync := newSynchronizer(st, player, &fakeScrobbler{})

	report, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.TracksAdded)

	err = st.Scoped(false, func(session *store.Session) error {
		counts, err := session.Counts()
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts.Artists)
		assert.Equal(t, int64(2), counts.Albums)
		assert.Equal(t, int64(3), counts.Tracks)
		return nil
	})
	assert.NoError(t, err)

	t.Run("second sync is a no-op", func(t *testing.T) {
		report, err := sync.LoadLibrary(context.Background())
		require.NoError(t, err)
		assert.Zero(t, report.TracksAdded)
		assert.Zero(t, report.TracksDeleted)
	})
}

func TestLoadLibraryAlbumArtistGrouping(t *testing.T) {
	st := newSyncStore(t)
	player := &fakePlayer{
		files: []string{"music/va/comp/01.mp3", "music/va/comp/02.mp3"},
		infos: []mpd.TrackInfo{
			{File: "music/va/comp/01.mp3", Artist: "Aphex Twin", AlbumArtist: "Various Artists", Album: "Compilation", Title: "One"},
			{File: "music/va/comp/02.mp3", Artist: "Squarepusher", AlbumArtist: "Various Artists", Album: "Compilation", Title: "Two"},
		},
	}
	sync := newSynchronizer(st, player, &fakeScrobbler{})

	report, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.TracksAdded)

	err = st.Scoped(false, func(session *store.Session) error {
		// Both tracks land under the album artist
		counts, err := session.Counts()
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts.Artists)
		assert.Equal(t, int64(1), counts.Albums)
		return nil
	})
	assert.NoError(t, err)
}

func TestLoadLibraryDeletesVanished(t *testing.T) {
	st := newSyncStore(t)
	player := &fakePlayer{
		files: []string{"music/lone/a/01.mp3", "music/other/b/01.mp3"},
		infos: []mpd.TrackInfo{
			trackInfo("music/lone/a/01.mp3", "Lone", "A", "First"),
			trackInfo("music/other/b/01.mp3", "Other", "B", "Second"),
		},
	}
	sync := newSynchronizer(st, player, &fakeScrobbler{})

	_, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)

	// The whole "A" album disappears from the daemon
	player.files = []string{"music/other/b/01.mp3"}
	player.infos = player.infos[1:]

	report, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TracksDeleted)
	assert.Equal(t, int64(1), report.AlbumsDeleted)

	err = st.Scoped(false, func(session *store.Session) error {
		counts, err := session.Counts()
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts.Albums)
		assert.Equal(t, int64(1), counts.Tracks)
		return nil
	})
	assert.NoError(t, err)
}

func TestLoadLibraryReportsDuplicates(t *testing.T) {
	st := newSyncStore(t)
	player := &fakePlayer{
		files: []string{"music/x/a/01.mp3", "music/x/a/01-alt.mp3"},
		infos: []mpd.TrackInfo{
			trackInfo("music/x/a/01.mp3", "X", "A", "Same Song"),
			trackInfo("music/x/a/01-alt.mp3", "X", "A", "Same Song"),
		},
	}
	sync := newSynchronizer(st, player, &fakeScrobbler{})

	report, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, "Same Song", report.Duplicates[0].TrackName)
	assert.Equal(t, int64(2), report.Duplicates[0].Count)
}

func TestLoadRecentScrobbles(t *testing.T) {
	st := newSyncStore(t)
	player := &fakePlayer{
		files: []string{"music/boc/mhtrtc/01.mp3"},
		infos: []mpd.TrackInfo{
			trackInfo("music/boc/mhtrtc/01.mp3", "Boards of Canada", "Music Has the Right to Children", "Wildlife Analysis"),
		},
	}
	when := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	scrobbler := &fakeScrobbler{
		recent: []lastfm.Scrobble{
			{Artist: "Boards of Canada", Album: "Music Has the Right to Children", Title: "Wildlife Analysis", Time: when},
			{Artist: "Boards of Canada", Album: "Music Has the Right to Children", Title: "Wildlife Analysis", NowPlaying: true},
			{Artist: "Nobody Known", Album: "Missing", Title: "Unmatched", Time: when.Add(time.Minute)},
			{Artist: "", Album: "Incomplete", Title: "Nameless", Time: when.Add(2 * time.Minute)},
		},
	}
	sync := newSynchronizer(st, player, scrobbler)

	_, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)

	processed, err := sync.LoadRecentScrobbles(context.Background())
	require.NoError(t, err)
	// Now-playing and incomplete entries are skipped
	assert.Equal(t, 2, processed)

	err = st.Scoped(false, func(session *store.Session) error {
		page, err := session.ScrobblesPage(10, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)

		matched := 0
		for _, scrobble := range page {
			if scrobble.TrackID != nil {
				matched++
			}
		}
		// Only the local track's scrobble is attached
		assert.Equal(t, 1, matched)
		return nil
	})
	assert.NoError(t, err)

	t.Run("next run starts from the latest scrobble", func(t *testing.T) {
		_, err := sync.LoadRecentScrobbles(context.Background())
		require.NoError(t, err)
		require.NotNil(t, scrobbler.lastFrom)
		assert.Equal(t, when.Add(time.Minute), scrobbler.lastFrom.UTC())
	})

	t.Run("re-ingesting does not duplicate", func(t *testing.T) {
		_, err := sync.LoadRecentScrobbles(context.Background())
		require.NoError(t, err)
		err = st.Scoped(false, func(session *store.Session) error {
			counts, err := session.Counts()
			require.NoError(t, err)
			assert.Equal(t, int64(2), counts.Scrobbles)
			return nil
		})
		assert.NoError(t, err)
	})
}

func TestLoadLoved(t *testing.T) {
	st := newSyncStore(t)
	player := &fakePlayer{
		files: []string{"music/ride/nowhere/01.mp3", "music/ride/nowhere/02.mp3"},
		infos: []mpd.TrackInfo{
			trackInfo("music/ride/nowhere/01.mp3", "Ride", "Nowhere", "Seagull"),
			trackInfo("music/ride/nowhere/02.mp3", "Ride", "Nowhere", "Kaleidoscope"),
		},
	}
	scrobbler := &fakeScrobbler{
		loved: []lastfm.LovedTrack{
			{Artist: "Ride", Title: "Seagull"},
			{Artist: "Ride", Title: "Kaleidoscop"},
			{Artist: "Unknown Artist", Title: "Unknown Song"},
		},
	}
	sync := newSynchronizer(st, player, scrobbler)

	_, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)

	flagged, err := sync.LoadLoved(context.Background())
	require.NoError(t, err)
	// Exact match plus the fuzzy title; the unknown artist is skipped
	assert.Equal(t, 2, flagged)

	err = st.Scoped(false, func(session *store.Session) error {
		track, err := session.TrackByFilename("music/ride/nowhere/02.mp3")
		require.NoError(t, err)
		loved, err := session.Loved(track.ID)
		require.NoError(t, err)
		assert.True(t, loved)
		return nil
	})
	assert.NoError(t, err)

	t.Run("flags are additive", func(t *testing.T) {
		scrobbler.loved = nil
		flagged, err := sync.LoadLoved(context.Background())
		require.NoError(t, err)
		assert.Zero(t, flagged)

		err = st.Scoped(false, func(session *store.Session) error {
			track, err := session.TrackByFilename("music/ride/nowhere/01.mp3")
			require.NoError(t, err)
			loved, err := session.Loved(track.ID)
			require.NoError(t, err)
			assert.True(t, loved)
			return nil
		})
		assert.NoError(t, err)
	})
}

func TestBackfillOlderScrobbles(t *testing.T) {
	t.Run("no stored scrobbles is a no-op", func(t *testing.T) {
		st := newSyncStore(t)
		scrobbler := &fakeScrobbler{}
		sync := newSynchronizer(st, &fakePlayer{}, scrobbler)

		total, err := sync.BackfillOlderScrobbles(context.Background())
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Nil(t, scrobbler.lastTo)
	})

	t.Run("walks backwards and marks initialized", func(t *testing.T) {
		st := newSyncStore(t)
		player := &fakePlayer{
			files: []string{"music/lftc/fc/01.mp3"},
			infos: []mpd.TrackInfo{
				trackInfo("music/lftc/fc/01.mp3", "Labradford", "Fixed::Context", "Twenty"),
			},
		}
		anchor := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		scrobbler := &fakeScrobbler{
			recent: []lastfm.Scrobble{
				{Artist: "Labradford", Album: "Fixed::Context", Title: "Twenty", Time: anchor.Add(-24 * time.Hour)},
				{Artist: "Labradford", Album: "Fixed::Context", Title: "Twenty", Time: anchor.Add(-48 * time.Hour)},
			},
		}
		sync := newSynchronizer(st, player, scrobbler)

		_, err := sync.LoadLibrary(context.Background())
		require.NoError(t, err)

		// Seed the anchor scrobble the backfill walks back from
		err = st.Scoped(true, func(session *store.Session) error {
			info, err := session.FindOrCreateScrobbleInfo("Twenty", "Labradford", "Fixed::Context")
			if err != nil {
				return err
			}
			_, err = session.FindOrCreateScrobble(anchor, info.ID)
			return err
		})
		require.NoError(t, err)

		total, err := sync.BackfillOlderScrobbles(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.NotNil(t, scrobbler.lastTo)
		assert.Equal(t, anchor.Add(-time.Second), scrobbler.lastTo.UTC())

		err = st.Scoped(false, func(session *store.Session) error {
			initialized, err := session.ScrobblesInitialized()
			require.NoError(t, err)
			assert.True(t, initialized)

			counts, err := session.Counts()
			require.NoError(t, err)
			assert.Equal(t, int64(3), counts.Scrobbles)
			return nil
		})
		assert.NoError(t, err)

		t.Run("second run skips the walk", func(t *testing.T) {
			scrobbler.lastTo = nil
			total, err := sync.BackfillOlderScrobbles(context.Background())
			require.NoError(t, err)
			assert.Zero(t, total)
			assert.Nil(t, scrobbler.lastTo)
		})
	})
}

func TestLoadLibraryUntaggedFile(t *testing.T) {
	st := newSyncStore(t)
	player := &fakePlayer{
		files: []string{"music/incoming/rip01.mp3"},
		infos: []mpd.TrackInfo{{File: "music/incoming/rip01.mp3"}},
	}
	sync := newSynchronizer(st, player, &fakeScrobbler{})

	report, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TracksAdded)

	err = st.Scoped(false, func(session *store.Session) error {
		track, err := session.TrackByFilename("music/incoming/rip01.mp3")
		require.NoError(t, err)
		assert.Equal(t, "rip01.mp3", track.Name)
		artist, err := session.ArtistByID(track.ArtistID)
		require.NoError(t, err)
		assert.Equal(t, "Unknown Artist", artist.Name)
		return nil
	})
	assert.NoError(t, err)

	t.Run("second sync is a no-op", func(t *testing.T) {
		report, err := sync.LoadLibrary(context.Background())
		require.NoError(t, err)
		assert.Zero(t, report.TracksAdded)
		assert.Zero(t, report.TracksDeleted)
	})
}

func TestLoadLovedUsesArtistCorrection(t *testing.T) {
	st := newSyncStore(t)
	player := &fakePlayer{
		files: []string{"music/jhe/axis/05.mp3"},
		infos: []mpd.TrackInfo{
			trackInfo("music/jhe/axis/05.mp3", "The Jimi Hendrix Experience", "Axis: Bold as Love", "Little Wing"),
		},
	}
	scrobbler := &fakeScrobbler{
		loved: []lastfm.LovedTrack{
			{Artist: "Jimi Hendrix", Title: "Little Wing"},
		},
		artistCorrections: map[string]string{
			"Jimi Hendrix": "The Jimi Hendrix Experience",
		},
	}
	sync := newSynchronizer(st, player, scrobbler)

	_, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)

	flagged, err := sync.LoadLoved(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
	assert.Equal(t, 1, scrobbler.artistCorrCalls)

	err = st.Scoped(false, func(session *store.Session) error {
		track, err := session.TrackByFilename("music/jhe/axis/05.mp3")
		require.NoError(t, err)
		loved, err := session.Loved(track.ID)
		require.NoError(t, err)
		assert.True(t, loved)

		// The correction is persisted for later runs
		correction, err := session.ArtistCorrection("Jimi Hendrix")
		require.NoError(t, err)
		assert.Equal(t, track.ArtistID, correction.ArtistID)
		return nil
	})
	assert.NoError(t, err)

	t.Run("stored correction skips the service", func(t *testing.T) {
		flagged, err := sync.LoadLoved(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, flagged)
		assert.Equal(t, 1, scrobbler.artistCorrCalls)
	})
}

func TestScrobbleIngestUsesCorrections(t *testing.T) {
	st := newSyncStore(t)
	player := &fakePlayer{
		files: []string{"music/jhe/axis/05.mp3"},
		infos: []mpd.TrackInfo{
			trackInfo("music/jhe/axis/05.mp3", "The Jimi Hendrix Experience", "Axis: Bold as Love", "Little Wing"),
		},
	}
	when := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	scrobbler := &fakeScrobbler{
		recent: []lastfm.Scrobble{
			{Artist: "Jimi Hendrix", Album: "Axis", Title: "Little Wing", Time: when},
		},
		artistCorrections: map[string]string{
			"Jimi Hendrix": "The Jimi Hendrix Experience",
		},
		albumCorrections: map[string][]string{
			"Axis": {"Axis: Bold as Love"},
		},
	}
	sync := newSynchronizer(st, player, scrobbler)

	_, err := sync.LoadLibrary(context.Background())
	require.NoError(t, err)

	processed, err := sync.LoadRecentScrobbles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, scrobbler.artistCorrCalls)
	assert.Equal(t, 1, scrobbler.albumCorrCalls)

	err = st.Scoped(false, func(session *store.Session) error {
		page, err := session.ScrobblesPage(10, 0)
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.NotNil(t, page[0].TrackID)

		track, err := session.TrackByFilename("music/jhe/axis/05.mp3")
		require.NoError(t, err)
		assert.Equal(t, track.ID, *page[0].TrackID)

		correction, err := session.AlbumCorrection("Axis")
		require.NoError(t, err)
		assert.Equal(t, track.AlbumID, correction.AlbumID)
		return nil
	})
	assert.NoError(t, err)

	t.Run("stored corrections skip the service", func(t *testing.T) {
		_, err := sync.LoadRecentScrobbles(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, scrobbler.artistCorrCalls)
		assert.Equal(t, 1, scrobbler.albumCorrCalls)
	})
}
