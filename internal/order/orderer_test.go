package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testState builds a pipeline input without seeding any scores.
func testState(albums ...*Album) *State {
	state := &State{
		Albums: make(map[int64]*Album, len(albums)),
		Scores: make(map[int64]float64),
	}
	for _, album := range albums {
		state.Albums[album.ID] = album
	}
	return state
}

func scoreMap(state *State) map[int64]float64 {
	scores := make(map[int64]float64, len(state.Scores))
	for id, score := range state.Scores {
		scores[id] = score
	}
	return scores
}

func TestBase(t *testing.T) {
	state := testState(
		&Album{ID: 1, Name: "Lift Your Skinny Fists", Artist: "Godspeed You! Black Emperor"},
		&Album{ID: 2, Name: "Yanqui U.X.O.", Artist: "Godspeed You! Black Emperor", Ignored: true},
	)

	Base{}.Order(state)

	assert.Equal(t, map[int64]float64{1: 1.0, 2: 0}, scoreMap(state))

	// Albums absent from the mapping still read as 1.0
	assert.Equal(t, 1.0, state.Score(99))
}

func TestAlbumFilter(t *testing.T) {
	state := testState(
		&Album{ID: 1, Name: "Agaetis Byrjun", Artist: "Sigur Ros"},
		&Album{ID: 2, Name: "Takk...", Artist: "Sigur Ros"},
		&Album{ID: 3, Name: "Ágætis byrjun", Artist: "Sigur Rós"},
	)
	Base{}.Order(state)

	filter, err := NewAlbumFilter("agaetis")
	require.NoError(t, err)
	filter.Order(state)

	// Case-insensitive, and the accent-folded form matches too
	assert.ElementsMatch(t, []int64{1, 3}, state.keys())
}

func TestArtistFilter(t *testing.T) {
	state := testState(
		&Album{ID: 1, Name: "Spiderland", Artist: "Slint"},
		&Album{ID: 2, Name: "Laughing Stock", Artist: "Talk Talk"},
	)
	Base{}.Order(state)

	filter, err := NewArtistFilter("^talk")
	require.NoError(t, err)
	filter.Order(state)

	assert.Equal(t, []int64{2}, state.keys())
}

func TestInvalidFilterPattern(t *testing.T) {
	_, err := NewAlbumFilter("[unclosed")
	assert.Error(t, err)
	_, err = NewArtistFilter("(?P<broken")
	assert.Error(t, err)
}

func TestSort(t *testing.T) {
	state := testState(
		&Album{ID: 1, Name: "Z", Artist: "The Antlers"},
		&Album{ID: 2, Name: "A", Artist: "Bark Psychosis"},
		&Album{ID: 3, Name: "M", Artist: "Codeine"},
	)

	t.Run("ignore the", func(t *testing.T) {
		Base{}.Order(state)
		Sort{IgnoreThe: true}.Order(state)

		// "The Antlers" sorts as "Antlers, The", ahead of the rest
		ranked := Ranked(state)
		require.Len(t, ranked, 3)
		assert.Equal(t, "The Antlers", ranked[0].Album.Artist)
		assert.Equal(t, "Bark Psychosis", ranked[1].Album.Artist)
		assert.Equal(t, "Codeine", ranked[2].Album.Artist)
	})

	t.Run("literal", func(t *testing.T) {
		Base{}.Order(state)
		Sort{}.Order(state)

		ranked := Ranked(state)
		assert.Equal(t, "Bark Psychosis", ranked[0].Album.Artist)
		assert.Equal(t, "The Antlers", ranked[2].Album.Artist)
	})

	t.Run("reverse", func(t *testing.T) {
		Base{}.Order(state)
		Sort{IgnoreThe: true, Reverse: true}.Order(state)

		ranked := Ranked(state)
		assert.Equal(t, "Codeine", ranked[0].Album.Artist)
		assert.Equal(t, "The Antlers", ranked[2].Album.Artist)
	})
}

func TestModified(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	state := testState(
		&Album{ID: 1, Name: "Old", Artist: "A", LastModified: base},
		&Album{ID: 2, Name: "New", Artist: "B", LastModified: base.Add(48 * time.Hour)},
		&Album{ID: 3, Name: "Mid", Artist: "C", LastModified: base.Add(24 * time.Hour)},
	)

	Base{}.Order(state)
	Modified{}.Order(state)

	ranked := Ranked(state)
	require.Len(t, ranked, 3)
	assert.Equal(t, "New", ranked[0].Album.Name)
	assert.Equal(t, "Mid", ranked[1].Album.Name)
	assert.Equal(t, "Old", ranked[2].Album.Name)

	Base{}.Order(state)
	Modified{Reverse: true}.Order(state)
	ranked = Ranked(state)
	assert.Equal(t, "Old", ranked[0].Album.Name)
}

func TestFractionLoved(t *testing.T) {
	state := testState(
		&Album{ID: 1, Name: "X", Artist: "A", TrackCount: 10, LovedCount: 5},
		&Album{ID: 2, Name: "Y", Artist: "B", TrackCount: 10, LovedCount: 0},
		&Album{ID: 3, Name: "Z", Artist: "C", TrackCount: 10, LovedCount: 10},
	)

	t.Run("boosts by fraction", func(t *testing.T) {
		Base{}.Order(state)
		NewFractionLoved().Order(state)

		assert.InDelta(t, 1.5, state.Score(1), 1e-9)
		assert.InDelta(t, 1.0, state.Score(2), 1e-9)
		assert.InDelta(t, 2.0, state.Score(3), 1e-9)
	})

	t.Run("range drops outsiders", func(t *testing.T) {
		Base{}.Order(state)
		FractionLoved{Min: 0.1, Max: 0.9}.Order(state)

		assert.Equal(t, []int64{1}, state.keys())
	})

	t.Run("penalize unloved", func(t *testing.T) {
		Base{}.Order(state)
		FractionLoved{Min: 0, Max: 1, PenalizeUnloved: true}.Order(state)

		assert.InDelta(t, 0.1, state.Score(2), 1e-9)
		assert.InDelta(t, 1.5, state.Score(1), 1e-9)
	})

	t.Run("reverse divides", func(t *testing.T) {
		Base{}.Order(state)
		FractionLoved{Min: 0, Max: 1, Reverse: true}.Order(state)

		assert.InDelta(t, 1/1.5, state.Score(1), 1e-9)
		assert.InDelta(t, 0.5, state.Score(3), 1e-9)
	})

	t.Run("trackless album dropped", func(t *testing.T) {
		empty := testState(&Album{ID: 9, Name: "Empty", Artist: "Nobody"})
		Base{}.Order(empty)
		NewFractionLoved().Order(empty)
		assert.Empty(t, empty.keys())
	})
}

func TestPlaycount(t *testing.T) {
	state := testState(
		&Album{ID: 1, Name: "X", Artist: "A", TrackCount: 10, ScrobbleCount: 30},
		&Album{ID: 2, Name: "Y", Artist: "B", TrackCount: 10, ScrobbleCount: 0},
	)

	t.Run("boosts by plays per track", func(t *testing.T) {
		Base{}.Order(state)
		NewPlaycount().Order(state)

		assert.InDelta(t, 4.0, state.Score(1), 1e-9)
		assert.InDelta(t, 1.0, state.Score(2), 1e-9)
	})

	t.Run("range drops outsiders", func(t *testing.T) {
		Base{}.Order(state)
		Playcount{Min: 1, Max: 100}.Order(state)
		assert.Equal(t, []int64{1}, state.keys())
	})

	t.Run("filter is stable when reapplied", func(t *testing.T) {
		Base{}.Order(state)
		filter := Playcount{Min: 1, Max: 100}
		filter.Order(state)
		first := state.keys()
		filter.Order(state)
		assert.ElementsMatch(t, first, state.keys())
	})

	t.Run("reverse favors the unplayed", func(t *testing.T) {
		Base{}.Order(state)
		Playcount{Min: 0, Max: 1e18, Reverse: true}.Order(state)
		assert.Greater(t, state.Score(2), state.Score(1))
	})
}

func TestApplyResetsScores(t *testing.T) {
	state := testState(
		&Album{ID: 1, Name: "X", Artist: "A", TrackCount: 4, LovedCount: 2},
	)
	state.Scores[42] = 17

	Apply(state, []Orderer{Base{}, NewFractionLoved()})

	assert.NotContains(t, state.Scores, int64(42))
	assert.InDelta(t, 1.5, state.Score(1), 1e-9)
}

func TestRankedOrdering(t *testing.T) {
	state := testState(
		&Album{ID: 1, Name: "Alpha", Artist: "Band"},
		&Album{ID: 2, Name: "Beta", Artist: "Band"},
		&Album{ID: 3, Name: "Gamma", Artist: "Band"},
	)
	state.Scores = map[int64]float64{1: 1.0, 2: 2.0, 3: 1.0}

	ranked := Ranked(state)
	require.Len(t, ranked, 3)
	assert.Equal(t, "Beta", ranked[0].Album.Name)
	// Ties break reverse-lexicographically on (artist, album)
	assert.Equal(t, "Gamma", ranked[1].Album.Name)
	assert.Equal(t, "Alpha", ranked[2].Album.Name)
}
