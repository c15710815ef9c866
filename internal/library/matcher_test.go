package library

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thesquelched/suggestive-sub000/internal/store"
)

func testTriples() []store.TrackTriple {
	return []store.TrackTriple{
		{TrackID: 1, ArtistName: "Radiohead", AlbumName: "OK Computer", TrackName: "Airbag"},
		{TrackID: 2, ArtistName: "Radiohead", AlbumName: "OK Computer", TrackName: "Paranoid Android"},
		{TrackID: 3, ArtistName: "Radiohead", AlbumName: "Kid A", TrackName: "Everything in Its Right Place"},
		{TrackID: 4, ArtistName: "Portishead", AlbumName: "Dummy", TrackName: "Roads"},
	}
}

func TestMatchExact(t *testing.T) {
	matcher := NewMatcher(testTriples(), 0.8, 20)

	t.Run("identical triple", func(t *testing.T) {
		id, ok := matcher.Match("Radiohead", "OK Computer", "Airbag")
		assert.True(t, ok)
		assert.Equal(t, int64(1), id)
	})

	t.Run("case differences", func(t *testing.T) {
		id, ok := matcher.Match("radiohead", "ok computer", "PARANOID ANDROID")
		assert.True(t, ok)
		assert.Equal(t, int64(2), id)
	})
}

func TestMatchFuzzy(t *testing.T) {
	matcher := NewMatcher(testTriples(), 0.8, 20)

	t.Run("typo in title", func(t *testing.T) {
		id, ok := matcher.Match("Radiohead", "OK Computer", "Paranoid Andriod")
		assert.True(t, ok)
		assert.Equal(t, int64(2), id)
	})

	t.Run("remaster suffix on album", func(t *testing.T) {
		id, ok := matcher.Match("Radiohead", "OK Computer OK", "Airbag")
		assert.True(t, ok)
		assert.Equal(t, int64(1), id)
	})

	t.Run("unrelated triple misses", func(t *testing.T) {
		_, ok := matcher.Match("Autechre", "Tri Repetae", "Dael")
		assert.False(t, ok)
	})
}

func TestMatchEmptyIndex(t *testing.T) {
	matcher := NewMatcher(nil, 0.8, 20)
	_, ok := matcher.Match("Radiohead", "OK Computer", "Airbag")
	assert.False(t, ok)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("abcd", "wxyz"))
	// One edit across four runes
	assert.InDelta(t, 0.75, Similarity("abcd", "abce"), 1e-9)
	// Rune length, not byte length
	assert.InDelta(t, 0.75, Similarity("ábcd", "ábce"), 1e-9)
}

func TestBestMatch(t *testing.T) {
	candidates := []string{"Radiohead", "Portishead", "Massive Attack"}

	t.Run("close name wins", func(t *testing.T) {
		best, ok := BestMatch("radiohea", candidates, 0.8)
		assert.True(t, ok)
		assert.Equal(t, "Radiohead", best)
	})

	t.Run("nothing above cutoff", func(t *testing.T) {
		_, ok := BestMatch("Aphex Twin", candidates, 0.8)
		assert.False(t, ok)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, ok := BestMatch("anything", nil, 0.8)
		assert.False(t, ok)
	})
}
