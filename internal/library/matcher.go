package library

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/thesquelched/suggestive-sub000/internal/store"
)

// keySep joins the triple components into a single match key.
const keySep = "\x01"

// Matcher resolves a raw (artist, album, title) triple to a local
// track. The triple index is built once per synchronization run.
type Matcher struct {
	triples []store.TrackTriple
	keys    []string
	cutoff  float64
	topN    int
}

// NewMatcher indexes the catalog's track triples.
func NewMatcher(triples []store.TrackTriple, cutoff float64, topN int) *Matcher {
	keys := make([]string, len(triples))
	for i, triple := range triples {
		keys[i] = matchKey(triple.ArtistName, triple.AlbumName, triple.TrackName)
	}
	return &Matcher{triples: triples, keys: keys, cutoff: cutoff, topN: topN}
}

func matchKey(artist, album, title string) string {
	return strings.ToLower(artist) + keySep + strings.ToLower(album) + keySep + strings.ToLower(title)
}

// Match returns the matching track id. Exact case-insensitive matches
// win; otherwise the best of the topN fuzzy key matches above the
// cutoff is chosen by title similarity.
func (m *Matcher) Match(artist, album, title string) (int64, bool) {
	for i, triple := range m.triples {
		if strings.EqualFold(triple.ArtistName, artist) &&
			strings.EqualFold(triple.AlbumName, album) &&
			strings.EqualFold(triple.TrackName, title) {
			return m.triples[i].TrackID, true
		}
	}

	key := matchKey(artist, album, title)
	type candidate struct {
		index int
		score float64
	}
	var candidates []candidate
	for i, other := range m.keys {
		score := Similarity(key, other)
		if score >= m.cutoff {
			candidates = append(candidates, candidate{index: i, score: score})
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > m.topN {
		candidates = candidates[:m.topN]
	}

	lowerTitle := strings.ToLower(title)
	best, bestScore := -1, -1.0
	for _, c := range candidates {
		score := Similarity(lowerTitle, strings.ToLower(m.triples[c.index].TrackName))
		if score > bestScore {
			best, bestScore = c.index, score
		}
	}
	return m.triples[best].TrackID, true
}

// Similarity is a normalized edit-distance ratio in [0, 1]; 1 means
// equal strings.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

// BestMatch returns the candidate most similar to target above the
// cutoff, used for loose artist and title lookups.
func BestMatch(target string, candidates []string, cutoff float64) (string, bool) {
	target = strings.ToLower(target)
	best, bestScore := "", -1.0
	for _, candidate := range candidates {
		score := Similarity(target, strings.ToLower(candidate))
		if score >= cutoff && score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best, bestScore >= 0
}
