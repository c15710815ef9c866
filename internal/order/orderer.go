package order

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gosimple/unidecode"

	"github.com/thesquelched/suggestive-sub000/internal/store"
)

// Album is the orderer pipeline's view of one album.
type Album struct {
	ID            int64
	Name          string
	Artist        string
	Ignored       bool
	TrackCount    int64
	LovedCount    int64
	ScrobbleCount int64
	LastModified  time.Time
}

// State is the score mapping an orderer transforms. Albums absent from
// Scores default to a score of 1.0 when read.
type State struct {
	Albums map[int64]*Album
	Scores map[int64]float64
}

// NewState builds the pipeline input from the catalog's album
// aggregates plus the player's per-album latest modification times.
// The score mapping starts empty.
func NewState(aggregates []store.AlbumAggregate, modified map[int64]time.Time) *State {
	albums := make(map[int64]*Album, len(aggregates))
	for _, agg := range aggregates {
		albums[agg.AlbumID] = &Album{
			ID:            agg.AlbumID,
			Name:          agg.AlbumName,
			Artist:        agg.ArtistName,
			Ignored:       agg.Ignored,
			TrackCount:    agg.TrackCount,
			LovedCount:    agg.LovedCount,
			ScrobbleCount: agg.ScrobbleCount,
			LastModified:  modified[agg.AlbumID],
		}
	}
	return &State{Albums: albums, Scores: make(map[int64]float64)}
}

// Score reads an album's score, defaulting absent entries to 1.0.
func (s *State) Score(id int64) float64 {
	if score, ok := s.Scores[id]; ok {
		return score
	}
	return 1.0
}

// keys returns the ids currently present in the score mapping.
func (s *State) keys() []int64 {
	ids := make([]int64, 0, len(s.Scores))
	for id := range s.Scores {
		ids = append(ids, id)
	}
	return ids
}

// Orderer is one stage of the suggestion pipeline. Stages compose by
// iteration: each receives the previous stage's score mapping.
type Orderer interface {
	Order(state *State)
}

// Apply runs the orderers over a fresh mapping.
func Apply(state *State, orderers []Orderer) {
	state.Scores = make(map[int64]float64)
	for _, orderer := range orderers {
		orderer.Order(state)
	}
}

// Entry is one line of the final suggestion list.
type Entry struct {
	Album *Album
	Score float64
}

// Ranked flattens the state into the final list, sorted by
// (score desc, album desc) where albums order reverse-lexicographically
// on (artist, album).
func Ranked(state *State) []Entry {
	entries := make([]Entry, 0, len(state.Scores))
	for id, score := range state.Scores {
		album := state.Albums[id]
		if album == nil {
			continue
		}
		entries = append(entries, Entry{Album: album, Score: score})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return albumKey(entries[i].Album) > albumKey(entries[j].Album)
	})
	return entries
}

func albumKey(album *Album) string {
	return strings.ToLower(album.Artist) + "\x01" + strings.ToLower(album.Name)
}

// Base seeds the mapping with the whole catalog: non-ignored albums at
// 1.0, ignored albums at 0.
type Base struct{}

func (Base) Order(state *State) {
	state.Scores = make(map[int64]float64, len(state.Albums))
	for id, album := range state.Albums {
		if album.Ignored {
			state.Scores[id] = 0
		} else {
			state.Scores[id] = 1.0
		}
	}
}

// AlbumFilter retains entries whose album name, or its accent-folded
// form, matches the pattern.
type AlbumFilter struct {
	pattern *regexp.Regexp
}

func NewAlbumFilter(pattern string) (*AlbumFilter, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	return &AlbumFilter{pattern: re}, nil
}

func (f *AlbumFilter) Order(state *State) {
	for _, id := range state.keys() {
		name := state.Albums[id].Name
		if !f.pattern.MatchString(name) && !f.pattern.MatchString(unidecode.Unidecode(name)) {
			delete(state.Scores, id)
		}
	}
}

// ArtistFilter retains entries whose artist name, or its accent-folded
// form, matches the pattern.
type ArtistFilter struct {
	pattern *regexp.Regexp
}

func NewArtistFilter(pattern string) (*ArtistFilter, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	return &ArtistFilter{pattern: re}, nil
}

func (f *ArtistFilter) Order(state *State) {
	for _, id := range state.keys() {
		artist := state.Albums[id].Artist
		if !f.pattern.MatchString(artist) && !f.pattern.MatchString(unidecode.Unidecode(artist)) {
			delete(state.Scores, id)
		}
	}
}

// Sort replaces scores with a rank over "artist - album" lexicographic
// order. With IgnoreThe, a leading "The " on the artist moves to a
// suffix before comparison.
type Sort struct {
	IgnoreThe bool
	Reverse   bool
}

func (o Sort) Order(state *State) {
	ids := state.keys()
	sort.Slice(ids, func(i, j int) bool {
		return o.sortKey(state.Albums[ids[i]]) < o.sortKey(state.Albums[ids[j]])
	})
	rankAscending(state, ids, o.Reverse)
}

func (o Sort) sortKey(album *Album) string {
	artist := album.Artist
	if o.IgnoreThe {
		if rest, ok := strings.CutPrefix(artist, "The "); ok {
			artist = rest + ", The"
		}
	}
	return strings.ToLower(artist + " - " + album.Name)
}

// Modified ranks by the latest modification time the player reported
// for any track of the album, newest first.
type Modified struct {
	Reverse bool
}

func (o Modified) Order(state *State) {
	ids := state.keys()
	sort.Slice(ids, func(i, j int) bool {
		a, b := state.Albums[ids[i]], state.Albums[ids[j]]
		if !a.LastModified.Equal(b.LastModified) {
			return a.LastModified.After(b.LastModified)
		}
		return albumKey(a) < albumKey(b)
	})
	rankAscending(state, ids, o.Reverse)
}

// rankAscending assigns the highest score to ids[0], descending from
// there; Reverse flips the assignment.
func rankAscending(state *State, ids []int64, reverse bool) {
	n := len(ids)
	for i, id := range ids {
		if reverse {
			state.Scores[id] = float64(i + 1)
		} else {
			state.Scores[id] = float64(n - i)
		}
	}
}

// FractionLoved scores by the fraction of an album's tracks flagged
// loved, dropping albums outside [Min, Max].
type FractionLoved struct {
	Min             float64
	Max             float64
	PenalizeUnloved bool
	Reverse         bool
}

func NewFractionLoved() FractionLoved {
	return FractionLoved{Min: 0, Max: 1}
}

func (o FractionLoved) Order(state *State) {
	for _, id := range state.keys() {
		album := state.Albums[id]
		if album.TrackCount == 0 {
			delete(state.Scores, id)
			continue
		}
		fraction := float64(album.LovedCount) / float64(album.TrackCount)
		if fraction < o.Min || fraction > o.Max {
			delete(state.Scores, id)
			continue
		}
		factor := 1.0
		switch {
		case album.LovedCount > 0:
			factor = 1 + fraction
		case o.PenalizeUnloved:
			factor = 1 / float64(album.TrackCount)
		}
		if o.Reverse {
			state.Scores[id] = state.Score(id) / factor
		} else {
			state.Scores[id] = state.Score(id) * factor
		}
	}
}

// Playcount scores by scrobbles per track, dropping albums outside
// [Min, Max].
type Playcount struct {
	Min     float64
	Max     float64
	Reverse bool
}

func NewPlaycount() Playcount {
	return Playcount{Min: 0, Max: math.MaxFloat64}
}

func (o Playcount) Order(state *State) {
	for _, id := range state.keys() {
		album := state.Albums[id]
		if album.TrackCount == 0 {
			delete(state.Scores, id)
			continue
		}
		plays := float64(album.ScrobbleCount) / float64(album.TrackCount)
		if plays < o.Min || plays > o.Max {
			delete(state.Scores, id)
			continue
		}
		factor := 1 + plays
		if o.Reverse {
			state.Scores[id] = state.Score(id) / factor
		} else {
			state.Scores[id] = state.Score(id) * factor
		}
	}
}
