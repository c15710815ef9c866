package mvc

import (
	"sync"
	"time"

	"github.com/thesquelched/suggestive-sub000/internal/mpd"
	"github.com/thesquelched/suggestive-sub000/internal/order"
)

// LibraryModel holds the ranked album suggestion list.
type LibraryModel struct {
	Observable

	mu        sync.Mutex
	entries   []order.Entry
	showScore bool
}

func NewLibraryModel(showScore bool) *LibraryModel {
	return &LibraryModel{showScore: showScore}
}

func (m *LibraryModel) SetEntries(entries []order.Entry) {
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	m.Notify()
}

func (m *LibraryModel) Entries() []order.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]order.Entry, len(m.entries))
	copy(entries, m.entries)
	return entries
}

func (m *LibraryModel) ShowScore() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.showScore
}

// ToggleShowScore flips the score column and returns the new state.
func (m *LibraryModel) ToggleShowScore() bool {
	m.mu.Lock()
	m.showScore = !m.showScore
	show := m.showScore
	m.mu.Unlock()
	m.Notify()
	return show
}

func (m *LibraryModel) SetShowScore(show bool) {
	m.mu.Lock()
	m.showScore = show
	m.mu.Unlock()
	m.Notify()
}

// PlaylistModel holds the daemon's current queue and playing position.
type PlaylistModel struct {
	Observable

	mu         sync.Mutex
	items      []mpd.PlaylistItem
	nowPlaying int
	state      string
}

func NewPlaylistModel() *PlaylistModel {
	return &PlaylistModel{nowPlaying: -1}
}

func (m *PlaylistModel) Set(items []mpd.PlaylistItem, nowPlaying int, state string) {
	m.mu.Lock()
	m.items = items
	m.nowPlaying = nowPlaying
	m.state = state
	m.mu.Unlock()
	m.Notify()
}

func (m *PlaylistModel) Items() []mpd.PlaylistItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]mpd.PlaylistItem, len(m.items))
	copy(items, m.items)
	return items
}

// NowPlaying returns the playing queue position, or -1 when stopped.
func (m *PlaylistModel) NowPlaying() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowPlaying
}

func (m *PlaylistModel) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ScrobbleRow is one line of the chronological history pane.
type ScrobbleRow struct {
	Time   time.Time
	Artist string
	Title  string
	Album  string
}

// ScrobbleListModel holds the chronological scrobble history page.
type ScrobbleListModel struct {
	Observable

	mu   sync.Mutex
	rows []ScrobbleRow
}

func NewScrobbleListModel() *ScrobbleListModel {
	return &ScrobbleListModel{}
}

func (m *ScrobbleListModel) SetRows(rows []ScrobbleRow) {
	m.mu.Lock()
	m.rows = rows
	m.mu.Unlock()
	m.Notify()
}

func (m *ScrobbleListModel) Rows() []ScrobbleRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]ScrobbleRow, len(m.rows))
	copy(rows, m.rows)
	return rows
}
