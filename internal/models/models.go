package models

import (
	"time"
)

// Artist represents the artists table
type Artist struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"size:255;not null;index:idx_artists_name" json:"name"`

	// Relationships
	Albums []Album `gorm:"foreignKey:ArtistID" json:"-"`
}

func (Artist) TableName() string {
	return "artists"
}

// Album represents the albums table
type Album struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string `gorm:"size:255;not null;index:idx_albums_name" json:"name"`
	ArtistID int64  `gorm:"not null;index:idx_albums_artist_id" json:"artist_id"`
	Ignored  bool   `gorm:"default:false" json:"ignored"`

	// Relationships
	Artist *Artist `gorm:"foreignKey:ArtistID" json:"artist"`
	Tracks []Track `gorm:"foreignKey:AlbumID" json:"tracks"`
}

func (Album) TableName() string {
	return "albums"
}

// Track represents the tracks table. Filename is the durable identity
// reported by the player daemon and is unique across the store.
type Track struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string `gorm:"size:255;not null;index:idx_tracks_name" json:"name"`
	Filename string `gorm:"size:512;not null;uniqueIndex:idx_tracks_filename" json:"filename"`
	AlbumID  int64  `gorm:"not null;index:idx_tracks_album_id" json:"album_id"`
	ArtistID int64  `gorm:"not null;index:idx_tracks_artist_id" json:"artist_id"`

	// Relationships
	Album  *Album     `gorm:"foreignKey:AlbumID" json:"album"`
	Artist *Artist    `gorm:"foreignKey:ArtistID" json:"artist"`
	Meta   *TrackMeta `gorm:"foreignKey:TrackID" json:"meta"`
}

func (Track) TableName() string {
	return "tracks"
}

// TrackMeta represents the track_meta table; one row per track, created
// lazily on the first metadata write. Banned is a legacy flag kept for
// data fidelity and never rendered.
type TrackMeta struct {
	ID      int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	TrackID int64 `gorm:"not null;uniqueIndex:idx_track_meta_track_id" json:"track_id"`
	Loved   bool  `gorm:"default:false" json:"loved"`
	Banned  bool  `gorm:"default:false" json:"banned"`
}

func (TrackMeta) TableName() string {
	return "track_meta"
}

// ScrobbleInfo represents the scrobble_info table: the raw
// (artist, album, title) triple exactly as the scrobble service
// reported it, unique case-insensitively across the triple.
type ScrobbleInfo struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Title  string `gorm:"size:255;not null;index:idx_scrobble_info_title" json:"title"`
	Artist string `gorm:"size:255;not null;index:idx_scrobble_info_artist" json:"artist"`
	Album  string `gorm:"size:255;not null" json:"album"`
}

func (ScrobbleInfo) TableName() string {
	return "scrobble_info"
}

// Scrobble represents the scrobbles table. TrackID is nullable: it is
// set once the synchronizer matches the raw triple to a local track and
// is the only field mutated after creation.
type Scrobble struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp      time.Time `gorm:"not null;index:idx_scrobbles_timestamp" json:"timestamp"`
	ScrobbleInfoID int64     `gorm:"not null;index:idx_scrobbles_info_id" json:"scrobble_info_id"`
	TrackID        *int64    `gorm:"index:idx_scrobbles_track_id" json:"track_id"`

	// Relationships
	Info  *ScrobbleInfo `gorm:"foreignKey:ScrobbleInfoID" json:"info"`
	Track *Track        `gorm:"foreignKey:TrackID" json:"track"`
}

func (Scrobble) TableName() string {
	return "scrobbles"
}

// ArtistCorrection maps an external-service spelling to a local artist.
type ArtistCorrection struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string `gorm:"size:255;not null;uniqueIndex:idx_artist_corrections_name" json:"name"`
	ArtistID int64  `gorm:"not null" json:"artist_id"`
}

func (ArtistCorrection) TableName() string {
	return "artist_corrections"
}

// AlbumCorrection maps an external-service spelling to a local album.
type AlbumCorrection struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string `gorm:"size:255;not null;index:idx_album_corrections_name" json:"name"`
	AlbumID int64  `gorm:"not null" json:"album_id"`
}

func (AlbumCorrection) TableName() string {
	return "album_corrections"
}

// LoadStatus is a singleton row tracking one-time initialization state.
type LoadStatus struct {
	ID                   int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ScrobblesInitialized bool  `gorm:"default:false" json:"scrobbles_initialized"`
}

func (LoadStatus) TableName() string {
	return "load_status"
}

// All returns every model managed by the store, in migration order.
func All() []interface{} {
	return []interface{}{
		&Artist{},
		&Album{},
		&Track{},
		&TrackMeta{},
		&ScrobbleInfo{},
		&Scrobble{},
		&ArtistCorrection{},
		&AlbumCorrection{},
		&LoadStatus{},
	}
}
