package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/thesquelched/suggestive-sub000/internal/models"
)

// filenameChunkSize bounds the size of IN clauses for batch filename
// lookups.
const filenameChunkSize = 128

// ErrNotFound is returned by lookup methods when no row matches.
var ErrNotFound = errors.New("not found")

func wrapLookup(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Artist operations

func (s *Session) ArtistByName(name string) (*models.Artist, error) {
	var artist models.Artist
	err := s.db.Where("LOWER(name) = LOWER(?)", name).First(&artist).Error
	if err != nil {
		return nil, wrapLookup(err)
	}
	return &artist, nil
}

func (s *Session) FindOrCreateArtist(name string) (*models.Artist, error) {
	artist, err := s.ArtistByName(name)
	if err == nil {
		return artist, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	artist = &models.Artist{Name: name}
	if err := s.db.Create(artist).Error; err != nil {
		return nil, fmt.Errorf("failed to create artist: %w", err)
	}
	return artist, nil
}

func (s *Session) ArtistNames() ([]string, error) {
	var names []string
	err := s.db.Model(&models.Artist{}).Order("name").Pluck("name", &names).Error
	return names, err
}

// Album operations

func (s *Session) AlbumByName(artistID int64, name string) (*models.Album, error) {
	var album models.Album
	err := s.db.Where("artist_id = ? AND LOWER(name) = LOWER(?)", artistID, name).
		First(&album).Error
	if err != nil {
		return nil, wrapLookup(err)
	}
	return &album, nil
}

func (s *Session) FindOrCreateAlbum(artistID int64, name string) (*models.Album, error) {
	album, err := s.AlbumByName(artistID, name)
	if err == nil {
		return album, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	album = &models.Album{Name: name, ArtistID: artistID}
	if err := s.db.Create(album).Error; err != nil {
		return nil, fmt.Errorf("failed to create album: %w", err)
	}
	return album, nil
}

func (s *Session) AlbumByID(id int64) (*models.Album, error) {
	var album models.Album
	err := s.db.First(&album, id).Error
	if err != nil {
		return nil, wrapLookup(err)
	}
	return &album, nil
}

func (s *Session) SetAlbumIgnored(albumID int64, ignored bool) error {
	return s.db.Model(&models.Album{}).Where("id = ?", albumID).
		Update("ignored", ignored).Error
}

// DeleteTracklessAlbums removes albums that no longer own any track and
// returns the number deleted.
func (s *Session) DeleteTracklessAlbums() (int64, error) {
	result := s.db.Where("id NOT IN (?)",
		s.db.Model(&models.Track{}).Distinct("album_id")).
		Delete(&models.Album{})
	return result.RowsAffected, result.Error
}

// DuplicateAlbum reports an album holding several tracks with the same
// name.
type DuplicateAlbum struct {
	AlbumID    int64
	AlbumName  string
	ArtistName string
	TrackName  string
	Count      int64
}

// DuplicateAlbums lists albums with multiple tracks sharing a name.
// Reporting only; nothing is fixed automatically.
func (s *Session) DuplicateAlbums() ([]DuplicateAlbum, error) {
	var dupes []DuplicateAlbum
	err := s.db.Model(&models.Track{}).
		Select("tracks.album_id AS album_id, albums.name AS album_name, artists.name AS artist_name, tracks.name AS track_name, COUNT(tracks.id) AS count").
		Joins("JOIN albums ON albums.id = tracks.album_id").
		Joins("JOIN artists ON artists.id = albums.artist_id").
		Group("tracks.album_id, tracks.name").
		Having("COUNT(tracks.id) > 1").
		Scan(&dupes).Error
	return dupes, err
}

// Track operations

func (s *Session) TrackByFilename(filename string) (*models.Track, error) {
	var track models.Track
	err := s.db.Where("filename = ?", filename).First(&track).Error
	if err != nil {
		return nil, wrapLookup(err)
	}
	return &track, nil
}

func (s *Session) FindOrCreateTrack(filename, name string, albumID, artistID int64) (*models.Track, error) {
	track, err := s.TrackByFilename(filename)
	if err == nil {
		return track, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	track = &models.Track{
		Name:     name,
		Filename: filename,
		AlbumID:  albumID,
		ArtistID: artistID,
	}
	if err := s.db.Create(track).Error; err != nil {
		return nil, fmt.Errorf("failed to create track: %w", err)
	}
	return track, nil
}

func (s *Session) TrackByID(id int64) (*models.Track, error) {
	var track models.Track
	err := s.db.First(&track, id).Error
	if err != nil {
		return nil, wrapLookup(err)
	}
	return &track, nil
}

func (s *Session) ArtistByID(id int64) (*models.Artist, error) {
	var artist models.Artist
	err := s.db.First(&artist, id).Error
	if err != nil {
		return nil, wrapLookup(err)
	}
	return &artist, nil
}

// TrackFilenames returns every filename known to the store.
func (s *Session) TrackFilenames() ([]string, error) {
	var filenames []string
	err := s.db.Model(&models.Track{}).Pluck("filename", &filenames).Error
	return filenames, err
}

// TracksByFilenames fetches tracks for the given filenames, chunking
// the lookup to keep query size bounded.
func (s *Session) TracksByFilenames(filenames []string) ([]models.Track, error) {
	var tracks []models.Track
	for _, chunk := range chunkStrings(filenames, filenameChunkSize) {
		var batch []models.Track
		if err := s.db.Where("filename IN ?", chunk).Find(&batch).Error; err != nil {
			return nil, err
		}
		tracks = append(tracks, batch...)
	}
	return tracks, nil
}

// DeleteTracksByFilenames removes tracks whose filenames vanished from
// the daemon, chunked like the batch read.
func (s *Session) DeleteTracksByFilenames(filenames []string) error {
	for _, chunk := range chunkStrings(filenames, filenameChunkSize) {
		if err := s.db.Where("filename IN ?", chunk).Delete(&models.Track{}).Error; err != nil {
			return err
		}
	}
	return nil
}

// DeleteOrphanTrackMeta removes metadata rows whose track is gone.
func (s *Session) DeleteOrphanTrackMeta() error {
	return s.db.Where("track_id NOT IN (?)",
		s.db.Model(&models.Track{}).Select("id")).
		Delete(&models.TrackMeta{}).Error
}

// TrackByTriple finds a track by exact case-insensitive
// (artist, album, title) match.
func (s *Session) TrackByTriple(artist, album, title string) (*models.Track, error) {
	var track models.Track
	err := s.db.Model(&models.Track{}).
		Joins("JOIN albums ON albums.id = tracks.album_id").
		Joins("JOIN artists ON artists.id = tracks.artist_id").
		Where("LOWER(artists.name) = LOWER(?)", artist).
		Where("LOWER(albums.name) = LOWER(?)", album).
		Where("LOWER(tracks.name) = LOWER(?)", title).
		First(&track).Error
	if err != nil {
		return nil, wrapLookup(err)
	}
	return &track, nil
}

// TrackByArtistAndTitle finds a track by exact case-insensitive artist
// and title, used when the source reports no album.
func (s *Session) TrackByArtistAndTitle(artist, title string) (*models.Track, error) {
	var track models.Track
	err := s.db.Model(&models.Track{}).
		Joins("JOIN artists ON artists.id = tracks.artist_id").
		Where("LOWER(artists.name) = LOWER(?)", artist).
		Where("LOWER(tracks.name) = LOWER(?)", title).
		First(&track).Error
	if err != nil {
		return nil, wrapLookup(err)
	}
	return &track, nil
}

// TrackTriple is a track id plus its joined artist, album and track
// names, used by the fuzzy matcher.
type TrackTriple struct {
	TrackID    int64
	ArtistName string
	AlbumName  string
	TrackName  string
}

func (s *Session) TrackTriples() ([]TrackTriple, error) {
	var triples []TrackTriple
	err := s.db.Model(&models.Track{}).
		Select("tracks.id AS track_id, artists.name AS artist_name, albums.name AS album_name, tracks.name AS track_name").
		Joins("JOIN albums ON albums.id = tracks.album_id").
		Joins("JOIN artists ON artists.id = tracks.artist_id").
		Scan(&triples).Error
	return triples, err
}

// TracksByArtist returns an artist's tracks ordered by name.
func (s *Session) TracksByArtist(artistID int64) ([]models.Track, error) {
	var tracks []models.Track
	err := s.db.Where("artist_id = ?", artistID).Order("name").Find(&tracks).Error
	return tracks, err
}

// AlbumTrackFilenames returns an album's track filenames in filename
// order, for handing whole albums to the player queue.
func (s *Session) AlbumTrackFilenames(albumID int64) ([]string, error) {
	var filenames []string
	err := s.db.Model(&models.Track{}).Where("album_id = ?", albumID).
		Order("filename").Pluck("filename", &filenames).Error
	return filenames, err
}

// TrackAlbumFile maps one filename to its album, for joining player
// metadata onto albums.
type TrackAlbumFile struct {
	Filename string
	AlbumID  int64
}

func (s *Session) TrackAlbumFiles() ([]TrackAlbumFile, error) {
	var files []TrackAlbumFile
	err := s.db.Model(&models.Track{}).
		Select("filename, album_id").Scan(&files).Error
	return files, err
}

// TrackMeta operations

func (s *Session) findOrCreateTrackMeta(trackID int64) (*models.TrackMeta, error) {
	var meta models.TrackMeta
	err := s.db.Where("track_id = ?", trackID).First(&meta).Error
	if err == nil {
		return &meta, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	meta = models.TrackMeta{TrackID: trackID}
	if err := s.db.Create(&meta).Error; err != nil {
		return nil, fmt.Errorf("failed to create track meta: %w", err)
	}
	return &meta, nil
}

// SetLoved records the loved flag for a track, creating the metadata
// row on first write.
func (s *Session) SetLoved(trackID int64, loved bool) error {
	meta, err := s.findOrCreateTrackMeta(trackID)
	if err != nil {
		return err
	}
	if meta.Loved == loved {
		return nil
	}
	meta.Loved = loved
	return s.db.Save(meta).Error
}

// Loved reports whether the track is flagged loved.
func (s *Session) Loved(trackID int64) (bool, error) {
	var meta models.TrackMeta
	err := s.db.Where("track_id = ?", trackID).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return meta.Loved, nil
}

// ScrobbleInfo operations

func (s *Session) FindOrCreateScrobbleInfo(title, artist, album string) (*models.ScrobbleInfo, error) {
	var info models.ScrobbleInfo
	err := s.db.Where(
		"LOWER(title) = LOWER(?) AND LOWER(artist) = LOWER(?) AND LOWER(album) = LOWER(?)",
		title, artist, album).First(&info).Error
	if err == nil {
		return &info, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	info = models.ScrobbleInfo{Title: title, Artist: artist, Album: album}
	if err := s.db.Create(&info).Error; err != nil {
		return nil, fmt.Errorf("failed to create scrobble info: %w", err)
	}
	return &info, nil
}

// Scrobble operations

func (s *Session) FindOrCreateScrobble(timestamp time.Time, infoID int64) (*models.Scrobble, error) {
	timestamp = timestamp.UTC().Truncate(time.Second)
	var scrobble models.Scrobble
	err := s.db.Where("timestamp = ? AND scrobble_info_id = ?", timestamp, infoID).
		First(&scrobble).Error
	if err == nil {
		return &scrobble, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	scrobble = models.Scrobble{Timestamp: timestamp, ScrobbleInfoID: infoID}
	if err := s.db.Create(&scrobble).Error; err != nil {
		return nil, fmt.Errorf("failed to create scrobble: %w", err)
	}
	return &scrobble, nil
}

// AttachScrobbleTrack sets the scrobble's track when not already set.
func (s *Session) AttachScrobbleTrack(scrobbleID, trackID int64) error {
	return s.db.Model(&models.Scrobble{}).
		Where("id = ? AND track_id IS NULL", scrobbleID).
		Update("track_id", trackID).Error
}

func (s *Session) LatestScrobbleTime() (*time.Time, error) {
	return s.scrobbleBound("MAX(timestamp)")
}

func (s *Session) EarliestScrobbleTime() (*time.Time, error) {
	return s.scrobbleBound("MIN(timestamp)")
}

func (s *Session) scrobbleBound(expr string) (*time.Time, error) {
	var bound *time.Time
	err := s.db.Model(&models.Scrobble{}).Select(expr).Scan(&bound).Error
	if err != nil {
		return nil, err
	}
	return bound, nil
}

// CoalesceDuplicateScrobbles collapses rows sharing
// (timestamp, scrobble_info_id), keeping the minimum-id row.
func (s *Session) CoalesceDuplicateScrobbles() (int64, error) {
	result := s.db.Exec(`DELETE FROM scrobbles WHERE id NOT IN (
		SELECT MIN(id) FROM scrobbles GROUP BY timestamp, scrobble_info_id)`)
	return result.RowsAffected, result.Error
}

// ScrobblesPage returns scrobbles newest-first with their raw info, for
// the history pane.
func (s *Session) ScrobblesPage(limit, offset int) ([]models.Scrobble, error) {
	var scrobbles []models.Scrobble
	err := s.db.Preload("Info").Order("timestamp DESC").
		Limit(limit).Offset(offset).Find(&scrobbles).Error
	return scrobbles, err
}

// Corrections

func (s *Session) ArtistCorrection(name string) (*models.ArtistCorrection, error) {
	var correction models.ArtistCorrection
	err := s.db.Where("LOWER(name) = LOWER(?)", name).First(&correction).Error
	if err != nil {
		return nil, wrapLookup(err)
	}
	return &correction, nil
}

func (s *Session) SaveArtistCorrection(name string, artistID int64) error {
	correction := models.ArtistCorrection{Name: name, ArtistID: artistID}
	return s.db.Create(&correction).Error
}

func (s *Session) AlbumCorrection(name string) (*models.AlbumCorrection, error) {
	var correction models.AlbumCorrection
	err := s.db.Where("LOWER(name) = LOWER(?)", name).First(&correction).Error
	if err != nil {
		return nil, wrapLookup(err)
	}
	return &correction, nil
}

func (s *Session) SaveAlbumCorrection(name string, albumID int64) error {
	correction := models.AlbumCorrection{Name: name, AlbumID: albumID}
	return s.db.Create(&correction).Error
}

// Load status

func (s *Session) loadStatus() (*models.LoadStatus, error) {
	var status models.LoadStatus
	err := s.db.First(&status).Error
	if err == nil {
		return &status, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	status = models.LoadStatus{}
	if err := s.db.Create(&status).Error; err != nil {
		return nil, fmt.Errorf("failed to create load status: %w", err)
	}
	return &status, nil
}

func (s *Session) ScrobblesInitialized() (bool, error) {
	status, err := s.loadStatus()
	if err != nil {
		return false, err
	}
	return status.ScrobblesInitialized, nil
}

func (s *Session) SetScrobblesInitialized(initialized bool) error {
	status, err := s.loadStatus()
	if err != nil {
		return err
	}
	status.ScrobblesInitialized = initialized
	return s.db.Save(status).Error
}

// PurgeScrobbles drops all scrobble history and marks it
// uninitialized so the next backfill starts from scratch.
func (s *Session) PurgeScrobbles() error {
	if err := s.db.Where("1 = 1").Delete(&models.Scrobble{}).Error; err != nil {
		return err
	}
	if err := s.db.Where("1 = 1").Delete(&models.ScrobbleInfo{}).Error; err != nil {
		return err
	}
	return s.SetScrobblesInitialized(false)
}

// Counts is a snapshot of catalog sizes for the status line.
type Counts struct {
	Artists   int64
	Albums    int64
	Tracks    int64
	Scrobbles int64
}

func (s *Session) Counts() (Counts, error) {
	var counts Counts
	for _, c := range []struct {
		model interface{}
		dest  *int64
	}{
		{&models.Artist{}, &counts.Artists},
		{&models.Album{}, &counts.Albums},
		{&models.Track{}, &counts.Tracks},
		{&models.Scrobble{}, &counts.Scrobbles},
	} {
		if err := s.db.Model(c.model).Count(c.dest).Error; err != nil {
			return counts, err
		}
	}
	return counts, nil
}

func chunkStrings(values []string, size int) [][]string {
	var chunks [][]string
	for len(values) > size {
		chunks = append(chunks, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		chunks = append(chunks, values)
	}
	return chunks
}
