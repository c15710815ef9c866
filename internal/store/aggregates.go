package store

// AlbumAggregate is the per-album projection consumed by the orderer
// pipeline: identity plus the counters the rankers score on.
type AlbumAggregate struct {
	AlbumID       int64
	AlbumName     string
	ArtistName    string
	Ignored       bool
	TrackCount    int64
	LovedCount    int64
	ScrobbleCount int64
}

// AlbumAggregates returns one aggregate per album in the catalog.
func (s *Session) AlbumAggregates() ([]AlbumAggregate, error) {
	var aggregates []AlbumAggregate
	err := s.db.Raw(`
		SELECT albums.id     AS album_id,
		       albums.name   AS album_name,
		       artists.name  AS artist_name,
		       albums.ignored AS ignored,
		       (SELECT COUNT(*) FROM tracks
		         WHERE tracks.album_id = albums.id) AS track_count,
		       (SELECT COUNT(*) FROM track_meta
		         JOIN tracks lt ON lt.id = track_meta.track_id
		         WHERE lt.album_id = albums.id AND track_meta.loved = 1) AS loved_count,
		       (SELECT COUNT(*) FROM scrobbles
		         JOIN tracks st ON st.id = scrobbles.track_id
		         WHERE st.album_id = albums.id) AS scrobble_count
		FROM albums
		JOIN artists ON artists.id = albums.artist_id`).
		Scan(&aggregates).Error
	return aggregates, err
}
