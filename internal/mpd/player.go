package mpd

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog"
)

// ErrTransport marks a player call that still failed after the single
// reconnect-and-retry attempt.
var ErrTransport = errors.New("player transport error")

// TrackInfo is the daemon's metadata for one file.
type TrackInfo struct {
	File         string
	Title        string
	Artist       string
	AlbumArtist  string
	Album        string
	LastModified time.Time
	Duration     int
}

// Name returns the display name for the track: the title when the
// daemon reports one, otherwise the basename of the file.
func (t TrackInfo) Name() string {
	if t.Title != "" {
		return t.Title
	}
	return basename(t.File)
}

// GroupArtist returns the artist the track should be grouped under:
// the album artist when present, the track artist otherwise.
func (t TrackInfo) GroupArtist() string {
	if t.AlbumArtist != "" {
		return t.AlbumArtist
	}
	return t.Artist
}

// PlaylistItem is one entry of the current queue.
type PlaylistItem struct {
	ID     int
	Pos    int
	File   string
	Title  string
	Artist string
	Album  string
	Time   int
}

// StatusInfo is the daemon's playback status.
type StatusInfo struct {
	State      string
	SongID     int
	SongPos    int
	Elapsed    float64
	UpdatingDB bool
}

// Player wraps the daemon's command connection. Every call retries once
// through a fresh connection when the first attempt fails; each
// long-lived goroutine owns its own Player.
type Player struct {
	addr     string
	password string
	logger   *zerolog.Logger

	mu   sync.Mutex
	conn *mpd.Client
}

// NewPlayer returns an unconnected player for the daemon at addr. The
// first call dials lazily.
func NewPlayer(addr, password string, logger *zerolog.Logger) *Player {
	return &Player{addr: addr, password: password, logger: logger}
}

// Addr returns the daemon address the player talks to.
func (p *Player) Addr() string {
	return p.addr
}

// Password returns the configured daemon password.
func (p *Player) Password() string {
	return p.password
}

func (p *Player) dial() (*mpd.Client, error) {
	if p.password != "" {
		return mpd.DialAuthenticated("tcp", p.addr, p.password)
	}
	return mpd.Dial("tcp", p.addr)
}

// do runs fn against the live connection, reconnecting and retrying a
// single time on failure.
func (p *Player) do(fn func(conn *mpd.Client) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		conn, err := p.dial()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		p.conn = conn
	}

	err := fn(p.conn)
	if err == nil {
		return nil
	}

	p.conn.Close()
	p.conn = nil
	if p.logger != nil {
		p.logger.Debug().Err(err).Msg("player call failed, reconnecting")
	}

	conn, dialErr := p.dial()
	if dialErr != nil {
		return fmt.Errorf("%w: %v", ErrTransport, dialErr)
	}
	p.conn = conn

	if err := fn(p.conn); err != nil {
		p.conn.Close()
		p.conn = nil
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Close shuts down the command connection.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// ListFiles returns every filename in the daemon's database.
func (p *Player) ListFiles() ([]string, error) {
	var files []string
	err := p.do(func(conn *mpd.Client) error {
		var err error
		files, err = conn.GetFiles()
		return err
	})
	return files, err
}

// ListAllInfo returns full track info below uri.
func (p *Player) ListAllInfo(uri string) ([]TrackInfo, error) {
	var infos []TrackInfo
	err := p.do(func(conn *mpd.Client) error {
		attrs, err := conn.ListAllInfo(uri)
		if err != nil {
			return err
		}
		infos = infos[:0]
		for _, a := range attrs {
			if a["file"] == "" {
				continue
			}
			infos = append(infos, trackInfoFromAttrs(a))
		}
		return nil
	})
	return infos, err
}

// PlaylistInfo returns the current queue.
func (p *Player) PlaylistInfo() ([]PlaylistItem, error) {
	var items []PlaylistItem
	err := p.do(func(conn *mpd.Client) error {
		attrs, err := conn.PlaylistInfo(-1, -1)
		if err != nil {
			return err
		}
		items = items[:0]
		for _, a := range attrs {
			items = append(items, playlistItemFromAttrs(a))
		}
		return nil
	})
	return items, err
}

// CurrentSong returns the playing queue item, or nil when stopped.
func (p *Player) CurrentSong() (*PlaylistItem, error) {
	var item *PlaylistItem
	err := p.do(func(conn *mpd.Client) error {
		attrs, err := conn.CurrentSong()
		if err != nil {
			return err
		}
		if attrs["file"] == "" {
			item = nil
			return nil
		}
		parsed := playlistItemFromAttrs(attrs)
		item = &parsed
		return nil
	})
	return item, err
}

// Status returns the daemon's playback status.
func (p *Player) Status() (StatusInfo, error) {
	var status StatusInfo
	err := p.do(func(conn *mpd.Client) error {
		attrs, err := conn.Status()
		if err != nil {
			return err
		}
		status = statusFromAttrs(attrs)
		return nil
	})
	return status, err
}

// Playback controls

func (p *Player) Play(pos int) error {
	return p.do(func(conn *mpd.Client) error { return conn.Play(pos) })
}

func (p *Player) PlayID(id int) error {
	return p.do(func(conn *mpd.Client) error { return conn.PlayID(id) })
}

func (p *Player) Pause() error {
	return p.do(func(conn *mpd.Client) error { return conn.Pause(true) })
}

func (p *Player) Stop() error {
	return p.do(func(conn *mpd.Client) error { return conn.Stop() })
}

func (p *Player) Next() error {
	return p.do(func(conn *mpd.Client) error { return conn.Next() })
}

func (p *Player) Previous() error {
	return p.do(func(conn *mpd.Client) error { return conn.Previous() })
}

func (p *Player) Clear() error {
	return p.do(func(conn *mpd.Client) error { return conn.Clear() })
}

func (p *Player) Delete(pos int) error {
	return p.do(func(conn *mpd.Client) error { return conn.Delete(pos, -1) })
}

func (p *Player) Move(from, to int) error {
	return p.do(func(conn *mpd.Client) error { return conn.Move(from, -1, to) })
}

// AddID appends the file to the queue and returns its queue id.
func (p *Player) AddID(file string) (int, error) {
	var id int
	err := p.do(func(conn *mpd.Client) error {
		var err error
		id, err = conn.AddID(file, -1)
		return err
	})
	return id, err
}

// SeekCur seeks within the playing track to pos seconds.
func (p *Player) SeekCur(pos float64) error {
	return p.do(func(conn *mpd.Client) error {
		return conn.SeekCur(time.Duration(pos*float64(time.Second)), false)
	})
}

// Update triggers a daemon database rescan.
func (p *Player) Update() error {
	return p.do(func(conn *mpd.Client) error {
		_, err := conn.Update("")
		return err
	})
}

// Named playlists

func (p *Player) Load(name string) error {
	return p.do(func(conn *mpd.Client) error {
		return conn.PlaylistLoad(name, -1, -1)
	})
}

func (p *Player) Save(name string) error {
	return p.do(func(conn *mpd.Client) error { return conn.PlaylistSave(name) })
}

func (p *Player) Remove(name string) error {
	return p.do(func(conn *mpd.Client) error { return conn.PlaylistRemove(name) })
}

// Watcher opens an idle watcher on its own dedicated connection for the
// given subsystems.
func (p *Player) Watcher(subsystems ...string) (*mpd.Watcher, error) {
	w, err := mpd.NewWatcher("tcp", p.addr, p.password, subsystems...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return w, nil
}

// attrs parsing

func trackInfoFromAttrs(attrs mpd.Attrs) TrackInfo {
	info := TrackInfo{
		File:        attrs["file"],
		Title:       attrs["Title"],
		Artist:      attrs["Artist"],
		AlbumArtist: attrs["AlbumArtist"],
		Album:       attrs["Album"],
	}
	if t, err := strconv.Atoi(attrs["Time"]); err == nil {
		info.Duration = t
	}
	if mod, err := time.Parse(time.RFC3339, attrs["Last-Modified"]); err == nil {
		info.LastModified = mod
	}
	return info
}

func playlistItemFromAttrs(attrs mpd.Attrs) PlaylistItem {
	item := PlaylistItem{
		File:   attrs["file"],
		Title:  attrs["Title"],
		Artist: attrs["Artist"],
		Album:  attrs["Album"],
	}
	if id, err := strconv.Atoi(attrs["Id"]); err == nil {
		item.ID = id
	}
	if pos, err := strconv.Atoi(attrs["Pos"]); err == nil {
		item.Pos = pos
	}
	if t, err := strconv.Atoi(attrs["Time"]); err == nil {
		item.Time = t
	}
	return item
}

func statusFromAttrs(attrs mpd.Attrs) StatusInfo {
	status := StatusInfo{
		State:      attrs["state"],
		SongID:     -1,
		SongPos:    -1,
		UpdatingDB: attrs["updating_db"] != "",
	}
	if id, err := strconv.Atoi(attrs["songid"]); err == nil {
		status.SongID = id
	}
	if pos, err := strconv.Atoi(attrs["song"]); err == nil {
		status.SongPos = pos
	}
	if elapsed, err := strconv.ParseFloat(attrs["elapsed"], 64); err == nil {
		status.Elapsed = elapsed
	}
	return status
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
