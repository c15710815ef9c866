package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/thesquelched/suggestive-sub000/internal/store"
)

// runCommand dispatches a ':' prompt line. Lines that are not a
// built-in command are handed to the library orderer parser.
func (a *App) runCommand(line string) {
	name, arg := splitCommand(line)

	var err error
	switch name {
	case "q", "quit":
		a.quit()
		a.Stop()
		return
	case "library":
		err = a.toggleBuffer(&a.showLibrary)
	case "playlist":
		err = a.toggleBuffer(&a.showPlaylist)
	case "scrobbles":
		err = a.toggleBuffer(&a.showScrobbles)
		if err == nil && a.showScrobbles {
			err = a.controllers.Scrobbles.Refresh()
		}
	case "orientation":
		err = a.setOrientation(arg)
	case "score":
		a.models.Library.ToggleShowScore()
	case "save":
		if arg == "" {
			err = fmt.Errorf("save: playlist name required")
		} else {
			err = a.controllers.Playlist.SaveAs(arg)
		}
	case "load":
		if arg == "" {
			err = fmt.Errorf("load: playlist name required")
		} else {
			err = a.controllers.Playlist.LoadNamed(arg)
		}
	case "seek":
		err = a.seek(arg)
	case "update":
		a.updater.Request(false)
		a.SetFooter("update requested", false)
	case "rescan":
		a.updater.Request(true)
		a.SetFooter("rescan requested", false)
	case "stats":
		var counts store.Counts
		if counts, err = a.controllers.Library.Stats(); err == nil {
			a.SetFooter(fmt.Sprintf("%d artists, %d albums, %d tracks, %d scrobbles",
				counts.Artists, counts.Albums, counts.Tracks, counts.Scrobbles), false)
		}
	case "ignore":
		err = a.ignoreSelected(true)
	case "unignore":
		err = a.ignoreSelected(false)
	case "love":
		err = a.loveCurrent(true)
	case "unlove":
		err = a.loveCurrent(false)
	case "reset":
		err = a.controllers.Library.Reset()
	case "unorder", "unordered":
		err = a.controllers.Library.Unorder()
	default:
		err = a.controllers.Library.Command(line)
	}

	if err != nil {
		a.SetFooter(err.Error(), true)
	}
}

// toggleBuffer flips one pane's visibility, refusing to hide the last
// visible buffer.
func (a *App) toggleBuffer(flag *bool) error {
	if *flag && a.visibleBuffers() == 1 {
		return fmt.Errorf("cannot hide the last buffer")
	}
	*flag = !*flag
	a.layout()
	return nil
}

func (a *App) visibleBuffers() int {
	count := 0
	for _, shown := range []bool{a.showLibrary, a.showPlaylist, a.showScrobbles} {
		if shown {
			count++
		}
	}
	return count
}

// ignoreSelected marks the selected library album ignored so the base
// orderer filters it out of future suggestions.
func (a *App) ignoreSelected(ignored bool) error {
	entries := a.models.Library.Entries()
	index := a.libraryView.GetCurrentItem()
	if index < 0 || index >= len(entries) {
		return fmt.Errorf("no album selected")
	}
	return a.controllers.Library.SetAlbumIgnored(entries[index].Album.ID, ignored)
}

// loveCurrent mirrors a love flag for the playing track, falling back
// to the playlist selection when playback is stopped.
func (a *App) loveCurrent(loved bool) error {
	items := a.models.Playlist.Items()
	index := a.models.Playlist.NowPlaying()
	if index < 0 {
		index = a.playlistView.GetCurrentItem()
	}
	if index < 0 || index >= len(items) {
		return fmt.Errorf("no track to love")
	}
	return a.controllers.Library.LoveTrackByFilename(context.Background(), items[index].File, loved)
}

func splitCommand(line string) (string, string) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	name := fields[0]
	arg := ""
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}
	return name, arg
}

func (a *App) setOrientation(arg string) error {
	switch arg {
	case "h", "horizontal":
		a.vertical = false
	case "v", "vertical":
		a.vertical = true
	case "":
		a.vertical = !a.vertical
	default:
		return fmt.Errorf("orientation: want horizontal or vertical, got %q", arg)
	}
	a.layout()
	return nil
}

// seek accepts seconds ("90", "90.5") or minute:second ("1:30").
func (a *App) seek(arg string) error {
	if arg == "" {
		return fmt.Errorf("seek: position required")
	}
	seconds, err := parsePosition(arg)
	if err != nil {
		return err
	}
	return a.controllers.Playlist.Seek(seconds)
}

func parsePosition(arg string) (float64, error) {
	if minutes, rest, found := strings.Cut(arg, ":"); found {
		m, err := strconv.Atoi(minutes)
		if err != nil {
			return 0, fmt.Errorf("seek: bad position %q", arg)
		}
		s, err := strconv.ParseFloat(rest, 64)
		if err != nil || s < 0 || s >= 60 {
			return 0, fmt.Errorf("seek: bad position %q", arg)
		}
		return float64(m)*60 + s, nil
	}
	seconds, err := strconv.ParseFloat(arg, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("seek: bad position %q", arg)
	}
	return seconds, nil
}
