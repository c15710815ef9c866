package ui

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"github.com/thesquelched/suggestive-sub000/internal/config"
	"github.com/thesquelched/suggestive-sub000/internal/events"
	"github.com/thesquelched/suggestive-sub000/internal/library"
	"github.com/thesquelched/suggestive-sub000/internal/mvc"
)

// Controllers bundles the MVC layer the UI drives.
type Controllers struct {
	Library   *mvc.LibraryController
	Playlist  *mvc.PlaylistController
	Scrobbles *mvc.ScrobblesController
}

// Models bundles the view models the UI renders.
type Models struct {
	Library   *mvc.LibraryModel
	Playlist  *mvc.PlaylistModel
	Scrobbles *mvc.ScrobbleListModel
}

// App is the terminal application: three buffer views over their
// models, a status footer, and a ':' command prompt.
type App struct {
	app    *tview.Application
	cfg    *config.AppConfig
	logger *zerolog.Logger

	controllers Controllers
	models      Models
	updater     *events.Updater
	quit        context.CancelFunc

	root    *tview.Flex
	content *tview.Flex
	footer  *tview.TextView
	input   *tview.InputField

	libraryView  *tview.List
	playlistView *tview.List
	scrobbleView *tview.List

	queue *updateQueue

	showLibrary   bool
	showPlaylist  bool
	showScrobbles bool
	vertical      bool
}

// New assembles the application. quit cancels the process-wide worker
// context when the user leaves.
func New(cfg *config.AppConfig, controllers Controllers, models Models, updater *events.Updater, quit context.CancelFunc, logger *zerolog.Logger) *App {
	a := &App{
		app:          tview.NewApplication(),
		cfg:          cfg,
		logger:       logger,
		controllers:  controllers,
		models:       models,
		updater:      updater,
		quit:         quit,
		showLibrary:  true,
		showPlaylist: true,
		vertical:     cfg.Library.Orientation == "vertical",
	}
	a.queue = newUpdateQueue(func(fn func()) { a.app.QueueUpdateDraw(fn) })
	a.build()
	a.subscribe()
	return a
}

// Schedule queues fn onto the UI thread's task queue; it satisfies
// events.Scheduler. Scheduled functions run in submission order.
// Model mutation must only happen through it (or from the UI thread
// itself).
func (a *App) Schedule(fn func()) {
	a.queue.Schedule(fn)
}

// Run blocks in the UI event loop.
func (a *App) Run() error {
	a.renderAll()
	return a.app.SetRoot(a.root, true).Run()
}

// Stop leaves the event loop.
func (a *App) Stop() {
	a.app.Stop()
}

// HandleUpdateResult receives reconcile outcomes from the background
// updater. Safe to call from any goroutine.
func (a *App) HandleUpdateResult(report *library.Report, err error) {
	a.Schedule(func() {
		if err != nil {
			a.logger.Error().Err(err).Msg("library update failed")
			a.SetFooter("update failed: "+err.Error(), true)
			return
		}
		if refreshErr := a.controllers.Library.Refresh(); refreshErr != nil {
			a.SetFooter(refreshErr.Error(), true)
			return
		}
		if a.showScrobbles {
			if refreshErr := a.controllers.Scrobbles.Refresh(); refreshErr != nil {
				a.SetFooter(refreshErr.Error(), true)
				return
			}
		}
		a.SetFooter(fmt.Sprintf("update complete: %d tracks added, %d removed, %d empty albums pruned",
			report.TracksAdded, report.TracksDeleted, report.AlbumsDeleted), false)
	})
}

// HandlePlayerEvent refreshes the playlist pane; wired to the idle
// watcher's playlist and player events through the dispatcher.
func (a *App) HandlePlayerEvent() {
	if err := a.controllers.Playlist.Refresh(); err != nil {
		a.SetFooter(err.Error(), true)
	}
}

func (a *App) build() {
	a.libraryView = newListView("Library")
	a.playlistView = newListView("Playlist")
	a.scrobbleView = newListView("Scrobbles")

	a.footer = tview.NewTextView().SetDynamicColors(true)
	a.setFooterStyle(false)

	a.input = tview.NewInputField().SetLabel(":")
	a.input.SetDoneFunc(func(key tcell.Key) {
		line := a.input.GetText()
		a.closePrompt()
		if key == tcell.KeyEnter && line != "" {
			a.runCommand(line)
		}
	})

	a.content = tview.NewFlex()
	a.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.content, 0, 1, true).
		AddItem(a.footer, 1, 0, false)

	a.layout()

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.app.GetFocus() == a.input {
			return event
		}
		if event.Rune() == ':' {
			a.openPrompt()
			return nil
		}
		return event
	})

	a.libraryView.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		entries := a.models.Library.Entries()
		if index < 0 || index >= len(entries) {
			return
		}
		if err := a.controllers.Library.EnqueueAlbum(entries[index].Album.ID); err != nil {
			a.SetFooter(err.Error(), true)
		}
	})

	a.playlistView.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		if err := a.controllers.Playlist.Play(index); err != nil {
			a.SetFooter(err.Error(), true)
		}
	})
}

func newListView(title string) *tview.List {
	list := tview.NewList().ShowSecondaryText(false)
	list.SetBorder(true).SetTitle(" " + title + " ")
	return list
}

// layout rebuilds the content area from the visible buffers and the
// current orientation.
func (a *App) layout() {
	direction := tview.FlexColumn
	if a.vertical {
		direction = tview.FlexRow
	}
	a.content.Clear().SetDirection(direction)
	if a.showLibrary {
		a.content.AddItem(a.libraryView, 0, 2, true)
	}
	if a.showPlaylist {
		a.content.AddItem(a.playlistView, 0, 1, false)
	}
	if a.showScrobbles {
		a.content.AddItem(a.scrobbleView, 0, 1, false)
	}
}

func (a *App) openPrompt() {
	a.input.SetText("")
	a.root.RemoveItem(a.footer)
	a.root.AddItem(a.input, 1, 0, true)
	a.app.SetFocus(a.input)
}

func (a *App) closePrompt() {
	a.root.RemoveItem(a.input)
	a.root.AddItem(a.footer, 1, 0, false)
	a.app.SetFocus(a.focusTarget())
}

// focusTarget is the first visible buffer view.
func (a *App) focusTarget() tview.Primitive {
	switch {
	case a.showLibrary:
		return a.libraryView
	case a.showPlaylist:
		return a.playlistView
	default:
		return a.scrobbleView
	}
}

// SetFooter replaces the one-line footer message; user-visible errors
// render in the error palette.
func (a *App) SetFooter(message string, isError bool) {
	a.setFooterStyle(isError)
	a.footer.SetText(tview.Escape(message))
}

func (a *App) setFooterStyle(isError bool) {
	fg, bg := a.cfg.Appearance.StatusFg, a.cfg.Appearance.StatusBg
	if isError {
		fg, bg = a.cfg.Appearance.ErrorFg, a.cfg.Appearance.ErrorBg
	}
	a.footer.SetTextColor(tcell.GetColor(fg))
	a.footer.SetBackgroundColor(tcell.GetColor(bg))
}

// subscribe hooks each view to its model. Notifications only arrive on
// the UI thread, so views render directly.
func (a *App) subscribe() {
	a.models.Library.Subscribe(a.renderLibrary)
	a.models.Playlist.Subscribe(a.renderPlaylist)
	a.models.Scrobbles.Subscribe(a.renderScrobbles)
}

func (a *App) renderAll() {
	a.renderLibrary()
	a.renderPlaylist()
	a.renderScrobbles()
}

func (a *App) renderLibrary() {
	index := a.libraryView.GetCurrentItem()
	a.libraryView.Clear()
	showScore := a.models.Library.ShowScore()
	for _, entry := range a.models.Library.Entries() {
		line := fmt.Sprintf("%s - %s", entry.Album.Artist, entry.Album.Name)
		if showScore {
			line = fmt.Sprintf("%8.2f  %s", entry.Score, line)
		}
		a.libraryView.AddItem(tview.Escape(line), "", 0, nil)
	}
	if count := a.libraryView.GetItemCount(); count > 0 && index < count {
		a.libraryView.SetCurrentItem(index)
	}
}

func (a *App) renderPlaylist() {
	index := a.playlistView.GetCurrentItem()
	a.playlistView.Clear()
	nowPlaying := a.models.Playlist.NowPlaying()
	for i, item := range a.models.Playlist.Items() {
		marker := "  "
		if i == nowPlaying {
			marker = "> "
		}
		loved := ""
		if a.controllers.Playlist.TrackLoved(item.File) {
			loved = " <3"
		}
		title := item.Title
		if title == "" {
			title = item.File
		}
		line := fmt.Sprintf("%s%s - %s%s", marker, item.Artist, title, loved)
		a.playlistView.AddItem(tview.Escape(line), "", 0, nil)
	}
	if count := a.playlistView.GetItemCount(); count > 0 && index < count {
		a.playlistView.SetCurrentItem(index)
	}
}

func (a *App) renderScrobbles() {
	a.scrobbleView.Clear()
	for _, row := range a.models.Scrobbles.Rows() {
		line := fmt.Sprintf("%s  %s - %s",
			row.Time.Local().Format("2006-01-02 15:04"), row.Artist, row.Title)
		a.scrobbleView.AddItem(tview.Escape(line), "", 0, nil)
	}
}
