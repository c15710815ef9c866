package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thesquelched/suggestive-sub000/internal/config"
	"github.com/thesquelched/suggestive-sub000/internal/events"
	"github.com/thesquelched/suggestive-sub000/internal/lastfm"
	"github.com/thesquelched/suggestive-sub000/internal/library"
	"github.com/thesquelched/suggestive-sub000/internal/logging"
	"github.com/thesquelched/suggestive-sub000/internal/mpd"
	"github.com/thesquelched/suggestive-sub000/internal/mvc"
	"github.com/thesquelched/suggestive-sub000/internal/order"
	"github.com/thesquelched/suggestive-sub000/internal/store"
	"github.com/thesquelched/suggestive-sub000/internal/ui"
)

// Version of the application
var Version = "1.0.0"

type cliOptions struct {
	configPath           string
	logPath              string
	update               bool
	noUpdate             bool
	reinitializeScrobble bool
	verbose              bool
}

func main() {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "suggestive",
		Short:        "MPD client with scrobble-driven album suggestions",
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "~/.suggestive.conf", "configuration file")
	flags.StringVar(&opts.logPath, "log", "", "log file (overrides configuration)")
	flags.BoolVar(&opts.update, "update", false, "update the library on startup")
	flags.BoolVar(&opts.noUpdate, "no-update", false, "do not update the library on startup")
	flags.BoolVar(&opts.reinitializeScrobble, "reinitialize-scrobbles", false,
		"discard scrobble history and reload it from scratch")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *cliOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.logPath != "" {
		cfg.General.Log = opts.logPath
	}
	if opts.verbose {
		cfg.General.Verbose = true
	}

	level := logging.InfoLevel
	if cfg.General.Verbose {
		level = logging.DebugLevel
	}
	rootLogger, logCloser, err := logging.NewFileLogger(level, cfg.General.Log)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logCloser.Close()
	log := rootLogger.WithModule("main")
	log.Info().Str("version", Version).Msg("starting up")

	db, err := store.Open(cfg.General.Database, rootLogger.WithModule("store"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if opts.reinitializeScrobble {
		err := db.Scoped(true, func(session *store.Session) error {
			return session.PurgeScrobbles()
		})
		if err != nil {
			return fmt.Errorf("failed to reset scrobble history: %w", err)
		}
		log.Info().Msg("scrobble history reset")
	}

	// The UI thread and each background worker own a daemon connection
	// of their own; the client is not safe for concurrent commands.
	uiPlayer := mpd.NewPlayer(cfg.MPD.Addr(), cfg.MPD.Password, rootLogger.WithModule("mpd"))
	watchPlayer := mpd.NewPlayer(cfg.MPD.Addr(), cfg.MPD.Password, rootLogger.WithModule("mpd.watch"))
	syncPlayer := mpd.NewPlayer(cfg.MPD.Addr(), cfg.MPD.Password, rootLogger.WithModule("mpd.sync"))
	defer uiPlayer.Close()
	defer watchPlayer.Close()
	defer syncPlayer.Close()

	scrobbler := lastfm.NewClient(cfg.LastFM.URL, cfg.LastFM.APIKey, cfg.LastFM.APISecret,
		cfg.LastFM.SessionFile, rootLogger.WithModule("lastfm"))
	if _, err := scrobbler.LoadSession(); err != nil {
		log.Warn().Err(err).Msg("failed to load scrobble service session")
	}
	if cfg.LastFM.APISecret != "" && !scrobbler.HasSession() {
		if err := scrobbler.EnsureSession(ctx, promptAuthorize); err != nil {
			log.Warn().Err(err).Msg("scrobble service authorization failed; love/unlove disabled")
		}
	}

	synchronizer := library.NewSynchronizer(db, syncPlayer, scrobbler, library.Options{
		User:          cfg.LastFM.User,
		RetentionDays: cfg.Scrobbles.RetentionDays,
		FuzzyCutoff:   cfg.Library.FuzzyCutoff,
		FuzzyTop:      cfg.Library.FuzzyTop,
	}, rootLogger.WithModule("library"))

	parser := order.NewParser(cfg.CustomOrderers, cfg.Library.IgnoreArtistThe)
	defaults, err := parser.ParseChain(cfg.Library.DefaultOrderers)
	if err != nil {
		return fmt.Errorf("invalid default_orderers: %w", err)
	}

	registry := mvc.NewRegistry()
	models := ui.Models{
		Library:   mvc.NewLibraryModel(cfg.Library.ShowScore),
		Playlist:  mvc.NewPlaylistModel(),
		Scrobbles: mvc.NewScrobbleListModel(),
	}
	controllers := ui.Controllers{
		Library: mvc.NewLibraryController(db, uiPlayer, scrobbler, parser, defaults,
			models.Library, registry, rootLogger.WithModule("library.controller")),
		Playlist: mvc.NewPlaylistController(db, uiPlayer, models.Playlist, registry,
			rootLogger.WithModule("playlist.controller")),
		Scrobbles: mvc.NewScrobblesController(db, models.Scrobbles, registry,
			rootLogger.WithModule("scrobbles.controller")),
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	// The application is created after the dispatcher it schedules
	// for; nothing emits events until the workers start below.
	var app *ui.App
	schedule := func(fn func()) { app.Schedule(fn) }

	dispatcher := events.NewDispatcher(schedule, 250*time.Millisecond, rootLogger.WithModule("events"))
	updater := events.NewUpdater(db, syncPlayer, synchronizer, dispatcher,
		rootLogger.WithModule("updater"))
	watcher := events.NewIdleWatcher(watchPlayer, dispatcher, rootLogger.WithModule("watcher"))
	backfiller := events.NewBackfiller(synchronizer, rootLogger.WithModule("backfiller"))

	app = ui.New(cfg, controllers, models, updater, stopWorkers, rootLogger.WithModule("ui"))
	updater.SetOnComplete(app.HandleUpdateResult)
	backfiller.SetOnDone(func(ingested int, err error) {
		if err != nil {
			log.Error().Err(err).Msg("scrobble backfill failed")
			return
		}
		if ingested > 0 {
			app.Schedule(func() {
				app.SetFooter(fmt.Sprintf("backfilled %d older scrobbles", ingested), false)
			})
		}
	})
	dispatcher.Subscribe(events.KindPlaylist, app.HandlePlayerEvent)
	dispatcher.Subscribe(events.KindPlayer, app.HandlePlayerEvent)

	if err := controllers.Playlist.Refresh(); err != nil {
		log.Warn().Err(err).Msg("initial playlist load failed")
	}
	if err := controllers.Library.Refresh(); err != nil {
		log.Warn().Err(err).Msg("initial library load failed")
	}

	go dispatcher.Run(workerCtx)
	go watcher.Run(workerCtx)
	go updater.Run(workerCtx)
	go backfiller.Run(workerCtx)

	if startupUpdate(cfg, opts) {
		updater.Request(false)
	}

	uiErr := app.Run()
	stopWorkers()

	if cfg.Playlist.SaveOnClose {
		if err := controllers.Playlist.SaveAs(savePlaylistName(cfg)); err != nil {
			log.Warn().Err(err).Msg("failed to save playlist on close")
		}
	}

	log.Info().Msg("shutting down")
	return uiErr
}

// startupUpdate resolves the config default against the mutually
// overriding --update / --no-update flags.
func startupUpdate(cfg *config.AppConfig, opts *cliOptions) bool {
	if opts.noUpdate {
		return false
	}
	if opts.update {
		return true
	}
	return cfg.General.UpdateOnStartup
}

func savePlaylistName(cfg *config.AppConfig) string {
	if cfg.Playlist.SaveName != "" {
		return cfg.Playlist.SaveName
	}
	return fmt.Sprintf("suggestive-%s", time.Now().Format("20060102-150405"))
}

// promptAuthorize walks the user through the scrobble service's web
// authorization before the terminal UI takes over the screen.
func promptAuthorize(authURL string) error {
	fmt.Printf("Visit the following URL to authorize this client:\n\n  %s\n\n", authURL)
	fmt.Print("Press Enter when done...")
	reader := bufio.NewReader(os.Stdin)
	_, err := reader.ReadString('\n')
	return err
}
