package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joeyliu6/weibodr-sync/internal/config"
	"github.com/joeyliu6/weibodr-sync/internal/database"
	"github.com/joeyliu6/weibodr-sync/internal/events"
	"github.com/joeyliu6/weibodr-sync/internal/http"
	"github.com/joeyliu6/weibodr-sync/internal/logger"
	"github.com/joeyliu6/weibodr-sync/internal/profile"
	"github.com/joeyliu6/weibodr-sync/internal/scheduler"
	"github.com/joeyliu6/weibodr-sync/internal/server"
	"github.com/joeyliu6/weibodr-sync/internal/sync"
	"github.com/joeyliu6/weibodr-sync/internal/vault"

	"github.com/asaskevich/EventBus"
	"github.com/r3labs/sse/v2"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var configPath string
	pflag.StringVar(&configPath, "config", "", "path to configuration file")
	pflag.Parse()

	// read config
	cfg := config.New(configPath, version)

	// init new logger
	log := logger.New(cfg.Config)

	// init dynamic config
	cfg.DynamicReload(log)

	// setup server-sent-events
	serverEvents := sse.New()
	serverEvents.CreateStreamWithOpts("logs", sse.StreamOpts{MaxEntries: 1000, AutoReplay: true})

	// register SSE hook on logger
	log.RegisterSSEWriter(serverEvents)

	// setup internal eventbus
	bus := EventBus.New()

	// open database connection
	db, err := database.NewDB(cfg.Config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create new db")
	}

	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("could not open db connection")
	}

	log.Info().Msgf("Starting weibodr-sync")
	log.Info().Msgf("Version: %s", version)
	log.Info().Msgf("Commit: %s", commit)
	log.Info().Msgf("Build date: %s", date)
	log.Info().Msgf("Log-level: %s", cfg.Config.Logging.Level)
	log.Info().Msgf("Using database: %s", db.Driver)

	// setup repos
	var (
		profileRepo  = database.NewProfileRepo(log, db)
		historyRepo  = database.NewHistoryRepo(log, db)
		settingsRepo = database.NewSettingsRepo(log, db)
		statusRepo   = database.NewSyncStatusRepo(log, db)
	)

	credentialVault, err := vault.New(log, cfg.Config.Vault)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize credential vault")
	}

	// setup services
	var (
		profileService   = profile.NewService(log, profileRepo, credentialVault)
		syncService      = sync.NewService(log, bus, profileService, settingsRepo, historyRepo, statusRepo)
		schedulerService = scheduler.NewService(log, bus, syncService, profileService, settingsRepo, statusRepo)
	)

	// register event subscribers
	events.NewSubscribers(log, bus)

	errorChannel := make(chan error)

	go func() {
		httpServer := http.NewServer(
			log,
			cfg,
			serverEvents,
			db,
			version,
			commit,
			date,
			syncService,
			profileService,
			schedulerService,
		)
		errorChannel <- httpServer.Open()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	srv := server.NewServer(log, cfg.Config, schedulerService)
	if err := srv.Start(); err != nil {
		log.Fatal().Stack().Err(err).Msg("could not start server")
		return
	}

	for {
		select {
		case err := <-errorChannel:
			log.Error().Err(err).Msg("http server failed")
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(1)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				log.Log().Msg("shutting down server sighup")
				srv.Shutdown()
				if err := db.Close(); err != nil {
					log.Error().Stack().Err(err).Msg("could not close db connection")
				}
				os.Exit(1)
			default:
				log.Info().Msgf("Shutting down server due to %s...", sig)
				srv.Shutdown()
				if err := db.Close(); err != nil {
					log.Error().Stack().Err(err).Msg("could not close db connection")
				}
				os.Exit(0)
			}
		}
	}
}
