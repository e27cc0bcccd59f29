package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/api"
	"github.com/urmzd/centrald/pkg/config"
	"github.com/urmzd/centrald/pkg/coordinator"
	"github.com/urmzd/centrald/pkg/db"
	"github.com/urmzd/centrald/pkg/journal"
	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/server"
	"golang.org/x/sync/errgroup"
)

// @title           centrald API
// @version         1.0
// @description     Read-only status API of the observatory coordinator

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	dbPath := flag.String("db", "", "Path to database file (default: ~/.config/centrald/centrald.db)")
	configPath := flag.String("config", "", "YAML configuration imported into the active profile on start and SIGHUP")
	logPath := flag.String("log", "", "Append protocol messages to this file")
	retain := flag.Duration("retain", 30*24*time.Hour, "Keep journal messages this long (0 keeps everything)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := run(*dbPath, *configPath, *logPath, *retain); err != nil {
		log.Fatal().Err(err).Msg("centrald failed")
	}
}

func run(dbPath, configPath, logPath string, retain time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	log.Info().Str("path", database.Path()).Msg("Database opened")

	if err := database.Migrate(ctx); err != nil {
		return err
	}

	needsBootstrap, err := database.NeedsBootstrap(ctx)
	if err != nil {
		return err
	}
	if needsBootstrap {
		log.Info().Msg("First run detected, bootstrapping database...")
		if err := database.Bootstrap(ctx); err != nil {
			return err
		}
		log.Info().Msg("Database bootstrapped successfully")
	}

	cfg, err := loadConfig(ctx, database, configPath)
	if err != nil {
		return err
	}

	log.Info().
		Str("profile", cfg.Profile.Name).
		Str("protocol_address", cfg.ProtocolAddress()).
		Str("api_address", cfg.APIAddress()).
		Strs("required_devices", cfg.RequiredDevices).
		Msg("Configuration loaded")

	sinks := journal.Multi{database.Messages()}
	var logFile *journal.File
	if logPath != "" {
		if logFile, err = journal.OpenFile(logPath); err != nil {
			return err
		}
		defer func() {
			if err := logFile.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close message log")
			}
		}()
		sinks = append(sinks, logFile)
	}

	coord := coordinator.New(cfg.Coordinator(), cfg.Ephemeris(),
		coordinator.WithAuthenticator(database.Users()),
		coordinator.WithSink(sinks),
	)
	coord.Start()

	router := api.NewRouter(coord, database.Messages())
	httpServer := &http.Server{
		Addr:              cfg.APIAddress(),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	peers := server.New(coord)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coord.Run(gctx)
	})

	g.Go(func() error {
		return peers.ListenAndServe(gctx, cfg.ProtocolAddress())
	})

	g.Go(func() error {
		log.Info().Str("address", httpServer.Addr).Msg("Starting API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		coord.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		reloadLoop(gctx, database, configPath, coord, logFile)
		return nil
	})

	if retain > 0 {
		g.Go(func() error {
			pruneLoop(gctx, database.Messages(), retain)
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("Shutting down...")
	return err
}

// loadConfig imports the YAML file, if any, and reads the active profile.
func loadConfig(ctx context.Context, database *db.DB, path string) (*db.Config, error) {
	if path != "" {
		f, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		if err := f.Apply(ctx, database); err != nil {
			return nil, err
		}
	}
	return database.ActiveConfig(ctx)
}

// reloadLoop re-reads the configuration on SIGHUP and reopens the message
// log so it can be rotated.
func reloadLoop(ctx context.Context, database *db.DB, configPath string, coord *coordinator.Coordinator, logFile *journal.File) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		log.Info().Msg("SIGHUP received, reloading configuration")

		if logFile != nil {
			if err := logFile.Reopen(); err != nil {
				log.Error().Err(err).Str("path", logFile.Path()).Msg("Failed to reopen message log")
			}
		}

		cfg, err := loadConfig(ctx, database, configPath)
		if err != nil {
			log.Error().Err(err).Msg("Failed to reload configuration, keeping the current one")
			coord.LogMessage(protocol.SeverityError, "configuration reload failed: "+err.Error())
			continue
		}
		coord.Reconfigure(cfg.Coordinator(), cfg.Ephemeris())
	}
}

// pruneLoop drops journal entries older than retain, once at start and
// then hourly.
func pruneLoop(ctx context.Context, store db.MessageStore, retain time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		n, err := store.Prune(ctx, time.Now().Add(-retain))
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune message journal")
		} else if n > 0 {
			log.Debug().Int64("messages", n).Msg("Pruned message journal")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
