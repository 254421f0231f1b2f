package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/syslog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shmel1k/mcmgr/internal/commands"
	"github.com/shmel1k/mcmgr/internal/config"
	"github.com/shmel1k/mcmgr/internal/httpapi"
	"github.com/shmel1k/mcmgr/internal/metrics"
	"github.com/shmel1k/mcmgr/internal/persistence"
	"github.com/shmel1k/mcmgr/internal/receiver"
	"github.com/shmel1k/mcmgr/internal/reconciler"
	"github.com/shmel1k/mcmgr/internal/registry"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	configPath = flag.String("config", "", "Config file path")
)

func main() {
	flag.Parse()
	cfg, err := config.Setup(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msgf("failed to read config")
	}

	logger := initLogger(cfg)
	logger.Info().Msgf("Starting mcmgr %s, commit %s, built at %s", version, commit, buildDate)

	reg := registry.New(registry.Limits{
		MaxNode:      cfg.Limits.MaxNode,
		MaxHost:      cfg.Limits.MaxHost,
		MaxContext:   cfg.Limits.MaxContext,
		MaxBalancer:  cfg.Limits.MaxBalancer,
		MaxSessionID: cfg.Limits.MaxSessionID,
		MaxDomain:    cfg.Limits.MaxDomain,
	})
	workers := reconciler.NewInMemory()
	nonce := uuid.NewString()
	bootTime := commands.NewBootTime(time.Now())

	var store *persistence.FileStore
	if cfg.Persistence.Enabled {
		store = persistence.NewFileStore(cfg.Persistence.BasePath)
		snap, err := store.Load(context.Background())
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load persisted registry snapshot, starting empty")
		} else {
			persistence.Restore(reg, snap)
			logger.Info().Int("nodes", len(snap.Nodes)).Msg("restored registry snapshot")
		}
	}

	rc := &receiver.Receiver{
		Reg:     reg,
		Workers: workers,
		Tunables: commands.Tunables{
			DefaultBalancer:   cfg.Tunables.DefaultBalancer,
			EnableWSTunnel:    cfg.Tunables.EnableWSTunnel,
			WSUpgradeHeader:   cfg.Tunables.WSUpgradeHeader,
			AJPSecret:         cfg.Tunables.AJPSecret,
			ResponseFieldSize: cfg.Tunables.ResponseFieldSize,
		},
		BootTime:       bootTime,
		Logger:         logger,
		MaxMessageSize: int64(cfg.Tunables.MaxMessageSize),
	}

	router := mux.NewRouter()
	httpapi.RegisterDebugHandlers(router, version, commit, buildDate)
	statusPage := httpapi.NewStatusPageHandler(logger, reg, nonce, cfg.HTTP.RequireNonce, cfg.HTTP.EnableCommands, cfg.HTTP.ManagerPath)
	httpapi.RegisterStatusPage(router, cfg.HTTP.ManagerPath, statusPage)
	httpapi.RegisterMCMPHandlers(router, rc)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go runReaper(reg, logger)
	if store != nil {
		go runPersister(reg, store, logger)
	}

	go func() {
		logger.Info().Msgf("Listening on %s", cfg.HTTP.Addr)

		err := server.ListenAndServe()
		if err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to listen HTTP server")
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	sig := <-interrupt

	logger.Info().Msgf("Received system signal: %s. Shutting down mcmgr", sig)

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Err(err).Msg("Failed to shutting down the HTTP server gracefully")
	}
}

// runReaper periodically sweeps tombstoned node slots back to FREED once
// they have no remaining hosts/contexts, and reports table occupancy and
// the version counter so the metrics are never stale.
func runReaper(reg *registry.Registry, logger zerolog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		reg.LockNodes()
		freed := reg.ReapTombstones()
		occupancy := reg.Occupancy()
		reg.UnlockNodes()

		for i := 0; i < freed; i++ {
			metrics.NewReapedNode()
		}
		for _, o := range occupancy {
			metrics.SetTableOccupancy(o.Table, o.Used, o.Capacity)
		}
		metrics.SetVersion(reg.Version())

		logger.Debug().Int("freed", freed).Msg("tombstone reap pass complete")
	}
}

// runPersister periodically snapshots the registry to disk when
// persistence is enabled.
func runPersister(reg *registry.Registry, store *persistence.FileStore, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		snap := persistence.SnapshotFrom(reg)
		if err := store.Save(context.Background(), snap); err != nil {
			logger.Warn().Err(err).Msg("failed to persist registry snapshot")
		}
	}
}

func initLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	loggingCfg := cfg.Logging

	logLevel, err := zerolog.ParseLevel(loggingCfg.Level)
	if err != nil {
		log.Warn().Msgf("Unknown Level String: '%s', defaulting to InfoLevel", loggingCfg.Level)
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	writers := make([]io.Writer, 0, 1)
	writers = append(writers, os.Stdout)

	if loggingCfg.Syslog {
		w, err := syslog.New(syslog.LOG_INFO, "mcmgr")
		if err != nil {
			log.Warn().Err(err).Msg("Unable to connect to the system log daemon")
		} else {
			writers = append(writers, zerolog.SyslogLevelWriter(w))
		}
	}

	if loggingCfg.File != "" {
		w, err := newRollingLogFile(&loggingCfg)
		if err != nil {
			log.Warn().Err(err).Msg("Unable to init file logger")
		} else {
			writers = append(writers, w)
		}
	}

	var baseLogger zerolog.Logger
	if len(writers) == 1 {
		baseLogger = zerolog.New(writers[0])
	} else {
		return zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(logLevel).With().Timestamp().Logger()
	}

	return baseLogger.Level(logLevel).With().Timestamp().Logger()
}

func newRollingLogFile(cfg *config.Logging) (io.Writer, error) {
	dir := path.Dir(cfg.File)
	if unix.Access(dir, unix.W_OK) != nil {
		return nil, fmt.Errorf("no permissions to write logs to dir: %s", dir)
	}

	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxBackups: cfg.MaxBackups,
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
	}, nil
}
