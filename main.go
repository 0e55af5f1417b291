package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/feedbot/internal/config"
	"github.com/robalobadob/feedbot/internal/httpserver"
	"github.com/robalobadob/feedbot/internal/journal"
	"github.com/robalobadob/feedbot/internal/store"
	"github.com/robalobadob/feedbot/internal/tcpserver"
	"github.com/robalobadob/feedbot/internal/world"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("bad configuration")
	}
	setupLogging(cfg)

	rng := newRand(cfg.WorldSeed)
	var rngMu sync.Mutex
	newWorld := func() (*world.Grid, error) {
		rngMu.Lock()
		defer rngMu.Unlock()
		return world.NewRandom(rng, cfg.WorldHeight, cfg.WorldWidth)
	}

	g, err := newWorld()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build world")
	}
	robot, _ := g.Robot()
	food, _ := g.Food()
	log.Info().
		Int("height", g.Height()).Int("width", g.Width()).
		Stringer("robot", robot).Stringer("food", food).
		Msg("world ready")

	var j journal.Journal
	if cfg.JournalDSN != "" {
		j, err = journal.OpenSQLite(cfg.JournalDSN)
		if err != nil {
			log.Fatal().Err(err).Str("dsn", cfg.JournalDSN).Msg("failed to open journal")
		}
	} else {
		j = journal.NewMemory()
	}
	defer j.Close()

	st := store.NewMemoryStore(g)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var httpSrv *http.Server
	if cfg.HTTPEnabled() {
		api := httpserver.New(st, j, httpserver.Options{
			Secret:        cfg.ObserverSecret,
			ClientOrigin:  cfg.ClientOrigin,
			WatchInterval: cfg.WatchInterval,
			NewWorld:      newWorld,
			Height:        cfg.WorldHeight,
			Width:         cfg.WorldWidth,
		})
		httpSrv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("observer API listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("observer API exited")
				stop()
			}
		}()
	}

	robotSrv := tcpserver.New(st, j, tcpserver.Options{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxFrame:     cfg.MaxFrameBytes,
		MaxSessions:  cfg.MaxSessions,
		OneShot:      cfg.OneShot,
	})
	serveErr := robotSrv.ListenAndServe(ctx, cfg.TCPAddr)

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("observer API shutdown")
		}
		cancel()
	}
	if serveErr != nil {
		_ = j.Close()
		log.Fatal().Err(serveErr).Msg("robot server exited")
	}
	log.Info().Msg("bye")
}

// setupLogging applies LOG_LEVEL and LOG_FORMAT to the global logger.
func setupLogging(cfg config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func newRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
