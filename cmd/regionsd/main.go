package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/regions/internal/blockstore"
	"github.com/udisondev/regions/internal/config"
	"github.com/udisondev/regions/internal/db"
	"github.com/udisondev/regions/internal/engine"
	"github.com/udisondev/regions/internal/entity"
	"github.com/udisondev/regions/internal/geom"
	"github.com/udisondev/regions/internal/mutator"
	"github.com/udisondev/regions/internal/structure"
)

const RegionsConfigPath = "config/regions.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := RegionsConfigPath
	if p := os.Getenv("REGIONS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadRegions(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("regions starting",
		"log_level", cfg.LogLevel,
		"primary", cfg.Primary,
		"primary_world", cfg.PrimaryWorld,
		"driver", cfg.Database.Driver)

	blocks := blockstore.NewStore()
	for _, w := range cfg.Worlds {
		if _, err := blocks.CreateWorld(w.ID, w.MinY, w.Height); err != nil {
			return fmt.Errorf("creating world %q: %w", w.ID, err)
		}
	}

	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	entities := entity.NewTracker()
	mut := mutator.New(blocks, entities, mutator.Config{
		Primary:      cfg.Primary,
		PrimaryWorld: cfg.PrimaryWorld,
		PresetsWorld: cfg.PresetsWorld,
		Workers:      cfg.Bulk.Workers,
		QueueSize:    cfg.Bulk.QueueSize,
		BackupDir:    cfg.Bulk.BackupDir,
	})

	districts, masts, err := buildStructures(cfg)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Deps{
		Blocks:    blocks,
		Entities:  entities,
		Mutator:   mut,
		Districts: districts,
		Masts:     masts,
		Store:     store,
	})
	if err := eng.Load(ctx); err != nil {
		return fmt.Errorf("loading regions: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mut.Run(gctx)
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("regions ready", "regions", eng.Regions().Len())

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	slog.Info("regions stopped")
	return nil
}

// openStore connects the configured persistence backend. The memory driver
// returns a nil store.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (engine.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if err := db.RunMigrations(ctx, cfg.DSN()); err != nil {
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		database, err := db.New(ctx, cfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		slog.Info("database connected", "driver", cfg.Driver)
		return db.NewRegionRepository(database.Pool()), database.Close, nil

	case config.DriverSQLite:
		s, err := db.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite %s: %w", cfg.Path, err)
		}
		slog.Info("database opened", "driver", cfg.Driver, "path", cfg.Path)
		return db.NewSQLiteRegionRepository(s), func() {
			if err := s.Close(); err != nil {
				slog.Warn("closing sqlite", "err", err)
			}
		}, nil

	default:
		slog.Warn("running without persistence", "driver", cfg.Driver)
		return nil, func() {}, nil
	}
}

func buildStructures(cfg config.Regions) (*structure.Districts, *structure.RadioMasts, error) {
	districts := structure.NewDistricts()
	for _, d := range cfg.Districts {
		keys := make([]geom.ChunkKey, 0, len(d.Chunks))
		for _, c := range d.Chunks {
			keys = append(keys, geom.ChunkKey{World: d.World, CX: c.CX, CZ: c.CZ})
		}
		err := districts.Add(structure.District{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Chunks:      keys,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("loading districts: %w", err)
		}
	}

	masts := structure.NewRadioMasts()
	for _, m := range cfg.RadioMasts {
		err := masts.Add(structure.RadioMast{Name: m.Name, World: m.World, X: m.X, Z: m.Z, Range: m.Range})
		if err != nil {
			return nil, nil, fmt.Errorf("loading radio masts: %w", err)
		}
	}

	slog.Info("structures loaded", "districts", len(cfg.Districts), "radio_masts", len(cfg.RadioMasts))
	return districts, masts, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
