package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"heartrisk/config"
	"heartrisk/db"
	apihttp "heartrisk/http"
	"heartrisk/inference"
	"heartrisk/logging"
	"heartrisk/monitoring"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "heartrisk",
		Short:         "Serve heart-disease risk predictions over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(logger, metrics)

	artifactCfg := inference.ArtifactConfig{
		ModelType:    cfg.ML.ModelType,
		ModelFile:    cfg.ML.ModelFile,
		FeaturesFile: cfg.ML.FeaturesFile,
		SearchDirs:   inference.DefaultSearchDirs(cfg.ML.ModelDir),
	}
	loadService := func() (*inference.Service, error) {
		artifacts, err := inference.LoadArtifacts(artifactCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("model loaded",
			zap.String("model_path", artifacts.ModelPath),
			zap.String("features_path", artifacts.FeaturesPath),
			zap.Strings("features", artifacts.FeatureNames))
		return inference.NewService(artifacts, inference.WithCache(cfg.Cache.Size), inference.WithLogger(logger))
	}

	var predictor inference.Predictor
	var current func() (*inference.Service, error)
	if cfg.ML.LazyLoad {
		lazy := inference.NewLazy(loadService)
		predictor, current = lazy, lazy.Service
	} else {
		svc, err := loadService()
		if err != nil {
			return err
		}
		predictor = svc
		current = func() (*inference.Service, error) { return svc, nil }
	}

	handlerOpts := []apihttp.HandlerOption{
		apihttp.WithFeed(hub),
		apihttp.WithMetrics(metrics),
		apihttp.WithHandlerLogger(logger),
	}
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		handlerOpts = append(handlerOpts, apihttp.WithHistory(store, cfg.Database.RecordPredictions))
		logger.Info("prediction history enabled", zap.String("path", cfg.Database.Path))
	}

	server := apihttp.NewServer(apihttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, apihttp.NewHandlers(predictor, handlerOpts...), logger, metrics)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	if cfg.ML.WatchArtifacts {
		watcher, err := newArtifactWatcher(cfg, artifactCfg, current, hub, metrics, logger)
		if err != nil {
			logger.Warn("artifact watching disabled", zap.Error(err))
		} else {
			g.Go(func() error { return watcher.Run(ctx) })
		}
	}

	logger.Info("heartrisk started", zap.String("addr", server.Addr()))
	err = g.Wait()
	logger.Info("heartrisk stopped")
	return err
}

// newArtifactWatcher reloads the serving model whenever the model or feature
// file changes, including the first time they appear.
func newArtifactWatcher(
	cfg *config.Config,
	artifactCfg inference.ArtifactConfig,
	current func() (*inference.Service, error),
	hub *monitoring.Hub,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) (*inference.Watcher, error) {
	onReload := func(artifacts *inference.Artifacts, err error) {
		metrics.ObserveReload(err)
		if err != nil {
			return
		}
		if err := hub.Publish(monitoring.EventModelReload, map[string]string{
			"model_path":    artifacts.ModelPath,
			"features_path": artifacts.FeaturesPath,
		}); err != nil && !errors.Is(err, monitoring.ErrHubStopped) {
			logger.Warn("reload event not published", zap.Error(err))
		}
	}
	return inference.WatchArtifacts(artifactCfg, current, cfg.ML.WatchDebounce, onReload, logger)
}
