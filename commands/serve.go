package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeu5/studybreak-rl/config"
	"github.com/zeu5/studybreak-rl/history"
	"github.com/zeu5/studybreak-rl/logger"
	"github.com/zeu5/studybreak-rl/metrics"
	"github.com/zeu5/studybreak-rl/policies"
	"github.com/zeu5/studybreak-rl/server"
	"github.com/zeu5/studybreak-rl/study"
)

var configFile string

// openStore returns the history store of the configured backend and the function releasing it
func openStore(ctx context.Context, cfg config.HistoryConfig) (history.Store, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return history.NewMemStore(), func() error { return nil }, nil
	case "redis":
		store := history.NewRedisStore(cfg.RedisAddr, cfg.RedisKey)
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return store, store.Close, nil
	case "file":
		return history.NewFileStore(cfg.Path), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
}

func preferencesFromConfig(cfg config.PreferencesConfig) study.Preferences {
	prefs := study.DefaultPreferences()
	// validated when the configuration is loaded
	if f, ok := study.ParseFatigueSensitivity(cfg.FatigueSensitivity); ok {
		prefs.FatigueSensitivity = f
	}
	if b, ok := study.ParseBreakBias(cfg.BreakBias); ok {
		prefs.BreakBias = b
	}
	return prefs
}

// newServer wires the session, its storage and the metrics into the http server
func newServer(ctx context.Context, cfg *config.Config) (*server.Server, func() error, error) {
	log := logger.Component("server")

	store, closeStore, err := openStore(ctx, cfg.History)
	if err != nil {
		return nil, nil, err
	}

	seed := cfg.Agent.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	m := metrics.New()
	prefs := preferencesFromConfig(cfg.Preferences)
	session := server.NewSession(ctx, server.SessionConfig{
		Policy:          policies.NewQLearningPolicyWithSeed(cfg.Agent.LearningRate, cfg.Agent.Discount, cfg.Agent.Epsilon, seed),
		Preferences:     &prefs,
		Store:           store,
		Metrics:         m,
		Logger:          logger.Component("session"),
		DefaultEpisodes: cfg.Training.DefaultEpisodes,
		MaxEpisodes:     cfg.Training.MaxEpisodes,
		Horizon:         cfg.Training.Horizon,
	})

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		Mode:            cfg.Server.Mode,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPath:     cfg.Metrics.Path,
	}, session, m, log)
	return srv, closeStore, nil
}

func ServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the study break recommendations over http",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			log := logger.Initialize(cfg.Logging)
			if f := cfg.File(); f != "" {
				log.WithField("file", f).Info("configuration loaded")
			}
			cfg.Watch(func(next *config.Config) {
				if err := logger.SetLevel(next.Logging.Level); err != nil {
					log.WithError(err).Warn("ignoring the reloaded log level")
					return
				}
				log.WithField("level", next.Logging.Level).Info("configuration reloaded")
			}, func(err error) {
				log.WithError(err).Warn("configuration reload failed")
			})

			ctx, done := interruptContext()
			defer done()

			srv, closeStore, err := newServer(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					log.WithError(err).Warn("failed to close the history store")
				}
			}()
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file, studybreak.yaml in . or ./config by default")
	return cmd
}
